// Command nmdbd runs the nmdb server: a networked key-value service
// fronting a pluggable backend with an in-memory LRU cache. See
// internal/server for the wiring and internal/settings for the flag set.
package main

import (
	"fmt"
	"os"

	"github.com/dolfly/nmdb/internal/server"
	"github.com/dolfly/nmdb/internal/settings"
)

func main() {
	s, err := settings.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "nmdbd: %v\n", err)
		os.Exit(2)
	}

	srv, err := server.New(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nmdbd: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "nmdbd: %v\n", err)
		os.Exit(1)
	}

	srv.Signals().Run()
}
