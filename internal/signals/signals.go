// Package signals wires the four operator signals spec.md §6's GLOSSARY
// documents onto the server's runtime flags:
//
//	SIGTERM, SIGINT  orderly shutdown
//	SIGHUP           reopen the log file
//	SIGUSR1          latch read-only mode on (one-way)
//	SIGUSR2          toggle passive mode
//
// Built on os/signal.Notify, extended with the BSD user signals from
// golang.org/x/sys/unix since os/signal only exposes the portable subset
// by name on some platforms.
package signals

import (
	"log"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/dolfly/nmdb/internal/stats"
)

// Handler owns the signal channel and the callbacks it drives.
type Handler struct {
	ch        chan os.Signal
	flags     *stats.Flags
	log       *log.Logger
	reopenLog func() error
	shutdown  func()
}

// New registers for all four signals. reopenLog is invoked on SIGHUP; it
// may be nil if logging to stdout. shutdown is invoked exactly once on
// SIGTERM/SIGINT.
func New(flags *stats.Flags, logger *log.Logger, reopenLog func() error, shutdown func()) *Handler {
	h := &Handler{
		ch:        make(chan os.Signal, 1),
		flags:     flags,
		log:       logger,
		reopenLog: reopenLog,
		shutdown:  shutdown,
	}
	signal.Notify(h.ch, unix.SIGTERM, unix.SIGINT, unix.SIGHUP, unix.SIGUSR1, unix.SIGUSR2)
	return h
}

// Run blocks, dispatching signals until SIGTERM/SIGINT arrives or Stop is
// called (which unregisters with signal.Stop and closes the channel).
func (h *Handler) Run() {
	for sig := range h.ch {
		switch sig {
		case unix.SIGTERM, unix.SIGINT:
			h.log.Printf("signals: received %s, shutting down", sig)
			h.shutdown()
			return
		case unix.SIGHUP:
			h.log.Printf("signals: received SIGHUP, reopening log")
			if h.reopenLog != nil {
				if err := h.reopenLog(); err != nil {
					h.log.Printf("signals: log reopen failed: %v", err)
				}
			}
		case unix.SIGUSR1:
			h.flags.LatchReadOnly()
			h.log.Printf("signals: received SIGUSR1, latched read-only")
		case unix.SIGUSR2:
			now := h.flags.TogglePassive()
			h.log.Printf("signals: received SIGUSR2, passive=%v", now)
		}
	}
}

// Stop unregisters the handler and unblocks Run.
func (h *Handler) Stop() {
	signal.Stop(h.ch)
	close(h.ch)
}
