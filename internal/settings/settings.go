// Package settings parses the daemon's command-line flags into the
// immutable Settings record described by spec.md §3 ("One immutable
// record built at startup") and §6.
//
// A pflag FlagSet is built by hand per invocation, with StringP/IntP/BoolP
// for short+long forms, rather than the global flag.CommandLine
// singleton.
package settings

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/dolfly/nmdb/internal/backend"
)

// Defaults from spec.md §6.
const (
	DefaultDBPath       = "database"
	DefaultTipcPort     = 10
	DefaultInetPort     = 26010
	DefaultBindAddr     = "0.0.0.0"
	DefaultCacheEntries = 128000
)

// Settings is the immutable record built once at startup. Passive and
// ReadOnly here are only the startup values (-p, -r); the live,
// signal-mutable copies the rest of the server consults at runtime live
// in internal/stats.Flags, seeded from these two fields at construction.
type Settings struct {
	BackendKind backend.Kind
	DBPath      string

	TipcBindAddr string
	TipcPort     int

	UDPBindAddr string
	UDPPort     int

	TCPBindAddr string
	TCPPort     int

	SCTPBindAddr string
	SCTPPort     int

	CacheEntries int
	LogPath      string
	PIDFile      string
	Foreground   bool
	Passive      bool
	ReadOnly     bool
}

// Parse builds a Settings from argv-style args (excluding argv[0]),
// following the flag letters documented in spec.md §6. Lowercase letters
// are the port/number form, uppercase is the companion bind address, for
// every transport but TIPC (which has no inet-style address to bind):
//
//	-b backend kind      -d backend path
//	-l tipc bind addr    -L tipc port
//	-u udp port          -U udp bind addr
//	-t tcp port          -T tcp bind addr
//	-s sctp port         -S sctp bind addr
//	-c cache entries     -o log path
//	-i pid file          -f foreground
//	-p start passive     -r start read-only
//	-h help
func Parse(args []string) (Settings, error) {
	fs := flag.NewFlagSet("nmdbd", flag.ContinueOnError)

	backendKind := fs.StringP("backend", "b", string(backend.KindMemory), "backend kind: memory|redis|redigo")
	dbPath := fs.StringP("dbpath", "d", DefaultDBPath, "backend-specific path or address")

	tipcBind := fs.StringP("tipc-bind", "l", DefaultBindAddr, "TIPC cluster-datagram bind address")
	tipcPort := fs.IntP("tipc-port", "L", DefaultTipcPort, "TIPC cluster-datagram port")

	udpPort := fs.IntP("udp-port", "u", DefaultInetPort, "UDP port")
	udpBind := fs.StringP("udp-bind", "U", DefaultBindAddr, "UDP bind address")

	tcpPort := fs.IntP("tcp-port", "t", DefaultInetPort, "TCP port")
	tcpBind := fs.StringP("tcp-bind", "T", DefaultBindAddr, "TCP bind address")

	sctpPort := fs.IntP("sctp-port", "s", DefaultInetPort, "SCTP cluster-stream port")
	sctpBind := fs.StringP("sctp-bind", "S", DefaultBindAddr, "SCTP cluster-stream bind address")

	cacheEntries := fs.IntP("cache-entries", "c", DefaultCacheEntries, "approximate cache capacity in entries")
	logPath := fs.StringP("log", "o", "", "log file path, empty for stdout")
	pidFile := fs.StringP("pidfile", "i", "", "PID file path, empty to skip")
	foreground := fs.BoolP("foreground", "f", false, "stay in the foreground instead of daemonizing")
	passive := fs.BoolP("passive", "p", false, "start already in passive mode")
	readOnly := fs.BoolP("readonly", "r", false, "start already latched read-only")

	if err := fs.Parse(args); err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}

	s := Settings{
		BackendKind:  backend.Kind(*backendKind),
		DBPath:       *dbPath,
		TipcBindAddr: *tipcBind,
		TipcPort:     *tipcPort,
		UDPBindAddr:  *udpBind,
		UDPPort:      *udpPort,
		TCPBindAddr:  *tcpBind,
		TCPPort:      *tcpPort,
		SCTPBindAddr: *sctpBind,
		SCTPPort:     *sctpPort,
		CacheEntries: *cacheEntries,
		LogPath:      *logPath,
		PIDFile:      *pidFile,
		Foreground:   *foreground,
		Passive:      *passive,
		ReadOnly:     *readOnly,
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	switch s.BackendKind {
	case backend.KindMemory, backend.KindRedis, backend.KindRedigo:
	default:
		return fmt.Errorf("settings: unknown backend kind %q", s.BackendKind)
	}
	if s.CacheEntries <= 0 {
		return fmt.Errorf("settings: cache-entries must be positive, got %d", s.CacheEntries)
	}
	return nil
}
