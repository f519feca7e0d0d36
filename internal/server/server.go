// Package server wires cache, queue, backend, dispatcher, worker,
// transports, settings, stats and signal handling into one running nmdb
// instance, following spec.md §2's data-flow description end to end.
//
// Construction builds every collaborator up front, Start opens the
// listeners in goroutines, and the caller blocks on signal handling for
// an orderly shutdown.
package server

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/dolfly/nmdb/internal/backend"
	"github.com/dolfly/nmdb/internal/cache"
	"github.com/dolfly/nmdb/internal/dispatcher"
	"github.com/dolfly/nmdb/internal/queue"
	"github.com/dolfly/nmdb/internal/settings"
	"github.com/dolfly/nmdb/internal/signals"
	"github.com/dolfly/nmdb/internal/stats"
	"github.com/dolfly/nmdb/internal/transport"
	"github.com/dolfly/nmdb/internal/wire"
	"github.com/dolfly/nmdb/internal/worker"
)

// netJobQueueDepth bounds how many pending decode/dispatch/count jobs the
// transport goroutines may queue up before enqueueNet blocks, applying
// backpressure to callers instead of growing memory unboundedly.
const netJobQueueDepth = 4096

// Server owns every long-lived collaborator for one nmdb process.
type Server struct {
	settings settings.Settings

	cache      *cache.Cache
	queue      *queue.Queue
	store      backend.Store
	counts     *stats.Counters
	flags      *stats.Flags
	dispatcher *dispatcher.Dispatcher
	worker     *worker.Worker

	logger  *log.Logger
	logFile *os.File

	listeners []closer

	// netJobs is the single funnel every transport listener's goroutine
	// pushes through instead of touching cache/counters directly. Exactly
	// one goroutine (run by Start, below) drains it, which is what makes
	// internal/cache's "single owner" contract (spec.md §5) actually hold
	// once there are four listeners each running their own goroutines.
	netJobs chan func()
	stopNet chan struct{}
	netDone chan struct{}
}

type closer interface {
	Close() error
}

// New builds every collaborator but does not start listening.
func New(s settings.Settings) (*Server, error) {
	store, err := backend.Open(s.BackendKind, s.DBPath)
	if err != nil {
		return nil, fmt.Errorf("server: opening backend: %w", err)
	}

	logger, logFile, err := openLogger(s.LogPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("server: opening log: %w", err)
	}

	c := cache.New(s.CacheEntries)
	q := queue.New()
	counts := &stats.Counters{}
	flags := &stats.Flags{}
	if s.ReadOnly {
		flags.LatchReadOnly()
	}
	if s.Passive {
		flags.SetPassive(true)
	}

	d := dispatcher.New(c, q, counts, flags)
	w := worker.New(store, q, counts, flags, logger)

	return &Server{
		settings:   s,
		cache:      c,
		queue:      q,
		store:      store,
		counts:     counts,
		flags:      flags,
		dispatcher: d,
		worker:     w,
		logger:     logger,
		logFile:    logFile,
		netJobs:    make(chan func(), netJobQueueDepth),
		stopNet:    make(chan struct{}),
		netDone:    make(chan struct{}),
	}, nil
}

func openLogger(path string) (*log.Logger, *os.File, error) {
	if path == "" {
		return log.New(os.Stdout, "nmdb: ", log.LstdFlags), nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return log.New(f, "nmdb: ", log.LstdFlags), f, nil
}

// reopenLog closes and reopens the log file in place, for SIGHUP.
func (s *Server) reopenLog() error {
	if s.settings.LogPath == "" {
		return nil
	}
	f, err := os.OpenFile(s.settings.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	old := s.logFile
	s.logger.SetOutput(f)
	s.logFile = f
	if old != nil {
		old.Close()
	}
	return nil
}

// enqueueNet hands job to the single network goroutine, or drops it if the
// server is already stopping.
func (s *Server) enqueueNet(job func()) {
	select {
	case s.netJobs <- job:
	case <-s.stopNet:
	}
}

// runNetworkLoop is the single goroutine that owns the cache and the
// network-side stats counters. Every listener funnels its decode+dispatch
// work and its message counting through enqueueNet instead of calling into
// the cache or counts directly, so there is never more than one goroutine
// inside internal/cache at a time (spec.md §5). The worker goroutine still
// updates the DB counters on its own.
func (s *Server) runNetworkLoop() {
	defer close(s.netDone)
	for {
		select {
		case job := <-s.netJobs:
			job()
		case <-s.stopNet:
			return
		}
	}
}

// handle decodes one raw frame and runs it through the dispatcher. It is
// the transport.Handler passed to every listener, and always runs on the
// single network goroutine via enqueueNet — never on the calling
// listener's own accept/read goroutine.
func (s *Server) handle(frame []byte, peer string, respond func([]byte)) {
	s.enqueueNet(func() {
		req, err := wire.Decode(frame)
		if err != nil {
			s.countDecodeError(err)
			s.logger.Printf("server: decode error from %s: %v", peer, err)
			respond(errorFrameFor(req.ID, err))
			return
		}
		out := s.dispatcher.Dispatch(req, queue.ReplyTarget{Respond: respond, Peer: peer})
		if !out.Deferred && out.Frame != nil {
			respond(out.Frame)
		}
	})
}

// countDecodeError increments the protocol-error counter spec.md §6 and §7
// assign to the failure that occurred. It must only run on the network
// goroutine, same as every other network-side Counters mutation.
func (s *Server) countDecodeError(err error) {
	switch {
	case errors.Is(err, wire.ErrVersion):
		s.counts.NetVersionMismatch++
	case errors.Is(err, wire.ErrUnknownCmd):
		s.counts.NetUnkReq++
	default:
		s.counts.NetBrokenReq++
	}
}

func errorFrameFor(id uint32, err error) []byte {
	switch {
	case errors.Is(err, wire.ErrVersion):
		return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepErr, ErrCode: wire.ErrVer, IsErr: true})
	case errors.Is(err, wire.ErrUnknownCmd):
		return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepErr, ErrCode: wire.ErrUnkreq, IsErr: true})
	default:
		return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepErr, ErrCode: wire.ErrBroken, IsErr: true})
	}
}

// countMsg returns a closure that counts one received message on the
// network goroutine, for the given counter field. Listeners call this once
// per raw datagram/stream-read; it must not touch s.counts directly on the
// listener's own goroutine.
func (s *Server) countMsg(inc func(*stats.Counters)) func() {
	return func() {
		s.enqueueNet(func() { inc(s.counts) })
	}
}

// Start opens every transport listener, the network goroutine and the
// worker goroutine. It does not block.
func (s *Server) Start() error {
	go s.runNetworkLoop()
	go s.worker.Start()

	tipc, err := transport.ListenPacket(
		addr(s.settings.TipcBindAddr, s.settings.TipcPort), transport.KindClusterDatagram,
		s.handle, s.countMsg(func(c *stats.Counters) { c.MsgTipc++ }), s.logger)
	if err != nil {
		return fmt.Errorf("server: tipc listener: %w", err)
	}
	s.listeners = append(s.listeners, tipc)
	go tipc.Serve()

	udp, err := transport.ListenPacket(
		addr(s.settings.UDPBindAddr, s.settings.UDPPort), transport.KindDatagram,
		s.handle, s.countMsg(func(c *stats.Counters) { c.MsgUDP++ }), s.logger)
	if err != nil {
		return fmt.Errorf("server: udp listener: %w", err)
	}
	s.listeners = append(s.listeners, udp)
	go udp.Serve()

	tcp, err := transport.ListenStream(
		addr(s.settings.TCPBindAddr, s.settings.TCPPort), transport.KindStream,
		s.handle, s.countMsg(func(c *stats.Counters) { c.MsgTCP++ }), s.logger)
	if err != nil {
		return fmt.Errorf("server: tcp listener: %w", err)
	}
	s.listeners = append(s.listeners, tcp)
	go tcp.Serve()

	sctp, err := transport.ListenStreamReusePort(
		addr(s.settings.SCTPBindAddr, s.settings.SCTPPort), transport.KindClusterStream,
		s.handle, s.countMsg(func(c *stats.Counters) { c.MsgSCTP++ }), s.logger)
	if err != nil {
		return fmt.Errorf("server: sctp-stand-in listener: %w", err)
	}
	s.listeners = append(s.listeners, sctp)
	go sctp.Serve()

	if s.settings.PIDFile != "" {
		if err := writePIDFile(s.settings.PIDFile); err != nil {
			return fmt.Errorf("server: writing pid file: %w", err)
		}
	}

	return nil
}

// Signals builds a signals.Handler wired to this server's flags and log.
func (s *Server) Signals() *signals.Handler {
	return signals.New(s.flags, s.logger, s.reopenLog, s.Stop)
}

// Stop closes every listener, stops the network goroutine, drains and
// stops the worker, closes the backend, and removes the PID file. Safe to
// call once.
func (s *Server) Stop() {
	for _, l := range s.listeners {
		l.Close()
	}
	close(s.stopNet)
	<-s.netDone
	s.worker.Stop()
	s.store.Close()
	if s.settings.PIDFile != "" {
		os.Remove(s.settings.PIDFile)
	}
	if s.logFile != nil {
		s.logFile.Close()
	}
}

func addr(bind string, port int) string {
	return bind + ":" + strconv.Itoa(port)
}

// writePIDFile writes the current process id atomically: a reader must
// never observe a partially written PID file.
func writePIDFile(path string) error {
	pid := strconv.Itoa(os.Getpid())
	return atomic.WriteFile(path, strings.NewReader(pid))
}
