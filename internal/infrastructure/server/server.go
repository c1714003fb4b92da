// ABOUTME: Control socket multiplexer running the single main loop
// ABOUTME: Batches ready I/O per poll cycle, then drains the command queue
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harper/radiod/internal/application/fanout"
	"github.com/harper/radiod/internal/application/session"
	"github.com/harper/radiod/internal/domain/message"
	"github.com/harper/radiod/internal/infrastructure/ring"
	"github.com/harper/radiod/internal/infrastructure/wire"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultWriteTimeout = 10 * time.Second

	// maxBatch bounds the I/O phase so the command queue is always reached.
	maxBatch = 1024
)

type Config struct {
	PollInterval time.Duration
	WriteTimeout time.Duration
}

// Dispatcher applies one command, returning at most one notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd message.Command) (message.Notification, bool)
}

// Sessions is the event side of the session supervisor.
type Sessions interface {
	Events() <-chan session.Event
	Observe(ev session.Event) bool
}

type eventKind int

const (
	evAccept eventKind = iota
	evCommand
	evClose
	evListenerFailed
)

type event struct {
	kind eventKind
	id   string
	nc   net.Conn
	item queued
	err  error
}

// queued is one Command Queue entry. A frame that failed to decode is kept
// in order with its connection's other commands and reported on dispatch.
type queued struct {
	source string
	cmd    message.Command
	err    error
}

type Server struct {
	cfg      Config
	hub      *fanout.Hub
	player   Dispatcher
	sessions Sessions
	log      zerolog.Logger

	events   chan event
	commands *ring.Queue[queued]
	conns    map[string]*conn
	done     chan struct{}
	stop     sync.Once
	wg       sync.WaitGroup
}

func New(cfg Config, hub *fanout.Hub, player Dispatcher, sessions Sessions, log zerolog.Logger) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Server{
		cfg:      cfg,
		hub:      hub,
		player:   player,
		sessions: sessions,
		log:      log.With().Str("component", "server").Logger(),
		events:   make(chan event, 256),
		commands: ring.New[queued](64),
		conns:    make(map[string]*conn),
		done:     make(chan struct{}),
	}
}

// ListenAndServe binds addr and runs Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the main loop on ln until ctx is cancelled or the listener
// fails. Every connection and the listener are closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	defer s.shutdown(ln)

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)

	for {
		if err := s.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.drain(ctx)
	}
}

// Submit decodes one message body and queues it as if it had arrived on a
// socket. Transports other than the control socket feed the loop this way.
func (s *Server) Submit(ctx context.Context, source string, body []byte) error {
	ev := event{kind: evCommand, id: source, item: decode(source, body)}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return errors.New("server stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// poll waits up to one poll interval for the first event, then handles
// everything already ready without waiting again.
func (s *Server) poll(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case ev := <-s.events:
		if err := s.handle(ev); err != nil {
			return err
		}
	case ev := <-s.sessions.Events():
		s.handleSession(ev)
	}

	for i := 0; i < maxBatch; i++ {
		select {
		case ev := <-s.events:
			if err := s.handle(ev); err != nil {
				return err
			}
		case ev := <-s.sessions.Events():
			s.handleSession(ev)
		default:
			return nil
		}
	}
	return nil
}

func (s *Server) handle(ev event) error {
	switch ev.kind {
	case evAccept:
		s.open(ev.nc)
	case evCommand:
		s.commands.Push(ev.item)
	case evClose:
		s.closeConn(ev.id, ev.err)
	case evListenerFailed:
		return fmt.Errorf("accept: %w", ev.err)
	}
	return nil
}

func (s *Server) handleSession(ev session.Event) {
	if s.sessions.Observe(ev) {
		s.hub.Broadcast(ev.Notification)
	}
}

// drain empties the command queue; each entry yields at most one broadcast.
func (s *Server) drain(ctx context.Context) {
	for {
		item, ok := s.commands.Pop()
		if !ok {
			return
		}

		if item.err != nil {
			s.log.Warn().Err(item.err).Str("conn", item.source).Msg("protocol error")
			s.hub.Broadcast(message.Errorf("Malformed command: %v", item.err))
			continue
		}

		if n, ok := s.player.Dispatch(ctx, item.cmd); ok {
			s.hub.Broadcast(n)
		}
	}
}

func (s *Server) open(nc net.Conn) {
	id := uuid.NewString()
	c := &conn{
		id:     id,
		nc:     nc,
		sub:    s.hub.Subscribe(id),
		server: s,
	}
	s.conns[id] = c

	s.log.Info().Str("conn", id).Str("remote", nc.RemoteAddr().String()).Msg("client connected")

	s.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
}

// closeConn is idempotent; events for already-closed ids are ignored.
func (s *Server) closeConn(id string, reason error) {
	c, ok := s.conns[id]
	if !ok {
		return
	}
	delete(s.conns, id)
	s.hub.Unsubscribe(id)
	c.nc.Close()

	s.log.Info().Str("conn", id).AnErr("reason", reason).Msg("client disconnected")
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()

	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				s.post(event{kind: evListenerFailed, err: err})
				return
			}

			// Swallowed; back off the way net/http does on temporary errors.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, time.Second)
			}
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
			select {
			case <-time.After(delay):
			case <-s.done:
				return
			}
			continue
		}
		delay = 0

		if !s.post(event{kind: evAccept, nc: nc}) {
			nc.Close()
			return
		}
	}
}

// post hands ev to the main loop; false once the server is stopping.
func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) shutdown(ln net.Listener) {
	s.stop.Do(func() {
		ln.Close()
		close(s.done)

		for id := range s.conns {
			s.closeConn(id, errors.New("server shutdown"))
		}
		s.wg.Wait()

		// Connections accepted but never handed to the loop.
		for {
			select {
			case ev := <-s.events:
				if ev.kind == evAccept {
					ev.nc.Close()
				}
			default:
				s.log.Info().Msg("server stopped")
				return
			}
		}
	})
}

func decode(source string, body []byte) queued {
	m, err := wire.Decode(body)
	if err != nil {
		return queued{source: source, err: err}
	}
	cmd, err := m.Command()
	if err != nil && !errors.Is(err, message.ErrUnknownCommand) {
		return queued{source: source, err: err}
	}
	// Unknown names are queued and reported by the dispatcher.
	return queued{source: source, cmd: cmd}
}
