// ABOUTME: Playback session supervisor owning the single background task
// ABOUTME: Turns engine events into notifications handed to the main loop
package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harper/radiod/internal/domain"
	"github.com/harper/radiod/internal/domain/message"
	"github.com/harper/radiod/internal/domain/station"
)

const (
	MinVolume = 0.0
	MaxVolume = 1.0

	StatusPlaying = "playing"
	StatusStopped = "stopped"
)

var ErrNoSource = errors.New("station has no source")

// Event is a notification produced by a session task. Final marks the
// task's last event.
type Event struct {
	Session      uint64
	Notification message.Notification
	Final        bool
}

// Clamp bounds level to [MinVolume, MaxVolume], rounding away float noise
// from repeated fixed-step adjustments.
func Clamp(level float64) float64 {
	level = math.Round(level*1e6) / 1e6
	return math.Max(MinVolume, math.Min(MaxVolume, level))
}

type task struct {
	id      uint64
	station *station.Station
	cancel  context.CancelFunc

	mu       sync.Mutex
	playback domain.Playback
	stats    message.Stats
}

// attach records pb and applies any volume change made while the engine
// was starting.
func (t *task) attach(pb domain.Playback, started float64, current func() float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.playback = pb
	if level := current(); level != started {
		return pb.SetVolume(level)
	}
	return nil
}

func (t *task) update(kv message.Stats) message.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	maps.Copy(t.stats, kv)
	return maps.Clone(t.stats)
}

type Supervisor struct {
	engine domain.Engine
	log    zerolog.Logger
	events chan Event
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu     sync.Mutex
	volume float64
	task   *task
	seq    uint64
}

func New(engine domain.Engine, volume float64, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		engine: engine,
		log:    log.With().Str("component", "session").Logger(),
		events: make(chan Event, 64),
		quit:   make(chan struct{}),
		volume: Clamp(volume),
	}
}

// Events delivers task events; the main loop is its only consumer.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Start spawns a task bound to st's primary source. It is a no-op while a
// task is already running.
func (s *Supervisor) Start(st *station.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task != nil {
		return nil
	}

	locator, ok := st.PrimarySource()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSource, st)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.seq++
	t := &task{
		id:      s.seq,
		station: st,
		cancel:  cancel,
		stats:   message.Stats{"volume": s.volume},
	}
	s.task = t

	s.log.Info().Uint64("session", t.id).Str("station", st.Title).Str("source", locator).Msg("starting session")

	s.wg.Add(1)
	go s.run(ctx, t, locator)
	return nil
}

// Stop signals the running task and forgets it. The task reports its own
// final "stopped" event once the engine has quit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task == nil {
		return
	}
	s.log.Info().Uint64("session", s.task.id).Msg("stopping session")
	s.task.cancel()
	s.task = nil
}

// Active reports whether a task handle is held.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task != nil
}

// Session returns the id of the running task.
func (s *Supervisor) Session() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task == nil {
		return 0, false
	}
	return s.task.id, true
}

func (s *Supervisor) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetVolume clamps level and forwards it to the engine of the running task.
// Without a task it does nothing.
func (s *Supervisor) SetVolume(level float64) (message.Stats, bool) {
	s.mu.Lock()
	t := s.task
	if t == nil {
		s.mu.Unlock()
		return nil, false
	}
	level = Clamp(level)
	s.volume = level
	s.mu.Unlock()

	// Before attach the level is picked up by the task itself.
	t.mu.Lock()
	if t.playback != nil {
		if err := t.playback.SetVolume(s.Volume()); err != nil {
			s.log.Warn().Err(err).Float64("volume", level).Msg("set volume failed")
		}
	}
	t.mu.Unlock()
	return t.update(message.Stats{"volume": level}), true
}

// AdjustVolume moves the volume by delta and returns the resulting stats
// notification.
func (s *Supervisor) AdjustVolume(delta float64) (message.Notification, bool) {
	stats, ok := s.SetVolume(s.Volume() + delta)
	if !ok {
		return message.Notification{}, false
	}
	return message.Notify(stats), true
}

// Observe must be called by the consumer of Events for each event. It
// releases the handle when the current task ends on its own and reports
// whether the event should be broadcast: events of superseded tasks are
// swallowed while a newer task is running.
func (s *Supervisor) Observe(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task != nil && s.task.id == ev.Session {
		if ev.Final {
			s.task.cancel()
			s.task = nil
		}
		return true
	}
	return ev.Final && s.task == nil
}

// Shutdown stops the running task and waits for task goroutines until ctx
// expires. Events emitted after Shutdown are discarded.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.Stop()
	s.once.Do(func() { close(s.quit) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for session: %w", ctx.Err())
	}
}

func (s *Supervisor) run(ctx context.Context, t *task, locator string) {
	defer s.wg.Done()

	volume := s.Volume()
	pb, err := s.engine.Start(ctx, locator, volume)
	if err != nil {
		s.log.Warn().Err(err).Uint64("session", t.id).Msg("engine start failed")
		s.finish(t, fmt.Sprintf("playback failed: %v", err))
		return
	}
	if err := t.attach(pb, volume, s.Volume); err != nil {
		s.log.Warn().Err(err).Uint64("session", t.id).Msg("set volume failed")
	}

	halt := func() {
		if err := pb.Stop(); err != nil {
			s.log.Warn().Err(err).Uint64("session", t.id).Msg("engine stop failed")
		}
	}

	events := pb.Events()
	for {
		select {
		case <-ctx.Done():
			halt()
			s.finish(t, "")
			return

		case ev, ok := <-events:
			if !ok {
				halt()
				s.finish(t, "")
				return
			}

			switch ev.Kind {
			case domain.EventPlaying:
				s.emit(t, message.Notify(t.update(message.Stats{
					"status": StatusPlaying,
					"volume": s.Volume(),
				})), false)
			case domain.EventTag:
				s.emit(t, message.Notify(t.update(message.Stats{ev.Key: ev.Value})), false)
			case domain.EventEnded:
				s.log.Info().Uint64("session", t.id).Msg("stream ended")
				halt()
				s.finish(t, "")
				return
			case domain.EventError:
				s.log.Warn().Err(ev.Err).Uint64("session", t.id).Msg("engine error")
				msg := "playback error"
				if ev.Err != nil {
					msg = fmt.Sprintf("playback error: %v", ev.Err)
				}
				halt()
				s.finish(t, msg)
				return
			}
		}
	}
}

func (s *Supervisor) finish(t *task, msg string) {
	n := message.Notify(t.update(message.Stats{"status": StatusStopped}))
	n.Message = msg
	s.emit(t, n, true)
}

func (s *Supervisor) emit(t *task, n message.Notification, final bool) {
	select {
	case s.events <- Event{Session: t.id, Notification: n, Final: final}:
	case <-s.quit:
	}
}
