// ABOUTME: Tests for the playback session supervisor
// ABOUTME: Verifies task lifecycle, event translation, and volume clamping
package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/harper/radiod/internal/domain"
	"github.com/harper/radiod/internal/domain/station"
	"github.com/harper/radiod/internal/infrastructure/nullengine"
)

var testStation = &station.Station{ID: 1, Title: "Test FM", Sources: []string{"http://example.com/test.mp3"}}

func nextEvent(t *testing.T, s *Supervisor) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
	}
	return Event{}
}

func waitFinal(t *testing.T, s *Supervisor) Event {
	t.Helper()
	for {
		ev := nextEvent(t, s)
		if ev.Final {
			return ev
		}
	}
}

func TestClamp(t *testing.T) {
	cases := map[float64]float64{
		0.98 + 0.05: 1.0,
		0.02 - 0.05: 0.0,
		0.5 + 0.05:  0.55,
		-3:          0.0,
		7:           1.0,
	}
	for in, want := range cases {
		if got := Clamp(in); got != want {
			t.Errorf("Clamp(%v): expected %v, got %v", in, want, got)
		}
	}
}

func TestStart_EmitsPlayingThenTags(t *testing.T) {
	s := New(nullengine.New(), 0.5, zerolog.Nop())

	if err := s.Start(testStation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ev := nextEvent(t, s)
	if ev.Notification.Status() != StatusPlaying {
		t.Errorf("expected status playing, got %q", ev.Notification.Status())
	}
	if ev.Notification.Stats["volume"] != 0.5 {
		t.Errorf("expected volume 0.5, got %v", ev.Notification.Stats["volume"])
	}
	if !s.Observe(ev) {
		t.Error("expected current session event to be broadcast")
	}

	ev = nextEvent(t, s)
	if ev.Notification.Stats["location"] != "http://example.com/test.mp3" {
		t.Errorf("expected location tag, got %v", ev.Notification.Stats)
	}
	if ev.Notification.Status() != StatusPlaying {
		t.Error("expected tag notification to keep status")
	}
}

func TestStart_Idempotent(t *testing.T) {
	eng := nullengine.New()
	s := New(eng, 0.5, zerolog.Nop())

	s.Start(testStation)
	first, _ := s.Session()
	s.Start(testStation)
	second, _ := s.Session()

	if first != second {
		t.Errorf("expected second Start to be a no-op, sessions %d and %d", first, second)
	}

	nextEvent(t, s)
	if got := len(eng.Starts()); got != 1 {
		t.Errorf("expected 1 engine start, got %d", got)
	}
}

func TestStart_NoSource(t *testing.T) {
	s := New(nullengine.New(), 0.5, zerolog.Nop())

	err := s.Start(&station.Station{ID: 2, Title: "Empty"})
	if !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
	if s.Active() {
		t.Error("expected no active session")
	}
}

func TestStop_EmitsFinalStopped(t *testing.T) {
	s := New(nullengine.New(), 0.5, zerolog.Nop())
	s.Start(testStation)
	nextEvent(t, s)

	s.Stop()
	s.Stop()

	if s.Active() {
		t.Error("expected handle to be cleared by Stop")
	}

	ev := waitFinal(t, s)
	if ev.Notification.Status() != StatusStopped {
		t.Errorf("expected status stopped, got %q", ev.Notification.Status())
	}
	if !s.Observe(ev) {
		t.Error("expected final event to be broadcast when idle")
	}
}

func TestEngineEnd_ReleasesHandle(t *testing.T) {
	eng := nullengine.New()
	s := New(eng, 0.5, zerolog.Nop())
	s.Start(testStation)

	for i := 0; i < 2; i++ {
		s.Observe(nextEvent(t, s))
	}
	eng.Current().Emit(domain.EngineEvent{Kind: domain.EventError, Err: errors.New("decoder died")})

	ev := waitFinal(t, s)
	if ev.Notification.Message == "" {
		t.Error("expected error message on final notification")
	}
	if !s.Observe(ev) {
		t.Error("expected final event of current session to be broadcast")
	}
	if s.Active() {
		t.Error("expected handle released after engine error")
	}
	if !eng.Current().Stopped() {
		t.Error("expected playback to be stopped")
	}
}

func TestEngineStartFailure(t *testing.T) {
	eng := nullengine.New()
	eng.FailWith(errors.New("mpd unreachable"))
	s := New(eng, 0.5, zerolog.Nop())

	s.Start(testStation)
	ev := nextEvent(t, s)

	if !ev.Final || ev.Notification.Status() != StatusStopped {
		t.Fatalf("expected final stopped event, got %+v", ev)
	}
	s.Observe(ev)
	if s.Active() {
		t.Error("expected no active session after failed start")
	}
}

func TestObserve_SupersededSessionIsSwallowed(t *testing.T) {
	s := New(nullengine.New(), 0.5, zerolog.Nop())

	s.Start(testStation)
	old, _ := s.Session()
	s.Stop()
	s.Start(testStation)

	stale := Event{Session: old, Final: true}
	if s.Observe(stale) {
		t.Error("expected stale final event to be swallowed while a new session runs")
	}
	if !s.Active() {
		t.Error("stale event must not release the new session")
	}
}

func TestSetVolume(t *testing.T) {
	eng := nullengine.New()
	s := New(eng, 0.98, zerolog.Nop())

	if _, ok := s.AdjustVolume(0.05); ok {
		t.Error("expected volume change without a session to be a no-op")
	}

	s.Start(testStation)
	nextEvent(t, s)

	n, ok := s.AdjustVolume(0.05)
	if !ok {
		t.Fatal("expected volume change to apply")
	}
	if n.Stats["volume"] != 1.0 {
		t.Errorf("expected volume 1.0, got %v", n.Stats["volume"])
	}
	if eng.Current().Volume() != 1.0 {
		t.Errorf("expected engine volume 1.0, got %v", eng.Current().Volume())
	}
}

// gatedEngine holds Start until release is closed.
type gatedEngine struct {
	*nullengine.Engine
	entered chan struct{}
	release chan struct{}
}

func (g *gatedEngine) Start(ctx context.Context, locator string, volume float64) (domain.Playback, error) {
	close(g.entered)
	<-g.release
	return g.Engine.Start(ctx, locator, volume)
}

func TestSetVolume_DuringEngineStart(t *testing.T) {
	eng := &gatedEngine{
		Engine:  nullengine.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := New(eng, 0.5, zerolog.Nop())
	s.Start(testStation)
	<-eng.entered

	n, ok := s.AdjustVolume(0.05)
	if !ok {
		t.Fatal("expected volume change to apply while the engine starts")
	}
	if n.Stats["volume"] != 0.55 {
		t.Errorf("expected reported volume 0.55, got %v", n.Stats["volume"])
	}

	close(eng.release)
	ev := nextEvent(t, s)
	if ev.Notification.Stats["volume"] != 0.55 {
		t.Errorf("expected playing volume 0.55, got %v", ev.Notification.Stats["volume"])
	}
	if got := eng.Current().Volume(); got != 0.55 {
		t.Errorf("expected engine volume 0.55, got %v", got)
	}
}

func TestShutdown(t *testing.T) {
	s := New(nullengine.New(), 0.5, zerolog.Nop())
	s.Start(testStation)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if s.Active() {
		t.Error("expected no active session after shutdown")
	}
}
