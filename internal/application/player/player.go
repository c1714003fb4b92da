// ABOUTME: Playback state machine serializing commands into one session
// ABOUTME: Chooses stations, drives the session supervisor, adjusts volume
package player

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/harper/radiod/internal/domain"
	"github.com/harper/radiod/internal/domain/message"
	"github.com/harper/radiod/internal/domain/station"
)

// DefaultVolumeStep is the magnitude of one volume_up/volume_down.
const DefaultVolumeStep = 0.05

type State int

const (
	NoStation State = iota
	StationIdle
	SessionActive
)

func (s State) String() string {
	switch s {
	case NoStation:
		return "no_station"
	case StationIdle:
		return "station_idle"
	case SessionActive:
		return "session_active"
	}
	return "unknown"
}

// Sessions is the slice of the session supervisor the state machine drives.
type Sessions interface {
	Start(st *station.Station) error
	Stop()
	Active() bool
	AdjustVolume(delta float64) (message.Notification, bool)
}

type direction int

const (
	forward direction = iota
	backward
)

// Player must only be used from the main loop.
type Player struct {
	catalog  domain.Catalog
	sessions Sessions
	step     float64
	log      zerolog.Logger

	current *station.Station
}

func New(catalog domain.Catalog, sessions Sessions, step float64, log zerolog.Logger) *Player {
	if step <= 0 {
		step = DefaultVolumeStep
	}
	return &Player{
		catalog:  catalog,
		sessions: sessions,
		step:     step,
		log:      log.With().Str("component", "player").Logger(),
	}
}

func (p *Player) State() State {
	switch {
	case p.current == nil:
		return NoStation
	case p.sessions.Active():
		return SessionActive
	default:
		return StationIdle
	}
}

// Current returns the selected station, nil in NoStation.
func (p *Player) Current() *station.Station {
	return p.current
}

// Dispatch applies cmd and returns at most one notification to broadcast.
// Station changes are announced by the session itself, asynchronously.
func (p *Player) Dispatch(ctx context.Context, cmd message.Command) (message.Notification, bool) {
	kind, ok := cmd.Kind()
	if !ok {
		p.log.Warn().Str("command", cmd.Name).Msg("unknown command")
		return message.Errorf("Wrong command: %s", cmd.Name), true
	}

	p.log.Debug().Str("command", kind.String()).Stringer("state", p.State()).Msg("dispatch")

	switch kind {
	case message.Play:
		return p.play(ctx)
	case message.Stop:
		p.stop()
		return message.Notification{}, false
	case message.Next:
		return p.navigate(ctx, forward)
	case message.Previous:
		return p.navigate(ctx, backward)
	case message.Random:
		return p.random(ctx)
	case message.VolumeUp:
		return p.volume(cmd, +1)
	case message.VolumeDown:
		return p.volume(cmd, -1)
	default:
		return message.Errorf("Wrong command: %s", cmd.Name), true
	}
}

// play does nothing while a session runs; Stop must come first.
func (p *Player) play(ctx context.Context) (message.Notification, bool) {
	if p.State() == SessionActive {
		return message.Notification{}, false
	}
	if p.current == nil {
		st, err := p.catalog.Random(ctx)
		if err != nil {
			return p.catalogError(err)
		}
		p.current = st
	}
	return p.start()
}

func (p *Player) stop() {
	if p.State() == SessionActive {
		p.sessions.Stop()
	}
}

func (p *Player) navigate(ctx context.Context, dir direction) (message.Notification, bool) {
	if p.current == nil {
		return p.random(ctx)
	}

	first, second := p.catalog.Next, p.catalog.Previous
	if dir == backward {
		first, second = second, first
	}

	candidate, err := first(ctx, p.current)
	if err != nil {
		return p.catalogError(err)
	}
	if candidate == nil {
		if candidate, err = second(ctx, p.current); err != nil {
			return p.catalogError(err)
		}
	}
	if candidate != nil {
		p.current = candidate
	}
	return p.restart()
}

func (p *Player) random(ctx context.Context) (message.Notification, bool) {
	st, err := p.catalog.Random(ctx)
	if err != nil {
		return p.catalogError(err)
	}
	p.current = st
	return p.restart()
}

// volume applies one signed step; a positive numeric "step" argument
// overrides the configured magnitude.
func (p *Player) volume(cmd message.Command, sign float64) (message.Notification, bool) {
	if p.State() != SessionActive {
		return message.Notification{}, false
	}
	step := p.step
	if v, ok := cmd.Float("step"); ok && v > 0 {
		step = v
	}
	return p.sessions.AdjustVolume(sign * step)
}

func (p *Player) restart() (message.Notification, bool) {
	p.sessions.Stop()
	return p.start()
}

func (p *Player) start() (message.Notification, bool) {
	p.log.Info().Stringer("station", p.current).Msg("tuning in")
	if err := p.sessions.Start(p.current); err != nil {
		p.log.Warn().Err(err).Stringer("station", p.current).Msg("cannot start session")
		return message.Errorf("Cannot play %s: %v", p.current.Title, err), true
	}
	return message.Notification{}, false
}

func (p *Player) catalogError(err error) (message.Notification, bool) {
	p.log.Warn().Err(err).Msg("catalog lookup failed")
	return message.Errorf("Station lookup failed: %v", err), true
}
