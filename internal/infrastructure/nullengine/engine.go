// ABOUTME: In-process media engine that plays nothing
// ABOUTME: Reports playing immediately; used headless and in tests
package nullengine

import (
	"context"
	"sync"

	"github.com/harper/radiod/internal/domain"
)

type Engine struct {
	mu      sync.Mutex
	fail    error
	starts  []string
	current *Playback
}

func New() *Engine {
	return &Engine{}
}

// FailWith makes subsequent Start calls return err; nil restores success.
func (e *Engine) FailWith(err error) {
	e.mu.Lock()
	e.fail = err
	e.mu.Unlock()
}

func (e *Engine) Start(ctx context.Context, locator string, volume float64) (domain.Playback, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.starts = append(e.starts, locator)
	if e.fail != nil {
		return nil, e.fail
	}

	pb := &Playback{
		Locator: locator,
		volume:  volume,
		events:  make(chan domain.EngineEvent, 32),
	}
	pb.Emit(domain.EngineEvent{Kind: domain.EventPlaying})
	pb.Emit(domain.EngineEvent{Kind: domain.EventTag, Key: "location", Value: locator})
	e.current = pb
	return pb, nil
}

// Starts lists every locator passed to Start, in call order.
func (e *Engine) Starts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.starts...)
}

// Current returns the most recently started playback.
func (e *Engine) Current() *Playback {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

type Playback struct {
	Locator string

	mu      sync.Mutex
	volume  float64
	stopped bool
	events  chan domain.EngineEvent
}

func (p *Playback) Events() <-chan domain.EngineEvent {
	return p.events
}

// Emit injects an engine event. It reports false once the playback is
// stopped or its buffer is full.
func (p *Playback) Emit(ev domain.EngineEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return false
	}
	select {
	case p.events <- ev:
		return true
	default:
		return false
	}
}

func (p *Playback) SetVolume(level float64) error {
	p.mu.Lock()
	p.volume = level
	p.mu.Unlock()
	return nil
}

func (p *Playback) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Playback) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *Playback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.stopped {
		p.stopped = true
		close(p.events)
	}
	return nil
}
