// ABOUTME: Media engine backed by a Music Player Daemon instance
// ABOUTME: Plays one locator via the MPD queue and watches the player subsystem
package mpdengine

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog"

	"github.com/harper/radiod/internal/domain"
)

const DefaultKeepAlive = 30 * time.Second

// tagKeys maps MPD song attributes to notification stat keys.
var tagKeys = map[string]string{
	"Name":   "organization",
	"Title":  "title",
	"Artist": "artist",
	"Album":  "album",
	"Genre":  "genre",
}

type Config struct {
	Network   string
	Address   string
	Password  string
	KeepAlive time.Duration
}

// Engine drives one MPD player, so at most one playback owns it at a time.
type Engine struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	current interface{ Stop() error }
}

var _ domain.Engine = (*Engine)(nil)

func New(cfg Config, log zerolog.Logger) *Engine {
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	return &Engine{cfg: cfg, log: log.With().Str("component", "mpd").Logger()}
}

func (e *Engine) dial() (*mpd.Client, error) {
	if e.cfg.Password != "" {
		return mpd.DialAuthenticated(e.cfg.Network, e.cfg.Address, e.cfg.Password)
	}
	return mpd.Dial(e.cfg.Network, e.cfg.Address)
}

// Start replaces the MPD queue with locator and starts playback.
func (e *Engine) Start(ctx context.Context, locator string, volume float64) (domain.Playback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.retire()

	client, err := e.dial()
	if err != nil {
		return nil, fmt.Errorf("dial mpd: %w", err)
	}

	watcher, err := mpd.NewWatcher(e.cfg.Network, e.cfg.Address, e.cfg.Password, "player")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("watch mpd: %w", err)
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"clear", client.Clear},
		{"add", func() error { return client.Add(locator) }},
		{"volume", func() error { return client.SetVolume(percent(volume)) }},
		{"play", func() error { return client.Play(-1) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			watcher.Close()
			client.Close()
			return nil, fmt.Errorf("mpd %s: %w", step.name, err)
		}
	}

	pb := &playback{
		client:    client,
		watcher:   watcher,
		events:    make(chan domain.EngineEvent, 16),
		done:      make(chan struct{}),
		tags:      make(map[string]string),
		keepAlive: e.cfg.KeepAlive,
		log:       e.log.With().Str("source", locator).Logger(),
	}
	e.current = pb
	go pb.watch()
	return pb, nil
}

// retire stops the previous playback and waits for its MPD stop to be sent,
// so it cannot land after the next queue is playing. Caller holds mu.
func (e *Engine) retire() {
	if e.current == nil {
		return
	}
	if err := e.current.Stop(); err != nil {
		e.log.Warn().Err(err).Msg("stop previous playback")
	}
	e.current = nil
}

type playback struct {
	mu      sync.Mutex
	client  *mpd.Client
	watcher *mpd.Watcher

	events    chan domain.EngineEvent
	done      chan struct{}
	stopOnce  sync.Once
	playing   bool
	tags      map[string]string
	keepAlive time.Duration
	log       zerolog.Logger
}

func (p *playback) Events() <-chan domain.EngineEvent {
	return p.events
}

func (p *playback) SetVolume(level float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client.SetVolume(percent(level))
}

// Stop halts MPD and releases both connections.
func (p *playback) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		close(p.done)

		p.mu.Lock()
		defer p.mu.Unlock()
		err = p.client.Stop()
		p.watcher.Close()
		p.client.Close()
	})
	return err
}

func (p *playback) watch() {
	defer close(p.events)

	ticker := time.NewTicker(p.keepAlive)
	defer ticker.Stop()

	if p.refresh() {
		return
	}

	for {
		select {
		case <-p.done:
			return

		case subsystem, ok := <-p.watcher.Event:
			if !ok {
				p.send(domain.EngineEvent{Kind: domain.EventError, Err: fmt.Errorf("watcher closed")})
				return
			}
			p.log.Debug().Str("subsystem", subsystem).Msg("idle event")
			if p.refresh() {
				return
			}

		case err, ok := <-p.watcher.Error:
			if !ok {
				continue
			}
			p.send(domain.EngineEvent{Kind: domain.EventError, Err: err})
			return

		case <-ticker.C:
			p.mu.Lock()
			err := p.client.Ping()
			p.mu.Unlock()
			if err != nil {
				p.send(domain.EngineEvent{Kind: domain.EventError, Err: fmt.Errorf("ping: %w", err)})
				return
			}
		}
	}
}

// refresh queries MPD after a player change and reports whether playback
// is over.
func (p *playback) refresh() bool {
	p.mu.Lock()
	status, err := p.client.Status()
	var song mpd.Attrs
	if err == nil && status["state"] == "play" {
		song, err = p.client.CurrentSong()
	}
	p.mu.Unlock()

	if err != nil {
		p.send(domain.EngineEvent{Kind: domain.EventError, Err: err})
		return true
	}
	if msg := status["error"]; msg != "" {
		p.send(domain.EngineEvent{Kind: domain.EventError, Err: fmt.Errorf("mpd: %s", msg)})
		return true
	}

	switch status["state"] {
	case "play":
		if !p.playing {
			p.playing = true
			p.send(domain.EngineEvent{Kind: domain.EventPlaying})
		}
		tags := Tags(song)
		keys := make([]string, 0, len(tags))
		for k := range tags {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if p.tags[k] == tags[k] {
				continue
			}
			p.tags[k] = tags[k]
			p.send(domain.EngineEvent{Kind: domain.EventTag, Key: k, Value: tags[k]})
		}
	case "stop":
		if p.playing {
			p.send(domain.EngineEvent{Kind: domain.EventEnded})
			return true
		}
	}
	return false
}

func (p *playback) send(ev domain.EngineEvent) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

// Tags extracts the known song attributes under their notification keys.
func Tags(song mpd.Attrs) map[string]string {
	out := make(map[string]string)
	for attr, key := range tagKeys {
		if v := song[attr]; v != "" {
			out[key] = v
		}
	}
	return out
}

func percent(level float64) int {
	return int(math.Round(math.Max(0, math.Min(1, level)) * 100))
}
