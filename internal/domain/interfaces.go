// ABOUTME: Domain interfaces for dependency inversion
// ABOUTME: Station catalog and media engine are external collaborators
package domain

import (
	"context"
	"errors"

	"github.com/harper/radiod/internal/domain/station"
)

// ErrNoStations is returned by Catalog.Random when the catalog is empty.
var ErrNoStations = errors.New("catalog has no stations")

// Catalog stores stations and navigates them in catalog order.
// Next and Previous return (nil, nil) when nothing exists in that direction.
type Catalog interface {
	Random(ctx context.Context) (*station.Station, error)
	Next(ctx context.Context, current *station.Station) (*station.Station, error)
	Previous(ctx context.Context, current *station.Station) (*station.Station, error)
	Get(ctx context.Context, id int64) (*station.Station, error)
	List(ctx context.Context) ([]*station.Station, error)
	Create(ctx context.Context, title, url string, sources []string) (*station.Station, error)
}

// EventKind classifies what a running playback reports.
type EventKind int

const (
	EventPlaying EventKind = iota
	EventTag
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPlaying:
		return "playing"
	case EventTag:
		return "tag"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	}
	return "unknown"
}

// EngineEvent is one item of a playback's event stream.
type EngineEvent struct {
	Kind  EventKind
	Key   string
	Value string
	Err   error
}

// Engine turns a source locator into audible output.
type Engine interface {
	Start(ctx context.Context, locator string, volume float64) (Playback, error)
}

// Playback is a running engine task. Events is closed once the playback is
// over; Stop is safe to call more than once.
type Playback interface {
	Events() <-chan EngineEvent
	SetVolume(level float64) error
	Stop() error
}
