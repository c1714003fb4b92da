// ABOUTME: In-memory station catalog for runs without a database
// ABOUTME: Same navigation semantics as the SQLite catalog
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/harper/radiod/internal/domain"
	"github.com/harper/radiod/internal/domain/station"
)

var ErrNotFound = errors.New("station not found")

var _ domain.Catalog = (*Memory)(nil)

// Memory keeps stations ordered by id.
type Memory struct {
	mu       sync.RWMutex
	stations []*station.Station
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

func (m *Memory) Create(ctx context.Context, title, url string, sources []string) (*station.Station, error) {
	if title == "" {
		return nil, errors.New("station title is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := &station.Station{ID: m.nextID, Title: title, URL: url, Sources: slices.Clone(sources)}
	m.nextID++
	m.stations = append(m.stations, st)
	return st, nil
}

func (m *Memory) Get(ctx context.Context, id int64) (*station.Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.index(id); i >= 0 {
		return m.stations[i], nil
	}
	return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
}

func (m *Memory) List(ctx context.Context) ([]*station.Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.stations), nil
}

func (m *Memory) Random(ctx context.Context) (*station.Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.stations) == 0 {
		return nil, domain.ErrNoStations
	}
	return m.stations[rand.IntN(len(m.stations))], nil
}

func (m *Memory) Next(ctx context.Context, current *station.Station) (*station.Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, st := range m.stations {
		if st.ID > current.ID {
			return st, nil
		}
	}
	return nil, nil
}

func (m *Memory) Previous(ctx context.Context, current *station.Station) (*station.Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.stations) - 1; i >= 0; i-- {
		if m.stations[i].ID < current.ID {
			return m.stations[i], nil
		}
	}
	return nil, nil
}

// index assumes mu is held.
func (m *Memory) index(id int64) int {
	for i, st := range m.stations {
		if st.ID == id {
			return i
		}
	}
	return -1
}
