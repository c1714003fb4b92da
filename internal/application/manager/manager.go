// ABOUTME: Composition root that builds catalog, engine, session, and transports
// ABOUTME: Runs the control socket and optional HTTP surface until cancelled
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/harper/radiod/internal/application/config"
	"github.com/harper/radiod/internal/application/fanout"
	"github.com/harper/radiod/internal/application/player"
	"github.com/harper/radiod/internal/application/session"
	"github.com/harper/radiod/internal/domain"
	"github.com/harper/radiod/internal/infrastructure/catalog"
	"github.com/harper/radiod/internal/infrastructure/http"
	"github.com/harper/radiod/internal/infrastructure/mpdengine"
	"github.com/harper/radiod/internal/infrastructure/nullengine"
	"github.com/harper/radiod/internal/infrastructure/server"
)

const shutdownGrace = 5 * time.Second

type Manager struct {
	cfg *config.Config
	log zerolog.Logger

	catalog  domain.Catalog
	closer   io.Closer
	hub      *fanout.Hub
	sessions *session.Supervisor
	player   *player.Player
	server   *server.Server
	web      *nethttp.Server
}

func NewFromConfig(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Manager, error) {
	mgr := &Manager{
		cfg: cfg,
		log: log.With().Str("component", "manager").Logger(),
		hub: fanout.New(),
	}

	if cfg.Database.Path == "" {
		mgr.catalog = catalog.NewMemory()
	} else {
		db, err := catalog.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		mgr.catalog = db
		mgr.closer = db
	}

	entries := make([]catalog.Entry, 0, len(cfg.Stations))
	for _, st := range cfg.Stations {
		entries = append(entries, catalog.Entry{Title: st.Title, URL: st.URL, Sources: st.Sources})
	}
	added, err := catalog.Seed(ctx, mgr.catalog, entries)
	if err != nil {
		mgr.closeCatalog()
		return nil, fmt.Errorf("seed catalog: %w", err)
	}
	if added > 0 {
		mgr.log.Info().Int("added", added).Msg("seeded stations")
	}

	engine, err := newEngine(cfg.Engine, log)
	if err != nil {
		mgr.closeCatalog()
		return nil, err
	}

	mgr.sessions = session.New(engine, cfg.Volume.Initial, log)
	mgr.player = player.New(mgr.catalog, mgr.sessions, cfg.Volume.Step, log)
	mgr.server = server.New(server.Config{
		PollInterval: time.Duration(cfg.Server.PollMs) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
	}, mgr.hub, mgr.player, mgr.sessions, log)

	if cfg.HTTP.Enabled {
		mgr.web = &nethttp.Server{
			Addr:              cfg.HTTP.Addr(),
			Handler:           http.NewMux(mgr.catalog, mgr.hub, mgr.server, log),
			ReadHeaderTimeout: 15 * time.Second,
		}
	}

	return mgr, nil
}

func newEngine(cfg config.EngineConfig, log zerolog.Logger) (domain.Engine, error) {
	switch cfg.Kind {
	case config.EngineMPD:
		return mpdengine.New(mpdengine.Config{
			Network:   cfg.Network,
			Address:   cfg.Address,
			Password:  cfg.Password,
			KeepAlive: time.Duration(cfg.KeepAliveMs) * time.Millisecond,
		}, log), nil
	case config.EngineNull:
		return nullengine.New(), nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Kind)
	}
}

func (m *Manager) Catalog() domain.Catalog {
	return m.catalog
}

func (m *Manager) Hub() *fanout.Hub {
	return m.hub
}

func (m *Manager) Player() *player.Player {
	return m.player
}

// Run binds the control socket from config and serves until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.cfg.Listen.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return m.Serve(ctx, ln)
}

// Serve runs the control socket on ln, plus the HTTP surface when enabled.
// A failing HTTP server stops the control socket too.
func (m *Manager) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	webErr := make(chan error, 1)
	if m.web != nil {
		m.web.BaseContext = func(net.Listener) context.Context { return ctx }
		go func() {
			m.log.Info().Str("addr", m.web.Addr).Msg("http listening")
			if err := m.web.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				webErr <- fmt.Errorf("http server: %w", err)
				cancel()
			}
		}()
	}

	err := m.server.Serve(ctx, ln)

	if m.web != nil {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownGrace)
		m.web.Shutdown(sctx)
		scancel()
	}

	select {
	case werr := <-webErr:
		return errors.Join(err, werr)
	default:
		return err
	}
}

// Shutdown stops playback, releases subscribers, and closes the catalog.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	if err := m.sessions.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop session: %w", err))
	}
	m.hub.Close()
	if err := m.closeCatalog(); err != nil {
		errs = append(errs, fmt.Errorf("close catalog: %w", err))
	}
	return errors.Join(errs...)
}

func (m *Manager) closeCatalog() error {
	if m.closer == nil {
		return nil
	}
	err := m.closer.Close()
	m.closer = nil
	return err
}
