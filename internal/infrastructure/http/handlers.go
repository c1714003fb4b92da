// ABOUTME: HTTP handlers exposing catalog, status, health, and a WebSocket gateway
// ABOUTME: The gateway speaks the same command/notification tuples as the socket
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harper/radiod/internal/application/fanout"
	"github.com/harper/radiod/internal/domain"
	"github.com/harper/radiod/internal/infrastructure/wire"
)

// Submitter queues a raw command body on the main loop.
type Submitter interface {
	Submit(ctx context.Context, source string, body []byte) error
}

// NewMux wires every route.
func NewMux(catalog domain.Catalog, hub *fanout.Hub, submit Submitter, log zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/stations", NewStationsHandler(catalog))
	mux.Handle("/status", NewStatusHandler(hub))
	mux.Handle("/ws", NewGateway(hub, submit, log))
	mux.HandleFunc("/healthz", HealthzHandler)
	return mux
}

type StationsHandler struct {
	catalog domain.Catalog
}

func NewStationsHandler(catalog domain.Catalog) *StationsHandler {
	return &StationsHandler{catalog: catalog}
}

func (h *StationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type stationInfo struct {
		ID      int64    `json:"id"`
		Title   string   `json:"title"`
		URL     string   `json:"url,omitempty"`
		Sources []string `json:"sources"`
	}

	stations, err := h.catalog.List(r.Context())
	if err != nil {
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}

	result := make([]stationInfo, 0, len(stations))
	for _, st := range stations {
		sources := st.Sources
		if sources == nil {
			sources = []string{}
		}
		result = append(result, stationInfo{
			ID:      st.ID,
			Title:   st.Title,
			URL:     st.URL,
			Sources: sources,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// StatusHandler reports the last broadcast notification.
type StatusHandler struct {
	hub *fanout.Hub
}

func NewStatusHandler(hub *fanout.Hub) *StatusHandler {
	return &StatusHandler{hub: hub}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Kind    string         `json:"kind"`
		Message string         `json:"message,omitempty"`
		Stats   map[string]any `json:"stats"`
		Clients int            `json:"clients"`
	}

	n, ok := h.hub.Last()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	stats := map[string]any(n.Stats)
	if stats == nil {
		stats = map[string]any{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response{
		Kind:    string(n.Kind),
		Message: n.Message,
		Stats:   stats,
		Clients: h.hub.Len(),
	})
}

func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	type response struct {
		OK bool `json:"ok"`
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response{OK: true})
}

// Gateway lets browser clients join the fan-out over WebSocket. Each text
// message is one wire tuple.
type Gateway struct {
	hub    *fanout.Hub
	submit Submitter
	log    zerolog.Logger
}

func NewGateway(hub *fanout.Hub, submit Submitter, log zerolog.Logger) *Gateway {
	return &Gateway{hub: hub, submit: submit, log: log.With().Str("component", "ws").Logger()}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	id := "ws-" + uuid.NewString()
	sub := g.hub.Subscribe(id)
	defer g.hub.Unsubscribe(id)

	log := g.log.With().Str("conn", id).Logger()
	log.Info().Str("remote", r.RemoteAddr).Msg("client connected")
	defer log.Info().Msg("client disconnected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := g.submit.Submit(ctx, id, data); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-sub.Ready():
		}

		for {
			n, ok := sub.Next()
			if !ok {
				break
			}
			body, err := wire.Encode(wire.FromNotification(n))
			if err != nil {
				log.Error().Err(err).Msg("encode notification")
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
				return
			}
		}
	}
}
