package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	geojson "github.com/paulmach/go.geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
	"github.com/couchcryptid/storm-lightning-service/internal/pipeline"
	"github.com/couchcryptid/storm-lightning-service/internal/window"
)

// SnapshotReader exposes the current strike window.
type SnapshotReader interface {
	Snapshot() window.Snapshot
}

// Refresher runs one poll tick on demand.
type Refresher interface {
	Tick(ctx context.Context) error
}

// Server exposes the strike window to renderers plus health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	strikes    SnapshotReader
	refresher  Refresher
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewServer creates the HTTP server. hub may be nil, in which case the live
// feed route is not registered.
func NewServer(addr string, ready sharedobs.ReadinessChecker, strikes SnapshotReader, refresher Refresher, hub *Hub, clock clockwork.Clock, logger *slog.Logger) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		strikes:   strikes,
		refresher: refresher,
		clock:     clock,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/strikes", s.handleStrikes)
	mux.HandleFunc("GET /api/strikes.geojson", s.handleGeoJSON)
	mux.HandleFunc("POST /api/strikes/refresh", s.handleRefresh)
	if hub != nil {
		mux.Handle("GET /api/strikes/live", hub)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type strikesResponse struct {
	Strikes     []domain.Strike `json:"strikes"`
	Count       int             `json:"count"`
	LastUpdated *time.Time      `json:"last_updated"`
	Error       string          `json:"error,omitempty"`
	Cursor      domain.Cursor   `json:"cursor"`
}

// handleStrikes returns the window. ?since=<unix ms> limits the result to
// strikes newer than the given time.
func (s *Server) handleStrikes(w http.ResponseWriter, r *http.Request) {
	strikes, snap, ok := s.filtered(w, r)
	if !ok {
		return
	}

	resp := strikesResponse{
		Strikes: strikes,
		Count:   len(strikes),
		Error:   snap.Error,
		Cursor:  snap.Cursor,
	}
	if !snap.LastUpdated.IsZero() {
		resp.LastUpdated = &snap.LastUpdated
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	strikes, _, ok := s.filtered(w, r)
	if !ok {
		return
	}

	now := s.clock.Now().UnixMilli()
	fc := geojson.NewFeatureCollection()
	for _, st := range strikes {
		f := geojson.NewPointFeature([]float64{st.Longitude, st.Latitude})
		f.ID = st.ID
		f.SetProperty("id", st.ID)
		f.SetProperty("timestamp", st.TimestampMillis)
		f.SetProperty("amplitude", st.Amplitude)
		f.SetProperty("lateral_error", st.LateralError)
		f.SetProperty("age_seconds", (now-st.TimestampMillis)/1000)
		fc.AddFeature(f)
	}

	body, err := fc.MarshalJSON()
	if err != nil {
		s.logger.Error("encode geojson", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode geojson"})
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.refresher.Tick(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrTickInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "tick in flight"})
		return
	case err != nil:
		s.logger.Warn("manual refresh failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status": "refresh failed",
			"error":  err.Error(),
		})
		return
	}

	snap := s.strikes.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "refreshed",
		"count":        len(snap.Strikes),
		"cursor":       snap.Cursor,
		"last_updated": snap.LastUpdated,
	})
}

// filtered applies the optional since parameter. It writes a 400 and returns
// false when the parameter is invalid.
func (s *Server) filtered(w http.ResponseWriter, r *http.Request) ([]domain.Strike, window.Snapshot, bool) {
	snap := s.strikes.Snapshot()

	raw := r.URL.Query().Get("since")
	if raw == "" {
		if snap.Strikes == nil {
			snap.Strikes = []domain.Strike{}
		}
		return snap.Strikes, snap, true
	}

	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be unix milliseconds"})
		return nil, snap, false
	}
	out := make([]domain.Strike, 0, len(snap.Strikes))
	for _, st := range snap.Strikes {
		if st.TimestampMillis > since {
			out = append(out, st)
		}
	}
	return out, snap, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
