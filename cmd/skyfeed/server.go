package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/unklstewy/skyfeed/internal/feed"
	"github.com/unklstewy/skyfeed/internal/logging"
	"github.com/unklstewy/skyfeed/internal/metrics"
	"github.com/unklstewy/skyfeed/internal/stream"
	"github.com/unklstewy/skyfeed/pkg/config"
	"github.com/unklstewy/skyfeed/pkg/coordinates"
)

// Server holds the HTTP router and its dependencies
type Server struct {
	router  *chi.Mux
	cfg     *config.Config
	feed    *feed.Feed
	hub     *stream.Hub
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// MapConfig is the static configuration the map page is built from.
type MapConfig struct {
	Title string `json:"title"`
	coordinates.Viewport
	IconURL           string           `json:"icon_url"`
	Tooltips          []config.Tooltip `json:"tooltips"`
	RefreshIntervalMS int64            `json:"refresh_interval_ms"`
	StreamPath        string           `json:"stream_path"`
}

// NewServer wires the routes.
func NewServer(cfg *config.Config, f *feed.Feed, hub *stream.Hub, m *metrics.Metrics) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		feed:    f,
		hub:     hub,
		metrics: m,
		log:     logging.Component("http"),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if n := s.cfg.Server.RequestsPerMinute; n > 0 {
			r.Use(httprate.LimitByIP(n, time.Minute))
		}

		r.Get("/map", s.handleMap)
		r.Get("/flights", s.handleFlights)
		r.Get("/stream", s.hub.ServeHTTP)
	})
}

// requestLogger writes one zerolog line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.feed.Status()
	resp := map[string]interface{}{
		"status":   "ok",
		"cycles":   st.Cycles,
		"failures": st.Failures,
		"skipped":  st.Skipped,
		"clients":  s.hub.ClientCount(),
	}
	if !st.LastRun.IsZero() {
		resp["last_run"] = st.LastRun.UTC().Format(time.RFC3339)
	}
	if st.LastError != "" {
		resp["last_error"] = st.LastError
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, MapConfig{
		Title:             s.cfg.Display.Title,
		Viewport:          s.cfg.BBox.Box().Viewport(),
		IconURL:           s.cfg.Display.IconURL,
		Tooltips:          s.cfg.Display.Tooltips,
		RefreshIntervalMS: s.feed.Interval().Milliseconds(),
		StreamPath:        "/api/v1/stream",
	})
}

func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, stream.Snapshot(s.feed.Dataset()))
}

// respondJSON encodes before writing the header so an unencodable value
// becomes a 500 instead of a truncated 200.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		logging.Warn().Err(err).Msg("failed to write response")
	}
}
