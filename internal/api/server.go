// Package api exposes the daemon's status surface: health, metrics in
// Prometheus text format, and a websocket stream of compile and change
// events. It is read-only; project mutations only ever enter through the
// scheduling loop.
package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quill/internal/event"
	"quill/internal/logging"
	"quill/internal/metrics"
	"quill/internal/version"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	wsWriteTimeout    = 10 * time.Second
)

type Server struct {
	Bus            *event.Bus[event.Event]
	Registry       *metrics.Registry
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if s == nil || mux == nil {
		return
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/events", s.handleEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status  string       `json:"status"`
		Version version.Info `json:"version"`
	}{
		Status:  "ok",
		Version: version.Get(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, s.AuthToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	registry := s.Registry
	if registry == nil {
		registry = metrics.Default
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := registry.WritePrometheus(w); err != nil && s.Logger != nil {
		s.Logger.Warn("metrics write failed", map[string]string{
			"error": err.Error(),
		})
	}
}

func validateToken(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") && header[len("Bearer "):] == token {
		return true
	}
	return r.URL.Query().Get("token") == token
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	for _, candidate := range allowed {
		if candidate == origin || candidate == host {
			return true
		}
	}
	return false
}
