package web

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ical2mail/internal/config"
	"ical2mail/internal/digest"
	appLog "ical2mail/internal/log"
	"ical2mail/internal/model"
)

const resultCacheTTL = 30 * time.Second

// Collector is the part of digest.Pipeline the server needs.
type Collector interface {
	Collect(ctx context.Context) (digest.Result, error)
	Render(ctx context.Context) (body, subject string, err error)
}

// Server previews the aggregated agenda over HTTP.
type Server struct {
	cfg       *config.Config
	collector Collector
	mux       *http.ServeMux

	// Last /api/events answer; repeated previews within resultCacheTTL
	// do not refetch every feed.
	passMu sync.RWMutex
	pass   *cachedPass
}

type cachedPass struct {
	resp  eventsResponse
	taken time.Time
}

// NewServer serves passes produced by collector.
func NewServer(cfg *config.Config, collector Collector) *Server {
	s := &Server{
		cfg:       cfg,
		collector: collector,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler is the route mux, behind basic auth when configured.
func (s *Server) Handler() http.Handler {
	if !s.authRequired() {
		return s.mux
	}
	appLog.Info("preview requires basic auth", "listen", "http://"+s.cfg.Listen)
	return s.requireAuth(s.mux)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) authRequired() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// requireAuth guards every route but /health.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	want := *s.cfg.BasicAuth

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !equalSecret(u, want.Username) || !equalSecret(p, want.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ical2mail", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// equalSecret compares fixed-size digests so timing does not depend on
// where the inputs differ or on their lengths.
func equalSecret(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /digest", s.handleDigest)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the /api/events body.
type eventsResponse struct {
	Events          []model.Record `json:"events"`
	Today           time.Time      `json:"today"`
	RangeStart      time.Time      `json:"range_start"`
	RangeEnd        time.Time      `json:"range_end"`
	DisplayTimeZone string         `json:"display_timezone"`
	Calendars       []string       `json:"calendars"`
}

// handleEvents returns the records of a fresh (or recently cached) pass.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	s.passMu.RLock()
	cached := s.pass
	s.passMu.RUnlock()
	if cached != nil && now.Sub(cached.taken) < resultCacheTTL {
		writeJSON(w, http.StatusOK, cached.resp)
		return
	}

	res, err := s.collector.Collect(r.Context())
	if err != nil {
		appLog.Error("api events: aggregation failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	events := res.Records
	if events == nil {
		events = []model.Record{}
	}
	resp := eventsResponse{
		Events:          events,
		Today:           res.Frame.Today,
		RangeStart:      res.Frame.Window.Min,
		RangeEnd:        res.Frame.Window.Max,
		DisplayTimeZone: res.Frame.Location.String(),
		Calendars:       res.Data.Calendars,
	}

	s.passMu.Lock()
	s.pass = &cachedPass{resp: resp, taken: time.Now()}
	s.passMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// handleDigest renders the mail exactly as the run command would send it.
func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	body, subject, err := s.collector.Render(r.Context())
	if err != nil {
		appLog.Error("digest: render failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Digest-Subject", subject)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
