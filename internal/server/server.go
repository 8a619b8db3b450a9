// Package server exposes the catalog services over a small JSON API and a
// websocket event feed.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/alvarorichard/gocatalog/internal/events"
	"github.com/alvarorichard/gocatalog/internal/extractor"
	"github.com/alvarorichard/gocatalog/internal/models"
	"github.com/alvarorichard/gocatalog/internal/playback"
	"github.com/alvarorichard/gocatalog/internal/resilience"
	"github.com/alvarorichard/gocatalog/internal/security"
	"github.com/alvarorichard/gocatalog/internal/titlematch"
	"github.com/alvarorichard/gocatalog/internal/util"
)

const (
	maxRequestBody  = 64 << 10
	shutdownTimeout = 10 * time.Second
)

// SourceFinder composes playback sources
type SourceFinder interface {
	Sources(ctx context.Context, req extractor.Request, lang string) (*playback.Sources, error)
}

// URLChecker runs the security pipeline
type URLChecker interface {
	CheckURL(ctx context.Context, rawURL string) models.SecurityCheckResult
	CheckDownload(ctx context.Context, req security.DownloadRequest) models.SecurityCheckResult
}

// Deps are the services behind the API. Nil members disable their routes.
type Deps struct {
	Sources  SourceFinder
	Security URLChecker
	Breakers *resilience.Breakers
	Events   *events.Hub
	Lang     string
}

// Options tune the HTTP surface
type Options struct {
	RatePerMinute int
	Burst         int
	SourcesTTL    time.Duration
}

// Server routes API requests to the catalog services
type Server struct {
	deps    Deps
	router  *mux.Router
	limiter *IPRateLimiter
	cache   *util.ResponseCache
	started time.Time
}

// New builds the router
func New(deps Deps, opts Options) *Server {
	if deps.Lang == "" {
		deps.Lang = "en"
	}
	s := &Server{
		deps:    deps,
		router:  mux.NewRouter(),
		limiter: NewIPRateLimiter(opts.RatePerMinute, opts.Burst),
		cache:   util.NewResponseCache(opts.SourcesTTL, 256),
		started: time.Now(),
	}

	s.router.Use(requestID)
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.limiter.middleware)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/match", s.handleMatch).Methods(http.MethodGet)
	if deps.Sources != nil {
		api.HandleFunc("/sources", s.handleSources).Methods(http.MethodGet)
	}
	if deps.Security != nil {
		api.HandleFunc("/security/check", s.handleSecurityCheck).Methods(http.MethodGet)
		api.HandleFunc("/downloads/check", s.handleDownloadCheck).Methods(http.MethodPost)
	}
	if deps.Events != nil {
		s.router.Handle("/ws", deps.Events)
	}
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases background goroutines
func (s *Server) Close() {
	s.limiter.Close()
	s.cache.Close()
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.Info("API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	util.Info("API stopped")
	return nil
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		util.Debug("Request", "id", id, "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"breakers": s.deps.Breakers.Snapshot(),
	}
	if s.deps.Events != nil {
		body["subscribers"] = s.deps.Events.Clients()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	candidate, canonical := q.Get("candidate"), q.Get("title")
	if candidate == "" || canonical == "" {
		writeError(w, http.StatusBadRequest, "candidate and title are required")
		return
	}
	threshold := titlematch.DefaultThreshold
	if raw := q.Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeError(w, http.StatusBadRequest, "threshold must be between 0 and 1")
			return
		}
		threshold = v
	}

	score := titlematch.Similarity(candidate, canonical)
	writeJSON(w, http.StatusOK, map[string]any{
		"candidate":            candidate,
		"title":                canonical,
		"normalized_candidate": titlematch.NormalizeTitle(candidate),
		"normalized_title":     titlematch.NormalizeTitle(canonical),
		"score":                score,
		"threshold":            threshold,
		"match":                score >= threshold,
	})
}

// parseSourcesQuery reads tmdb, imdb, kind, season, episode, title, year and lang
func parseSourcesQuery(r *http.Request, defaultLang string) (extractor.Request, string, error) {
	q := r.URL.Query()
	req := extractor.Request{
		IMDBID: strings.TrimSpace(q.Get("imdb")),
		Kind:   models.ParseMediaKind(q.Get("kind")),
		Title:  strings.TrimSpace(q.Get("title")),
	}
	for key, dst := range map[string]*int{
		"tmdb":    &req.TMDBID,
		"season":  &req.Season,
		"episode": &req.Episode,
		"year":    &req.Year,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, "", errors.Errorf("%s must be an integer", key)
		}
		*dst = v
	}
	lang := q.Get("lang")
	if lang == "" {
		lang = defaultLang
	}
	return req, lang, nil
}

func sourcesCacheKey(req extractor.Request, lang string) string {
	return fmt.Sprintf("%d|%s|%s|%d|%d|%s|%d|%s",
		req.TMDBID, strings.ToLower(req.IMDBID), req.Kind, req.Season, req.Episode,
		strings.ToLower(req.Title), req.Year, strings.ToLower(lang))
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	req, lang, err := parseSourcesQuery(r, s.deps.Lang)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := sourcesCacheKey(req, lang)
	if data, ok := s.cache.Get(key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		_, _ = w.Write(data)
		return
	}

	out, err := s.deps.Sources.Sources(r.Context(), req, lang)
	switch {
	case errors.Is(err, playback.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		util.Warn("Sources failed", "request", req.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "sources unavailable")
		return
	}

	data, err := json.Marshal(out)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}
	// empty listings are not cached so a recovering provider is retried
	if len(out.Streams) > 0 {
		s.cache.Set(key, data)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	_, _ = w.Write(data)
}

func (s *Server) handleSecurityCheck(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Security.CheckURL(r.Context(), rawURL))
}

func (s *Server) handleDownloadCheck(w http.ResponseWriter, r *http.Request) {
	var body security.DownloadRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if body.Actor == "" {
		body.Actor = "api"
	}
	body.IP = clientIP(r)

	writeJSON(w, http.StatusOK, s.deps.Security.CheckDownload(r.Context(), body))
}
