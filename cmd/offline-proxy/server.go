package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/offline-cache/pkg/cache"
	"github.com/Sternrassler/offline-cache/pkg/config"
	"github.com/Sternrassler/offline-cache/pkg/host"
	"github.com/Sternrassler/offline-cache/pkg/interceptor"
	"github.com/Sternrassler/offline-cache/pkg/metrics"
	"github.com/Sternrassler/offline-cache/pkg/precache"
	"github.com/Sternrassler/offline-cache/pkg/storage"
)

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// server wires the host runtime to the HTTP surface.
type server struct {
	cfg     config.Config
	origin  cache.Origin
	backend storage.Storage
	network http.RoundTripper
	runtime *host.Runtime
	client  *host.Client
	logger  zerolog.Logger

	mu          sync.Mutex
	controllers []*interceptor.Controller
}

// newServer registers cfg.Generation and opens the proxy's application
// client. Pre-warm failures are not fatal; an install failure is.
func newServer(ctx context.Context, cfg config.Config, backend storage.Storage, network http.RoundTripper, logger zerolog.Logger) (*server, error) {
	origin, err := cfg.Origin()
	if err != nil {
		return nil, err
	}

	s := &server{
		cfg:     cfg,
		origin:  origin,
		backend: backend,
		network: network,
		runtime: host.New(network, logger),
		logger:  logger,
	}
	s.client = s.runtime.NewClient()

	if err := s.register(ctx, cfg.Generation); err != nil {
		// Activation errors leave the generation active; only install
		// failures leave nothing to serve.
		if s.runtime.Active() == "" {
			s.client.Close()
			return nil, err
		}
		logger.Warn().Err(err).Msg("Initial activation incomplete")
	}
	return s, nil
}

func (s *server) register(ctx context.Context, generation string) error {
	c, err := interceptor.New(interceptor.Config{
		Generation:    generation,
		Origin:        s.origin,
		Storage:       s.backend,
		Transport:     s.network,
		PrecachePaths: s.cfg.PrecachePaths,
		Precache: precache.Config{
			Concurrency: s.cfg.PrecacheConcurrency,
			Timeout:     s.cfg.HTTPTimeout,
		},
		Logger: s.logger,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.controllers = append(s.controllers, c)
	s.mu.Unlock()

	return s.runtime.Register(ctx, c)
}

// Close detaches the proxy's client and drains the pending cache writes of
// every generation registered, superseded ones included.
func (s *server) Close() error {
	err := s.client.Close()

	s.mu.Lock()
	controllers := s.controllers
	s.mu.Unlock()
	for _, c := range controllers {
		c.Wait()
	}
	return err
}

// Router builds the chi router.
func (s *server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/admin/generations", s.handleRegister)
	r.NotFound(s.handleProxy)
	r.MethodNotAllowed(s.handleProxy)

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.runtime.Active() == "" {
		http.Error(w, "no active generation", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

type registerRequest struct {
	Generation string `json:"generation"`
}

type registerResponse struct {
	Active  string `json:"active"`
	Waiting string `json:"waiting,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	req.Generation = strings.TrimSpace(req.Generation)
	if err := storage.ValidateName(req.Generation); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Generation == s.runtime.Active() {
		http.Error(w, "generation already active", http.StatusConflict)
		return
	}

	status := http.StatusAccepted
	resp := registerResponse{}
	// Registration outlives the admin request.
	if err := s.register(context.WithoutCancel(r.Context()), req.Generation); err != nil {
		s.logger.Error().Err(err).Str("generation", req.Generation).Msg("Generation registration failed")
		status = http.StatusInternalServerError
		resp.Error = err.Error()
	}
	resp.Active = s.runtime.Active()
	resp.Waiting = s.runtime.Waiting()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// handleProxy forwards the request through the application client.
// Absolute-form request targets keep their own URL and so bypass the cache
// unless they point at the origin.
func (s *server) handleProxy(w http.ResponseWriter, r *http.Request) {
	target := s.origin.Resolve(r.URL.RequestURI())
	if r.URL.IsAbs() {
		target = r.URL.String()
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		http.Error(w, "bad request target", http.StatusBadRequest)
		return
	}
	copyHeaders(out.Header, r.Header)
	out.ContentLength = r.ContentLength

	resp, err := s.client.RoundTrip(out)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn().Err(err).Str("target", target).Msg("Upstream request failed")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug().Err(err).Str("target", target).Msg("Client write failed")
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}
