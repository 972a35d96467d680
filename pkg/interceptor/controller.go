// Package interceptor implements the offline interception layer: a
// per-generation Controller that sits in front of the network as an
// http.RoundTripper, serves same-origin GET requests network-first and
// falls back to the generation's cache store when the network fails.
package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/offline-cache/pkg/cache"
	"github.com/Sternrassler/offline-cache/pkg/precache"
	"github.com/Sternrassler/offline-cache/pkg/storage"
)

// RootPath is always pre-warmed at install.
const RootPath = "/"

// Claimer hands control of open application contexts to a controller.
type Claimer interface {
	Claim(ctx context.Context, c *Controller) error
}

// Config holds the controller configuration.
type Config struct {
	// Generation names this deployment and its cache store (REQUIRED)
	Generation string

	// Origin is the application's own origin (REQUIRED)
	Origin cache.Origin

	// Storage holds one named store per generation (REQUIRED)
	Storage storage.Storage

	// Transport is the network; defaults to http.DefaultTransport
	Transport http.RoundTripper

	// PrecachePaths are pre-warmed at install in addition to RootPath
	PrecachePaths []string

	// Precache tunes the install-time worker pool
	Precache precache.Config

	// WaitForClients defers activation until clients of the previous
	// generation have closed instead of taking over immediately
	WaitForClients bool

	Logger zerolog.Logger
}

// Controller is the interception layer for one generation.
type Controller struct {
	generation string
	origin     cache.Origin
	storage    storage.Storage
	transport  http.RoundTripper
	precache   []string
	precfg     precache.Config
	wait       bool
	logger     zerolog.Logger

	mu      sync.RWMutex
	state   State
	manager *cache.Manager

	writes sync.WaitGroup
}

// New creates a controller in StateInstalling.
func New(cfg Config) (*Controller, error) {
	if cfg.Generation == "" {
		return nil, fmt.Errorf("generation is required")
	}
	if cfg.Origin.IsZero() {
		return nil, fmt.Errorf("origin is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}

	return &Controller{
		generation: cfg.Generation,
		origin:     cfg.Origin,
		storage:    cfg.Storage,
		transport:  cfg.Transport,
		precache:   append([]string{RootPath}, cfg.PrecachePaths...),
		precfg:     cfg.Precache,
		wait:       cfg.WaitForClients,
		logger:     cfg.Logger.With().Str("generation", cfg.Generation).Logger(),
		state:      StateInstalling,
	}, nil
}

// Generation returns the generation identifier.
func (c *Controller) Generation() string {
	return c.generation
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SkipWaiting reports whether this controller may activate without waiting
// for clients of the previous generation to close. True unless the config
// set WaitForClients.
func (c *Controller) SkipWaiting() bool {
	return !c.wait
}

// Install opens the generation's store and pre-warms it. Pre-warm failures
// are logged and ignored; only a store that cannot be opened fails install.
func (c *Controller) Install(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInstalling {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("install: controller is %s", state)
	}
	c.mu.Unlock()

	c.logger.Info().Msg("Installing generation")

	st, err := c.storage.Open(ctx, c.generation)
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	manager := cache.NewManager(st, c.origin)

	result := precache.New(c.transport, manager, c.precfg, c.logger).Run(ctx, c.precache)
	for _, failure := range result.Failures {
		c.logger.Warn().Err(failure.Err).Str("path", failure.Path).Msg("Pre-warm failed, continuing install")
	}

	c.mu.Lock()
	c.manager = manager
	c.state = StateWaiting
	c.mu.Unlock()

	c.logger.Info().Int("precached", len(result.Stored)).Msg("Generation installed")
	return nil
}

// Activate deletes every store that belongs to another generation, then
// asks claimer to route open clients here. The prune pass completes before
// the controller turns active. If pruning fails the controller still turns
// active and claims clients; the prune error is returned.
func (c *Controller) Activate(ctx context.Context, claimer Claimer) error {
	c.mu.Lock()
	if c.state != StateWaiting {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("activate: controller is %s", state)
	}
	c.state = StateActivating
	c.mu.Unlock()

	c.logger.Info().Msg("Activating generation")

	pruned, pruneErr := c.prune(ctx)

	c.mu.Lock()
	c.state = StateActive
	c.mu.Unlock()
	activeGeneration.WithLabelValues(c.generation).Set(1)

	if pruneErr != nil {
		pruneErr = fmt.Errorf("prune stale stores: %w", pruneErr)
		c.logger.Error().Err(pruneErr).Int("pruned", pruned).Msg("Pruning stale cache stores failed")
	} else {
		c.logger.Info().Int("pruned", pruned).Msg("Stale cache stores pruned")
	}

	// This generation's store is never pruned, so clients are claimed
	// even when stale stores survive.
	var claimErr error
	if claimer != nil {
		if err := claimer.Claim(context.WithoutCancel(ctx), c); err != nil {
			claimErr = fmt.Errorf("claim clients: %w", err)
		}
	}
	return errors.Join(pruneErr, claimErr)
}

func (c *Controller) prune(ctx context.Context) (int, error) {
	names, err := c.storage.Names(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stores: %w", err)
	}

	var pruned atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		if name == c.generation {
			continue
		}
		g.Go(func() error {
			existed, err := c.storage.Delete(gctx, name)
			if err != nil {
				return fmt.Errorf("delete store %q: %w", name, err)
			}
			if existed {
				pruned.Add(1)
				storesPrunedTotal.Inc()
				c.logger.Debug().Str("store", name).Msg("Deleted stale cache store")
			}
			return nil
		})
	}
	err = g.Wait()
	return int(pruned.Load()), err
}

// Supersede retires the controller after a newer generation activated.
func (c *Controller) Supersede() {
	c.mu.Lock()
	prev := c.state
	c.state = StateSuperseded
	c.mu.Unlock()

	if prev != StateSuperseded {
		activeGeneration.WithLabelValues(c.generation).Set(0)
		c.logger.Info().Str("previous_state", prev.String()).Msg("Generation superseded")
	}
}

// Wait blocks until every detached cache write started so far has finished.
func (c *Controller) Wait() {
	c.writes.Wait()
}

// RoundTrip implements http.RoundTripper.
//
// Non-GET and cross-origin requests, and any request reaching a controller
// that is not active, go to the network untouched. Eligible requests never
// return an error: the caller gets the network response, the cached
// response, or a synthesized 503.
func (c *Controller) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	key := cache.KeyFor(req)

	c.mu.RLock()
	state, manager := c.state, c.manager
	c.mu.RUnlock()

	if state != StateActive || !key.Eligible(c.origin) {
		observe(outcomePassthrough, start)
		return c.transport.RoundTrip(req)
	}

	resp, err := c.transport.RoundTrip(req)
	if err == nil {
		if !cache.Cacheable(resp.StatusCode) {
			c.logger.Debug().Str("key", key.String()).Int("status", resp.StatusCode).Msg("Response not cacheable")
			observe(outcomeNetwork, start)
			return resp, nil
		}

		entry, snapErr := cache.ResponseToEntry(resp)
		if snapErr == nil {
			c.storeDetached(req.Context(), manager, key, entry)
			observe(outcomeNetwork, start)
			return resp, nil
		}
		err = snapErr
	}

	c.logger.Debug().Err(err).Str("key", key.String()).Msg("Network failed, serving from cache")
	return c.fallback(req, manager, key, start), nil
}

func (c *Controller) fallback(req *http.Request, manager *cache.Manager, key cache.RequestKey, start time.Time) *http.Response {
	entry, err := manager.Get(req.Context(), key)
	if err == nil {
		observe(outcomeFallbackHit, start)
		return cache.EntryToResponse(entry, req)
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache lookup failed")
	}
	observe(outcomeOffline, start)
	return cache.OfflineResponse(req)
}

// storeDetached writes the snapshot in the background. The write outlives
// the caller's context; failures are logged and dropped.
func (c *Controller) storeDetached(ctx context.Context, manager *cache.Manager, key cache.RequestKey, entry *cache.CacheEntry) {
	ctx = context.WithoutCancel(ctx)
	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		if err := manager.Put(ctx, key, entry); err != nil {
			backgroundWritesTotal.WithLabelValues("error").Inc()
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache write failed")
			return
		}
		backgroundWritesTotal.WithLabelValues("ok").Inc()
		c.logger.Debug().Str("key", key.String()).Int("bytes", entry.Size()).Msg("Cached response")
	}()
}

func observe(outcome string, start time.Time) {
	interceptRequestsTotal.WithLabelValues(outcome).Inc()
	interceptRequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
