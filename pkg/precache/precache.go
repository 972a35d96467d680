package precache

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/offline-cache/pkg/cache"
)

var precacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "offline_cache_precache_total",
	Help: "Install-time pre-warm fetches by result",
}, []string{"result"}) // "stored", "failed"

// Config holds precache configuration
type Config struct {
	// Concurrency is the maximum number of parallel fetches
	Concurrency int
	// Timeout per fetch; zero leaves timing to the transport
	Timeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
	}
}

// PathError records a failed pre-warm of one path.
type PathError struct {
	Path string
	Err  error
}

func (e PathError) Error() string {
	return fmt.Sprintf("precache %s: %v", e.Path, e.Err)
}

func (e PathError) Unwrap() error {
	return e.Err
}

// Result summarises a precache run.
type Result struct {
	Stored   []string
	Failures []PathError
}

// Precacher fetches paths from the origin and stores successful responses.
type Precacher struct {
	transport http.RoundTripper
	manager   *cache.Manager
	config    Config
	logger    zerolog.Logger
}

// New creates a precacher writing into manager's store.
func New(transport http.RoundTripper, manager *cache.Manager, config Config, logger zerolog.Logger) *Precacher {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	return &Precacher{
		transport: transport,
		manager:   manager,
		config:    config,
		logger:    logger,
	}
}

// Run fetches every path in parallel and returns what was stored and what failed.
// Duplicate paths are fetched once.
func (p *Precacher) Run(ctx context.Context, paths []string) Result {
	start := time.Now()
	paths = dedupe(paths)

	queue := make(chan string, len(paths))
	for _, path := range paths {
		queue <- path
	}
	close(queue)

	var (
		mu     sync.Mutex
		result Result
		wg     sync.WaitGroup
	)

	workers := p.config.Concurrency
	if workers > len(paths) {
		workers = len(paths)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for path := range queue {
				err := p.fetch(ctx, path)

				mu.Lock()
				if err != nil {
					result.Failures = append(result.Failures, PathError{Path: path, Err: err})
				} else {
					result.Stored = append(result.Stored, path)
				}
				mu.Unlock()

				if err != nil {
					precacheTotal.WithLabelValues("failed").Inc()
					p.logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Str("path", path).
						Msg("Pre-warm fetch failed")
					continue
				}
				precacheTotal.WithLabelValues("stored").Inc()
			}
		}(i)
	}
	wg.Wait()

	p.logger.Info().
		Str("generation", p.manager.Generation()).
		Int("stored", len(result.Stored)).
		Int("failed", len(result.Failures)).
		Dur("duration", time.Since(start)).
		Msg("Pre-warm complete")

	return result
}

func (p *Precacher) fetch(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.manager.Origin().Resolve(path), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if !cache.Cacheable(resp.StatusCode) {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return err
	}
	return p.manager.Put(ctx, cache.KeyFor(req), entry)
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return out
}
