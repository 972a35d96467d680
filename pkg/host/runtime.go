// Package host runs interception controllers on behalf of an application.
//
// A Runtime keeps at most one active generation. Registering a new
// generation installs it, then either activates it immediately or parks it
// until the clients still controlled by the old generation have closed.
// Application code talks to the network through a Client, which routes
// each request through whichever controller currently claims it.
package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/offline-cache/pkg/interceptor"
)

// ErrClientClosed is returned by RoundTrip on a closed Client.
var ErrClientClosed = errors.New("client closed")

// Runtime hosts the controllers of successive generations.
type Runtime struct {
	base   http.RoundTripper
	logger zerolog.Logger

	// promote serialises activations.
	promote sync.Mutex

	mu      sync.Mutex
	active  *interceptor.Controller
	waiting *interceptor.Controller
	clients map[*Client]struct{}
}

// New creates a runtime. Uncontrolled clients use base; nil means
// http.DefaultTransport.
func New(base http.RoundTripper, logger zerolog.Logger) *Runtime {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Runtime{
		base:    base,
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
}

// Register installs c and activates it, or leaves it waiting when c asks
// to wait and clients of the active generation are still open.
//
// An install failure discards c. An activation error (failed pruning) is
// returned, but c stays the active generation.
func (r *Runtime) Register(ctx context.Context, c *interceptor.Controller) error {
	log := r.logger.With().Str("generation", c.Generation()).Logger()

	if err := c.Install(ctx); err != nil {
		log.Error().Err(err).Msg("Install failed, generation discarded")
		return fmt.Errorf("install %s: %w", c.Generation(), err)
	}

	r.mu.Lock()
	if !c.SkipWaiting() && r.active != nil && r.controlledLocked(r.active) > 0 {
		r.waiting = c
		r.mu.Unlock()
		log.Info().Str("active", r.Active()).Msg("Generation waiting for clients to close")
		return nil
	}
	r.mu.Unlock()

	return r.activate(ctx, c)
}

// activate supersedes the current generation and activates c with the
// runtime as claimer.
func (r *Runtime) activate(ctx context.Context, c *interceptor.Controller) error {
	r.promote.Lock()
	defer r.promote.Unlock()

	r.mu.Lock()
	old := r.active
	r.active = c
	if r.waiting == c {
		r.waiting = nil
	}
	r.mu.Unlock()

	if old != nil && old != c {
		old.Supersede()
	}

	if err := c.Activate(ctx, r); err != nil {
		r.logger.Error().Err(err).Str("generation", c.Generation()).Msg("Activation incomplete")
		return fmt.Errorf("activate %s: %w", c.Generation(), err)
	}

	r.logger.Info().Str("generation", c.Generation()).Msg("Generation active")
	return nil
}

// Claim makes c the controller of every open client.
func (r *Runtime) Claim(ctx context.Context, c *interceptor.Controller) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for client := range r.clients {
		clients = append(clients, client)
	}
	r.mu.Unlock()

	for _, client := range clients {
		client.setController(c)
	}

	r.logger.Debug().Str("generation", c.Generation()).Int("clients", len(clients)).Msg("Clients claimed")
	return nil
}

// Active returns the active generation, or "" when none is active.
func (r *Runtime) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ""
	}
	return r.active.Generation()
}

// Waiting returns the generation waiting for activation, or "".
func (r *Runtime) Waiting() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting == nil {
		return ""
	}
	return r.waiting.Generation()
}

// Controller returns the active controller, or nil.
func (r *Runtime) Controller() *interceptor.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// NewClient opens an application context controlled by the active
// generation, if any.
func (r *Runtime) NewClient() *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	client := &Client{runtime: r, controller: r.active}
	r.clients[client] = struct{}{}
	return client
}

// Clients returns the number of open clients.
func (r *Runtime) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Runtime) controlledLocked(c *interceptor.Controller) int {
	n := 0
	for client := range r.clients {
		if client.Controller() == c {
			n++
		}
	}
	return n
}

// release detaches client and activates the waiting generation once no
// client of the active one remains.
func (r *Runtime) release(client *Client) error {
	r.mu.Lock()
	delete(r.clients, client)
	next := r.waiting
	if next == nil || (r.active != nil && r.controlledLocked(r.active) > 0) {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	r.logger.Info().Str("generation", next.Generation()).Msg("Last client of previous generation closed")
	return r.activate(context.Background(), next)
}

// Client is an application context. It implements http.RoundTripper and
// is safe for concurrent use.
type Client struct {
	runtime *Runtime

	mu         sync.RWMutex
	controller *interceptor.Controller
	closed     bool
}

// Controller returns the controller handling this client's requests.
func (c *Client) Controller() *interceptor.Controller {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.controller
}

func (c *Client) setController(ctrl *interceptor.Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.controller = ctrl
	}
}

// RoundTrip implements http.RoundTripper.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.RLock()
	ctrl, closed := c.controller, c.closed
	c.mu.RUnlock()

	if closed {
		return nil, ErrClientClosed
	}
	if ctrl == nil {
		return c.runtime.base.RoundTrip(req)
	}
	return ctrl.RoundTrip(req)
}

// Close detaches the client. Closing the last client of the active
// generation activates a waiting one; its activation error is returned.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.runtime.release(c)
}
