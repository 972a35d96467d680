package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/offline-cache/internal/testutil"
	"github.com/Sternrassler/offline-cache/pkg/config"
	"github.com/Sternrassler/offline-cache/pkg/storage"
	"github.com/Sternrassler/offline-cache/pkg/storage/memory"
)

type proxyFixture struct {
	origin  *testutil.MockOrigin
	network *testutil.Switch
	backend *memory.Storage
	server  *server
	proxy   *httptest.Server
}

func newProxyFixture(t *testing.T, wrap func(storage.Storage) storage.Storage) *proxyFixture {
	t.Helper()

	origin := testutil.NewMockOrigin()
	t.Cleanup(origin.Close)
	origin.SetResponse("/", testutil.NewPageResponse("<html>root</html>"))

	cfg := config.Default()
	cfg.OriginURL = origin.URL()

	network := testutil.NewSwitch(nil)
	backend := memory.New()
	var st storage.Storage = backend
	if wrap != nil {
		st = wrap(backend)
	}

	srv, err := newServer(context.Background(), cfg, st, network, zerolog.Nop())
	if err != nil {
		t.Fatalf("newServer failed: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	proxy := httptest.NewServer(srv.Router())
	t.Cleanup(proxy.Close)

	return &proxyFixture{origin: origin, network: network, backend: backend, server: srv, proxy: proxy}
}

func (f *proxyFixture) do(t *testing.T, method, path, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.proxy.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

type unreachableStorage struct {
	storage.Storage
	failOpen bool
	failPing bool
}

func (u *unreachableStorage) Open(ctx context.Context, name string) (storage.Store, error) {
	if u.failOpen {
		return nil, errors.New("connection refused")
	}
	return u.Storage.Open(ctx, name)
}

func (u *unreachableStorage) Ping(ctx context.Context) error {
	if u.failPing {
		return errors.New("connection refused")
	}
	return u.Storage.Ping(ctx)
}

func TestHealthEndpoint(t *testing.T) {
	f := newProxyFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if body != "OK" {
		t.Errorf("Expected body 'OK', got %q", body)
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		f := newProxyFixture(t, nil)
		resp, _ := f.do(t, http.MethodGet, "/ready", "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
	})

	t.Run("storage down", func(t *testing.T) {
		f := newProxyFixture(t, func(base storage.Storage) storage.Storage {
			return &unreachableStorage{Storage: base, failPing: true}
		})
		resp, _ := f.do(t, http.MethodGet, "/ready", "")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}
	})
}

func TestNewServer_InstallFailure(t *testing.T) {
	cfg := config.Default()
	cfg.OriginURL = "http://app.example.com"

	backend := &unreachableStorage{Storage: memory.New(), failOpen: true}
	if _, err := newServer(context.Background(), cfg, backend, testutil.NewSwitch(nil), zerolog.Nop()); err == nil {
		t.Error("expected error when the generation store cannot be opened")
	}
}

func TestProxy_OfflineFallback(t *testing.T) {
	f := newProxyFixture(t, nil)
	f.origin.SetResponse("/news", testutil.NewPageResponse("latest news"))

	resp, body := f.do(t, http.MethodGet, "/news", "")
	if resp.StatusCode != http.StatusOK || body != "latest news" {
		t.Fatalf("online = %d %q", resp.StatusCode, body)
	}
	f.server.runtime.Controller().Wait()

	f.network.SetOffline(true)

	resp, body = f.do(t, http.MethodGet, "/news", "")
	if resp.StatusCode != http.StatusOK || body != "latest news" {
		t.Errorf("offline hit = %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Content-Type") != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}

	resp, body = f.do(t, http.MethodGet, "/", "")
	if resp.StatusCode != http.StatusOK || body != "<html>root</html>" {
		t.Errorf("pre-warmed root = %d %q", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodGet, "/other-resource", "")
	if resp.StatusCode != http.StatusServiceUnavailable || body != "Offline content not available" {
		t.Errorf("offline miss = %d %q", resp.StatusCode, body)
	}
}

func TestProxy_NonGetPassthrough(t *testing.T) {
	f := newProxyFixture(t, nil)
	f.origin.SetHandler("/submit", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write(data)
	})

	resp, body := f.do(t, http.MethodPost, "/submit", "payload")
	if resp.StatusCode != http.StatusCreated || body != "payload" {
		t.Errorf("post = %d %q", resp.StatusCode, body)
	}

	f.network.SetOffline(true)
	resp, _ = f.do(t, http.MethodPost, "/submit", "payload")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("offline post status = %d, want 502", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newProxyFixture(t, nil)
	f.do(t, http.MethodGet, "/", "")

	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	for _, name := range []string{"offline_cache_requests_total", "offline_cache_active_generation"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestAdminRegisterGeneration(t *testing.T) {
	f := newProxyFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/admin/generations", `{"generation":"v2"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", resp.StatusCode, body)
	}

	var out registerResponse
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Active != "v2" {
		t.Errorf("active = %q, want v2", out.Active)
	}

	names, err := f.backend.Names(context.Background())
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if len(names) != 1 || names[0] != "v2" {
		t.Errorf("stores = %v, want [v2]", names)
	}

	f.network.SetOffline(true)
	resp, body = f.do(t, http.MethodGet, "/", "")
	if resp.StatusCode != http.StatusOK || body != "<html>root</html>" {
		t.Errorf("root served by v2 = %d %q", resp.StatusCode, body)
	}
}

func TestAdminRegisterGeneration_BadRequests(t *testing.T) {
	f := newProxyFixture(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "malformed json", body: `{"generation":`, status: http.StatusBadRequest},
		{name: "empty generation", body: `{"generation":"  "}`, status: http.StatusBadRequest},
		{name: "already active", body: `{"generation":"v1"}`, status: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, http.MethodPost, "/admin/generations", tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestOpenStorage(t *testing.T) {
	cfg := config.Default()

	st, err := openStorage(cfg)
	if err != nil {
		t.Fatalf("openStorage(memory) failed: %v", err)
	}
	if _, ok := st.(*memory.Storage); !ok {
		t.Errorf("backend = %T, want *memory.Storage", st)
	}

	cfg.StorageBackend = config.BackendSQLite
	cfg.SQLitePath = t.TempDir() + "/cache.db"
	st, err = openStorage(cfg)
	if err != nil {
		t.Fatalf("openStorage(sqlite) failed: %v", err)
	}
	defer st.Close()
	if err := st.Ping(context.Background()); err != nil {
		t.Errorf("sqlite Ping failed: %v", err)
	}
}

func TestAdminRegisterGeneration_CallerGone(t *testing.T) {
	f := newProxyFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/admin/generations", strings.NewReader(`{"generation":"v2"}`)).WithContext(ctx)
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", w.Code, w.Body.String())
	}
	names, err := f.backend.Names(context.Background())
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if len(names) != 1 || names[0] != "v2" {
		t.Errorf("stores = %v, want [v2]", names)
	}
	if got := f.server.client.Controller().Generation(); got != "v2" {
		t.Errorf("proxy client controlled by %q, want v2", got)
	}
}

func TestServerClose_DrainsEveryGeneration(t *testing.T) {
	f := newProxyFixture(t, nil)

	if resp, _ := f.do(t, http.MethodPost, "/admin/generations", `{"generation":"v2"}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("register status = %d", resp.StatusCode)
	}

	f.server.mu.Lock()
	var generations []string
	for _, c := range f.server.controllers {
		generations = append(generations, c.Generation())
	}
	f.server.mu.Unlock()

	if len(generations) != 2 || generations[0] != "v1" || generations[1] != "v2" {
		t.Errorf("tracked generations = %v, want [v1 v2]", generations)
	}
	if err := f.server.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
