package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mushafapp/edgeworker/internal/testutil"
	"github.com/mushafapp/edgeworker/pkg/classify"
	"github.com/mushafapp/edgeworker/pkg/lifecycle"
	"github.com/mushafapp/edgeworker/pkg/notify"
	"github.com/mushafapp/edgeworker/pkg/strategy"
	"github.com/mushafapp/edgeworker/pkg/worker"

	"github.com/mushafapp/edgeworker/pkg/bucket"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("APP_VERSION", "3.60.0")
	t.Setenv("ORIGIN_URL", "https://quran.app")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.AppVersion != "3.60.0" {
		t.Errorf("AppVersion = %q, want 3.60.0", cfg.AppVersion)
	}
	if cfg.OriginURL != "https://quran.app" {
		t.Errorf("OriginURL = %q, want https://quran.app", cfg.OriginURL)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want localhost:6379", cfg.RedisAddr)
	}
	if cfg.SkipWaiting {
		t.Error("SkipWaiting should default to false")
	}
	if cfg.PrecacheConcurrency != 4 {
		t.Errorf("PrecacheConcurrency = %d, want 4", cfg.PrecacheConcurrency)
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Errorf("FetchTimeout = %v, want 15s", cfg.FetchTimeout)
	}
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	// t.Setenv registers restoration; the unset below is what the test
	// actually exercises.
	t.Setenv("APP_VERSION", "placeholder")
	t.Setenv("ORIGIN_URL", "https://quran.app")
	os.Unsetenv("APP_VERSION")

	if _, err := loadConfig(); err == nil {
		t.Error("loadConfig succeeded without APP_VERSION set")
	}
}

func TestBuildTarget(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		query  string
		expect string
	}{
		{
			name:   "origin_asset",
			path:   "/icons/icon-192x192.png",
			expect: "https://quran.app/icons/icon-192x192.png",
		},
		{
			name:   "origin_root",
			path:   "/",
			expect: "https://quran.app/",
		},
		{
			name:   "origin_with_query",
			path:   "/index.html",
			query:  "tab=prayer",
			expect: "https://quran.app/index.html?tab=prayer",
		},
		{
			name:   "api_host",
			path:   "/api/api.quran.com/v4/chapters/2",
			expect: "https://api.quran.com/v4/chapters/2",
		},
		{
			name:   "api_host_with_query",
			path:   "/api/api.aladhan.com/v1/timings",
			query:  "city=Cairo",
			expect: "https://api.aladhan.com/v1/timings?city=Cairo",
		},
		{
			name:   "api_prefix_without_host",
			path:   "/api/",
			expect: "https://quran.app/api/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := tt.path
			if tt.query != "" {
				url += "?" + tt.query
			}
			req := httptest.NewRequest("GET", url, nil)

			got := buildTarget("https://quran.app/", req)
			if got != tt.expect {
				t.Errorf("buildTarget(%q) = %q, want %q", tt.path, got, tt.expect)
			}
		})
	}
}

func newTestRouter(t *testing.T, origin *testutil.MockOrigin) (http.Handler, *lifecycle.Controller) {
	t.Helper()

	store := bucket.NewMemoryStore()
	upstream := &http.Client{Timeout: 5 * time.Second}
	hub := notify.NewHub(origin.URL()+"/", zerolog.Nop())

	ctrl, err := lifecycle.New(store, upstream, nil, hub, lifecycle.Config{
		Version:   "1.0.0",
		OriginURL: origin.URL(),
		Manifest:  []string{"/index.html", "/app.js"},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("lifecycle.New failed: %v", err)
	}

	strat := strategy.New(store, upstream, origin.URL()+"/", zerolog.Nop())
	transport := worker.NewTransport(classify.New(classify.DefaultConfig()), strat, ctrl, nil, zerolog.Nop())
	intercepted := &http.Client{Transport: transport}

	cfg := config{OriginURL: origin.URL()}
	return newRouter(cfg, ctrl, hub, intercepted, zerolog.Nop()), ctrl
}

func TestHealthzEndpoint(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	router, _ := newTestRouter(t, origin)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	promhttp.Handler().ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
}

func TestLifecycleStateEndpoint(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	router, _ := newTestRouter(t, origin)

	req := httptest.NewRequest("GET", "/lifecycle/state", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"state":"idle"`) {
		t.Errorf("Expected idle state before install, got %s", string(body))
	}
}

func TestLifecycleUpdateEndpoint(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	router, ctrl := newTestRouter(t, origin)

	req := httptest.NewRequest("POST", "/lifecycle/update", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(body))
	}

	if state := ctrl.State(); state != lifecycle.StateActivated {
		t.Errorf("Expected activated state after update, got %s", state)
	}
}

func TestProxyServesOriginAssets(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	router, _ := newTestRouter(t, origin)

	req := httptest.NewRequest("GET", "/icons/icon-72x72.png", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	// Same asset again is a bucket hit, not a second origin fetch.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/icons/icon-72x72.png", nil))
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 on repeat, got %d", w.Result().StatusCode)
	}
	if got := origin.CountFor("/icons/icon-72x72.png"); got != 1 {
		t.Errorf("origin fetches = %d, want 1 (second request cached)", got)
	}
}

func TestNotificationClickWithoutClients(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	router, _ := newTestRouter(t, origin)

	req := httptest.NewRequest("POST", "/notifications/click?category=quran", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"focused":false`) {
		t.Errorf("Expected focused=false with no connected tabs, got %s", string(body))
	}
	if !strings.Contains(string(body), "tab=quran") {
		t.Errorf("Expected deep link with category, got %s", string(body))
	}
}
