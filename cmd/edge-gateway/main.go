// Command edge-gateway runs the caching gateway for the Quran reader app.
// It precaches the app shell on startup, serves intercepted requests
// through versioned cache buckets, and notifies connected tabs when a new
// version activates.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mushafapp/edgeworker/pkg/bucket"
	"github.com/mushafapp/edgeworker/pkg/classify"
	"github.com/mushafapp/edgeworker/pkg/lifecycle"
	"github.com/mushafapp/edgeworker/pkg/logging"
	"github.com/mushafapp/edgeworker/pkg/notify"
	"github.com/mushafapp/edgeworker/pkg/strategy"
	"github.com/mushafapp/edgeworker/pkg/version"
	"github.com/mushafapp/edgeworker/pkg/worker"
)

type config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	RedisAddr  string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// AppVersion stamps the static bucket this gateway installs.
	AppVersion string `env:"APP_VERSION,required"`

	// OriginURL is the app's origin server, serving the shell assets.
	OriginURL string `env:"ORIGIN_URL,required"`

	APIHosts         []string `env:"API_HOSTS"`
	FreshNames       []string `env:"FRESH_NAMES"`
	RootDocument     string   `env:"ROOT_DOCUMENT"`
	PrecacheManifest []string `env:"PRECACHE_MANIFEST"`

	// SkipWaiting activates right after install instead of waiting for a
	// page to request it.
	SkipWaiting bool `env:"SKIP_WAITING" envDefault:"false"`

	PrecacheConcurrency int           `env:"PRECACHE_CONCURRENCY" envDefault:"4"`
	FetchTimeout        time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// loadConfig parses the gateway configuration from the environment.
func loadConfig() (config, error) {
	var cfg config
	err := env.Parse(&cfg)
	return cfg, err
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fallback := logging.Setup(logging.DefaultConfig())
		fallback.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()
	logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")

	store := bucket.NewRedisStore(redisClient, logging.NewLogger("bucket"))
	registry := version.NewRegistry(redisClient, logging.NewLogger("version"))
	hub := notify.NewHub(cfg.OriginURL, logging.NewLogger("notify"))

	// The upstream client fetches from origin and API hosts directly; the
	// worker transport must never wrap it or intercepted fetches would
	// recurse.
	upstream := &http.Client{Timeout: cfg.FetchTimeout}

	ctrl, err := lifecycle.New(store, upstream, registry, hub, lifecycle.Config{
		Version:        cfg.AppVersion,
		OriginURL:      cfg.OriginURL,
		Manifest:       cfg.PrecacheManifest,
		MaxConcurrency: cfg.PrecacheConcurrency,
		FetchTimeout:   cfg.FetchTimeout,
		SkipWaiting:    cfg.SkipWaiting,
	}, logging.NewLogger("lifecycle"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid lifecycle configuration")
	}

	if err := ctrl.Resume(ctx); err != nil {
		logger.Warn().Err(err).Msg("Could not resume from version registry")
	}
	hub.OnSkipWaiting(func() {
		if err := ctrl.SkipWaiting(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Skip waiting failed")
		}
	})

	classifyCfg := classify.DefaultConfig()
	if len(cfg.APIHosts) > 0 {
		classifyCfg.APIHosts = cfg.APIHosts
	}
	if len(cfg.FreshNames) > 0 {
		classifyCfg.FreshNames = cfg.FreshNames
	}
	if cfg.RootDocument != "" {
		classifyCfg.RootDocument = cfg.RootDocument
	}

	rootURL := strings.TrimSuffix(cfg.OriginURL, "/") + "/"
	strat := strategy.New(store, upstream, rootURL, logging.NewLogger("strategy"))
	transport := worker.NewTransport(classify.New(classifyCfg), strat, ctrl, nil, logging.NewLogger("worker"))
	intercepted := &http.Client{Transport: transport}

	// A failed install keeps the previously activated version serving.
	go func() {
		if err := ctrl.Install(ctx); err != nil {
			logger.Error().Err(err).Str("version", cfg.AppVersion).Msg("Install failed")
		}
	}()

	router := newRouter(cfg, ctrl, hub, intercepted, logger)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Str("version", cfg.AppVersion).
		Msg("Starting edge gateway")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func newRouter(cfg config, ctrl *lifecycle.Controller, hub *notify.Hub, intercepted *http.Client, logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", hub.HandleWS)

	r.Get("/lifecycle/state", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"state":  string(ctrl.State()),
			"bucket": ctrl.CurrentStaticBucket(),
		})
	})
	r.Post("/lifecycle/update", func(w http.ResponseWriter, req *http.Request) {
		if err := ctrl.Update(req.Context()); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"state": string(ctrl.State())})
	})

	r.Post("/notifications/click", func(w http.ResponseWriter, req *http.Request) {
		category := req.URL.Query().Get("category")
		focused, deepLink := hub.RouteNotificationClick(category)
		writeJSON(w, http.StatusOK, map[string]any{
			"focused": focused,
			"url":     deepLink,
		})
	})

	proxy := proxyHandler(cfg.OriginURL, intercepted, logger)
	r.NotFound(proxy)
	return r
}

// proxyHandler forwards every remaining request through the intercepting
// client. Paths under /api/<host>/ target that host; everything else
// targets the origin server.
func proxyHandler(originURL string, intercepted *http.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := buildTarget(originURL, r)

		req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
		if err != nil {
			http.Error(w, "invalid request target", http.StatusBadRequest)
			return
		}
		copyRequestHeaders(req, r)

		resp, err := intercepted.Do(req)
		if err != nil {
			// Only bypassed (non-GET) requests can surface transport
			// errors; intercepted ones resolve to fallbacks.
			logger.Debug().Err(err).Str("target", target).Msg("Upstream request failed")
			http.Error(w, "upstream unreachable", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Debug().Err(err).Str("target", target).Msg("Failed to write response body")
		}
	}
}

// buildTarget resolves an incoming path to the upstream URL it proxies to.
// "/api/api.quran.com/v4/surah" becomes "https://api.quran.com/v4/surah";
// any other path resolves against the origin server.
func buildTarget(originURL string, r *http.Request) string {
	path := r.URL.Path
	if rest, ok := strings.CutPrefix(path, "/api/"); ok {
		host, hostPath, _ := strings.Cut(rest, "/")
		if host != "" {
			target := "https://" + host + "/" + hostPath
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			return target
		}
	}

	target := strings.TrimSuffix(originURL, "/") + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return target
}

func copyRequestHeaders(dst *http.Request, src *http.Request) {
	for _, key := range []string{
		"Accept",
		"Accept-Language",
		"Content-Type",
		"Sec-Fetch-Mode",
		"User-Agent",
	} {
		if value := src.Header.Get(key); value != "" {
			dst.Header.Set(key, value)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
