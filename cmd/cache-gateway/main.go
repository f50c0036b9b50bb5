// Command cache-gateway runs the caching layer as a reverse proxy in front of
// an application origin. Every proxied request goes through the gateway's
// classification and strategy engine; /healthz and /metrics are served
// locally.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tilawa/cache-gateway/pkg/gateway"
	"github.com/tilawa/cache-gateway/pkg/logging"
	"github.com/tilawa/cache-gateway/pkg/partition"
)

type config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	OriginURL string `env:"ORIGIN_URL,required"`

	// Backend selects the partition store: memory, redis, or sqlite.
	Backend    string `env:"CACHE_BACKEND" envDefault:"memory"`
	RedisAddr  string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"cache-gateway.db"`

	// CacheVersion is the version token embedded in the shell partition
	// name. Bump it to supersede the previous deployment's shell cache.
	CacheVersion string `env:"CACHE_VERSION" envDefault:"v1"`

	// PrecachePaths overrides the default app-shell warm-up list.
	PrecachePaths []string `env:"PRECACHE_PATHS" envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.Level(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	origin, err := url.Parse(cfg.OriginURL)
	if err != nil {
		logger.Fatal().Err(err).Str("origin", cfg.OriginURL).Msg("Invalid origin URL")
	}

	backend, closeBackend, err := newBackend(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Failed to create cache backend")
	}
	defer closeBackend()

	gwCfg := gateway.DefaultConfig(origin)
	gwCfg.ShellPartition = "shell-" + cfg.CacheVersion
	if len(cfg.PrecachePaths) > 0 {
		gwCfg.Precache = cfg.PrecachePaths
	}

	gw, err := gateway.New(gwCfg, backend, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create gateway")
	}

	// Lifecycle: warm the new shell partition, then evict superseded ones.
	ctx := context.Background()
	if err := gw.Install(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Install failed")
	}
	if err := gw.Activate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Activate failed")
	}

	proxy := httputil.NewSingleHostReverseProxy(origin)
	proxy.Transport = gw
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("url", r.URL.String()).Msg("Proxy error")
		http.Error(w, "origin unreachable", http.StatusBadGateway)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/*", proxy)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("origin", origin.String()).
			Str("backend", cfg.Backend).
			Str("shell", gwCfg.ShellPartition).
			Msg("Cache gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown error")
	}
	// Let in-flight background refreshes land in the cache.
	gw.Flush()
}

// newBackend builds the partition backend selected by configuration.
func newBackend(cfg config) (partition.Backend, func(), error) {
	switch cfg.Backend {
	case "memory":
		return partition.NewMemoryBackend(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return partition.NewRedisBackend(client), func() { client.Close() }, nil
	case "sqlite":
		backend, err := partition.NewSQLiteBackend(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { backend.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
