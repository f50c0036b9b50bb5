// Package gateway is the request-interception surface of the cache layer.
//
// Gateway implements http.RoundTripper: install it as a client's transport
// (or behind a reverse proxy) and every request is classified and routed to
// cache-first, network-first, or stale-while-revalidate handling, or passed
// through untouched.
//
// The host runtime drives the lifecycle through three explicit entry points:
//
//	gw.Install(ctx)  // once per deployed version: warm the shell partition
//	gw.Activate(ctx) // once the version supersedes an old one: evict unlisted partitions
//	gw.RoundTrip(r)  // per intercepted request
//
// Install must complete before the version is considered ready; Activate must
// complete before the new version claims responsibility for requests. The
// gateway holds no reference to the host and is unit-testable by invoking the
// entry points directly with a mock backend and transport.
package gateway

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/tilawa/cache-gateway/pkg/classify"
	"github.com/tilawa/cache-gateway/pkg/logging"
	"github.com/tilawa/cache-gateway/pkg/partition"
	"github.com/tilawa/cache-gateway/pkg/strategy"
)

var interceptedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cachegw_requests_total",
	Help: "Total intercepted requests by classification decision",
}, []string{"decision"})

// Gateway intercepts requests and applies the configured caching strategies.
type Gateway struct {
	cfg        Config
	partitions *partition.Manager
	executor   *strategy.Executor
	upstream   http.RoundTripper
	logger     zerolog.Logger
}

// New creates a gateway over the given storage backend and upstream
// transport. A nil upstream means http.DefaultTransport.
func New(cfg Config, backend partition.Backend, upstream http.RoundTripper) (*Gateway, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if upstream == nil {
		upstream = http.DefaultTransport
	}

	logger := logging.NewLogger("gateway")
	manager := partition.NewManager(backend, logging.NewLogger("partition"))

	executor, err := strategy.NewExecutor(strategy.Config{
		Partitions:     manager,
		Upstream:       upstream,
		ShellPartition: cfg.ShellPartition,
		MediaPartition: cfg.MediaPartition,
		APIPartition:   cfg.APIPartition,
		Logger:         logging.NewLogger("strategy"),
	})
	if err != nil {
		return nil, err
	}

	return &Gateway{
		cfg:        cfg,
		partitions: manager,
		executor:   executor,
		upstream:   upstream,
		logger:     logger,
	}, nil
}

// Install warms the shell partition with the precache list. Per-path failures
// are logged and skipped; Install fails only if the shell partition cannot be
// opened. The host must wait for Install before treating the version as
// ready.
func (g *Gateway) Install(ctx context.Context) error {
	g.logger.Info().
		Str("partition", g.cfg.ShellPartition).
		Int("paths", len(g.cfg.Precache)).
		Msg("Installing: warming shell partition")
	return g.partitions.WarmUp(ctx, g.cfg.ShellPartition, g.cfg.Origin, g.cfg.Precache, g.upstream)
}

// Activate deletes every partition not on the whitelist. Superseded shell
// generations disappear here; the media and API partitions survive because
// the whitelist always carries them. The host must wait for Activate before
// routing further requests to this version.
func (g *Gateway) Activate(ctx context.Context) error {
	evicted, err := g.partitions.EvictUnlisted(ctx, g.cfg.Whitelist)
	if err != nil {
		return err
	}
	g.logger.Info().Strs("evicted", evicted).Msg("Activated")
	return nil
}

// RoundTrip implements http.RoundTripper. Exactly one response or one error
// is produced per request.
func (g *Gateway) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := g.cfg.Rules.Classify(req.Method, req.URL)
	interceptedRequests.WithLabelValues(decision.String()).Inc()

	g.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("decision", decision.String()).
		Msg("Intercepted request")

	if decision == classify.Bypass {
		return g.upstream.RoundTrip(req)
	}
	return g.executor.Execute(decision, req)
}

// Flush waits for background cache refreshes to drain. Call during shutdown.
func (g *Gateway) Flush() {
	g.executor.Flush()
}

// Partitions exposes the partition manager (for testing).
func (g *Gateway) Partitions() *partition.Manager {
	return g.partitions
}
