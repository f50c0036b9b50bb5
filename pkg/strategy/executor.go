// Package strategy runs the three caching algorithms against the partition
// manager and the network: media cache-first, API network-first, and default
// stale-while-revalidate.
//
// The executor is the boundary that decides, per strategy, whether an
// underlying failure becomes caller-visible or is absorbed into a fallback.
// Storage failures are always non-fatal and logged; network failures are
// fatal only where the strategy defines no fallback (a media miss, or a
// default-strategy request with an empty cache).
package strategy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tilawa/cache-gateway/pkg/classify"
	"github.com/tilawa/cache-gateway/pkg/media"
	"github.com/tilawa/cache-gateway/pkg/partition"
)

// Config holds the executor configuration.
type Config struct {
	// Partitions is the partition manager backing all strategies.
	Partitions *partition.Manager

	// Upstream is the network transport.
	Upstream http.RoundTripper

	// ShellPartition is the versioned partition for default-strategy
	// entries; its name embeds the deployment's version token.
	ShellPartition string

	// MediaPartition holds full-content media snapshots, stable across
	// versions.
	MediaPartition string

	// APIPartition holds API response snapshots, stable across versions.
	APIPartition string

	// Logger is the component logger.
	Logger zerolog.Logger
}

// Executor dispatches classified requests to their caching algorithm.
type Executor struct {
	partitions *partition.Manager
	upstream   http.RoundTripper
	shell      string
	mediaName  string
	apiName    string
	logger     zerolog.Logger

	// background tracks detached refresh tasks so shutdown and tests can
	// wait for them; the response path never does.
	background sync.WaitGroup
}

// NewExecutor creates a strategy executor.
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Partitions == nil {
		return nil, errors.New("partition manager is required")
	}
	if cfg.Upstream == nil {
		return nil, errors.New("upstream transport is required")
	}
	if cfg.ShellPartition == "" || cfg.MediaPartition == "" || cfg.APIPartition == "" {
		return nil, errors.New("all partition names are required")
	}
	return &Executor{
		partitions: cfg.Partitions,
		upstream:   cfg.Upstream,
		shell:      cfg.ShellPartition,
		mediaName:  cfg.MediaPartition,
		apiName:    cfg.APIPartition,
		logger:     cfg.Logger,
	}, nil
}

// Execute runs the strategy selected by the decision. Bypass decisions are
// the caller's responsibility; passing one here is a programming error.
func (e *Executor) Execute(d classify.Decision, req *http.Request) (*http.Response, error) {
	switch d {
	case classify.Media:
		return e.MediaCacheFirst(req)
	case classify.API:
		return e.APINetworkFirst(req)
	case classify.Default:
		return e.StaleWhileRevalidate(req)
	default:
		return nil, errors.New("bypass requests must not reach the executor")
	}
}

// Flush waits for all detached background refreshes to finish. Called on
// shutdown; the response path never waits on it.
func (e *Executor) Flush() {
	e.background.Wait()
}

// MediaCacheFirst serves a media request from the media partition, fetching
// the full resource on a miss. Only exact-200 responses are stored; 206 and
// every other status pass through uncached. A fetch failure on a miss is a
// hard error: correct playback requires a real response.
func (e *Executor) MediaCacheFirst(req *http.Request) (*http.Response, error) {
	Requests.WithLabelValues("media").Inc()
	ctx := req.Context()
	key := media.CanonicalKey(req)

	p := e.open(ctx, e.mediaName)
	if p != nil {
		entry, err := p.Get(ctx, key)
		if err == nil {
			e.logger.Debug().Str("key", key).Msg("Media cache hit")
			return entry.Response(req), nil
		}
		e.logStorage(err, key)
	}

	norm, err := media.Normalize(req)
	if err != nil {
		return nil, err
	}

	resp, err := e.upstream.RoundTrip(norm)
	if err != nil {
		return nil, &NetworkError{URL: key, Err: err}
	}

	if resp.StatusCode == http.StatusOK && p != nil {
		e.store(ctx, p, key, resp)
	}
	return resp, nil
}

// APINetworkFirst fetches the live response first so API data reflects the
// latest state whenever connectivity exists. A 200 is snapshotted under the
// request key before being returned. On network failure the stored entry is
// the fallback; with no entry the failure reaches the caller.
func (e *Executor) APINetworkFirst(req *http.Request) (*http.Response, error) {
	Requests.WithLabelValues("api").Inc()
	ctx := req.Context()
	key := requestKey(req)

	p := e.open(ctx, e.apiName)

	resp, err := e.upstream.RoundTrip(req)
	if err == nil {
		if resp.StatusCode == http.StatusOK && p != nil {
			e.store(ctx, p, key, resp)
		}
		return resp, nil
	}

	e.logger.Warn().Err(err).Str("key", key).Msg("API fetch failed, falling back to cache")
	if p != nil {
		entry, gerr := p.Get(ctx, key)
		if gerr == nil {
			Fallbacks.Inc()
			e.logger.Info().Str("key", key).Msg("Served API response from cache")
			return entry.Response(req), nil
		}
		e.logStorage(gerr, key)
	}
	return nil, &NetworkError{URL: key, Err: err}
}

// StaleWhileRevalidate serves the shell-partition entry immediately when one
// exists, refreshing it from the network in a detached task. Without an entry
// the caller waits on the network. Only same-origin 200 responses are stored.
func (e *Executor) StaleWhileRevalidate(req *http.Request) (*http.Response, error) {
	Requests.WithLabelValues("default").Inc()
	ctx := req.Context()
	key := requestKey(req)

	p := e.open(ctx, e.shell)
	if p != nil {
		entry, err := p.Get(ctx, key)
		if err == nil {
			// Serve stale now, refresh for next time. The refresh is
			// deliberately not linked to the response lifetime.
			bg := req.Clone(context.WithoutCancel(ctx))
			e.background.Add(1)
			go e.refresh(p, key, bg)
			e.logger.Debug().Str("key", key).Msg("Serving cached copy, refreshing in background")
			return entry.Response(req), nil
		}
		e.logStorage(err, key)
	}

	resp, err := e.upstream.RoundTrip(req)
	if err != nil {
		return nil, &NetworkError{URL: key, Err: err}
	}
	if p != nil && storableForShell(req, resp) {
		e.store(ctx, p, key, resp)
	}
	return resp, nil
}

// refresh re-fetches key and updates the shell partition. Errors are logged
// and dropped; nothing waits on the outcome.
func (e *Executor) refresh(p *partition.Partition, key string, req *http.Request) {
	defer e.background.Done()

	resp, err := e.upstream.RoundTrip(req)
	if err != nil {
		BackgroundRefreshes.WithLabelValues("failed").Inc()
		e.logger.Debug().Err(err).Str("key", key).Msg("Background refresh fetch failed")
		return
	}
	defer resp.Body.Close()

	if !storableForShell(req, resp) {
		BackgroundRefreshes.WithLabelValues("skipped").Inc()
		return
	}

	entry, err := partition.ResponseToEntry(resp)
	if err != nil {
		BackgroundRefreshes.WithLabelValues("failed").Inc()
		e.logger.Warn().Err(err).Str("key", key).Msg("Background refresh snapshot failed")
		return
	}
	if err := p.Put(req.Context(), key, entry); err != nil {
		BackgroundRefreshes.WithLabelValues("failed").Inc()
		e.logStorage(err, key)
		return
	}
	BackgroundRefreshes.WithLabelValues("stored").Inc()
	e.logger.Debug().Str("key", key).Msg("Background refresh stored")
}

// open opens a partition, absorbing storage errors: the strategy then runs
// without caching for this request.
func (e *Executor) open(ctx context.Context, name string) *partition.Partition {
	p, err := e.partitions.Open(ctx, name)
	if err != nil {
		e.logger.Warn().Err(err).Str("partition", name).Msg("Partition unavailable, serving without cache")
		return nil
	}
	return p
}

// store snapshots resp under key, best-effort. The response body is restored
// so the caller still receives it.
func (e *Executor) store(ctx context.Context, p *partition.Partition, key string, resp *http.Response) {
	entry, err := partition.ResponseToEntry(resp)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("Snapshot failed, response not cached")
		return
	}
	if err := p.Put(ctx, key, entry); err != nil {
		e.logStorage(err, key)
		return
	}
	e.logger.Debug().Str("key", key).Str("partition", p.Name()).Msg("Cached response")
}

// logStorage logs an absorbed storage error. Misses are expected and logged
// at debug only.
func (e *Executor) logStorage(err error, key string) {
	if errors.Is(err, partition.ErrMiss) {
		e.logger.Debug().Str("key", key).Msg("Cache miss")
		return
	}
	e.logger.Warn().Err(err).Str("key", key).Msg("Storage error, treated as miss")
}

// storableForShell reports whether a response may enter the shell partition:
// a 200 that did not end up on another origin (the closest analogue of a
// non-opaque same-origin response).
func storableForShell(req *http.Request, resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if resp.Request != nil && resp.Request.URL.Host != req.URL.Host {
		return false
	}
	return true
}

// requestKey is the storage key for API and shell entries: the request URL
// without its fragment.
func requestKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	return (&url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     u.Path,
		RawQuery: u.RawQuery,
	}).String()
}
