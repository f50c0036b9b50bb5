package partition

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// warmUpConcurrency bounds the parallel precache fetches during WarmUp.
const warmUpConcurrency = 4

// Manager owns the set of named cache partitions and their lifecycle
// (lazy creation, install-time warm-up, activation-time eviction).
type Manager struct {
	backend Backend
	logger  zerolog.Logger
}

// NewManager creates a partition manager over the given backend.
func NewManager(backend Backend, logger zerolog.Logger) *Manager {
	if backend == nil {
		panic("partition backend cannot be nil")
	}
	return &Manager{
		backend: backend,
		logger:  logger,
	}
}

// Partition is a handle to one named store.
type Partition struct {
	name    string
	backend Backend
}

// Name returns the partition name.
func (p *Partition) Name() string {
	return p.name
}

// Get returns the entry stored under key. Returns ErrMiss on a miss and
// *StorageError on a backend failure.
func (p *Partition) Get(ctx context.Context, key string) (*Entry, error) {
	entry, err := p.backend.Get(ctx, p.name, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			CacheMisses.WithLabelValues(p.name).Inc()
			return nil, ErrMiss
		}
		StorageErrors.WithLabelValues("get").Inc()
		return nil, &StorageError{Op: "get", Partition: p.name, Err: err}
	}
	CacheHits.WithLabelValues(p.name).Inc()
	return entry, nil
}

// Put stores the entry under key. Only full-content (status 200) snapshots
// are accepted; anything else is rejected with ErrNotCacheable.
func (p *Partition) Put(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return &StorageError{Op: "put", Partition: p.name, Err: errors.New("entry cannot be nil")}
	}
	if entry.StatusCode != http.StatusOK {
		return ErrNotCacheable
	}
	if err := p.backend.Put(ctx, p.name, key, entry); err != nil {
		StorageErrors.WithLabelValues("put").Inc()
		return &StorageError{Op: "put", Partition: p.name, Err: err}
	}
	return nil
}

// Open returns the partition for name, creating it if absent. Opening an
// existing name reopens it with prior entries preserved. A backend failure is
// surfaced as *StorageError.
func (m *Manager) Open(ctx context.Context, name string) (*Partition, error) {
	if err := m.backend.Open(ctx, name); err != nil {
		StorageErrors.WithLabelValues("open").Inc()
		return nil, &StorageError{Op: "open", Partition: name, Err: err}
	}
	return &Partition{name: name, backend: m.backend}, nil
}

// WarmUp populates the named partition with the given origin-relative paths,
// fetching each through rt. Paths are fetched with bounded concurrency and
// each one independently: a fetch or store failure is logged and skipped, it
// never aborts the rest of the batch. Partial success is the expected steady
// state, since some paths may point at resources the origin cannot serve.
//
// WarmUp fails only when the partition itself cannot be opened.
func (m *Manager) WarmUp(ctx context.Context, name string, origin *url.URL, paths []string, rt http.RoundTripper) error {
	p, err := m.Open(ctx, name)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmUpConcurrency)

	for _, path := range paths {
		g.Go(func() error {
			m.warmOne(gctx, p, origin, path, rt)
			// Failures are per-path, never batch-fatal.
			return nil
		})
	}
	g.Wait()

	return nil
}

// warmOne fetches a single precache path and stores the snapshot.
func (m *Manager) warmOne(ctx context.Context, p *Partition, origin *url.URL, path string, rt http.RoundTripper) {
	ref, err := url.Parse(path)
	if err != nil {
		WarmUpFailures.Inc()
		m.logger.Warn().Err(err).Str("path", path).Msg("Invalid precache path")
		return
	}
	target := origin.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		WarmUpFailures.Inc()
		m.logger.Warn().Err(err).Str("url", target.String()).Msg("Invalid precache request")
		return
	}

	resp, err := rt.RoundTrip(req)
	if err != nil {
		WarmUpFailures.Inc()
		m.logger.Warn().Err(err).Str("url", target.String()).Msg("Precache fetch failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		WarmUpFailures.Inc()
		m.logger.Warn().
			Str("url", target.String()).
			Int("status", resp.StatusCode).
			Msg("Precache fetch returned non-200")
		return
	}

	entry, err := ResponseToEntry(resp)
	if err != nil {
		WarmUpFailures.Inc()
		m.logger.Warn().Err(err).Str("url", target.String()).Msg("Precache snapshot failed")
		return
	}

	if err := p.Put(ctx, target.String(), entry); err != nil {
		WarmUpFailures.Inc()
		m.logger.Warn().Err(err).Str("url", target.String()).Msg("Precache store failed")
		return
	}

	m.logger.Debug().Str("url", target.String()).Str("partition", p.Name()).Msg("Precached")
}

// EvictUnlisted deletes every existing partition whose name is not in
// whitelist and returns the names it deleted. A failure to delete one
// partition is logged and does not stop the sweep. Eviction may interleave
// with ongoing reads; a read losing the race reports a miss.
func (m *Manager) EvictUnlisted(ctx context.Context, whitelist []string) ([]string, error) {
	names, err := m.backend.Names(ctx)
	if err != nil {
		StorageErrors.WithLabelValues("names").Inc()
		return nil, &StorageError{Op: "names", Err: err}
	}

	listed := make(map[string]bool, len(whitelist))
	for _, name := range whitelist {
		listed[name] = true
	}

	var evicted []string
	for _, name := range names {
		if listed[name] {
			continue
		}
		if err := m.backend.Drop(ctx, name); err != nil {
			StorageErrors.WithLabelValues("drop").Inc()
			m.logger.Error().Err(err).Str("partition", name).Msg("Failed to evict partition")
			continue
		}
		PartitionsEvicted.Inc()
		m.logger.Info().Str("partition", name).Msg("Evicted superseded partition")
		evicted = append(evicted, name)
	}
	return evicted, nil
}
