package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilawa/cache-gateway/internal/testutil"
	"github.com/tilawa/cache-gateway/pkg/partition"
)

// spyBackend wraps a backend and counts every storage operation, so tests can
// assert that bypassed requests never touch a partition.
type spyBackend struct {
	partition.Backend
	ops atomic.Int64
}

func (s *spyBackend) Open(ctx context.Context, name string) error {
	s.ops.Add(1)
	return s.Backend.Open(ctx, name)
}

func (s *spyBackend) Get(ctx context.Context, name, key string) (*partition.Entry, error) {
	s.ops.Add(1)
	return s.Backend.Get(ctx, name, key)
}

func (s *spyBackend) Put(ctx context.Context, name, key string, entry *partition.Entry) error {
	s.ops.Add(1)
	return s.Backend.Put(ctx, name, key, entry)
}

func newTestGateway(t *testing.T, mock *testutil.MockOrigin, backend partition.Backend, upstream http.RoundTripper) *Gateway {
	t.Helper()
	origin, err := url.Parse(mock.URL())
	require.NoError(t, err)

	cfg := DefaultConfig(origin)
	cfg.Precache = nil
	gw, err := New(cfg, backend, upstream)
	require.NoError(t, err)
	return gw
}

func newRequest(t *testing.T, method, target string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return string(body)
}

func TestBypassNeverTouchesPartitions(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()

	spy := &spyBackend{Backend: partition.NewMemoryBackend()}
	gw := newTestGateway(t, mock, spy, nil)

	requests := []*http.Request{
		newRequest(t, http.MethodPost, mock.URL()+"/process", strings.NewReader(`{"url":"x"}`)),
		newRequest(t, http.MethodGet, mock.URL()+"/quran.json", nil),
	}
	for _, req := range requests {
		resp, err := gw.RoundTrip(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, int64(0), spy.ops.Load(), "bypassed requests must not touch any partition")
	assert.Equal(t, 1, mock.Requests("/process"))
	assert.Equal(t, 1, mock.Requests("/quran.json"))
}

func TestRoundTripRoutesByDecision(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()
	mock.Respond("/cache/abc.mp3", testutil.MockResponse{StatusCode: http.StatusOK, Body: "audio"})
	mock.Respond("/history", testutil.MockResponse{StatusCode: http.StatusOK, Body: "[]"})
	mock.Respond("/index.html", testutil.MockResponse{StatusCode: http.StatusOK, Body: "<html>"})

	backend := partition.NewMemoryBackend()
	gw := newTestGateway(t, mock, backend, nil)

	for _, path := range []string{"/cache/abc.mp3", "/history", "/index.html"} {
		resp, err := gw.RoundTrip(newRequest(t, http.MethodGet, mock.URL()+path, nil))
		require.NoError(t, err)
		resp.Body.Close()
	}
	gw.Flush()

	ctx := context.Background()
	tests := []struct {
		partition string
		key       string
	}{
		{DefaultMediaPartition, mock.URL() + "/cache/abc.mp3"},
		{DefaultAPIPartition, mock.URL() + "/history"},
		{DefaultShellPartition, mock.URL() + "/index.html"},
	}
	for _, tt := range tests {
		p, err := gw.Partitions().Open(ctx, tt.partition)
		require.NoError(t, err)
		_, err = p.Get(ctx, tt.key)
		assert.NoError(t, err, "expected %s stored in %s", tt.key, tt.partition)
	}
}

func TestInstallWarmsShellPartition(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()
	mock.Respond("/", testutil.MockResponse{StatusCode: http.StatusOK, Body: "<html>"})
	mock.Respond("/styles.css", testutil.MockResponse{StatusCode: http.StatusOK, Body: "body{}"})

	origin, err := url.Parse(mock.URL())
	require.NoError(t, err)

	cfg := DefaultConfig(origin)
	cfg.Precache = []string{"/", "/styles.css", "/missing-font.woff2"}
	mock.Respond("/missing-font.woff2", testutil.MockResponse{StatusCode: http.StatusForbidden, Body: ""})

	gw, err := New(cfg, partition.NewMemoryBackend(), nil)
	require.NoError(t, err)

	require.NoError(t, gw.Install(context.Background()))

	ctx := context.Background()
	p, err := gw.Partitions().Open(ctx, cfg.ShellPartition)
	require.NoError(t, err)

	entry, err := p.Get(ctx, mock.URL()+"/")
	require.NoError(t, err)
	assert.Equal(t, "<html>", string(entry.Body))

	_, err = p.Get(ctx, mock.URL()+"/styles.css")
	assert.NoError(t, err)

	// The forbidden font is skipped, not fatal.
	_, err = p.Get(ctx, mock.URL()+"/missing-font.woff2")
	assert.ErrorIs(t, err, partition.ErrMiss)
}

func TestActivateEvictsSupersededGenerations(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()

	backend := partition.NewMemoryBackend()
	origin, err := url.Parse(mock.URL())
	require.NoError(t, err)

	// Old deployment installs shell-v1.
	oldCfg := DefaultConfig(origin)
	oldCfg.ShellPartition = "shell-v1"
	oldCfg.Precache = []string{"/"}
	oldGw, err := New(oldCfg, backend, nil)
	require.NoError(t, err)
	require.NoError(t, oldGw.Install(context.Background()))

	// New deployment installs shell-v2; both generations coexist until
	// activation.
	newCfg := DefaultConfig(origin)
	newCfg.ShellPartition = "shell-v2"
	newCfg.Precache = []string{"/"}
	newGw, err := New(newCfg, backend, nil)
	require.NoError(t, err)
	require.NoError(t, newGw.Install(context.Background()))

	ctx := context.Background()
	names, err := backend.Names(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "shell-v1")
	assert.Contains(t, names, "shell-v2")

	require.NoError(t, newGw.Activate(ctx))

	names, err = backend.Names(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, "shell-v1", "superseded generation must be evicted")
	assert.Contains(t, names, "shell-v2")
}

func TestActivateKeepsStablePartitions(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()

	backend := partition.NewMemoryBackend()
	ctx := context.Background()
	for _, name := range []string{DefaultMediaPartition, DefaultAPIPartition, "shell-v0"} {
		require.NoError(t, backend.Open(ctx, name))
	}

	gw := newTestGateway(t, mock, backend, nil)
	require.NoError(t, gw.Activate(ctx))

	names, err := backend.Names(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{DefaultMediaPartition, DefaultAPIPartition}, names,
		"stable partitions survive, only the old shell generation goes")
}

func TestMediaScenarioRangeRequest(t *testing.T) {
	// GET /song.mp3 with Range: bytes=0- and an empty cache: the range is
	// stripped, the full file is fetched and stored under the canonical
	// key, and the caller receives the 200 full-content response.
	mock := testutil.NewMockOrigin()
	defer mock.Close()
	mock.Respond("/song.mp3", testutil.MockResponse{StatusCode: http.StatusOK, Body: "full-file"})

	gw := newTestGateway(t, mock, partition.NewMemoryBackend(), nil)

	req := newRequest(t, http.MethodGet, mock.URL()+"/song.mp3", nil)
	req.Header.Set("Range", "bytes=0-")

	resp, err := gw.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "full-file", readBody(t, resp))
	assert.Equal(t, 0, mock.RangeRequests())

	ctx := context.Background()
	p, err := gw.Partitions().Open(ctx, DefaultMediaPartition)
	require.NoError(t, err)
	_, err = p.Get(ctx, mock.URL()+"/song.mp3")
	assert.NoError(t, err)
}

func TestHistoryScenarioOffline(t *testing.T) {
	// GET /history with the network unreachable and a prior stored 200:
	// the caller receives the stored response.
	mock := testutil.NewMockOrigin()
	defer mock.Close()
	mock.Respond("/history", testutil.MockResponse{StatusCode: http.StatusOK, Body: `[{"id":1}]`})

	backend := partition.NewMemoryBackend()
	gw := newTestGateway(t, mock, backend, nil)

	// Online: populates the API partition.
	resp, err := gw.RoundTrip(newRequest(t, http.MethodGet, mock.URL()+"/history", nil))
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, readBody(t, resp))

	// Offline: same backend, failing transport.
	offline := newTestGateway(t, mock, backend, &testutil.FailingTransport{Err: errors.New("network unreachable")})
	resp, err = offline.RoundTrip(newRequest(t, http.MethodGet, mock.URL()+"/history", nil))
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, readBody(t, resp))
}

func TestStaleShellScenario(t *testing.T) {
	// GET /app.css with a cached copy: the caller gets the cached copy
	// without waiting on the network, and the partition is refreshed
	// afterward.
	const delay = 250 * time.Millisecond

	mock := testutil.NewMockOrigin()
	defer mock.Close()
	mock.Respond("/app.css", testutil.MockResponse{StatusCode: http.StatusOK, Body: "new", Delay: delay})

	backend := partition.NewMemoryBackend()
	gw := newTestGateway(t, mock, backend, nil)

	ctx := context.Background()
	p, err := gw.Partitions().Open(ctx, DefaultShellPartition)
	require.NoError(t, err)
	require.NoError(t, p.Put(ctx, mock.URL()+"/app.css", &partition.Entry{
		Body:       []byte("old"),
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		StoredAt:   time.Now(),
	}))

	start := time.Now()
	resp, err := gw.RoundTrip(newRequest(t, http.MethodGet, mock.URL()+"/app.css", nil))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "old", readBody(t, resp))
	assert.Less(t, elapsed, delay)

	gw.Flush()
	entry, err := p.Get(ctx, mock.URL()+"/app.css")
	require.NoError(t, err)
	assert.Equal(t, "new", string(entry.Body))
}

func TestConfigValidation(t *testing.T) {
	backend := partition.NewMemoryBackend()

	_, err := New(Config{}, backend, nil)
	assert.Error(t, err, "origin is required")

	origin, err := url.Parse("https://app.example")
	require.NoError(t, err)

	cfg := DefaultConfig(origin)
	cfg.Whitelist = []string{"something-else"}
	_, err = New(cfg, backend, nil)
	assert.Error(t, err, "whitelist must include active partitions")

	cfg = DefaultConfig(origin)
	cfg.Whitelist = []string{cfg.ShellPartition, cfg.MediaPartition, cfg.APIPartition, "extra"}
	_, err = New(cfg, backend, nil)
	assert.NoError(t, err, "extra whitelist entries are allowed")
}
