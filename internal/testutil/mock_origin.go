// Package testutil provides testing utilities for the cache gateway.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock origin path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockOrigin is a configurable mock origin server for testing.
type MockOrigin struct {
	server    *httptest.Server
	mu        sync.RWMutex
	responses map[string]MockResponse

	// Tracking
	requestCount map[string]int
	rangeCount   int
	lastHeader   http.Header
}

// NewMockOrigin creates a mock origin server. Paths without a configured
// response return 200 with an "ok" body.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		responses:    make(map[string]MockResponse),
		requestCount: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount[r.URL.Path]++
		mock.lastHeader = r.Header.Clone()
		if r.Header.Get("Range") != "" {
			mock.rangeCount++
		}
		resp, configured := mock.responses[r.URL.Path]
		mock.mu.Unlock()

		if !configured {
			resp = MockResponse{StatusCode: http.StatusOK, Body: "ok"}
		}
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		w.Write([]byte(resp.Body))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// Respond configures the response for a path.
func (m *MockOrigin) Respond(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = resp
}

// Requests returns how many requests hit the given path.
func (m *MockOrigin) Requests(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount[path]
}

// RangeRequests returns how many requests carried a Range header.
func (m *MockOrigin) RangeRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rangeCount
}

// LastHeader returns the headers of the most recent request.
func (m *MockOrigin) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// Reset clears all tracking counters.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = make(map[string]int)
	m.rangeCount = 0
	m.lastHeader = nil
}

// FailingTransport is an http.RoundTripper that always fails, simulating an
// unreachable network.
type FailingTransport struct {
	Err error
}

// RoundTrip implements http.RoundTripper.
func (t *FailingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, t.Err
}
