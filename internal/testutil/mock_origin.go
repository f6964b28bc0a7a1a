// Package testutil provides testing utilities for the edge worker.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock origin endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockOrigin is a configurable mock origin/API server for testing. It
// counts requests per path so tests can assert whether a strategy touched
// the network at all.
type MockOrigin struct {
	server    *httptest.Server
	mu        sync.RWMutex
	responses map[string]MockResponse

	// Tracking
	RequestCount int
	PathCounts   map[string]int
}

// NewMockOrigin creates a new mock origin server.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		responses:  make(map[string]MockResponse),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		resp, configured := mock.responses[r.URL.Path]
		mock.mu.Unlock()

		if !configured {
			mock.defaultHandler(w, r)
			return
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

// Reset clears all tracking counters and configured responses.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.responses = make(map[string]MockResponse)
}

// SetResponse configures the response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = resp
}

// FailPath configures a path to return 500.
func (m *MockOrigin) FailPath(path string) {
	m.SetResponse(path, MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "internal error",
	})
}

// CountFor returns how many requests hit the given path.
func (m *MockOrigin) CountFor(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// defaultHandler serves a small asset body keyed by extension.
func (m *MockOrigin) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/" || strings.HasSuffix(r.URL.Path, ".html"):
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>mock origin</body></html>"))
	case strings.HasSuffix(r.URL.Path, ".css"):
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte("body{margin:0}"))
	case strings.HasSuffix(r.URL.Path, ".js"):
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte("console.log('mock')"))
	case strings.HasSuffix(r.URL.Path, ".json"):
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"status":"OK","data":"mock"}`))
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("binary"))
	}
}
