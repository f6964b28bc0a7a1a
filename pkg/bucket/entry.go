package bucket

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Entry represents a cached response snapshot.
type Entry struct {
	// Body is the response body
	Body []byte `json:"body"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Header are the response headers
	Header http.Header `json:"header"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// EntryFromResponse converts an HTTP response to an Entry.
// It reads the response body and restores it afterwards, so the same
// response can still be returned to the caller (write-through caching).
func EntryFromResponse(resp *http.Response) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Entry{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		CachedAt:   time.Now(),
	}, nil
}

// Response rebuilds an HTTP response from the entry. Each call returns a
// fresh body reader, so the same entry can be served multiple times.
func (e *Entry) Response() *http.Response {
	return &http.Response{
		Status:        http.StatusText(e.StatusCode),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
	}
}
