// Package strategy implements the three fetch strategies of the edge
// worker: cache-first, network-first, and stale-while-revalidate.
//
// Every strategy takes an intercepted GET request and a bucket name and
// returns an HTTP response. Intercepted requests never surface a network
// error to the caller: each strategy defines its own fallback (stale cache
// entry, cached root document, or a synthetic offline response).
package strategy

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mushafapp/edgeworker/pkg/bucket"
)

// Strategy executes fetch strategies against a bucket store and an
// upstream HTTP client.
type Strategy struct {
	store   bucket.Store
	client  *http.Client
	rootKey string
	logger  zerolog.Logger

	// OnRefresh, if set, observes completion of the background refresh
	// inside stale-while-revalidate. The refresh is best-effort and
	// non-blocking; this hook exists for logging and tests, not control
	// flow.
	OnRefresh func(key string, err error)
}

// New creates a strategy executor. rootURL is the absolute URL of the
// app's root document, used as the navigation fallback when both network
// and cache miss.
func New(store bucket.Store, client *http.Client, rootURL string, logger zerolog.Logger) *Strategy {
	s := &Strategy{
		store:  store,
		client: client,
		logger: logger,
	}
	if rootURL != "" {
		if req, err := http.NewRequest(http.MethodGet, rootURL, nil); err == nil {
			s.rootKey = bucket.Key(req)
		} else {
			logger.Warn().Err(err).Str("root_url", rootURL).Msg("Invalid root document URL, navigation fallback disabled")
		}
	}
	return s
}

// storeResponse writes a response through to the bucket. Write failures are
// logged and counted but never prevent the response from being returned:
// the caller already holds the fetched bytes.
func (s *Strategy) storeResponse(req *http.Request, bucketName, key string, resp *http.Response) {
	entry, err := bucket.EntryFromResponse(resp)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to snapshot response for caching")
		return
	}
	if err := s.store.Put(req.Context(), bucketName, key, entry); err != nil {
		cacheWriteFailures.Inc()
		s.logger.Warn().Err(err).
			Str("bucket", bucketName).
			Str("key", key).
			Msg("Cache write failed, serving response uncached")
	}
}

// isSuccess reports whether a response should be persisted (2xx only).
func isSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// isNavigation reports whether a request is a navigation/document request.
func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// rootFallback returns the cached root document from the named bucket, or
// nil if none is cached.
func (s *Strategy) rootFallback(req *http.Request, bucketName string) *http.Response {
	if s.rootKey == "" {
		return nil
	}
	entry, err := s.store.Get(req.Context(), bucketName, s.rootKey)
	if err != nil {
		s.logger.Warn().Err(err).Str("bucket", bucketName).Msg("Root document fallback lookup failed")
		return nil
	}
	if entry == nil {
		return nil
	}
	return entry.Response()
}
