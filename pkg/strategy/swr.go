package strategy

import (
	"context"
	"io"
	"net/http"

	"github.com/mushafapp/edgeworker/pkg/bucket"
)

// refreshResult carries the outcome of the background network fetch.
type refreshResult struct {
	resp *http.Response
	err  error
}

// StaleWhileRevalidate serves the cached entry immediately while refreshing
// the bucket in the background, so the next load already has the newest
// bytes without making this load wait on the network.
//
// The refresh is detached from the request lifecycle: its only purpose is
// the cache write, its failure is swallowed, and it may complete before or
// after the response is delivered. Callers must not assume the bucket
// reflects the refresh by the time they receive a response; the OnRefresh
// hook signals completion.
func (s *Strategy) StaleWhileRevalidate(req *http.Request, bucketName string) *http.Response {
	key := bucket.Key(req)

	cached, err := s.store.Get(req.Context(), bucketName, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache lookup failed, treating as miss")
	}

	// The refresh outlives the request context once the cached entry has
	// been returned, so it runs on a detached context.
	refreshReq := req.Clone(context.WithoutCancel(req.Context()))

	if cached != nil {
		// Nobody consumes the refresh result on a hit; the goroutine owns
		// the response and closes its body.
		go s.refresh(refreshReq, bucketName, key, nil)
		servedTotal.WithLabelValues("swr", "stale").Inc()
		return cached.Response()
	}

	// No cached entry: this load has to wait for the network after all.
	done := make(chan refreshResult, 1)
	go s.refresh(refreshReq, bucketName, key, done)
	result := <-done
	if result.err == nil {
		servedTotal.WithLabelValues("swr", "network").Inc()
		return result.resp
	}

	if isNavigation(req) {
		if fallback := s.rootFallback(req, bucketName); fallback != nil {
			servedTotal.WithLabelValues("swr", "fallback").Inc()
			return fallback
		}
	}
	servedTotal.WithLabelValues("swr", "offline").Inc()
	return offlineAssetResponse()
}

// refresh performs the background fetch-and-store. Errors are swallowed
// after being logged and counted; the hook observes them for tests.
// A nil done means no caller awaits the result, so refresh must drain and
// close the response body itself or the connection leaks.
func (s *Strategy) refresh(req *http.Request, bucketName, key string, done chan<- refreshResult) {
	resp, err := s.client.Do(req)
	switch {
	case err != nil:
		refreshTotal.WithLabelValues("failed").Inc()
		s.logger.Debug().Err(err).Str("key", key).Msg("Background refresh failed")
	case isSuccess(resp):
		s.storeResponse(req, bucketName, key, resp)
		refreshTotal.WithLabelValues("stored").Inc()
	default:
		refreshTotal.WithLabelValues("skipped").Inc()
		s.logger.Debug().Int("status", resp.StatusCode).Str("key", key).Msg("Background refresh skipped non-success response")
	}

	if s.OnRefresh != nil {
		s.OnRefresh(key, err)
	}

	if done != nil {
		done <- refreshResult{resp: resp, err: err}
		return
	}
	if resp != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
