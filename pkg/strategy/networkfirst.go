package strategy

import (
	"net/http"

	"github.com/mushafapp/edgeworker/pkg/bucket"
)

// NetworkFirst always attempts the network fetch first, even when a cached
// copy exists, so reachable upstreams serve fresh data. On network failure
// it falls back to the stale cached copy; when both miss it returns a
// synthetic 503 shaped like the upstream API envelope.
func (s *Strategy) NetworkFirst(req *http.Request, bucketName string) *http.Response {
	key := bucket.Key(req)

	resp, err := s.client.Do(req)
	if err == nil {
		if isSuccess(resp) {
			s.storeResponse(req, bucketName, key, resp)
		}
		servedTotal.WithLabelValues("network_first", "network").Inc()
		return resp
	}

	s.logger.Debug().Err(err).Str("key", key).Msg("Network fetch failed, trying cache")

	cached, cacheErr := s.store.Get(req.Context(), bucketName, key)
	if cacheErr != nil {
		s.logger.Warn().Err(cacheErr).Str("key", key).Msg("Cache fallback lookup failed")
	}
	if cached != nil {
		servedTotal.WithLabelValues("network_first", "stale").Inc()
		return cached.Response()
	}

	servedTotal.WithLabelValues("network_first", "offline").Inc()
	return offlineAPIResponse("Content is unavailable while offline.")
}
