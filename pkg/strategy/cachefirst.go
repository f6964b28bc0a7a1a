package strategy

import (
	"net/http"

	"github.com/mushafapp/edgeworker/pkg/bucket"
)

// CacheFirst serves from the named bucket when possible and only touches
// the network on a miss. A cached entry is returned without any network
// call regardless of its age: this strategy is reserved for version-stamped
// buckets, where stale entries can only exist under an already-discarded
// bucket name.
func (s *Strategy) CacheFirst(req *http.Request, bucketName string) *http.Response {
	key := bucket.Key(req)

	cached, err := s.store.Get(req.Context(), bucketName, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache lookup failed, falling through to network")
	}
	if cached != nil {
		servedTotal.WithLabelValues("cache_first", "hit").Inc()
		return cached.Response()
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("Network fetch failed on cache miss")
		if isNavigation(req) {
			if fallback := s.rootFallback(req, bucketName); fallback != nil {
				servedTotal.WithLabelValues("cache_first", "fallback").Inc()
				return fallback
			}
		}
		servedTotal.WithLabelValues("cache_first", "offline").Inc()
		return offlineAssetResponse()
	}

	if isSuccess(resp) {
		s.storeResponse(req, bucketName, key, resp)
	}
	servedTotal.WithLabelValues("cache_first", "network").Inc()
	return resp
}
