// Package worker intercepts outbound HTTP requests the way a service
// worker intercepts page fetches: it classifies each request and routes
// it through a fetch strategy backed by versioned cache buckets.
package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mushafapp/edgeworker/pkg/classify"
	"github.com/mushafapp/edgeworker/pkg/strategy"
	"github.com/mushafapp/edgeworker/pkg/version"
)

var interceptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "edge_worker_requests_total",
	Help: "Intercepted requests by classification",
}, []string{"class"})

// BucketRouter reports which static bucket requests route to right now.
// Implemented by lifecycle.Controller.
type BucketRouter interface {
	CurrentStaticBucket() string
}

// Transport is an http.RoundTripper that applies the fetch strategy
// matching each request's classification. Wrap it into an http.Client to
// get service-worker caching semantics on every request that client makes.
type Transport struct {
	classifier *classify.Classifier
	strategy   *strategy.Strategy
	router     BucketRouter
	inner      http.RoundTripper
	logger     zerolog.Logger
}

// NewTransport creates an intercepting transport. inner handles bypassed
// requests and defaults to http.DefaultTransport.
func NewTransport(classifier *classify.Classifier, strat *strategy.Strategy, router BucketRouter, inner http.RoundTripper, logger zerolog.Logger) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Transport{
		classifier: classifier,
		strategy:   strat,
		router:     router,
		inner:      inner,
		logger:     logger,
	}
}

// RoundTrip classifies the request and dispatches it. Intercepted
// requests never return an error: strategies resolve network failures to
// a fallback or synthetic offline response.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	class := t.classifier.Classify(req)
	interceptedTotal.WithLabelValues(string(class)).Inc()

	if class == classify.ClassBypass {
		return t.inner.RoundTrip(req)
	}

	var resp *http.Response
	switch class {
	case classify.ClassAPI:
		resp = t.strategy.NetworkFirst(req, version.APIBucket)
	case classify.ClassAlwaysFresh:
		resp = t.strategy.StaleWhileRevalidate(req, t.router.CurrentStaticBucket())
	default:
		resp = t.strategy.CacheFirst(req, t.router.CurrentStaticBucket())
	}

	t.logger.Debug().
		Str("class", string(class)).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Msg("Intercepted request served")
	return resp, nil
}
