package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mushafapp/edgeworker/pkg/bucket"
)

// Prometheus metrics for lifecycle operations.
var (
	installsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_installs_total",
		Help: "Install attempts by result",
	}, []string{"result"})

	activationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_lifecycle_activations_total",
		Help: "Completed activations",
	})

	precachedAssets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_precached_assets_total",
		Help: "Assets stored during install precache",
	})
)

// precache fetches every manifest asset into the static bucket using a
// bounded worker pool. The first failure cancels the remaining work: a
// partially precached version must never activate, so installs are
// fail-fast rather than partial-results-tolerant.
func (c *Controller) precache(parent context.Context, bucketName string) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	paths := make(chan string)
	errCh := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.MaxConcurrency; i++ {
		wg.Add(1)
		go c.precacheWorker(ctx, bucketName, paths, errCh, cancel, &wg)
	}

	for _, path := range c.cfg.Manifest {
		select {
		case paths <- path:
		case <-ctx.Done():
		}
	}
	close(paths)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	if err := parent.Err(); err != nil {
		return fmt.Errorf("precache interrupted: %w", err)
	}
	return nil
}

// precacheWorker fetches and stores assets until the queue drains or the
// install is cancelled.
func (c *Controller) precacheWorker(ctx context.Context, bucketName string, paths <-chan string, errCh chan<- error, cancel context.CancelFunc, wg *sync.WaitGroup) {
	defer wg.Done()

	for path := range paths {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.precacheAsset(ctx, bucketName, path); err != nil {
			c.logger.Error().Err(err).Str("asset", path).Msg("Precache asset failed")
			// Non-blocking: only the first failure matters.
			select {
			case errCh <- err:
			default:
			}
			cancel()
			return
		}
		precachedAssets.Inc()
	}
}

// precacheAsset fetches one manifest asset and stores it in the bucket.
func (c *Controller) precacheAsset(ctx context.Context, bucketName, path string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	url := strings.TrimSuffix(c.cfg.OriginURL, "/") + "/" + strings.TrimPrefix(path, "/")
	if path == "/" {
		url = strings.TrimSuffix(c.cfg.OriginURL, "/") + "/"
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fetch %s: unexpected status %d", path, resp.StatusCode)
	}

	entry, err := bucket.EntryFromResponse(resp)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	if err := c.store.Put(ctx, bucketName, bucket.Key(req), entry); err != nil {
		return fmt.Errorf("store %s: %w", path, err)
	}

	c.logger.Debug().Str("asset", path).Str("bucket", bucketName).Msg("Precached asset")
	return nil
}
