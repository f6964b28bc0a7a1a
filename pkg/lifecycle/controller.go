// Package lifecycle drives the install/activate state machine of the edge
// worker: precaching a new version's assets, pruning superseded cache
// buckets, and switching request routing over to the new version.
package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mushafapp/edgeworker/pkg/bucket"
	"github.com/mushafapp/edgeworker/pkg/version"
)

// State represents a lifecycle state.
type State string

const (
	// StateIdle means no install has been attempted yet.
	StateIdle State = "idle"

	// StateInstalling means the precache is in progress.
	StateInstalling State = "installing"

	// StateInstalled means the precache succeeded and the version is
	// waiting to activate.
	StateInstalled State = "installed"

	// StateActivating means pruning and claiming are in progress.
	StateActivating State = "activating"

	// StateActivated means this version is serving.
	StateActivated State = "activated"

	// StateFailed means the install failed; the previous version keeps
	// serving.
	StateFailed State = "failed"
)

// Notifier is told when a version finishes activation, so connected
// clients can be claimed and informed. Implemented by notify.Hub.
type Notifier interface {
	Activated(appVersion string)
}

// Registry records the active version in shared state. Implemented by
// version.Registry.
type Registry interface {
	Current(ctx context.Context) (*version.Active, error)
	SetCurrent(ctx context.Context, appVersion string) error
}

// Config holds controller configuration.
type Config struct {
	// Version is the AppVersion this controller installs and activates.
	Version string

	// OriginURL is the base URL manifest entries are resolved against.
	OriginURL string

	// Manifest is the fixed list of relative URLs precached at install.
	// Every entry must be fetchable or the install fails.
	Manifest []string

	// MaxConcurrency bounds parallel precache fetches.
	MaxConcurrency int

	// FetchTimeout bounds each individual precache fetch.
	FetchTimeout time.Duration

	// SkipWaiting activates immediately after a successful install
	// instead of sitting in the installed/waiting state.
	SkipWaiting bool
}

// DefaultManifest returns the asset list of the Quran reader app.
func DefaultManifest() []string {
	return []string{
		"/",
		"/index.html",
		"/styles.css",
		"/app.js",
		"/manifest.json",
		"/icons/icon-72x72.png",
		"/icons/icon-96x96.png",
		"/icons/icon-128x128.png",
		"/icons/icon-144x144.png",
		"/icons/icon-152x152.png",
		"/icons/icon-192x192.png",
		"/icons/icon-384x384.png",
		"/icons/icon-512x512.png",
	}
}

// Controller is the lifecycle state machine for one app version.
type Controller struct {
	store    bucket.Store
	client   *http.Client
	registry Registry
	notifier Notifier
	cfg      Config
	logger   zerolog.Logger

	mu      sync.Mutex
	state   State
	current string // static bucket currently routing requests
}

// New creates a lifecycle controller. registry and notifier may be nil for
// single-node setups and tests. Until this version activates, routing
// stays on whatever bucket Resume adopted (or this version's bucket when
// there is no prior activation).
func New(store bucket.Store, client *http.Client, registry Registry, notifier Notifier, cfg Config, logger zerolog.Logger) (*Controller, error) {
	if cfg.Version == "" {
		return nil, fmt.Errorf("app version is required")
	}
	if cfg.OriginURL == "" {
		return nil, fmt.Errorf("origin URL is required")
	}
	if len(cfg.Manifest) == 0 {
		cfg.Manifest = DefaultManifest()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}

	return &Controller{
		store:    store,
		client:   client,
		registry: registry,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		state:    StateIdle,
		current:  version.StaticBucketName(cfg.Version),
	}, nil
}

// Resume adopts the registry's active version for routing, so a restarted
// gateway keeps serving the last activated buckets until its own version
// installs and activates.
func (c *Controller) Resume(ctx context.Context) error {
	if c.registry == nil {
		return nil
	}
	active, err := c.registry.Current(ctx)
	if err != nil {
		return fmt.Errorf("resume from registry: %w", err)
	}
	if active == nil {
		return nil
	}

	c.mu.Lock()
	c.current = active.StaticBucket()
	c.mu.Unlock()

	c.logger.Info().
		Str("active_version", active.Version).
		Str("bucket", active.StaticBucket()).
		Msg("Resumed routing from previously activated version")
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentStaticBucket returns the static bucket requests route to right
// now. It only switches to this version's bucket once activation
// completes.
func (c *Controller) CurrentStaticBucket() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Install opens this version's static bucket and precaches every manifest
// asset. Any single asset failure fails the whole install and the previous
// version keeps serving; a failed install is not retried automatically.
func (c *Controller) Install(ctx context.Context) error {
	c.setState(StateInstalling)
	staticBucket := version.StaticBucketName(c.cfg.Version)

	c.logger.Info().
		Str("version", c.cfg.Version).
		Str("bucket", staticBucket).
		Int("assets", len(c.cfg.Manifest)).
		Msg("Installing")

	if err := c.store.Open(ctx, staticBucket); err != nil {
		c.setState(StateFailed)
		installsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("open static bucket: %w", err)
	}

	if err := c.precache(ctx, staticBucket); err != nil {
		c.setState(StateFailed)
		installsTotal.WithLabelValues("failure").Inc()
		c.logger.Error().Err(err).Str("version", c.cfg.Version).Msg("Install failed, previous version keeps serving")
		return fmt.Errorf("precache: %w", err)
	}

	c.setState(StateInstalled)
	installsTotal.WithLabelValues("success").Inc()
	c.logger.Info().Str("version", c.cfg.Version).Msg("Install complete")

	if c.cfg.SkipWaiting {
		return c.Activate(ctx)
	}
	return nil
}

// Activate prunes superseded buckets, records this version as active, and
// only then claims clients and broadcasts the update. Pruning must finish
// before the claim so no client is routed to a bucket mid-deletion.
func (c *Controller) Activate(ctx context.Context) error {
	c.setState(StateActivating)
	staticBucket := version.StaticBucketName(c.cfg.Version)

	keep := map[string]struct{}{
		staticBucket:      {},
		version.APIBucket: {},
	}
	if err := c.store.DeleteExcept(ctx, keep); err != nil {
		// Partial cleanup is preferable to never activating.
		c.logger.Warn().Err(err).Msg("Bucket pruning failed, continuing activation")
	}

	if c.registry != nil {
		if err := c.registry.SetCurrent(ctx, c.cfg.Version); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record active version, continuing activation")
		}
	}

	c.mu.Lock()
	c.current = staticBucket
	c.state = StateActivated
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.Activated(c.cfg.Version)
	}

	activationsTotal.Inc()
	c.logger.Info().
		Str("version", c.cfg.Version).
		Str("bucket", staticBucket).
		Msg("Activated")
	return nil
}

// SkipWaiting activates a waiting (installed) version immediately. It is
// triggered by the page-sent SKIP_WAITING message. Calling it in any other
// state is a no-op.
func (c *Controller) SkipWaiting(ctx context.Context) error {
	if c.State() != StateInstalled {
		c.logger.Debug().Str("state", string(c.State())).Msg("SkipWaiting ignored, no version waiting")
		return nil
	}
	return c.Activate(ctx)
}

// Update runs a full install and, on success, activation. It backs the
// forced-update endpoint.
func (c *Controller) Update(ctx context.Context) error {
	if err := c.Install(ctx); err != nil {
		return err
	}
	if c.State() == StateInstalled {
		return c.Activate(ctx)
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
