package lifecycle

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mushafapp/edgeworker/internal/testutil"
	"github.com/mushafapp/edgeworker/pkg/bucket"
	"github.com/mushafapp/edgeworker/pkg/version"
)

type fakeNotifier struct {
	mu       sync.Mutex
	versions []string
}

func (f *fakeNotifier) Activated(appVersion string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions = append(f.versions, appVersion)
}

func (f *fakeNotifier) activated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.versions...)
}

type fakeRegistry struct {
	mu     sync.Mutex
	active *version.Active
}

func (f *fakeRegistry) Current(context.Context) (*version.Active, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeRegistry) SetCurrent(_ context.Context, appVersion string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = &version.Active{Version: appVersion, ActivatedAt: time.Now()}
	return nil
}

func testManifest() []string {
	return []string{"/index.html", "/styles.css", "/app.js", "/icons/icon-192x192.png"}
}

func newTestController(t *testing.T, store bucket.Store, origin *testutil.MockOrigin, appVersion string, registry Registry, notifier Notifier, skipWaiting bool) *Controller {
	t.Helper()
	ctrl, err := New(store, &http.Client{Timeout: 5 * time.Second}, registry, notifier, Config{
		Version:     appVersion,
		OriginURL:   origin.URL(),
		Manifest:    testManifest(),
		SkipWaiting: skipWaiting,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return ctrl
}

// assetKey builds the bucket key a precached manifest asset is stored
// under.
func assetKey(t *testing.T, originURL, path string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, originURL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return bucket.Key(req)
}

func TestController_Install_PrecachesManifest(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	store := bucket.NewMemoryStore()
	ctrl := newTestController(t, store, origin, "1.0.0", nil, nil, false)
	ctx := context.Background()

	if err := ctrl.Install(ctx); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if ctrl.State() != StateInstalled {
		t.Errorf("State = %q, want %q", ctrl.State(), StateInstalled)
	}

	for _, path := range testManifest() {
		entry, err := store.Get(ctx, "static-1.0.0", assetKey(t, origin.URL(), path))
		if err != nil {
			t.Fatalf("Get %s failed: %v", path, err)
		}
		if entry == nil {
			t.Errorf("manifest asset %s was not precached", path)
		}
	}
}

func TestController_Install_FailureLeavesOldVersionServing(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.FailPath("/styles.css")

	store := bucket.NewMemoryStore()
	ctx := context.Background()

	// Previously activated version with a populated bucket.
	oldEntry := &bucket.Entry{Body: []byte("old shell"), StatusCode: 200, Header: http.Header{}}
	if err := store.Put(ctx, "static-1.0.0", "k", oldEntry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	registry := &fakeRegistry{active: &version.Active{Version: "1.0.0", ActivatedAt: time.Now()}}
	notifier := &fakeNotifier{}

	ctrl := newTestController(t, store, origin, "2.0.0", registry, notifier, true)
	if err := ctrl.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	err := ctrl.Install(ctx)
	if err == nil {
		t.Fatal("Install succeeded despite a failing manifest asset")
	}
	if ctrl.State() != StateFailed {
		t.Errorf("State = %q, want %q", ctrl.State(), StateFailed)
	}

	// Activate must never have run: no broadcast, no registry update,
	// routing still on the old bucket, old bucket fully intact.
	if got := notifier.activated(); len(got) != 0 {
		t.Errorf("Activated broadcast on failed install: %v", got)
	}
	active, _ := registry.Current(ctx)
	if active.Version != "1.0.0" {
		t.Errorf("registry version = %q, want unchanged %q", active.Version, "1.0.0")
	}
	if got := ctrl.CurrentStaticBucket(); got != "static-1.0.0" {
		t.Errorf("CurrentStaticBucket = %q, want %q", got, "static-1.0.0")
	}
	entry, err := store.Get(ctx, "static-1.0.0", "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry == nil || string(entry.Body) != "old shell" {
		t.Error("old bucket no longer intact after failed install")
	}
}

func TestController_VersionBumpRoundTrip(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	store := bucket.NewMemoryStore()
	ctx := context.Background()

	// State left behind by a previous version.
	if err := store.Put(ctx, "static-1.0.0", "k", &bucket.Entry{Body: []byte("v1"), StatusCode: 200, Header: http.Header{}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	apiEntry := &bucket.Entry{Body: []byte(`{"data":1}`), StatusCode: 200, Header: http.Header{}}
	if err := store.Put(ctx, version.APIBucket, "api-k", apiEntry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	registry := &fakeRegistry{active: &version.Active{Version: "1.0.0", ActivatedAt: time.Now()}}
	notifier := &fakeNotifier{}
	ctrl := newTestController(t, store, origin, "2.0.0", registry, notifier, true)
	if err := ctrl.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if err := ctrl.Install(ctx); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if ctrl.State() != StateActivated {
		t.Errorf("State = %q, want %q", ctrl.State(), StateActivated)
	}

	// Old static bucket no longer resolves.
	gone, err := store.Get(ctx, "static-1.0.0", "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if gone != nil {
		t.Error("static-1.0.0 still resolves to data after activation")
	}

	// New static bucket holds every manifest asset.
	for _, path := range testManifest() {
		entry, err := store.Get(ctx, "static-2.0.0", assetKey(t, origin.URL(), path))
		if err != nil {
			t.Fatalf("Get %s failed: %v", path, err)
		}
		if entry == nil {
			t.Errorf("manifest asset %s missing from static-2.0.0", path)
		}
	}

	// API bucket untouched.
	kept, err := store.Get(ctx, version.APIBucket, "api-k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if kept == nil || string(kept.Body) != `{"data":1}` {
		t.Error("API bucket was touched by the version bump")
	}

	// Routing, registry, and broadcast all switched to the new version.
	if got := ctrl.CurrentStaticBucket(); got != "static-2.0.0" {
		t.Errorf("CurrentStaticBucket = %q, want %q", got, "static-2.0.0")
	}
	active, _ := registry.Current(ctx)
	if active.Version != "2.0.0" {
		t.Errorf("registry version = %q, want %q", active.Version, "2.0.0")
	}
	if got := notifier.activated(); len(got) != 1 || got[0] != "2.0.0" {
		t.Errorf("Activated broadcasts = %v, want [2.0.0]", got)
	}
}

func TestController_SkipWaiting(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	store := bucket.NewMemoryStore()
	notifier := &fakeNotifier{}
	ctrl := newTestController(t, store, origin, "1.0.0", nil, notifier, false)
	ctx := context.Background()

	// SkipWaiting before anything is waiting is a no-op.
	if err := ctrl.SkipWaiting(ctx); err != nil {
		t.Fatalf("SkipWaiting on idle controller failed: %v", err)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("State = %q, want %q", ctrl.State(), StateIdle)
	}

	if err := ctrl.Install(ctx); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if ctrl.State() != StateInstalled {
		t.Fatalf("State = %q, want waiting %q", ctrl.State(), StateInstalled)
	}
	if len(notifier.activated()) != 0 {
		t.Error("broadcast before SkipWaiting")
	}

	if err := ctrl.SkipWaiting(ctx); err != nil {
		t.Fatalf("SkipWaiting failed: %v", err)
	}
	if ctrl.State() != StateActivated {
		t.Errorf("State = %q, want %q", ctrl.State(), StateActivated)
	}
	if got := notifier.activated(); len(got) != 1 {
		t.Errorf("Activated broadcasts = %v, want exactly one", got)
	}
}
