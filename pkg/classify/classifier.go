// Package classify decides which fetch strategy handles an intercepted
// request, before any cache or network I/O occurs.
package classify

import (
	"net/http"
	"strings"
)

// Class represents a request classification.
type Class string

const (
	// ClassBypass marks requests that are not intercepted at all.
	// Non-GET requests pass through to the origin untouched so mutating
	// calls are never cached.
	ClassBypass Class = "bypass"

	// ClassAPI marks requests to a third-party data host, served
	// network-first against the long-lived API bucket.
	ClassAPI Class = "api"

	// ClassAlwaysFresh marks the app's core code files (document,
	// stylesheet, main script), served stale-while-revalidate.
	ClassAlwaysFresh Class = "always-fresh"

	// ClassStatic marks every other asset (icons, manifest, fonts),
	// served cache-first.
	ClassStatic Class = "static"
)

// Config enumerates the host and filename sets classification is built
// from. Keeping them as data lets tests substitute fixtures.
type Config struct {
	// APIHosts are the third-party data hosts, matched against the
	// request hostname exactly.
	APIHosts []string

	// FreshNames are the always-fresh code file names. A request's final
	// path segment matching any of these routes it to
	// stale-while-revalidate.
	FreshNames []string

	// RootDocument is the app's root document name, substituted when a
	// request path has no final segment.
	RootDocument string
}

// DefaultConfig returns the hosts and filenames of the Quran reader app.
func DefaultConfig() Config {
	return Config{
		APIHosts: []string{
			"api.quran.com",
			"api.alquran.cloud",
			"api.aladhan.com",
		},
		FreshNames: []string{
			"index.html",
			"styles.css",
			"app.js",
		},
		RootDocument: "index.html",
	}
}

// Classifier classifies intercepted requests.
type Classifier struct {
	apiHosts     map[string]struct{}
	freshNames   []string
	rootDocument string
}

// New creates a classifier from the given configuration.
func New(cfg Config) *Classifier {
	hosts := make(map[string]struct{}, len(cfg.APIHosts))
	for _, h := range cfg.APIHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	return &Classifier{
		apiHosts:     hosts,
		freshNames:   cfg.FreshNames,
		rootDocument: cfg.RootDocument,
	}
}

// Classify returns the class for a request. First match wins:
// non-GET, API host, always-fresh filename, then static.
func (c *Classifier) Classify(req *http.Request) Class {
	if req.Method != http.MethodGet {
		return ClassBypass
	}

	if _, ok := c.apiHosts[strings.ToLower(req.URL.Hostname())]; ok {
		return ClassAPI
	}

	filename := finalSegment(req.URL.Path)
	if filename == "" {
		filename = c.rootDocument
	}
	for _, name := range c.freshNames {
		// Containment, not equality: "app.js.bak" classifies as
		// always-fresh too. Existing deployments rely on this, so
		// tightening it to an exact match would silently reroute assets.
		if strings.Contains(filename, name) {
			return ClassAlwaysFresh
		}
	}

	return ClassStatic
}

// finalSegment extracts the last path segment of a URL path.
func finalSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
