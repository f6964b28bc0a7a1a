// Package version owns the app-version contract of the cache: bucket name
// derivation and the Redis-shared record of which version is active.
//
// The AppVersion string is baked into static bucket names at deploy time.
// Every deploy that changes cached file contents must bump it, or returning
// users keep being served stale content indefinitely.
package version

import (
	"time"
)

// Redis keys for activation state storage.
const (
	RedisKeyActiveVersion = "edge:version:active"
	RedisKeyActivatedAt   = "edge:version:activated_at"
)

// APIBucket is the version-independent bucket holding upstream API
// responses. It survives across app versions.
const APIBucket = "api"

// StaticBucketName derives the static bucket name for an app version.
// The version stamp is what makes whole-bucket eviction safe: old content
// only ever exists under an old, discarded name.
func StaticBucketName(appVersion string) string {
	return "static-" + appVersion
}

// Active describes the currently activated app version.
// This state is shared across all gateway replicas via Redis.
type Active struct {
	// Version is the activated AppVersion string.
	Version string `json:"version"`

	// ActivatedAt is when this version finished activation.
	ActivatedAt time.Time `json:"activated_at"`
}

// StaticBucket returns the static bucket name of the active version.
func (a *Active) StaticBucket() string {
	return StaticBucketName(a.Version)
}

// Age returns how long this version has been active.
func (a *Active) Age() time.Duration {
	return time.Since(a.ActivatedAt)
}
