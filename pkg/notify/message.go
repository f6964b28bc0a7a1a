// Package notify implements the client notification channel: a WebSocket
// hub over which the gateway tells open app tabs that a new version has
// activated, and tabs tell the gateway to skip waiting.
package notify

// Type identifies a channel message.
type Type string

const (
	// TypeUpdated is broadcast to every connected client once a new
	// version finishes activation. Delivery is best-effort and advisory:
	// a tab that is not connected learns of the version on its next load.
	TypeUpdated Type = "SW_UPDATED"

	// TypeSkipWaiting is sent by a page (user tapped an "update now"
	// banner) to activate a waiting version immediately.
	TypeSkipWaiting Type = "SKIP_WAITING"

	// TypeNotificationClick forwards the category token of a tapped
	// system notification, so the page can deep-link to a tab/section.
	TypeNotificationClick Type = "NOTIFICATION_CLICK"
)

// Message is the structured message exchanged between gateway and pages.
type Message struct {
	Type     Type   `json:"type"`
	Version  string `json:"version,omitempty"`
	Category string `json:"category,omitempty"`
}
