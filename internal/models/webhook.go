package models

import "time"

// Webhook stores the registration record for a project's GitHub webhook:
// the remote hook id, the locally generated shared secret, and the
// subscribed event set. Zero-or-one per project; a project legitimately has
// none when registration failed.
type Webhook struct {
	ID        string
	ProjectID string
	HookID    string
	Secret    string
	Events    []string
	CreatedAt time.Time
}

// WebhookEvents is the event set subscribed at registration time.
var WebhookEvents = []string{"issues", "pull_request", "issue_comment", "push"}
