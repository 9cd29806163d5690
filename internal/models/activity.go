package models

import "time"

// ActivityType tags an activity feed entry.
type ActivityType string

const (
	ActivityCreated   ActivityType = "created"
	ActivityCommented ActivityType = "commented"
	ActivityPush      ActivityType = "push"
	ActivityImported  ActivityType = "imported"
)

// Activity is an append-only audit record attached to a project and
// optionally a task. Never mutated or deleted after creation.
type Activity struct {
	ID          string
	ProjectID   string
	TaskID      string // empty when not task-scoped
	Type        ActivityType
	Description string
	Metadata    string // JSON blob of event-specific payload
	Actor       string // GitHub login, plain text attribution
	CreatedAt   time.Time
}
