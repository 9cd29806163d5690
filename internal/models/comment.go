package models

import "time"

// Comment belongs to exactly one task. GitHubCommentID links it to an
// upstream GitHub comment and is the key used to route edit and delete
// webhook events.
type Comment struct {
	ID              string
	TaskID          string
	Content         string
	GitHubCommentID string // empty for locally authored comments
	Author          string // GitHub login, plain text attribution
	Edited          bool
	EditedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
