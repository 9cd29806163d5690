package models

import "time"

// Column is an ordered lane on a project board. Column names are unique per
// project; the sync engine locates columns by name, so the five seeded names
// must survive for GitHub synchronization to keep working.
type Column struct {
	ID        string
	ProjectID string
	Name      string
	Order     int
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Well-known column names. Webhook synchronization targets these by name.
const (
	ColumnBacklog    = "Backlog"
	ColumnTodo       = "To Do"
	ColumnInProgress = "In Progress"
	ColumnInReview   = "In Review"
	ColumnDone       = "Done"
)

// DefaultColumns are seeded in order at project creation.
var DefaultColumns = []Column{
	{Name: ColumnBacklog, Order: 0, Color: "#6B7280"},
	{Name: ColumnTodo, Order: 1, Color: "#3B82F6"},
	{Name: ColumnInProgress, Order: 2, Color: "#F59E0B"},
	{Name: ColumnInReview, Order: 3, Color: "#8B5CF6"},
	{Name: ColumnDone, Order: 4, Color: "#10B981"},
}
