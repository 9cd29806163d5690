package models

import "time"

// TaskStatus represents the lifecycle state of a task. It is kept consistent
// with the task's column placement.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "inProgress"
	TaskStatusInReview   TaskStatus = "inReview"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskPriority represents the urgency of a task.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// StatusColumn maps a task status to the column name it belongs in. Lookups
// that miss (renamed or deleted column) degrade to a no-op at sync time
// rather than an error.
var StatusColumn = map[TaskStatus]string{
	TaskStatusTodo:       ColumnTodo,
	TaskStatusInProgress: ColumnInProgress,
	TaskStatusInReview:   ColumnInReview,
	TaskStatusDone:       ColumnDone,
}

// Task represents a card on a project board. The GitHub* fields link the
// task to external entities; a task with GitHubIssueNumber 0 tracks nothing.
type Task struct {
	ID                string
	ProjectID         string
	ColumnID          string
	Title             string
	Description       string
	Status            TaskStatus
	Priority          TaskPriority
	Order             int
	GitHubIssueNumber int
	GitHubIssueID     string
	GitHubPRNumber    int
	GitHubPRID        string
	GitHubBranch      string
	GitHubState       string
	StartedAt         *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
