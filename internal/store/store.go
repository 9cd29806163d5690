package store

import (
	"context"
	"time"

	"github.com/hubboard/hubboard/internal/models"
)

// TaskListFilter specifies filters for listing tasks.
type TaskListFilter struct {
	ProjectID string
	ColumnID  string
	Status    models.TaskStatus
	Branch    string
}

// TaskMove is an unconditional update applied to every task matching an
// external key (issue number or PR number) within a project. Running it as a
// single UPDATE keeps concurrent webhook redeliveries convergent instead of
// racing read-modify-write cycles.
type TaskMove struct {
	Status      models.TaskStatus
	ColumnID    string
	GitHubState string // empty = leave unchanged

	// TouchCompleted controls whether CompletedAt is written at all;
	// a nil CompletedAt with TouchCompleted set clears the timestamp.
	TouchCompleted bool
	CompletedAt    *time.Time
}

// Store defines the persistence interface for hubboard.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetProjectByRepoID(ctx context.Context, repoID string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error

	// Columns
	CreateColumn(ctx context.Context, c *models.Column) error
	GetColumn(ctx context.Context, id string) (*models.Column, error)
	GetColumnByName(ctx context.Context, projectID, name string) (*models.Column, error)
	ListColumns(ctx context.Context, projectID string) ([]*models.Column, error)
	DeleteColumn(ctx context.Context, id string) error

	// Tasks
	CreateTask(ctx context.Context, t *models.Task) error
	CreateTasks(ctx context.Context, tasks []*models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter TaskListFilter) ([]*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	DeleteTask(ctx context.Context, id string) error
	CountColumnTasks(ctx context.Context, columnID string) (int, error)

	// External-key task operations used by the sync engine. The Find methods
	// return (nil, nil) when no task matches; absence is a normal outcome on
	// the webhook path, not an error.
	FindTaskByIssueNumber(ctx context.Context, projectID string, issueNumber int) (*models.Task, error)
	FindTaskByPR(ctx context.Context, projectID string, prNumber int, branch string) (*models.Task, error)
	MoveTasksByIssueNumber(ctx context.Context, projectID string, issueNumber int, mv TaskMove) (int64, error)
	MoveTasksByPRNumber(ctx context.Context, projectID string, prNumber int, mv TaskMove) (int64, error)
	UpdateTasksContentByIssueNumber(ctx context.Context, projectID string, issueNumber int, title, description string) (int64, error)
	PromoteBranchTasks(ctx context.Context, projectID, branch, columnID string) (int64, error)

	// Comments
	CreateComment(ctx context.Context, c *models.Comment) error
	ListTaskComments(ctx context.Context, taskID string) ([]*models.Comment, error)
	UpdateCommentByGitHubID(ctx context.Context, githubCommentID, content string) (int64, error)
	DeleteCommentByGitHubID(ctx context.Context, githubCommentID string) (int64, error)

	// Activities
	CreateActivity(ctx context.Context, a *models.Activity) error
	ListActivities(ctx context.Context, projectID string, limit int) ([]*models.Activity, error)

	// Webhooks
	CreateWebhook(ctx context.Context, w *models.Webhook) error
	GetWebhookByProject(ctx context.Context, projectID string) (*models.Webhook, error)
	GetWebhookByRepoID(ctx context.Context, repoID string) (*models.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
