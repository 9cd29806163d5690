// Package importer holds the one-time synchronization paths: repository
// import and project creation. Both feed the same mapping rules as the
// incremental webhook path so the two cannot diverge.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/hubboard/hubboard/internal/github"
	"github.com/hubboard/hubboard/internal/models"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/hubboard/hubboard/internal/webhook"
)

// gatewayTimeout bounds each outbound GitHub call. Gateway failures never
// cancel the surrounding operation; they degrade to warnings.
const gatewayTimeout = 30 * time.Second

// ConflictError reports that a repository is already imported. The existing
// project id is surfaced so clients can redirect instead of retrying.
type ConflictError struct {
	ProjectID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("repository already imported as project %s", e.ProjectID)
}

// ImportInput identifies the repository to import.
type ImportInput struct {
	RepoID          int64  `json:"repoId"`
	RepoName        string `json:"repoName"`
	RepoDescription string `json:"repoDescription"`
	RepoURL         string `json:"repoUrl"`
	Owner           string `json:"owner"`
	Repo            string `json:"repo"`
}

// Result reports what an import or project creation produced. Warnings carry
// the non-fatal failures of best-effort steps (webhook registration, issue
// import) so they stay observable instead of silently swallowed.
type Result struct {
	Project       *models.Project `json:"project"`
	ImportedTasks int             `json:"importedTasks"`
	Warnings      []string        `json:"warnings"`
}

// CreateProjectInput is the input for plain project creation.
type CreateProjectInput struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	IsPrivate        bool   `json:"isPrivate"`
	CreateGithubRepo bool   `json:"createGithubRepo"`
}

// Importer orchestrates project creation and repository import against the
// store and the GitHub gateway.
type Importer struct {
	store   store.Store
	gh      github.Gateway
	baseURL string // public base URL the webhook callback is registered under
}

// New returns an Importer. baseURL is the externally reachable server URL.
func New(s store.Store, gw github.Gateway, baseURL string) *Importer {
	return &Importer{store: s, gh: gw, baseURL: baseURL}
}

func (im *Importer) webhookURL() string {
	return strings.TrimRight(im.baseURL, "/") + "/api/v1/webhooks/github"
}

func randomGradient() string {
	return models.Gradients[rand.Intn(len(models.Gradients))]
}

// seedColumns creates the five well-known columns for a new project. Every
// target of models.StatusColumn is covered by construction.
func (im *Importer) seedColumns(ctx context.Context, projectID string) error {
	for _, spec := range models.DefaultColumns {
		col := spec
		col.ProjectID = projectID
		if err := im.store.CreateColumn(ctx, &col); err != nil {
			return fmt.Errorf("seed column %q: %w", spec.Name, err)
		}
	}
	return nil
}

// ImportRepository creates a project bound to the given repository, registers
// a webhook (best-effort), and bulk-imports existing issues as backlog tasks
// (best-effort). Project creation and issue import are independent steps: a
// failed import leaves a valid project with an empty Backlog.
func (im *Importer) ImportRepository(ctx context.Context, in ImportInput) (*Result, error) {
	if in.RepoID == 0 || in.Owner == "" || in.Repo == "" {
		return nil, fmt.Errorf("repoId, owner and repo are required")
	}

	repoID := strconv.FormatInt(in.RepoID, 10)
	if existing, err := im.store.GetProjectByRepoID(ctx, repoID); err == nil {
		return nil, &ConflictError{ProjectID: existing.ID}
	} else if !strings.Contains(err.Error(), "not found") {
		return nil, err
	}

	project := &models.Project{
		Name:          in.RepoName,
		Description:   in.RepoDescription,
		Gradient:      randomGradient(),
		GitHubRepoID:  repoID,
		GitHubRepoURL: in.RepoURL,
		GitHubOwner:   in.Owner,
		GitHubRepo:    in.Repo,
	}
	if err := im.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	if err := im.seedColumns(ctx, project.ID); err != nil {
		return nil, err
	}

	result := &Result{Project: project}

	if warn := im.registerWebhook(ctx, project); warn != "" {
		result.Warnings = append(result.Warnings, warn)
	}

	imported, warn := im.importIssues(ctx, project)
	result.ImportedTasks = imported
	if warn != "" {
		result.Warnings = append(result.Warnings, warn)
	}

	return result, nil
}

// CreateProject creates a project, optionally creating a GitHub repository
// for it first. Repository creation failure is fatal (the caller asked for
// it); webhook registration failure is not.
func (im *Importer) CreateProject(ctx context.Context, in CreateProjectInput) (*Result, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("project name is required")
	}

	project := &models.Project{
		Name:        in.Name,
		Description: in.Description,
		Gradient:    randomGradient(),
	}

	if in.CreateGithubRepo {
		cctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
		defer cancel()

		repoName := strings.ToLower(strings.Join(strings.Fields(in.Name), "-"))
		repo, err := im.gh.CreateRepository(cctx, repoName, in.Description, in.IsPrivate)
		if err != nil {
			return nil, fmt.Errorf("create github repository: %w", err)
		}
		project.GitHubRepoID = strconv.FormatInt(repo.ID, 10)
		project.GitHubRepoURL = repo.URL
		project.GitHubOwner = repo.Owner
		project.GitHubRepo = repo.Name
	}

	if err := im.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	if err := im.seedColumns(ctx, project.ID); err != nil {
		return nil, err
	}

	result := &Result{Project: project}

	if in.CreateGithubRepo {
		if warn := im.registerWebhook(ctx, project); warn != "" {
			result.Warnings = append(result.Warnings, warn)
		}

		// Fresh repositories get a starter task so the board is not empty.
		if backlog, err := im.store.GetColumnByName(ctx, project.ID, models.ColumnBacklog); err == nil {
			_ = im.store.CreateTask(ctx, &models.Task{
				ProjectID:   project.ID,
				ColumnID:    backlog.ID,
				Title:       "Setup project README",
				Description: "Create a comprehensive README.md file with project documentation",
				Status:      models.TaskStatusTodo,
				Priority:    models.TaskPriorityMedium,
			})
		}
	}

	return result, nil
}

// registerWebhook generates a secret, registers the hook upstream, and
// persists the webhook record only when registration succeeded. Any failure
// (including an already-existing hook) is returned as a warning string;
// future deliveries for the repository are silently dropped until
// registration is retried out-of-band.
func (im *Importer) registerWebhook(ctx context.Context, project *models.Project) string {
	secret, err := webhook.NewSecret()
	if err != nil {
		return fmt.Sprintf("webhook registration skipped: %v", err)
	}

	cctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	hook, err := im.gh.CreateHook(cctx, project.GitHubOwner, project.GitHubRepo, im.webhookURL(), secret, models.WebhookEvents)
	if err != nil {
		if errors.Is(err, github.ErrHookExists) {
			slog.Info("webhook already exists", "project", project.ID, "repo", project.GitHubRepo)
			return "webhook already exists for this repository"
		}
		slog.Warn("webhook registration failed", "project", project.ID, "error", err)
		return fmt.Sprintf("webhook registration failed: %v", err)
	}

	if err := im.store.CreateWebhook(ctx, &models.Webhook{
		ProjectID: project.ID,
		HookID:    strconv.FormatInt(hook.ID, 10),
		Secret:    secret,
		Events:    hook.Events,
	}); err != nil {
		slog.Warn("persist webhook failed", "project", project.ID, "error", err)
		return fmt.Sprintf("webhook created but not recorded: %v", err)
	}
	return ""
}

// importIssues bulk-creates backlog tasks from the repository's existing
// issues. PR-flagged entries are excluded; fetch order becomes the initial
// task order. Priority is inferred from labels here only, never re-evaluated
// by later webhook events.
func (im *Importer) importIssues(ctx context.Context, project *models.Project) (int, string) {
	cctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	issues, err := im.gh.ListIssues(cctx, project.GitHubOwner, project.GitHubRepo)
	if err != nil {
		slog.Warn("issue import failed", "project", project.ID, "error", err)
		return 0, fmt.Sprintf("issue import failed: %v", err)
	}
	if len(issues) == 0 {
		return 0, ""
	}

	backlog, err := im.store.GetColumnByName(ctx, project.ID, models.ColumnBacklog)
	if err != nil {
		return 0, fmt.Sprintf("issue import skipped: %v", err)
	}

	var tasks []*models.Task
	for _, issue := range issues {
		if issue.IsPullRequest {
			continue
		}
		tasks = append(tasks, &models.Task{
			ProjectID:         project.ID,
			ColumnID:          backlog.ID,
			Title:             issue.Title,
			Description:       issue.Body,
			Status:            models.TaskStatusTodo,
			Priority:          issuePriority(issue.Labels),
			Order:             len(tasks),
			GitHubIssueNumber: issue.Number,
			GitHubIssueID:     strconv.FormatInt(issue.ID, 10),
			GitHubState:       issue.State,
			CreatedAt:         issue.CreatedAt,
			UpdatedAt:         issue.UpdatedAt,
		})
	}

	if err := im.store.CreateTasks(ctx, tasks); err != nil {
		slog.Warn("bulk create tasks failed", "project", project.ID, "error", err)
		return 0, fmt.Sprintf("issue import failed: %v", err)
	}

	if len(tasks) > 0 {
		_ = im.store.CreateActivity(ctx, &models.Activity{
			ProjectID:   project.ID,
			Type:        models.ActivityImported,
			Description: fmt.Sprintf("Imported %d issues from %s/%s", len(tasks), project.GitHubOwner, project.GitHubRepo),
		})
	}

	return len(tasks), ""
}

// issuePriority infers priority from labels: urgent beats bug beats nothing.
func issuePriority(labels []string) models.TaskPriority {
	hasBug := false
	for _, l := range labels {
		switch l {
		case "urgent":
			return models.TaskPriorityHigh
		case "bug":
			hasBug = true
		}
	}
	if hasBug {
		return models.TaskPriorityMedium
	}
	return models.TaskPriorityLow
}
