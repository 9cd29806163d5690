// Package sync maps GitHub webhook events onto board entities. Each handler
// is an idempotent reducer over persisted state: webhook deliveries are
// at-least-once, so every handler must be safe to apply twice.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hubboard/hubboard/internal/models"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/hubboard/hubboard/internal/webhook"
)

// Engine applies webhook events to the task store. It holds no state between
// invocations; each handler is a single-request transaction.
type Engine struct {
	store store.Store
}

// NewEngine returns an Engine backed by the given store.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

var _ webhook.Handler = (*Engine)(nil)

// resolveProject finds the project bound to a repository id. An untracked
// repository is a normal no-op, reported as (nil, nil).
func (e *Engine) resolveProject(ctx context.Context, repoID int64) (*models.Project, error) {
	p, err := e.store.GetProjectByRepoID(ctx, strconv.FormatInt(repoID, 10))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// column resolves a well-known column by name. A missing column (deleted or
// renamed by the user) degrades the mutation to a no-op instead of an error,
// reported as (nil, nil).
func (e *Engine) column(ctx context.Context, projectID, name string) (*models.Column, error) {
	c, err := e.store.GetColumnByName(ctx, projectID, name)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func metaJSON(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// HandleIssues applies an "issues" event: opened creates a task in Backlog,
// closed moves it to Done, reopened back to To Do, edited updates content.
func (e *Engine) HandleIssues(ctx context.Context, ev *webhook.IssuesEvent) error {
	project, err := e.resolveProject(ctx, ev.Repository.ID)
	if err != nil || project == nil {
		return err
	}

	switch ev.Action {
	case "opened":
		return e.issueOpened(ctx, project, ev)

	case "edited":
		_, err := e.store.UpdateTasksContentByIssueNumber(ctx, project.ID, ev.Issue.Number, ev.Issue.Title, ev.Issue.Body)
		return err

	case "closed":
		done, err := e.column(ctx, project.ID, models.ColumnDone)
		if err != nil || done == nil {
			return err
		}
		now := time.Now().UTC()
		_, err = e.store.MoveTasksByIssueNumber(ctx, project.ID, ev.Issue.Number, store.TaskMove{
			Status:         models.TaskStatusDone,
			ColumnID:       done.ID,
			GitHubState:    "closed",
			TouchCompleted: true,
			CompletedAt:    &now,
		})
		return err

	case "reopened":
		todo, err := e.column(ctx, project.ID, models.ColumnTodo)
		if err != nil || todo == nil {
			return err
		}
		_, err = e.store.MoveTasksByIssueNumber(ctx, project.ID, ev.Issue.Number, store.TaskMove{
			Status:         models.TaskStatusTodo,
			ColumnID:       todo.ID,
			GitHubState:    "open",
			TouchCompleted: true,
		})
		return err
	}
	return nil
}

func (e *Engine) issueOpened(ctx context.Context, project *models.Project, ev *webhook.IssuesEvent) error {
	// Deliveries are at-least-once; a redelivered "opened" must not create a
	// second task for the same issue number.
	existing, err := e.store.FindTaskByIssueNumber(ctx, project.ID, ev.Issue.Number)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	backlog, err := e.column(ctx, project.ID, models.ColumnBacklog)
	if err != nil || backlog == nil {
		return err
	}

	order, err := e.store.CountColumnTasks(ctx, backlog.ID)
	if err != nil {
		return err
	}

	task := &models.Task{
		ProjectID:         project.ID,
		ColumnID:          backlog.ID,
		Title:             ev.Issue.Title,
		Description:       ev.Issue.Body,
		Status:            models.TaskStatusTodo,
		Priority:          models.TaskPriorityMedium,
		Order:             order,
		GitHubIssueNumber: ev.Issue.Number,
		GitHubIssueID:     strconv.FormatInt(ev.Issue.ID, 10),
		GitHubState:       ev.Issue.State,
	}
	if err := e.store.CreateTask(ctx, task); err != nil {
		return err
	}

	return e.store.CreateActivity(ctx, &models.Activity{
		ProjectID:   project.ID,
		TaskID:      task.ID,
		Type:        models.ActivityCreated,
		Description: fmt.Sprintf("Issue #%d created: %s", ev.Issue.Number, ev.Issue.Title),
		Metadata:    metaJSON(map[string]any{"issueNumber": ev.Issue.Number}),
		Actor:       ev.Sender.Login,
	})
}

// HandlePullRequest applies a "pull_request" event. An opened PR attaches to
// the task tracking its branch or PR number, or creates one directly in
// In Review; a merged close lands in Done, an unmerged close back in
// In Progress.
func (e *Engine) HandlePullRequest(ctx context.Context, ev *webhook.PullRequestEvent) error {
	project, err := e.resolveProject(ctx, ev.Repository.ID)
	if err != nil || project == nil {
		return err
	}

	pr := &ev.PullRequest

	switch ev.Action {
	case "opened":
		inReview, err := e.column(ctx, project.ID, models.ColumnInReview)
		if err != nil || inReview == nil {
			return err
		}

		// Branch name is the fallback key: a task created by an earlier push
		// has no PR number yet.
		existing, err := e.store.FindTaskByPR(ctx, project.ID, pr.Number, pr.Head.Ref)
		if err != nil {
			return err
		}

		if existing != nil {
			existing.GitHubPRNumber = pr.Number
			existing.GitHubPRID = strconv.FormatInt(pr.ID, 10)
			existing.Status = models.TaskStatusInReview
			existing.ColumnID = inReview.ID
			return e.store.UpdateTask(ctx, existing)
		}

		order, err := e.store.CountColumnTasks(ctx, inReview.ID)
		if err != nil {
			return err
		}
		return e.store.CreateTask(ctx, &models.Task{
			ProjectID:      project.ID,
			ColumnID:       inReview.ID,
			Title:          pr.Title,
			Description:    pr.Body,
			Status:         models.TaskStatusInReview,
			Priority:       models.TaskPriorityMedium,
			Order:          order,
			GitHubPRNumber: pr.Number,
			GitHubPRID:     strconv.FormatInt(pr.ID, 10),
			GitHubBranch:   pr.Head.Ref,
		})

	case "closed":
		if pr.Merged {
			done, err := e.column(ctx, project.ID, models.ColumnDone)
			if err != nil || done == nil {
				return err
			}
			now := time.Now().UTC()
			_, err = e.store.MoveTasksByPRNumber(ctx, project.ID, pr.Number, store.TaskMove{
				Status:         models.TaskStatusDone,
				ColumnID:       done.ID,
				TouchCompleted: true,
				CompletedAt:    &now,
			})
			return err
		}

		// Closed without merging: the work is not shipped, park it back in
		// In Progress rather than Done.
		inProgress, err := e.column(ctx, project.ID, models.ColumnInProgress)
		if err != nil || inProgress == nil {
			return err
		}
		_, err = e.store.MoveTasksByPRNumber(ctx, project.ID, pr.Number, store.TaskMove{
			Status:   models.TaskStatusInProgress,
			ColumnID: inProgress.ID,
		})
		return err
	}
	return nil
}

// HandleIssueComment mirrors issue comments onto the tracking task. Comments
// on untracked issues are dropped, not queued.
func (e *Engine) HandleIssueComment(ctx context.Context, ev *webhook.IssueCommentEvent) error {
	project, err := e.resolveProject(ctx, ev.Repository.ID)
	if err != nil || project == nil {
		return err
	}

	task, err := e.store.FindTaskByIssueNumber(ctx, project.ID, ev.Issue.Number)
	if err != nil || task == nil {
		return err
	}

	commentID := strconv.FormatInt(ev.Comment.ID, 10)

	switch ev.Action {
	case "created":
		if err := e.store.CreateComment(ctx, &models.Comment{
			TaskID:          task.ID,
			Content:         ev.Comment.Body,
			GitHubCommentID: commentID,
			Author:          ev.Comment.User.Login,
		}); err != nil {
			return err
		}
		return e.store.CreateActivity(ctx, &models.Activity{
			ProjectID:   project.ID,
			TaskID:      task.ID,
			Type:        models.ActivityCommented,
			Description: fmt.Sprintf("Comment added to issue #%d", ev.Issue.Number),
			Actor:       ev.Comment.User.Login,
		})

	case "edited":
		_, err := e.store.UpdateCommentByGitHubID(ctx, commentID, ev.Comment.Body)
		return err

	case "deleted":
		_, err := e.store.DeleteCommentByGitHubID(ctx, commentID)
		return err
	}
	return nil
}

// HandlePush records one activity per commit and promotes todo tasks bound
// to the pushed branch into In Progress. The promotion is one-directional:
// tasks already past todo are left untouched.
func (e *Engine) HandlePush(ctx context.Context, ev *webhook.PushEvent) error {
	project, err := e.resolveProject(ctx, ev.Repository.ID)
	if err != nil || project == nil {
		return err
	}

	branch := strings.TrimPrefix(ev.Ref, "refs/heads/")

	for _, commit := range ev.Commits {
		if err := e.store.CreateActivity(ctx, &models.Activity{
			ProjectID:   project.ID,
			Type:        models.ActivityPush,
			Description: fmt.Sprintf("Commit to %s: %s", branch, commit.Message),
			Metadata: metaJSON(map[string]any{
				"branch": branch,
				"sha":    commit.ID,
				"author": commit.Author.Name,
			}),
			Actor: ev.Sender.Login,
		}); err != nil {
			return err
		}
	}

	inProgress, err := e.column(ctx, project.ID, models.ColumnInProgress)
	if err != nil || inProgress == nil {
		return err
	}
	_, err = e.store.PromoteBranchTasks(ctx, project.ID, branch, inProgress.ID)
	return err
}
