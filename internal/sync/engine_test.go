package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubboard/hubboard/internal/models"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/hubboard/hubboard/internal/webhook"
)

const testRepoID int64 = 42

func newTestEngine(t *testing.T) (*Engine, store.Store, *models.Project, map[string]*models.Column) {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })

	p := &models.Project{
		Name:         "hello-world",
		GitHubRepoID: "42",
		GitHubOwner:  "octocat",
		GitHubRepo:   "hello-world",
	}
	require.NoError(t, s.CreateProject(ctx, p))

	cols := make(map[string]*models.Column)
	for _, spec := range models.DefaultColumns {
		c := spec
		c.ProjectID = p.ID
		require.NoError(t, s.CreateColumn(ctx, &c))
		cols[c.Name] = &c
	}

	return NewEngine(s), s, p, cols
}

func issuesEvent(action string, number int, title, body, state string) *webhook.IssuesEvent {
	ev := &webhook.IssuesEvent{Action: action}
	ev.Issue.ID = int64(1000 + number)
	ev.Issue.Number = number
	ev.Issue.Title = title
	ev.Issue.Body = body
	ev.Issue.State = state
	ev.Repository.ID = testRepoID
	ev.Sender.Login = "octocat"
	return ev
}

// --- Issues ---

func TestHandleIssues_OpenedCreatesBacklogTask(t *testing.T) {
	e, s, p, cols := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandleIssues(ctx, issuesEvent("opened", 7, "Bug report", "It crashes", "open")))

	task, err := s.FindTaskByIssueNumber(ctx, p.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "Bug report", task.Title)
	assert.Equal(t, "It crashes", task.Description)
	assert.Equal(t, cols[models.ColumnBacklog].ID, task.ColumnID)
	assert.Equal(t, models.TaskStatusTodo, task.Status)
	assert.Equal(t, "1007", task.GitHubIssueID)
	assert.Equal(t, "open", task.GitHubState)

	activities, err := s.ListActivities(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityCreated, activities[0].Type)
	assert.Equal(t, task.ID, activities[0].TaskID)
	assert.Equal(t, "octocat", activities[0].Actor)
	assert.Contains(t, activities[0].Metadata, `"issueNumber":7`)
}

func TestHandleIssues_OpenedRedeliveryIsIdempotent(t *testing.T) {
	e, s, p, _ := newTestEngine(t)
	ctx := context.Background()

	ev := issuesEvent("opened", 7, "Bug report", "It crashes", "open")
	require.NoError(t, e.HandleIssues(ctx, ev))
	require.NoError(t, e.HandleIssues(ctx, ev))

	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "redelivered opened must not duplicate the task")

	activities, err := s.ListActivities(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Len(t, activities, 1)
}

func TestHandleIssues_ClosedMovesToDone(t *testing.T) {
	e, s, p, cols := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandleIssues(ctx, issuesEvent("opened", 7, "Bug", "", "open")))
	require.NoError(t, e.HandleIssues(ctx, issuesEvent("closed", 7, "Bug", "", "closed")))

	task, err := s.FindTaskByIssueNumber(ctx, p.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStatusDone, task.Status)
	assert.Equal(t, cols[models.ColumnDone].ID, task.ColumnID)
	assert.Equal(t, "closed", task.GitHubState)
	require.NotNil(t, task.CompletedAt)
}

func TestHandleIssues_ReopenedMovesToTodo(t *testing.T) {
	e, s, p, cols := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandleIssues(ctx, issuesEvent("opened", 7, "Bug", "", "open")))
	require.NoError(t, e.HandleIssues(ctx, issuesEvent("closed", 7, "Bug", "", "closed")))
	require.NoError(t, e.HandleIssues(ctx, issuesEvent("reopened", 7, "Bug", "", "open")))

	task, err := s.FindTaskByIssueNumber(ctx, p.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStatusTodo, task.Status)
	assert.Equal(t, cols[models.ColumnTodo].ID, task.ColumnID)
	assert.Equal(t, "open", task.GitHubState)
	assert.Nil(t, task.CompletedAt, "reopen clears the completion timestamp")
}

func TestHandleIssues_EditedUpdatesContent(t *testing.T) {
	e, s, p, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandleIssues(ctx, issuesEvent("opened", 7, "Old", "old body", "open")))
	require.NoError(t, e.HandleIssues(ctx, issuesEvent("edited", 7, "New", "new body", "open")))

	task, err := s.FindTaskByIssueNumber(ctx, p.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "New", task.Title)
	assert.Equal(t, "new body", task.Description)
}

func TestHandleIssues_UntrackedRepositoryIsNoop(t *testing.T) {
	e, s, p, _ := newTestEngine(t)
	ctx := context.Background()

	ev := issuesEvent("opened", 7, "Bug", "", "open")
	ev.Repository.ID = 9999
	require.NoError(t, e.HandleIssues(ctx, ev))

	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestHandleIssues_MissingColumnIsNoop(t *testing.T) {
	e, s, p, cols := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandleIssues(ctx, issuesEvent("opened", 7, "Bug", "", "open")))
	require.NoError(t, s.DeleteColumn(ctx, cols[models.ColumnDone].ID))

	// Close against a board without a Done column: skipped, not an error.
	require.NoError(t, e.HandleIssues(ctx, issuesEvent("closed", 7, "Bug", "", "closed")))

	task, err := s.FindTaskByIssueNumber(ctx, p.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStatusTodo, task.Status)
}

func TestHandleIssues_UnknownActionIgnored(t *testing.T) {
	e, s, p, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandleIssues(ctx, issuesEvent("labeled", 7, "Bug", "", "open")))

	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

// --- Pull requests ---

func prEvent(action string, number int, branch string, merged bool) *webhook.PullRequestEvent {
	ev := &webhook.PullRequestEvent{Action: action}
	ev.PullRequest.ID = int64(2000 + number)
	ev.PullRequest.Number = number
	ev.PullRequest.Title = "Add feature"
	ev.PullRequest.Body = "Implements the feature"
	ev.PullRequest.Merged = merged
	ev.PullRequest.Head.Ref = branch
	ev.Repository.ID = testRepoID
	ev.Sender.Login = "octocat"
	return ev
}

func TestHandlePullRequest_OpenedCreatesInReviewTask(t *testing.T) {
	e, s, p, cols := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandlePullRequest(ctx, prEvent("opened", 12, "feature-x", false)))

	task, err := s.FindTaskByPR(ctx, p.ID, 12, "")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "Add feature", task.Title)
	assert.Equal(t, models.TaskStatusInReview, task.Status)
	assert.Equal(t, cols[models.ColumnInReview].ID, task.ColumnID)
	assert.Equal(t, 12, task.GitHubPRNumber)
	assert.Equal(t, "feature-x", task.GitHubBranch)
}

func TestHandlePullRequest_OpenedAttachesToBranchTask(t *testing.T) {
	e, s, p, cols := newTestEngine(t)
	ctx := context.Background()

	// A task already tracking the branch, created before any PR existed.
	existing := &models.Task{
		ProjectID:    p.ID,
		ColumnID:     cols[models.ColumnInProgress].ID,
		Title:        "branch work",
		Status:       models.TaskStatusInProgress,
		Priority:     models.TaskPriorityLow,
		GitHubBranch: "feature-x",
	}
	require.NoError(t, s.CreateTask(ctx, existing))

	require.NoError(t, e.HandlePullRequest(ctx, prEvent("opened", 12, "feature-x", false)))

	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ProjectID: p.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1, "attaches instead of creating a second task")
	assert.Equal(t, existing.ID, tasks[0].ID)
	assert.Equal(t, 12, tasks[0].GitHubPRNumber)
	assert.Equal(t, models.TaskStatusInReview, tasks[0].Status)
	assert.Equal(t, cols[models.ColumnInReview].ID, tasks[0].ColumnID)
}

func TestHandlePullRequest_ClosedMerged(t *testing.T) {
	e, s, p, cols := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandlePullRequest(ctx, prEvent("opened", 12, "feature-x", false)))
	require.NoError(t, e.HandlePullRequest(ctx, prEvent("closed", 12, "feature-x", true)))

	task, err := s.FindTaskByPR(ctx, p.ID, 12, "")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStatusDone, task.Status)
	assert.Equal(t, cols[models.ColumnDone].ID, task.ColumnID)
	require.NotNil(t, task.CompletedAt)
}

func TestHandlePullRequest_ClosedUnmerged(t *testing.T) {
	e, s, p, cols := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandlePullRequest(ctx, prEvent("opened", 12, "feature-x", false)))
	require.NoError(t, e.HandlePullRequest(ctx, prEvent("closed", 12, "feature-x", false)))

	task, err := s.FindTaskByPR(ctx, p.ID, 12, "")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStatusInProgress, task.Status)
	assert.Equal(t, cols[models.ColumnInProgress].ID, task.ColumnID)
	assert.Nil(t, task.CompletedAt, "abandoned work is not completed")
}

// --- Issue comments ---

func commentEvent(action string, issueNumber int, commentID int64, body, author string) *webhook.IssueCommentEvent {
	ev := &webhook.IssueCommentEvent{Action: action}
	ev.Issue.Number = issueNumber
	ev.Comment.ID = commentID
	ev.Comment.Body = body
	ev.Comment.User.Login = author
	ev.Repository.ID = testRepoID
	ev.Sender.Login = author
	return ev
}

func TestHandleIssueComment_Lifecycle(t *testing.T) {
	e, s, p, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandleIssues(ctx, issuesEvent("opened", 7, "Bug", "", "open")))
	task, err := s.FindTaskByIssueNumber(ctx, p.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, e.HandleIssueComment(ctx, commentEvent("created", 7, 555, "looking into it", "hubber")))

	comments, err := s.ListTaskComments(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "looking into it", comments[0].Content)
	assert.Equal(t, "555", comments[0].GitHubCommentID)
	assert.Equal(t, "hubber", comments[0].Author)

	require.NoError(t, e.HandleIssueComment(ctx, commentEvent("edited", 7, 555, "fixed in #8", "hubber")))
	comments, err = s.ListTaskComments(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "fixed in #8", comments[0].Content)
	assert.True(t, comments[0].Edited)

	require.NoError(t, e.HandleIssueComment(ctx, commentEvent("deleted", 7, 555, "", "hubber")))
	comments, err = s.ListTaskComments(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestHandleIssueComment_UntrackedIssueDropped(t *testing.T) {
	e, s, p, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandleIssueComment(ctx, commentEvent("created", 99, 556, "hello?", "hubber")))

	activities, err := s.ListActivities(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, activities)
}

// --- Push ---

func pushEvent(t *testing.T, branch string, messages ...string) *webhook.PushEvent {
	t.Helper()
	commits := make([]map[string]any, 0, len(messages))
	for i, msg := range messages {
		commits = append(commits, map[string]any{
			"id":      fmt.Sprintf("sha%d", i),
			"message": msg,
			"author":  map[string]any{"name": "Octo Cat"},
		})
	}
	raw, err := json.Marshal(map[string]any{
		"ref":        "refs/heads/" + branch,
		"commits":    commits,
		"repository": map[string]any{"id": testRepoID},
		"sender":     map[string]any{"login": "octocat"},
	})
	require.NoError(t, err)

	ev := &webhook.PushEvent{}
	require.NoError(t, json.Unmarshal(raw, ev))
	return ev
}

func TestHandlePush_RecordsActivityPerCommit(t *testing.T) {
	e, s, p, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.HandlePush(ctx, pushEvent(t, "main", "fix bug", "add tests")))

	activities, err := s.ListActivities(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	for _, a := range activities {
		assert.Equal(t, models.ActivityPush, a.Type)
		assert.Contains(t, a.Description, "Commit to main")
		assert.Contains(t, a.Metadata, `"branch":"main"`)
		assert.Equal(t, "octocat", a.Actor)
	}
}

func TestHandlePush_PromotesBranchTasks(t *testing.T) {
	e, s, p, cols := newTestEngine(t)
	ctx := context.Background()

	todoTask := &models.Task{
		ProjectID:    p.ID,
		ColumnID:     cols[models.ColumnTodo].ID,
		Title:        "planned",
		Status:       models.TaskStatusTodo,
		Priority:     models.TaskPriorityLow,
		GitHubBranch: "feature-x",
	}
	reviewTask := &models.Task{
		ProjectID:    p.ID,
		ColumnID:     cols[models.ColumnInReview].ID,
		Title:        "under review",
		Status:       models.TaskStatusInReview,
		Priority:     models.TaskPriorityLow,
		GitHubBranch: "feature-x",
	}
	require.NoError(t, s.CreateTask(ctx, todoTask))
	require.NoError(t, s.CreateTask(ctx, reviewTask))

	require.NoError(t, e.HandlePush(ctx, pushEvent(t, "feature-x", "progress")))

	promoted, err := s.GetTask(ctx, todoTask.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, promoted.Status)
	assert.Equal(t, cols[models.ColumnInProgress].ID, promoted.ColumnID)
	require.NotNil(t, promoted.StartedAt)

	// Push never demotes: the review task stays where it is.
	untouched, err := s.GetTask(ctx, reviewTask.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInReview, untouched.Status)
}

// --- End to end through the router ---

func TestIssueLifecycleThroughRouter(t *testing.T) {
	e, s, p, cols := newTestEngine(t)
	ctx := context.Background()
	r := webhook.NewRouter(e)

	opened := []byte(`{
		"action": "opened",
		"issue": {"id": 1001, "number": 1, "title": "Flaky test", "body": "fails on CI", "state": "open"},
		"repository": {"id": 42},
		"sender": {"login": "octocat"}
	}`)
	require.NoError(t, r.Dispatch(ctx, "issues", opened))

	push := []byte(`{
		"ref": "refs/heads/fix-flaky-test",
		"commits": [{"id": "abc123", "message": "stabilize test", "author": {"name": "Octo Cat"}}],
		"repository": {"id": 42},
		"sender": {"login": "octocat"}
	}`)
	require.NoError(t, r.Dispatch(ctx, "push", push))

	closed := []byte(`{
		"action": "closed",
		"issue": {"id": 1001, "number": 1, "title": "Flaky test", "body": "fails on CI", "state": "closed"},
		"repository": {"id": 42},
		"sender": {"login": "octocat"}
	}`)
	require.NoError(t, r.Dispatch(ctx, "issues", closed))

	task, err := s.FindTaskByIssueNumber(ctx, p.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStatusDone, task.Status)
	assert.Equal(t, cols[models.ColumnDone].ID, task.ColumnID)
	require.NotNil(t, task.CompletedAt)

	activities, err := s.ListActivities(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Len(t, activities, 2, "one for creation, one for the commit")
}
