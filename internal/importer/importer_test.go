package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubboard/hubboard/internal/github"
	"github.com/hubboard/hubboard/internal/models"
	"github.com/hubboard/hubboard/internal/store"
)

// fakeGateway implements github.Gateway with canned responses.
type fakeGateway struct {
	issues []github.Issue

	hookErr    error
	listErr    error
	createdURL string

	createdRepo *github.Repository
	repoErr     error
}

func (f *fakeGateway) GetRepository(_ context.Context, owner, repo string) (*github.Repository, error) {
	return &github.Repository{ID: 42, Name: repo, FullName: owner + "/" + repo, Owner: owner}, nil
}

func (f *fakeGateway) CreateRepository(_ context.Context, name, description string, private bool) (*github.Repository, error) {
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	f.createdRepo = &github.Repository{
		ID:          99,
		Name:        name,
		FullName:    "hubber/" + name,
		Description: description,
		URL:         "https://github.com/hubber/" + name,
		Private:     private,
		Owner:       "hubber",
	}
	return f.createdRepo, nil
}

func (f *fakeGateway) CreateHook(_ context.Context, owner, repo, url, secret string, events []string) (*github.Hook, error) {
	if f.hookErr != nil {
		return nil, f.hookErr
	}
	f.createdURL = url
	return &github.Hook{ID: 314, Events: events}, nil
}

func (f *fakeGateway) DeleteHook(context.Context, string, string, int64) error { return nil }

func (f *fakeGateway) ListIssues(context.Context, string, string) ([]github.Issue, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.issues, nil
}

func (f *fakeGateway) ListPullRequests(context.Context, string, string) ([]github.PullRequest, error) {
	return nil, nil
}

func (f *fakeGateway) CreateComment(context.Context, string, string, int, string) error { return nil }

func (f *fakeGateway) UpdateIssue(context.Context, string, string, int, github.IssueUpdate) error {
	return nil
}

func newTestImporter(t *testing.T, gw github.Gateway) (*Importer, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	return New(s, gw, "https://hubboard.example.com"), s
}

func importInput() ImportInput {
	return ImportInput{
		RepoID:          42,
		RepoName:        "hello-world",
		RepoDescription: "My first repo",
		RepoURL:         "https://github.com/octocat/hello-world",
		Owner:           "octocat",
		Repo:            "hello-world",
	}
}

func TestImportRepository(t *testing.T) {
	now := time.Now().UTC()
	gw := &fakeGateway{
		issues: []github.Issue{
			{ID: 1, Number: 1, Title: "Crash on startup", State: "open", Labels: []string{"bug"}, CreatedAt: now},
			{ID: 2, Number: 2, Title: "Fix it now", State: "open", Labels: []string{"urgent"}, CreatedAt: now},
			{ID: 3, Number: 3, Title: "Some PR", State: "open", IsPullRequest: true, CreatedAt: now},
			{ID: 4, Number: 4, Title: "Nice to have", State: "closed", CreatedAt: now},
		},
	}
	imp, s := newTestImporter(t, gw)
	ctx := context.Background()

	result, err := imp.ImportRepository(ctx, importInput())
	require.NoError(t, err)
	require.NotNil(t, result.Project)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 3, result.ImportedTasks, "pull requests are filtered out")

	p := result.Project
	assert.Equal(t, "hello-world", p.Name)
	assert.Equal(t, "42", p.GitHubRepoID)
	assert.NotEmpty(t, p.Gradient)

	// Five seeded columns in board order.
	cols, err := s.ListColumns(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, cols, 5)
	assert.Equal(t, models.ColumnBacklog, cols[0].Name)
	assert.Equal(t, models.ColumnDone, cols[4].Name)

	// All imported tasks land in Backlog as todo, ordered by fetch position.
	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ColumnID: cols[0].ID})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "Crash on startup", tasks[0].Title)
	assert.Equal(t, models.TaskPriorityMedium, tasks[0].Priority)
	assert.Equal(t, models.TaskPriorityHigh, tasks[1].Priority)
	assert.Equal(t, models.TaskPriorityLow, tasks[2].Priority)
	for i, task := range tasks {
		assert.Equal(t, i, task.Order)
		assert.Equal(t, models.TaskStatusTodo, task.Status)
	}

	// Webhook registered against the configured base URL and persisted.
	assert.Equal(t, "https://hubboard.example.com/api/v1/webhooks/github", gw.createdURL)
	hook, err := s.GetWebhookByRepoID(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, hook)
	assert.Equal(t, "314", hook.HookID)
	assert.NotEmpty(t, hook.Secret)

	activities, err := s.ListActivities(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityImported, activities[0].Type)
	assert.Contains(t, activities[0].Description, "Imported 3 issues")
}

func TestImportRepository_Conflict(t *testing.T) {
	imp, _ := newTestImporter(t, &fakeGateway{})
	ctx := context.Background()

	first, err := imp.ImportRepository(ctx, importInput())
	require.NoError(t, err)

	_, err = imp.ImportRepository(ctx, importInput())
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.Project.ID, conflict.ProjectID)
}

func TestImportRepository_MissingFields(t *testing.T) {
	imp, _ := newTestImporter(t, &fakeGateway{})

	_, err := imp.ImportRepository(context.Background(), ImportInput{Owner: "octocat"})
	assert.Error(t, err)
}

func TestImportRepository_WebhookFailureIsWarning(t *testing.T) {
	gw := &fakeGateway{hookErr: errors.New("upstream unavailable")}
	imp, s := newTestImporter(t, gw)
	ctx := context.Background()

	result, err := imp.ImportRepository(ctx, importInput())
	require.NoError(t, err, "webhook failure must not fail the import")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "webhook registration failed")

	// No webhook record is written for a failed registration.
	hook, err := s.GetWebhookByRepoID(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, hook)
}

func TestImportRepository_HookExistsIsWarning(t *testing.T) {
	gw := &fakeGateway{hookErr: github.ErrHookExists}
	imp, _ := newTestImporter(t, gw)

	result, err := imp.ImportRepository(context.Background(), importInput())
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "already exists")
}

func TestImportRepository_IssueListFailureIsWarning(t *testing.T) {
	gw := &fakeGateway{listErr: errors.New("rate limited")}
	imp, s := newTestImporter(t, gw)
	ctx := context.Background()

	result, err := imp.ImportRepository(ctx, importInput())
	require.NoError(t, err, "issue import failure leaves a valid empty project")
	assert.Zero(t, result.ImportedTasks)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "issue import failed")

	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ProjectID: result.Project.ID})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateProject_Plain(t *testing.T) {
	imp, s := newTestImporter(t, &fakeGateway{})
	ctx := context.Background()

	result, err := imp.CreateProject(ctx, CreateProjectInput{Name: "My Board", Description: "scratch"})
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.Project.GitHubRepoID)

	cols, err := s.ListColumns(ctx, result.Project.ID)
	require.NoError(t, err)
	assert.Len(t, cols, 5)

	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ProjectID: result.Project.ID})
	require.NoError(t, err)
	assert.Empty(t, tasks, "no starter task without a repository")
}

func TestCreateProject_EmptyName(t *testing.T) {
	imp, _ := newTestImporter(t, &fakeGateway{})

	_, err := imp.CreateProject(context.Background(), CreateProjectInput{Name: "   "})
	assert.Error(t, err)
}

func TestCreateProject_WithGithubRepo(t *testing.T) {
	gw := &fakeGateway{}
	imp, s := newTestImporter(t, gw)
	ctx := context.Background()

	result, err := imp.CreateProject(ctx, CreateProjectInput{
		Name:             "My New App",
		Description:      "an app",
		IsPrivate:        true,
		CreateGithubRepo: true,
	})
	require.NoError(t, err)

	require.NotNil(t, gw.createdRepo)
	assert.Equal(t, "my-new-app", gw.createdRepo.Name, "repo name is slugified")
	assert.True(t, gw.createdRepo.Private)

	p := result.Project
	assert.Equal(t, "99", p.GitHubRepoID)
	assert.Equal(t, "hubber", p.GitHubOwner)

	// Fresh repositories get a starter README task in Backlog.
	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ProjectID: p.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Setup project README", tasks[0].Title)
	assert.Equal(t, models.TaskPriorityMedium, tasks[0].Priority)

	hook, err := s.GetWebhookByRepoID(ctx, "99")
	require.NoError(t, err)
	require.NotNil(t, hook)
}

func TestCreateProject_RepoCreationFailureIsFatal(t *testing.T) {
	gw := &fakeGateway{repoErr: fmt.Errorf("name already exists")}
	imp, s := newTestImporter(t, gw)
	ctx := context.Background()

	_, err := imp.CreateProject(ctx, CreateProjectInput{Name: "Taken", CreateGithubRepo: true})
	require.Error(t, err)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects, "no project is left behind on repo creation failure")
}
