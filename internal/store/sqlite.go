package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hubboard/hubboard/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool, which
	// also serializes concurrent webhook deliveries for the same task.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Projects ---

func (s *SQLiteStore) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, gradient, github_repo_id, github_repo_url, github_owner, github_repo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Gradient,
		p.GitHubRepoID, p.GitHubRepoURL, p.GitHubOwner, p.GitHubRepo,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

const projectColumns = `id, name, description, gradient, github_repo_id, github_repo_url, github_owner, github_repo, created_at, updated_at`

func scanProject(row *sql.Row) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Gradient,
		&p.GitHubRepoID, &p.GitHubRepoURL, &p.GitHubOwner, &p.GitHubRepo,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetProjectByRepoID(ctx context.Context, repoID string) (*models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE github_repo_id = ?`, repoID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found for repository: %s", repoID)
	}
	if err != nil {
		return nil, fmt.Errorf("get project by repo id: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*models.Project
	for rows.Next() {
		p := &models.Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Gradient,
			&p.GitHubRepoID, &p.GitHubRepoURL, &p.GitHubOwner, &p.GitHubRepo,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name=?, description=?, gradient=?, github_repo_id=?, github_repo_url=?, github_owner=?, github_repo=?, updated_at=?
		WHERE id=?`,
		p.Name, p.Description, p.Gradient,
		p.GitHubRepoID, p.GitHubRepoURL, p.GitHubOwner, p.GitHubRepo,
		p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("project not found: %s", p.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("project not found: %s", id)
	}
	return nil
}

// --- Columns ---

func (s *SQLiteStore) CreateColumn(ctx context.Context, c *models.Column) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO columns (id, project_id, name, "order", color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.Name, c.Order, c.Color, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create column: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetColumn(ctx context.Context, id string) (*models.Column, error) {
	c := &models.Column{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, "order", color, created_at, updated_at
		FROM columns WHERE id = ?`, id,
	).Scan(&c.ID, &c.ProjectID, &c.Name, &c.Order, &c.Color, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("column not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get column: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) GetColumnByName(ctx context.Context, projectID, name string) (*models.Column, error) {
	c := &models.Column{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, "order", color, created_at, updated_at
		FROM columns WHERE project_id = ? AND name = ?`, projectID, name,
	).Scan(&c.ID, &c.ProjectID, &c.Name, &c.Order, &c.Color, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("column not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get column by name: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListColumns(ctx context.Context, projectID string) ([]*models.Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, "order", color, created_at, updated_at
		FROM columns WHERE project_id = ? ORDER BY "order"`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []*models.Column
	for rows.Next() {
		c := &models.Column{}
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Order, &c.Color, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

func (s *SQLiteStore) DeleteColumn(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM columns WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("column not found: %s", id)
	}
	return nil
}

// --- Tasks ---

const taskColumns = `id, project_id, column_id, title, description, status, priority, "order", github_issue_number, github_issue_id, github_pr_number, github_pr_id, github_branch, github_state, started_at, completed_at, created_at, updated_at`

func (s *SQLiteStore) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = newULID()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.ColumnID, t.Title, t.Description,
		string(t.Status), string(t.Priority), t.Order,
		t.GitHubIssueNumber, t.GitHubIssueID, t.GitHubPRNumber, t.GitHubPRID,
		t.GitHubBranch, t.GitHubState,
		t.StartedAt, t.CompletedAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// CreateTasks inserts tasks in a single transaction. Used by the bulk import
// path so a partial failure does not leave a half-imported board.
func (s *SQLiteStore) CreateTasks(ctx context.Context, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = newULID()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.ProjectID, t.ColumnID, t.Title, t.Description,
			string(t.Status), string(t.Priority), t.Order,
			t.GitHubIssueNumber, t.GitHubIssueID, t.GitHubPRNumber, t.GitHubPRID,
			t.GitHubBranch, t.GitHubState,
			t.StartedAt, t.CompletedAt, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("create task %q: %w", t.Title, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var status, priority string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&t.ID, &t.ProjectID, &t.ColumnID, &t.Title, &t.Description,
		&status, &priority, &t.Order,
		&t.GitHubIssueNumber, &t.GitHubIssueID, &t.GitHubPRNumber, &t.GitHubPRID,
		&t.GitHubBranch, &t.GitHubState,
		&startedAt, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	t.Priority = models.TaskPriority(priority)
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return t, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskListFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var conditions []string
	var args []any

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.ColumnID != "" {
		conditions = append(conditions, "column_id = ?")
		args = append(args, filter.ColumnID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Branch != "" {
		conditions = append(conditions, "github_branch = ?")
		args = append(args, filter.Branch)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY "order", created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, t *models.Task) error {
	t.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET column_id=?, title=?, description=?, status=?, priority=?, "order"=?, github_issue_number=?, github_issue_id=?, github_pr_number=?, github_pr_id=?, github_branch=?, github_state=?, started_at=?, completed_at=?, updated_at=?
		WHERE id=?`,
		t.ColumnID, t.Title, t.Description, string(t.Status), string(t.Priority), t.Order,
		t.GitHubIssueNumber, t.GitHubIssueID, t.GitHubPRNumber, t.GitHubPRID,
		t.GitHubBranch, t.GitHubState,
		t.StartedAt, t.CompletedAt, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task not found: %s", t.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) CountColumnTasks(ctx context.Context, columnID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE column_id = ?", columnID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count column tasks: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) FindTaskByIssueNumber(ctx context.Context, projectID string, issueNumber int) (*models.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		WHERE project_id = ? AND github_issue_number = ?`, projectID, issueNumber))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find task by issue number: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) FindTaskByPR(ctx context.Context, projectID string, prNumber int, branch string) (*models.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		WHERE project_id = ? AND (github_pr_number = ? OR (? != '' AND github_branch = ?))
		ORDER BY created_at LIMIT 1`, projectID, prNumber, branch, branch))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find task by pr: %w", err)
	}
	return t, nil
}

// moveTasks builds the single UPDATE for a TaskMove against one external key
// column. The whole move is one statement so redeliveries converge.
func (s *SQLiteStore) moveTasks(ctx context.Context, keyColumn string, keyValue any, projectID string, mv TaskMove) (int64, error) {
	sets := []string{"status=?", "column_id=?", "updated_at=?"}
	args := []any{string(mv.Status), mv.ColumnID, time.Now().UTC()}

	if mv.GitHubState != "" {
		sets = append(sets, "github_state=?")
		args = append(args, mv.GitHubState)
	}
	if mv.TouchCompleted {
		sets = append(sets, "completed_at=?")
		args = append(args, mv.CompletedAt)
	}

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE project_id = ? AND %s = ?",
		strings.Join(sets, ", "), keyColumn)
	args = append(args, projectID, keyValue)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("move tasks by %s: %w", keyColumn, err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) MoveTasksByIssueNumber(ctx context.Context, projectID string, issueNumber int, mv TaskMove) (int64, error) {
	return s.moveTasks(ctx, "github_issue_number", issueNumber, projectID, mv)
}

func (s *SQLiteStore) MoveTasksByPRNumber(ctx context.Context, projectID string, prNumber int, mv TaskMove) (int64, error) {
	return s.moveTasks(ctx, "github_pr_number", prNumber, projectID, mv)
}

func (s *SQLiteStore) UpdateTasksContentByIssueNumber(ctx context.Context, projectID string, issueNumber int, title, description string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title=?, description=?, updated_at=?
		WHERE project_id = ? AND github_issue_number = ?`,
		title, description, time.Now().UTC(), projectID, issueNumber,
	)
	if err != nil {
		return 0, fmt.Errorf("update tasks content: %w", err)
	}
	return result.RowsAffected()
}

// PromoteBranchTasks moves tasks on the given branch from todo into the given
// column. The status guard lives in the statement itself, making the
// promotion one-directional under concurrent deliveries.
func (s *SQLiteStore) PromoteBranchTasks(ctx context.Context, projectID, branch, columnID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status=?, column_id=?, started_at=COALESCE(started_at, ?), updated_at=?
		WHERE project_id = ? AND github_branch = ? AND status = ?`,
		string(models.TaskStatusInProgress), columnID, time.Now().UTC(), time.Now().UTC(),
		projectID, branch, string(models.TaskStatusTodo),
	)
	if err != nil {
		return 0, fmt.Errorf("promote branch tasks: %w", err)
	}
	return result.RowsAffected()
}

// --- Comments ---

func (s *SQLiteStore) CreateComment(ctx context.Context, c *models.Comment) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (id, task_id, content, github_comment_id, author, edited, edited_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TaskID, c.Content, c.GitHubCommentID, c.Author,
		boolToInt(c.Edited), c.EditedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTaskComments(ctx context.Context, taskID string) ([]*models.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, content, github_comment_id, author, edited, edited_at, created_at, updated_at
		FROM comments WHERE task_id = ? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []*models.Comment
	for rows.Next() {
		c := &models.Comment{}
		var editedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Content, &c.GitHubCommentID, &c.Author,
			&c.Edited, &editedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if editedAt.Valid {
			c.EditedAt = &editedAt.Time
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *SQLiteStore) UpdateCommentByGitHubID(ctx context.Context, githubCommentID, content string) (int64, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE comments SET content=?, edited=1, edited_at=?, updated_at=?
		WHERE github_comment_id = ?`,
		content, now, now, githubCommentID,
	)
	if err != nil {
		return 0, fmt.Errorf("update comment by github id: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) DeleteCommentByGitHubID(ctx context.Context, githubCommentID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM comments WHERE github_comment_id = ?", githubCommentID)
	if err != nil {
		return 0, fmt.Errorf("delete comment by github id: %w", err)
	}
	return result.RowsAffected()
}

// --- Activities ---

func (s *SQLiteStore) CreateActivity(ctx context.Context, a *models.Activity) error {
	if a.ID == "" {
		a.ID = newULID()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (id, project_id, task_id, type, description, metadata, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.TaskID, string(a.Type), a.Description, a.Metadata, a.Actor, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActivities(ctx context.Context, projectID string, limit int) ([]*models.Activity, error) {
	query := `SELECT id, project_id, task_id, type, description, metadata, actor, created_at
		FROM activities WHERE project_id = ? ORDER BY created_at DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var activities []*models.Activity
	for rows.Next() {
		a := &models.Activity{}
		var typ string
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.TaskID, &typ, &a.Description, &a.Metadata, &a.Actor, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Type = models.ActivityType(typ)
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// --- Webhooks ---

func (s *SQLiteStore) CreateWebhook(ctx context.Context, w *models.Webhook) error {
	if w.ID == "" {
		w.ID = newULID()
	}
	w.CreatedAt = time.Now().UTC()

	eventsJSON, err := json.Marshal(w.Events)
	if err != nil {
		eventsJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO webhooks (id, project_id, hook_id, secret, events, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.ProjectID, w.HookID, w.Secret, string(eventsJSON), w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}
	return nil
}

func scanWebhook(row *sql.Row) (*models.Webhook, error) {
	w := &models.Webhook{}
	var eventsJSON string
	err := row.Scan(&w.ID, &w.ProjectID, &w.HookID, &w.Secret, &eventsJSON, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(eventsJSON), &w.Events)
	return w, nil
}

func (s *SQLiteStore) GetWebhookByProject(ctx context.Context, projectID string) (*models.Webhook, error) {
	w, err := scanWebhook(s.db.QueryRowContext(ctx,
		`SELECT id, project_id, hook_id, secret, events, created_at
		FROM webhooks WHERE project_id = ?`, projectID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("webhook not found for project: %s", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook by project: %w", err)
	}
	return w, nil
}

// GetWebhookByRepoID resolves the webhook record through the project bound to
// the given repository id. Returns (nil, nil) when either the project or its
// webhook is absent; the caller treats that as "not configured", not a
// failure.
func (s *SQLiteStore) GetWebhookByRepoID(ctx context.Context, repoID string) (*models.Webhook, error) {
	w, err := scanWebhook(s.db.QueryRowContext(ctx,
		`SELECT w.id, w.project_id, w.hook_id, w.secret, w.events, w.created_at
		FROM webhooks w JOIN projects p ON p.id = w.project_id
		WHERE p.github_repo_id = ?`, repoID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook by repo id: %w", err)
	}
	return w, nil
}

func (s *SQLiteStore) DeleteWebhook(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM webhooks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("webhook not found: %s", id)
	}
	return nil
}
