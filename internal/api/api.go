package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hubboard/hubboard/internal/github"
	"github.com/hubboard/hubboard/internal/importer"
	"github.com/hubboard/hubboard/internal/models"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/hubboard/hubboard/internal/webhook"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	gh       github.Gateway
	importer *importer.Importer
	router   *webhook.Router
}

// NewServer creates a new API server. The webhook router dispatches verified
// deliveries to the sync engine.
func NewServer(s store.Store, gw github.Gateway, imp *importer.Importer, router *webhook.Router) *Server {
	return &Server{
		store:    s,
		gh:       gw,
		importer: imp,
		router:   router,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/webhooks/github", s.receiveWebhook)
	mux.HandleFunc("POST /api/v1/github/import", s.importRepository)

	mux.HandleFunc("GET /api/v1/projects", s.listProjects)
	mux.HandleFunc("POST /api/v1/projects", s.createProject)
	mux.HandleFunc("GET /api/v1/projects/{id}", s.getProject)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", s.deleteProject)

	mux.HandleFunc("GET /api/v1/projects/{id}/board", s.getBoard)
	mux.HandleFunc("GET /api/v1/projects/{id}/activities", s.listActivities)

	mux.HandleFunc("POST /api/v1/projects/{id}/tasks", s.createTask)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.getTask)
	mux.HandleFunc("PUT /api/v1/tasks/{id}", s.updateTask)
	mux.HandleFunc("DELETE /api/v1/tasks/{id}", s.deleteTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/move", s.moveTask)

	mux.HandleFunc("GET /api/v1/tasks/{id}/comments", s.listComments)
	mux.HandleFunc("POST /api/v1/tasks/{id}/comments", s.createComment)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-GitHub-Event, X-GitHub-Delivery, X-Hub-Signature-256")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Webhooks ---

// receiveWebhook is the single GitHub delivery endpoint. Verification runs
// against the raw body bytes; any re-serialization would break the HMAC.
// Acknowledged-but-ignored cases (unconfigured repository, unknown event)
// return 200 so GitHub does not retry them.
func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("X-Hub-Signature-256")
	event := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	if signature == "" || event == "" {
		writeError(w, http.StatusBadRequest, "missing signature or event type")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	var env webhook.Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Repository.ID == 0 {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	hook, err := s.store.GetWebhookByRepoID(r.Context(), strconv.FormatInt(env.Repository.ID, 10))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hook == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook not configured"})
		return
	}

	if err := webhook.Verify(signature, body, hook.Secret); err != nil {
		slog.Warn("webhook signature verification failed",
			"repo", env.Repository.FullName, "delivery", deliveryID)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	if err := s.router.Dispatch(r.Context(), event, body); err != nil {
		slog.Error("webhook processing failed",
			"event", event, "delivery", deliveryID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Webhook processed",
		"event":      event,
		"deliveryId": deliveryID,
	})
}

// --- Import ---

func (s *Server) importRepository(w http.ResponseWriter, r *http.Request) {
	var in importer.ImportInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Clients may send only owner/repo; resolve the rest upstream.
	if in.RepoID == 0 && in.Owner != "" && in.Repo != "" {
		repo, err := s.gh.GetRepository(r.Context(), in.Owner, in.Repo)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.RepoID = repo.ID
		if in.RepoName == "" {
			in.RepoName = repo.Name
		}
		if in.RepoDescription == "" {
			in.RepoDescription = repo.Description
		}
		if in.RepoURL == "" {
			in.RepoURL = repo.URL
		}
	}

	result, err := s.importer.ImportRepository(r.Context(), in)
	if err != nil {
		var conflict *importer.ConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":     "Repository already imported",
				"projectId": conflict.ProjectID,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// --- Projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var in importer.CreateProjectInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := s.importer.CreateProject(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// deleteProject removes a project and, best-effort, its upstream webhook. A
// failed upstream delete leaves a dangling hook whose deliveries will be
// acknowledged as unconfigured from then on.
func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if hook, err := s.store.GetWebhookByProject(r.Context(), id); err == nil && hook != nil {
		if hookID, perr := strconv.ParseInt(hook.HookID, 10, 64); perr == nil {
			if derr := s.gh.DeleteHook(r.Context(), project.GitHubOwner, project.GitHubRepo, hookID); derr != nil {
				slog.Warn("delete upstream webhook failed", "project", id, "error", derr)
			}
		}
	}

	if err := s.store.DeleteProject(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Board ---

// BoardColumn is a column with its tasks, ordered for display.
type BoardColumn struct {
	Column *models.Column
	Tasks  []*models.Task
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	columns, err := s.store.ListColumns(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	board := make([]BoardColumn, 0, len(columns))
	for _, col := range columns {
		tasks, err := s.store.ListTasks(r.Context(), store.TaskListFilter{ColumnID: col.ID})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		board = append(board, BoardColumn{Column: col, Tasks: tasks})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"Project": project,
		"Columns": board,
	})
}

// --- Tasks ---

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(task.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	task.ProjectID = projectID
	if task.Status == "" {
		task.Status = models.TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = models.TaskPriorityMedium
	}

	if task.ColumnID == "" {
		name := models.StatusColumn[task.Status]
		if name == "" {
			name = models.ColumnTodo
		}
		col, err := s.store.GetColumnByName(r.Context(), projectID, name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		task.ColumnID = col.ID
	}

	// New tasks land at the bottom of their column.
	count, err := s.store.CountColumnTasks(r.Context(), task.ColumnID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	task.Order = count

	if err := s.store.CreateTask(r.Context(), &task); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_ = s.store.CreateActivity(r.Context(), &models.Activity{
		ProjectID:   projectID,
		TaskID:      task.ID,
		Type:        models.ActivityCreated,
		Description: "Task created: " + task.Title,
	})

	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// updateTask edits title, description and priority. Content edits on a task
// that tracks an issue are pushed upstream best-effort; the local write is
// authoritative either way.
func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var patch struct {
		Title       *string
		Description *string
		Priority    *models.TaskPriority
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) != "" {
		existing.Title = *patch.Title
	}
	if patch.Description != nil {
		existing.Description = *patch.Description
	}
	if patch.Priority != nil {
		existing.Priority = *patch.Priority
	}

	if err := s.store.UpdateTask(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if existing.GitHubIssueNumber != 0 {
		if project, perr := s.store.GetProject(r.Context(), existing.ProjectID); perr == nil && project.GitHubOwner != "" {
			upd := github.IssueUpdate{Title: patch.Title, Body: patch.Description}
			if uerr := s.gh.UpdateIssue(r.Context(), project.GitHubOwner, project.GitHubRepo, existing.GitHubIssueNumber, upd); uerr != nil {
				slog.Warn("push task edit upstream failed", "task", id, "error", uerr)
			}
		}
	}

	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// moveTask places a task in another column. Status follows the column when
// the target is one of the well-known lanes; moving to Done stamps
// CompletedAt, moving out of Done clears it, and the first move into
// In Progress stamps StartedAt. Tracked issues get their open/closed state
// pushed upstream best-effort.
func (s *Server) moveTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req struct {
		ColumnID string
		Order    int
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ColumnID == "" {
		writeError(w, http.StatusBadRequest, "ColumnID is required")
		return
	}

	col, err := s.store.GetColumn(r.Context(), req.ColumnID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if col.ProjectID != task.ProjectID {
		writeError(w, http.StatusBadRequest, "column belongs to another project")
		return
	}

	wasDone := task.Status == models.TaskStatusDone
	task.ColumnID = col.ID
	task.Order = req.Order

	newStatus := columnStatus(col.Name)
	if newStatus != "" {
		task.Status = newStatus
	}

	now := time.Now().UTC()
	switch {
	case newStatus == models.TaskStatusDone && !wasDone:
		task.CompletedAt = &now
	case newStatus != models.TaskStatusDone && wasDone:
		task.CompletedAt = nil
	}
	if newStatus == models.TaskStatusInProgress && task.StartedAt == nil {
		task.StartedAt = &now
	}

	if err := s.store.UpdateTask(r.Context(), task); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if task.GitHubIssueNumber != 0 && (newStatus == models.TaskStatusDone) != wasDone {
		s.pushIssueState(r, task, newStatus == models.TaskStatusDone)
	}

	writeJSON(w, http.StatusOK, task)
}

// columnStatus maps a well-known column name back to a task status. Custom
// column names map to nothing and leave status untouched.
func columnStatus(name string) models.TaskStatus {
	for status, col := range models.StatusColumn {
		if col == name {
			return status
		}
	}
	return ""
}

func (s *Server) pushIssueState(r *http.Request, task *models.Task, closed bool) {
	project, err := s.store.GetProject(r.Context(), task.ProjectID)
	if err != nil || project.GitHubOwner == "" {
		return
	}
	state := "open"
	if closed {
		state = "closed"
	}
	upd := github.IssueUpdate{State: &state}
	if err := s.gh.UpdateIssue(r.Context(), project.GitHubOwner, project.GitHubRepo, task.GitHubIssueNumber, upd); err != nil {
		slog.Warn("push issue state upstream failed", "task", task.ID, "error", err)
	}
}

// --- Comments ---

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	comments, err := s.store.ListTaskComments(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// createComment stores a local comment and mirrors it to the tracked issue
// best-effort. Mirrored comments arrive back via issue_comment webhooks under
// their own GitHub id, so the local original and the mirror stay distinct.
func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	task, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var comment models.Comment
	if err := json.NewDecoder(r.Body).Decode(&comment); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(comment.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	comment.TaskID = taskID
	comment.GitHubCommentID = ""

	if err := s.store.CreateComment(r.Context(), &comment); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_ = s.store.CreateActivity(r.Context(), &models.Activity{
		ProjectID:   task.ProjectID,
		TaskID:      task.ID,
		Type:        models.ActivityCommented,
		Description: "Commented on: " + task.Title,
		Actor:       comment.Author,
	})

	if task.GitHubIssueNumber != 0 {
		if project, perr := s.store.GetProject(r.Context(), task.ProjectID); perr == nil && project.GitHubOwner != "" {
			if cerr := s.gh.CreateComment(r.Context(), project.GitHubOwner, project.GitHubRepo, task.GitHubIssueNumber, comment.Content); cerr != nil {
				slog.Warn("mirror comment upstream failed", "task", taskID, "error", cerr)
			}
		}
	}

	writeJSON(w, http.StatusCreated, comment)
}

// --- Activities ---

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	activities, err := s.store.ListActivities(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, activities)
}
