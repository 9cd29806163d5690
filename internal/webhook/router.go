package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Handler processes decoded webhook events. Implemented by the sync engine.
type Handler interface {
	HandleIssues(ctx context.Context, ev *IssuesEvent) error
	HandlePullRequest(ctx context.Context, ev *PullRequestEvent) error
	HandleIssueComment(ctx context.Context, ev *IssueCommentEvent) error
	HandlePush(ctx context.Context, ev *PushEvent) error
}

// Router dispatches verified payloads to the handler for their event type.
// It is stateless and has no side effects beyond dispatch.
type Router struct {
	handler Handler
}

// NewRouter returns a Router dispatching to the given handler.
func NewRouter(h Handler) *Router {
	return &Router{handler: h}
}

// Dispatch decodes the payload for the given event type and invokes the
// matching handler. Unrecognized event types are logged and acknowledged;
// GitHub must not see retries for events we intentionally ignore.
func (r *Router) Dispatch(ctx context.Context, event string, body []byte) error {
	switch event {
	case "issues":
		var ev IssuesEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decode issues payload: %w", err)
		}
		return r.handler.HandleIssues(ctx, &ev)
	case "pull_request":
		var ev PullRequestEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decode pull_request payload: %w", err)
		}
		return r.handler.HandlePullRequest(ctx, &ev)
	case "issue_comment":
		var ev IssueCommentEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decode issue_comment payload: %w", err)
		}
		return r.handler.HandleIssueComment(ctx, &ev)
	case "push":
		var ev PushEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decode push payload: %w", err)
		}
		return r.handler.HandlePush(ctx, &ev)
	default:
		slog.Info("ignoring unhandled webhook event", "event", event)
		return nil
	}
}
