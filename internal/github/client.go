package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v61/github"
)

// ErrHookExists is returned by CreateHook when GitHub reports the webhook is
// already registered for the repository. Callers treat this as a benign
// conflict, not a failure.
var ErrHookExists = errors.New("webhook already exists for repository")

// Repository represents basic GitHub repository information.
type Repository struct {
	ID            int64
	Name          string
	FullName      string
	Description   string
	URL           string
	Private       bool
	Owner         string
	DefaultBranch string
}

// Issue represents a GitHub issue as returned by the list endpoint. GitHub's
// issue list includes pull requests; IsPullRequest distinguishes them.
type Issue struct {
	ID            int64
	Number        int
	Title         string
	Body          string
	State         string
	Labels        []string
	IsPullRequest bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	ID     int64
	Number int
	Title  string
	Body   string
	State  string
	Merged bool
	Branch string
}

// Hook represents a registered repository webhook.
type Hook struct {
	ID     int64
	Events []string
}

// IssueUpdate holds the fields pushed upstream by UpdateIssue. Nil fields are
// left unchanged.
type IssueUpdate struct {
	Title *string
	Body  *string
	State *string // "open" or "closed"
}

// Gateway is the outbound GitHub API surface. All calls are best-effort and
// independently failable; callers decide whether a failure is fatal.
type Gateway interface {
	GetRepository(ctx context.Context, owner, repo string) (*Repository, error)
	CreateRepository(ctx context.Context, name, description string, private bool) (*Repository, error)
	CreateHook(ctx context.Context, owner, repo, url, secret string, events []string) (*Hook, error)
	DeleteHook(ctx context.Context, owner, repo string, hookID int64) error
	ListIssues(ctx context.Context, owner, repo string) ([]Issue, error)
	ListPullRequests(ctx context.Context, owner, repo string) ([]PullRequest, error)
	CreateComment(ctx context.Context, owner, repo string, issueNumber int, body string) error
	UpdateIssue(ctx context.Context, owner, repo string, issueNumber int, upd IssueUpdate) error
}

// Client implements Gateway using the GitHub REST API.
type Client struct {
	gh *gh.Client
}

// NewClient returns a Client authenticated with the given token. The
// underlying HTTP client carries a hard timeout so no outbound call can hang
// a request.
func NewClient(token string) *Client {
	hc := &http.Client{Timeout: 15 * time.Second}
	c := gh.NewClient(hc)
	if token != "" {
		c = c.WithAuthToken(token)
	}
	return &Client{gh: c}
}

func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}
	return convertRepository(r), nil
}

func (c *Client) CreateRepository(ctx context.Context, name, description string, private bool) (*Repository, error) {
	r, _, err := c.gh.Repositories.Create(ctx, "", &gh.Repository{
		Name:              gh.String(name),
		Description:       gh.String(description),
		Private:           gh.Bool(private),
		AutoInit:          gh.Bool(true),
		GitignoreTemplate: gh.String("Node"),
		LicenseTemplate:   gh.String("mit"),
	})
	if err != nil {
		return nil, fmt.Errorf("create repository %s: %w", name, err)
	}
	return convertRepository(r), nil
}

func convertRepository(r *gh.Repository) *Repository {
	return &Repository{
		ID:            r.GetID(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		URL:           r.GetHTMLURL(),
		Private:       r.GetPrivate(),
		Owner:         r.GetOwner().GetLogin(),
		DefaultBranch: r.GetDefaultBranch(),
	}
}

func (c *Client) CreateHook(ctx context.Context, owner, repo, url, secret string, events []string) (*Hook, error) {
	hook, _, err := c.gh.Repositories.CreateHook(ctx, owner, repo, &gh.Hook{
		Config: &gh.HookConfig{
			URL:         gh.String(url),
			ContentType: gh.String("json"),
			Secret:      gh.String(secret),
		},
		Events: events,
		Active: gh.Bool(true),
	})
	if err != nil {
		var errResp *gh.ErrorResponse
		if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusUnprocessableEntity {
			return nil, ErrHookExists
		}
		return nil, fmt.Errorf("create hook for %s/%s: %w", owner, repo, err)
	}
	return &Hook{ID: hook.GetID(), Events: hook.Events}, nil
}

func (c *Client) DeleteHook(ctx context.Context, owner, repo string, hookID int64) error {
	if _, err := c.gh.Repositories.DeleteHook(ctx, owner, repo, hookID); err != nil {
		return fmt.Errorf("delete hook %d for %s/%s: %w", hookID, owner, repo, err)
	}
	return nil
}

// ListIssues fetches open and closed issues, one page of up to 100. The
// result includes pull requests flagged with IsPullRequest; import callers
// must filter those out.
func (c *Client) ListIssues(ctx context.Context, owner, repo string) ([]Issue, error) {
	raw, _, err := c.gh.Issues.ListByRepo(ctx, owner, repo, &gh.IssueListByRepoOptions{
		State:       "all",
		ListOptions: gh.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, fmt.Errorf("list issues for %s/%s: %w", owner, repo, err)
	}

	issues := make([]Issue, 0, len(raw))
	for _, i := range raw {
		labels := make([]string, 0, len(i.Labels))
		for _, l := range i.Labels {
			labels = append(labels, l.GetName())
		}
		issues = append(issues, Issue{
			ID:            i.GetID(),
			Number:        i.GetNumber(),
			Title:         i.GetTitle(),
			Body:          i.GetBody(),
			State:         i.GetState(),
			Labels:        labels,
			IsPullRequest: i.IsPullRequest(),
			CreatedAt:     i.GetCreatedAt().Time,
			UpdatedAt:     i.GetUpdatedAt().Time,
		})
	}
	return issues, nil
}

func (c *Client) ListPullRequests(ctx context.Context, owner, repo string) ([]PullRequest, error) {
	raw, _, err := c.gh.PullRequests.List(ctx, owner, repo, &gh.PullRequestListOptions{
		State:       "all",
		ListOptions: gh.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, fmt.Errorf("list pull requests for %s/%s: %w", owner, repo, err)
	}

	prs := make([]PullRequest, 0, len(raw))
	for _, pr := range raw {
		prs = append(prs, PullRequest{
			ID:     pr.GetID(),
			Number: pr.GetNumber(),
			Title:  pr.GetTitle(),
			Body:   pr.GetBody(),
			State:  pr.GetState(),
			Merged: pr.GetMerged(),
			Branch: pr.GetHead().GetRef(),
		})
	}
	return prs, nil
}

func (c *Client) CreateComment(ctx context.Context, owner, repo string, issueNumber int, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, issueNumber, &gh.IssueComment{
		Body: gh.String(body),
	})
	if err != nil {
		return fmt.Errorf("create comment on %s/%s#%d: %w", owner, repo, issueNumber, err)
	}
	return nil
}

func (c *Client) UpdateIssue(ctx context.Context, owner, repo string, issueNumber int, upd IssueUpdate) error {
	_, _, err := c.gh.Issues.Edit(ctx, owner, repo, issueNumber, &gh.IssueRequest{
		Title: upd.Title,
		Body:  upd.Body,
		State: upd.State,
	})
	if err != nil {
		return fmt.Errorf("update issue %s/%s#%d: %w", owner, repo, issueNumber, err)
	}
	return nil
}
