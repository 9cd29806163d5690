package webhook

// Typed GitHub webhook payloads. Only the fields the sync engine consumes
// are decoded; everything else in the delivery is ignored.

// Repository identifies the repository a delivery belongs to. Its numeric ID
// is the key used to resolve the owning project.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// Sender is the GitHub account that triggered the delivery.
type Sender struct {
	Login string `json:"login"`
}

// Envelope is the minimal decoding used to locate the webhook secret before
// signature verification. Verification itself always runs over the raw bytes.
type Envelope struct {
	Repository Repository `json:"repository"`
}

// Issue is the issue object embedded in issues and issue_comment events.
type Issue struct {
	ID     int64  `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
}

// IssuesEvent is the payload of an "issues" delivery.
type IssuesEvent struct {
	Action     string     `json:"action"`
	Issue      Issue      `json:"issue"`
	Repository Repository `json:"repository"`
	Sender     Sender     `json:"sender"`
}

// PullRequestEvent is the payload of a "pull_request" delivery.
type PullRequestEvent struct {
	Action      string `json:"action"`
	PullRequest struct {
		ID     int64  `json:"id"`
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		State  string `json:"state"`
		Merged bool   `json:"merged"`
		Head   struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository Repository `json:"repository"`
	Sender     Sender     `json:"sender"`
}

// IssueCommentEvent is the payload of an "issue_comment" delivery.
type IssueCommentEvent struct {
	Action  string `json:"action"`
	Issue   Issue  `json:"issue"`
	Comment struct {
		ID   int64  `json:"id"`
		Body string `json:"body"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"comment"`
	Repository Repository `json:"repository"`
	Sender     Sender     `json:"sender"`
}

// PushEvent is the payload of a "push" delivery. Ref carries the full
// "refs/heads/<branch>" form.
type PushEvent struct {
	Ref     string `json:"ref"`
	Commits []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"commits"`
	Repository Repository `json:"repository"`
	Sender     Sender     `json:"sender"`
}
