package models

import "time"

// Project represents a task board, optionally bound to a GitHub repository.
// At most one project may be bound to a given repository id.
type Project struct {
	ID            string
	Name          string
	Description   string
	Gradient      string
	GitHubRepoID  string // numeric repository id as a string; empty when unbound
	GitHubRepoURL string
	GitHubOwner   string
	GitHubRepo    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Gradients are the card backgrounds assigned round-robin-randomly at
// project creation.
var Gradients = []string{
	"linear-gradient(135deg, #667eea 0%, #764ba2 100%)",
	"linear-gradient(135deg, #f093fb 0%, #f5576c 100%)",
	"linear-gradient(135deg, #4facfe 0%, #00f2fe 100%)",
	"linear-gradient(135deg, #43e97b 0%, #38f9d7 100%)",
	"linear-gradient(135deg, #fa709a 0%, #fee140 100%)",
	"linear-gradient(135deg, #30cfd0 0%, #330867 100%)",
}
