// Package jira is a thin Data Center REST client covering the calls the
// sync engine needs: issue and epic creation, updates, reads, and
// workflow transitions.
package jira

import (
	"context"
	"time"
)

// Client is the interface the sync engine programs against.
type Client interface {
	CreateEpic(ctx context.Context, in CreateEpicInput) (*Issue, error)
	CreateIssue(ctx context.Context, in CreateIssueInput) (*Issue, error)
	UpdateIssue(ctx context.Context, key, summary, description string) error
	GetIssue(ctx context.Context, key string) (*Issue, error)
	GetTransitions(ctx context.Context, key string) ([]Transition, error)
	TransitionIssue(ctx context.Context, key, transitionID string) error
}

// Config holds the authentication and connection settings for Jira.
type Config struct {
	BaseURL string

	// Personal Access Token; preferred when set.
	Token string

	// Data Center session cookies, used when no token is available.
	XsrfToken  string
	SessionID  string
	RememberMe string

	// Minimum spacing between write requests.
	RequestDelay time.Duration
}

// NewClient creates a Jira client for the provided configuration.
func NewClient(cfg Config) Client {
	return NewDataCenterClient(cfg)
}
