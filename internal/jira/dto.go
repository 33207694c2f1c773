package jira

import (
	"strings"
	"time"
)

// jiraTimeLayout is the timestamp format Jira emits on issue fields.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// ParseTime parses a Jira timestamp, falling back to RFC 3339 for
// webhook payloads that use it.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(jiraTimeLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Issue is the subset of Jira issue data the sync engine consumes.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

type IssueFields struct {
	Summary     string       `json:"summary"`
	Description string       `json:"description,omitempty"`
	Status      StatusField  `json:"status"`
	Project     ProjectField `json:"project"`
	Updated     string       `json:"updated,omitempty"`
}

type StatusField struct {
	Name string `json:"name"`
}

type ProjectField struct {
	Key string `json:"key"`
}

// UpdatedTime parses the issue's updated field. Zero when absent or
// malformed; callers treat a zero as "unknown, always newer locally".
func (i *Issue) UpdatedTime() time.Time {
	if i.Fields.Updated == "" {
		return time.Time{}
	}
	t, err := ParseTime(i.Fields.Updated)
	if err != nil {
		return time.Time{}
	}
	return t
}

// StatusIs reports a case-insensitive substring match against the
// issue's status name.
func (i *Issue) StatusIs(name string) bool {
	return strings.Contains(strings.ToLower(i.Fields.Status.Name), strings.ToLower(name))
}

// CreateEpicInput is the payload for creating a WBS-backed Epic.
type CreateEpicInput struct {
	ProjectKey  string
	Summary     string
	Description string
}

// CreateIssueInput is the payload for creating an activity-backed issue.
// EpicKey links the issue under its parent WBS Epic when set.
type CreateIssueInput struct {
	ProjectKey  string
	Summary     string
	Description string
	IssueType   string
	EpicKey     string
}

// Transition is one workflow move available on an issue.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	To   struct {
		Name string `json:"name"`
	} `json:"to"`
}

// createRequest is the wire shape of POST /rest/api/2/issue.
type createRequest struct {
	Fields createFields `json:"fields"`
}

type createFields struct {
	Project     ProjectField  `json:"project"`
	Summary     string        `json:"summary"`
	Description string        `json:"description,omitempty"`
	IssueType   issueTypeName `json:"issuetype"`
	EpicLink    string        `json:"customfield_10011,omitempty"`
}

type issueTypeName struct {
	Name string `json:"name"`
}

// createResponse is the wire shape Jira returns on issue creation.
type createResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type updateRequest struct {
	Fields updateFields `json:"fields"`
}

type updateFields struct {
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
}

type transitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}

type transitionRequest struct {
	Transition struct {
		ID string `json:"id"`
	} `json:"transition"`
}
