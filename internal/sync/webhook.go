package sync

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"dpm-server/internal/domain"
	"dpm-server/internal/jira"
)

// WebhookEvent is the parsed Jira webhook body.
type WebhookEvent struct {
	WebhookEvent string     `json:"webhookEvent"`
	Issue        jira.Issue `json:"issue"`
	Timestamp    int64      `json:"timestamp,omitempty"`
}

// WebhookResponse is the body returned for every webhook, failures
// included; only an invalid signature escapes as a transport-level
// error.
type WebhookResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	EventType string `json:"event_type"`
	IssueKey  string `json:"issue_key,omitempty"`
	Action    string `json:"action"`
}

// Signature computes the expected webhook signature for a body:
// sha256=<hex of HMAC-SHA-256>.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the X-Hub-Signature header in constant time.
// With no configured secret, verification is bypassed.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" {
		return true
	}
	expected := Signature(secret, body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(header)) == 1
}

// ProcessWebhook applies one verified webhook event. It never fails the
// endpoint: every outcome, errors included, lands in the response body
// and the audit log.
func (e *Engine) ProcessWebhook(body []byte, dir Directory) *WebhookResponse {
	started := e.now()

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return &WebhookResponse{
			Success: false,
			Message: "malformed webhook body: " + err.Error(),
			Action:  "rejected_malformed",
		}
	}

	resp := &WebhookResponse{
		Success:   true,
		EventType: event.WebhookEvent,
		IssueKey:  event.Issue.Key,
	}

	integration, ok := dir.IntegrationByProjectKey(event.Issue.Fields.Project.Key)
	if !ok {
		resp.Action = "ignored_integration_not_found"
		log.Debug().Str("project", event.Issue.Fields.Project.Key).Msg("Webhook for unknown project ignored")
		// No integration to partition under; the ignore is still audited.
		e.audit.Record(domain.SyncLogEntry{
			SyncType:   domain.SyncWebhook,
			Status:     domain.SyncSuccess,
			Action:     resp.Action,
			DurationMS: e.sinceMS(started),
		})
		return resp
	}
	if !integration.Enabled {
		resp.Action = "ignored_sync_disabled"
		e.recordWebhook(integration, nil, resp, started, "")
		return resp
	}

	switch event.WebhookEvent {
	case "jira:issue_updated":
		e.handleIssueUpdated(&event, integration, dir, resp)
	case "jira:issue_created":
		e.handleIssueCreated(&event, integration, resp)
	case "jira:issue_deleted":
		e.handleIssueDeleted(&event, integration, resp)
	default:
		resp.Action = "ignored_unsupported_event"
	}

	mappingID := e.mappingIDForKey(event.Issue.Key)
	e.recordWebhook(integration, mappingID, resp, started, resp.Message)
	return resp
}

func (e *Engine) handleIssueUpdated(event *WebhookEvent, integration *domain.JiraIntegration, dir Directory, resp *WebhookResponse) {
	mapping, ok := e.mappings.ByIssueKey(event.Issue.Key)
	if !ok {
		resp.Action = "ignored_no_mapping"
		return
	}
	resp.Action = e.applyPull(&event.Issue, mapping, dir)
}

// handleIssueCreated only refreshes the mapping's last_synced_at; the
// mapping itself is created by the push path.
func (e *Engine) handleIssueCreated(event *WebhookEvent, integration *domain.JiraIntegration, resp *WebhookResponse) {
	mapping, ok := e.mappings.ByIssueKey(event.Issue.Key)
	if !ok {
		resp.Action = "ignored_no_mapping"
		return
	}
	mapping.LastSyncedAt = e.now()
	e.mappings.Save(mapping)
	resp.Action = "refreshed_mapping"
}

// handleIssueDeleted hard-deletes the mapping. An already-absent
// mapping is a no-op success, which makes double delivery harmless.
func (e *Engine) handleIssueDeleted(event *WebhookEvent, integration *domain.JiraIntegration, resp *WebhookResponse) {
	if _, ok := e.mappings.ByIssueKey(event.Issue.Key); !ok {
		resp.Action = "noop_mapping_absent"
		return
	}
	e.mappings.DeleteByIssueKey(event.Issue.Key)
	resp.Action = "deleted_mapping"
}

func (e *Engine) mappingIDForKey(issueKey string) *uuid.UUID {
	if issueKey == "" {
		return nil
	}
	if mapping, ok := e.mappings.ByIssueKey(issueKey); ok {
		return &mapping.ID
	}
	return nil
}

func (e *Engine) recordWebhook(integration *domain.JiraIntegration, mappingID *uuid.UUID, resp *WebhookResponse, started time.Time, errMsg string) {
	e.audit.Record(domain.SyncLogEntry{
		IntegrationID: integration.ID,
		MappingID:     mappingID,
		SyncType:      domain.SyncWebhook,
		Status:        domain.SyncSuccess,
		ItemsSynced:   boolToInt(strings.HasPrefix(resp.Action, "updated") || strings.HasPrefix(resp.Action, "deleted") || strings.HasPrefix(resp.Action, "refreshed")),
		Action:        resp.Action,
		ErrorMessage:  errMsg,
		DurationMS:    e.sinceMS(started),
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
