package sync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dpm-server/internal/domain"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"webhookEvent":"jira:issue_updated"}`)

	valid := Signature("s3cret", body)
	if !VerifySignature("s3cret", body, valid) {
		t.Error("valid signature rejected")
	}
	if VerifySignature("s3cret", body, "sha256=deadbeef") {
		t.Error("invalid signature accepted")
	}
	if VerifySignature("s3cret", []byte("tampered"), valid) {
		t.Error("signature over different body accepted")
	}
	// No configured secret bypasses verification.
	if !VerifySignature("", body, "") {
		t.Error("empty secret should bypass verification")
	}
}

func webhookBody(t *testing.T, eventType, issueKey, projectKey, status, updated string) []byte {
	t.Helper()
	event := map[string]any{
		"webhookEvent": eventType,
		"issue": map[string]any{
			"id":  issueKey,
			"key": issueKey,
			"fields": map[string]any{
				"summary": "Integrate avionics",
				"status":  map[string]string{"name": status},
				"project": map[string]string{"key": projectKey},
				"updated": updated,
			},
		},
	}
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal webhook body: %v", err)
	}
	return body
}

func TestProcessWebhookIssueUpdated(t *testing.T) {
	mappings := newMemMappings()
	audit := NewAuditLog()
	engine := NewEngine(newFakeJira(), mappings, audit)

	dir := newMemDirectory()
	integration := testIntegration()
	dir.integrations["DPM"] = integration

	activity := &domain.Activity{ID: uuid.New(), Name: "Integrate", PercentComplete: decimal.Zero}
	dir.activities[activity.ID] = activity
	mappings.Save(&domain.JiraMapping{
		ID: uuid.New(), IntegrationID: integration.ID, ActivityID: &activity.ID,
		JiraIssueKey: "DPM-1", SyncDirection: domain.SyncBidirectional,
		LastJiraUpdated: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	})

	body := webhookBody(t, "jira:issue_updated", "DPM-1", "DPM", "Done", "2026-08-20T12:00:00.000+0000")
	resp := engine.ProcessWebhook(body, dir)

	if !resp.Success || resp.Action != "updated_local" {
		t.Errorf("response = %+v, want successful updated_local", resp)
	}
	if !activity.PercentComplete.Equal(decimal.NewFromInt(100)) {
		t.Errorf("percent = %s, want 100", activity.PercentComplete)
	}

	entries := audit.Query(integration.ID, time.Time{}, time.Time{})
	if len(entries) != 1 || entries[0].SyncType != domain.SyncWebhook || entries[0].ItemsSynced != 1 {
		t.Errorf("audit = %+v, want one webhook record with items_synced=1", entries)
	}
}

func TestProcessWebhookStaleUpdateIsNoop(t *testing.T) {
	mappings := newMemMappings()
	engine := NewEngine(newFakeJira(), mappings, NewAuditLog())

	dir := newMemDirectory()
	integration := testIntegration()
	dir.integrations["DPM"] = integration

	activity := &domain.Activity{ID: uuid.New(), Name: "Integrate", PercentComplete: decimal.NewFromInt(30)}
	dir.activities[activity.ID] = activity
	mappings.Save(&domain.JiraMapping{
		ID: uuid.New(), IntegrationID: integration.ID, ActivityID: &activity.ID,
		JiraIssueKey: "DPM-1", SyncDirection: domain.SyncBidirectional,
		LastJiraUpdated: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	})

	body := webhookBody(t, "jira:issue_updated", "DPM-1", "DPM", "Done", "2026-08-20T10:00:00.000+0000")
	resp := engine.ProcessWebhook(body, dir)

	if resp.Action != "noop_not_newer" {
		t.Errorf("action = %s, want noop_not_newer", resp.Action)
	}
	if !activity.PercentComplete.Equal(decimal.NewFromInt(30)) {
		t.Error("stale webhook must not touch the activity")
	}
}

func TestProcessWebhookIssueCreatedRefreshesMapping(t *testing.T) {
	mappings := newMemMappings()
	engine := NewEngine(newFakeJira(), mappings, NewAuditLog())

	dir := newMemDirectory()
	integration := testIntegration()
	dir.integrations["DPM"] = integration

	wbsID := uuid.New()
	mapping := &domain.JiraMapping{
		ID: uuid.New(), IntegrationID: integration.ID, WBSID: &wbsID,
		JiraIssueKey: "DPM-1", SyncDirection: domain.SyncBidirectional,
	}
	mappings.Save(mapping)

	body := webhookBody(t, "jira:issue_created", "DPM-1", "DPM", "To Do", "2026-08-20T10:00:00.000+0000")
	resp := engine.ProcessWebhook(body, dir)

	if resp.Action != "refreshed_mapping" {
		t.Errorf("action = %s, want refreshed_mapping", resp.Action)
	}
	if mapping.LastSyncedAt.IsZero() {
		t.Error("last_synced_at should be refreshed")
	}
}

// Deletion is idempotent: the second delivery of the same event is a
// no-op success.
func TestProcessWebhookIssueDeleted(t *testing.T) {
	mappings := newMemMappings()
	engine := NewEngine(newFakeJira(), mappings, NewAuditLog())

	dir := newMemDirectory()
	integration := testIntegration()
	dir.integrations["DPM"] = integration

	wbsID := uuid.New()
	mappings.Save(&domain.JiraMapping{
		ID: uuid.New(), IntegrationID: integration.ID, WBSID: &wbsID,
		JiraIssueKey: "DPM-1", SyncDirection: domain.SyncBidirectional,
	})

	body := webhookBody(t, "jira:issue_deleted", "DPM-1", "DPM", "Done", "2026-08-20T10:00:00.000+0000")

	resp := engine.ProcessWebhook(body, dir)
	if resp.Action != "deleted_mapping" {
		t.Errorf("first delivery action = %s, want deleted_mapping", resp.Action)
	}
	if mappings.count() != 0 {
		t.Errorf("mappings = %d, want 0", mappings.count())
	}

	resp = engine.ProcessWebhook(body, dir)
	if !resp.Success || resp.Action != "noop_mapping_absent" {
		t.Errorf("second delivery = %+v, want successful noop_mapping_absent", resp)
	}
}

func TestProcessWebhookUnsupportedEvent(t *testing.T) {
	engine := NewEngine(newFakeJira(), newMemMappings(), NewAuditLog())

	dir := newMemDirectory()
	integration := testIntegration()
	dir.integrations["DPM"] = integration

	body := webhookBody(t, "comment_created", "DPM-1", "DPM", "Done", "2026-08-20T10:00:00.000+0000")
	resp := engine.ProcessWebhook(body, dir)

	if !resp.Success || resp.Action != "ignored_unsupported_event" {
		t.Errorf("response = %+v, want successful ignored_unsupported_event", resp)
	}
}

func TestProcessWebhookUnknownProject(t *testing.T) {
	engine := NewEngine(newFakeJira(), newMemMappings(), NewAuditLog())
	dir := newMemDirectory() // no integrations registered

	body := webhookBody(t, "jira:issue_updated", "OTHER-1", "OTHER", "Done", "2026-08-20T10:00:00.000+0000")
	resp := engine.ProcessWebhook(body, dir)

	if !resp.Success || resp.Action != "ignored_integration_not_found" {
		t.Errorf("response = %+v, want successful ignored_integration_not_found", resp)
	}
}

func TestProcessWebhookDisabledIntegration(t *testing.T) {
	audit := NewAuditLog()
	engine := NewEngine(newFakeJira(), newMemMappings(), audit)

	dir := newMemDirectory()
	integration := testIntegration()
	integration.Enabled = false
	dir.integrations["DPM"] = integration

	body := webhookBody(t, "jira:issue_updated", "DPM-1", "DPM", "Done", "2026-08-20T10:00:00.000+0000")
	resp := engine.ProcessWebhook(body, dir)

	if !resp.Success || resp.Action != "ignored_sync_disabled" {
		t.Errorf("response = %+v, want successful ignored_sync_disabled", resp)
	}
	if audit.Count(integration.ID) != 1 {
		t.Errorf("audit count = %d, want 1 (ignores are audited too)", audit.Count(integration.ID))
	}
}

func TestProcessWebhookMalformedBody(t *testing.T) {
	engine := NewEngine(newFakeJira(), newMemMappings(), NewAuditLog())

	resp := engine.ProcessWebhook([]byte(`{"webhookEvent":`), newMemDirectory())
	if resp.Success || resp.Action != "rejected_malformed" {
		t.Errorf("response = %+v, want failed rejected_malformed", resp)
	}
}
