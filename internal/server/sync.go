package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"dpm-server/internal/domain"
	dpmsync "dpm-server/internal/sync"
)

func (s *Server) handlePushWBS(w http.ResponseWriter, r *http.Request) {
	programID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	integration, err := s.store.IntegrationForProgram(programID)
	if err != nil {
		writeError(w, err)
		return
	}

	result := s.engine.PushWBS(r.Context(), integration, s.store.WBSByProgram(programID))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePushActivities(w http.ResponseWriter, r *http.Request) {
	programID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	integration, err := s.store.IntegrationForProgram(programID)
	if err != nil {
		writeError(w, err)
		return
	}

	result := s.engine.PushActivities(r.Context(), integration, s.store.ActivitiesByProgram(programID))
	writeJSON(w, http.StatusOK, result)
}

type pullRequest struct {
	IssueKey string `json:"issue_key"`
}

type pullResponse struct {
	IssueKey string `json:"issue_key"`
	Action   string `json:"action"`
}

// handlePull fetches one mapped issue from Jira and applies it locally
// under the last-write-wins rule.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	programID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	integration, err := s.store.IntegrationForProgram(programID)
	if err != nil {
		writeError(w, err)
		return
	}

	var req pullRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mapping, ok := s.store.ByIssueKey(req.IssueKey)
	if !ok {
		writeError(w, domain.NotFound("jira_mapping", req.IssueKey))
		return
	}

	action, err := s.engine.Pull(r.Context(), integration, mapping, s.store)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pullResponse{IssueKey: req.IssueKey, Action: action})
}

type progressResponse struct {
	ActivityID string `json:"activity_id"`
	Action     string `json:"action"`
}

func (s *Server) handleSyncProgress(w http.ResponseWriter, r *http.Request) {
	activityID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	activity, err := s.store.Activity(activityID)
	if err != nil {
		writeError(w, err)
		return
	}
	integration, err := s.store.IntegrationForProgram(activity.ProgramID)
	if err != nil {
		writeError(w, err)
		return
	}

	action, err := s.engine.SyncActivityProgress(r.Context(), integration, activity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{ActivityID: activityID.String(), Action: action})
}

func (s *Server) handleSyncLog(w http.ResponseWriter, r *http.Request) {
	integrationID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.Integration(integrationID); err != nil {
		writeError(w, err)
		return
	}

	var start, end time.Time
	query := r.URL.Query()
	if raw := query.Get("start"); raw != "" {
		start, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, domain.Validation("start_invalid", "%q is not an RFC 3339 timestamp", raw))
			return
		}
	}
	if raw := query.Get("end"); raw != "" {
		end, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, domain.Validation("end_invalid", "%q is not an RFC 3339 timestamp", raw))
			return
		}
	}

	entries := s.audit.Query(integrationID, start, end)
	if entries == nil {
		entries = []domain.SyncLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleWebhook verifies the signature against the target integration's
// secret, then hands the event to the sync engine. Signature failure is
// the only non-200 path; every other outcome rides in the body.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, domain.Transient("read webhook body", err))
		return
	}

	// The project key decides which secret applies, so the body is
	// parsed before verification. An unparseable or unmapped body still
	// flows into ProcessWebhook, which answers 200 with the reason.
	var event dpmsync.WebhookEvent
	secret := ""
	if err := json.Unmarshal(body, &event); err == nil {
		if integration, ok := s.store.IntegrationByProjectKey(event.Issue.Fields.Project.Key); ok {
			secret = integration.WebhookSecret
		}
	}
	if !dpmsync.VerifySignature(secret, body, r.Header.Get("X-Hub-Signature")) {
		log.Warn().Str("issue", event.Issue.Key).Msg("Webhook signature rejected")
		writeJSON(w, http.StatusUnauthorized, dpmsync.WebhookResponse{
			Success: false,
			Message: "invalid webhook signature",
			Action:  "rejected_signature",
		})
		return
	}

	resp := s.engine.ProcessWebhook(body, s.store)
	writeJSON(w, http.StatusOK, resp)
}
