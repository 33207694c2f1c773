package sync

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"dpm-server/internal/domain"
	"dpm-server/internal/jira"
)

// maxEpicWBSLevel caps which WBS nodes become Epics: the program roots
// and their immediate sub-components. Deeper nodes stay local.
const maxEpicWBSLevel = 2

// Mappings is the persistence surface the engine needs for Jira
// mappings.
type Mappings interface {
	ForWBS(wbsID uuid.UUID) (*domain.JiraMapping, bool)
	ForActivity(activityID uuid.UUID) (*domain.JiraMapping, bool)
	ByIssueKey(issueKey string) (*domain.JiraMapping, bool)
	Save(m *domain.JiraMapping)
	DeleteByIssueKey(issueKey string)
}

// Directory resolves the local entities webhook processing touches.
type Directory interface {
	IntegrationByProjectKey(projectKey string) (*domain.JiraIntegration, bool)
	WBSByID(id uuid.UUID) (*domain.WBSElement, bool)
	ActivityByID(id uuid.UUID) (*domain.Activity, bool)
}

// ItemResult is one entity's outcome inside a batch.
type ItemResult struct {
	EntityID uuid.UUID `json:"entity_id"`
	IssueKey string    `json:"issue_key,omitempty"`
	Action   string    `json:"action"`
	Error    string    `json:"error,omitempty"`
}

// BatchResult is one push operation's outcome. Success is true iff no
// item failed; a mixed batch stays successful with ItemsFailed > 0.
type BatchResult struct {
	Success     bool         `json:"success"`
	ItemsSynced int          `json:"items_synced"`
	ItemsFailed int          `json:"items_failed"`
	Items       []ItemResult `json:"items"`
	DurationMS  int64        `json:"duration_ms"`
}

// Engine drives both sync surfaces: WBS <-> Epic and Activity <-> Issue.
type Engine struct {
	client   jira.Client
	mappings Mappings
	audit    *AuditLog
	now      func() time.Time
}

func NewEngine(client jira.Client, mappings Mappings, audit *AuditLog) *Engine {
	return &Engine{
		client:   client,
		mappings: mappings,
		audit:    audit,
		now:      time.Now,
	}
}

// PushWBS syncs WBS elements to Jira Epics. Only levels 1 and 2 are
// eligible; deeper nodes are skipped silently. Item failures do not
// abort the batch.
func (e *Engine) PushWBS(ctx context.Context, integration *domain.JiraIntegration, elements []*domain.WBSElement) *BatchResult {
	started := e.now()

	if !integration.Enabled {
		return e.recordIgnored(integration, domain.SyncPush, "ignored_sync_disabled", started)
	}

	result := &BatchResult{}
	for _, el := range elements {
		if el.DeletedAt != nil || el.Level > maxEpicWBSLevel {
			continue
		}
		item := e.pushWBSElement(ctx, integration, el)
		result.Items = append(result.Items, item)
		if item.Error != "" {
			result.ItemsFailed++
		} else {
			result.ItemsSynced++
		}
	}

	return e.finishBatch(integration, domain.SyncPush, result, started)
}

func (e *Engine) pushWBSElement(ctx context.Context, integration *domain.JiraIntegration, el *domain.WBSElement) ItemResult {
	item := ItemResult{EntityID: el.ID}

	mapping, ok := e.mappings.ForWBS(el.ID)
	switch {
	case !ok:
		issue, err := e.client.CreateEpic(ctx, jira.CreateEpicInput{
			ProjectKey:  integration.ProjectKey,
			Summary:     el.Name,
			Description: el.Description,
		})
		if err != nil {
			item.Action, item.Error = "create", err.Error()
			return item
		}
		e.mappings.Save(&domain.JiraMapping{
			ID:              uuid.New(),
			IntegrationID:   integration.ID,
			WBSID:           &el.ID,
			JiraIssueKey:    issue.Key,
			JiraIssueID:     issue.ID,
			SyncDirection:   domain.SyncBidirectional,
			LastSyncedAt:    e.now(),
			LastJiraUpdated: issue.UpdatedTime(),
		})
		item.Action, item.IssueKey = "create", issue.Key

	case mapping.SyncDirection == domain.SyncFromJira:
		item.Action, item.IssueKey = "skip", mapping.JiraIssueKey

	default:
		if err := e.client.UpdateIssue(ctx, mapping.JiraIssueKey, el.Name, el.Description); err != nil {
			item.Action, item.IssueKey, item.Error = "update", mapping.JiraIssueKey, err.Error()
			return item
		}
		mapping.LastSyncedAt = e.now()
		e.mappings.Save(mapping)
		item.Action, item.IssueKey = "update", mapping.JiraIssueKey
	}
	return item
}

// PushActivities syncs activities to Jira issues. An activity whose WBS
// parent has an Epic mapping is created under that Epic.
func (e *Engine) PushActivities(ctx context.Context, integration *domain.JiraIntegration, activities []*domain.Activity) *BatchResult {
	started := e.now()

	if !integration.Enabled {
		return e.recordIgnored(integration, domain.SyncPush, "ignored_sync_disabled", started)
	}

	result := &BatchResult{}
	for _, a := range activities {
		if a.DeletedAt != nil {
			continue
		}
		item := e.pushActivity(ctx, integration, a)
		result.Items = append(result.Items, item)
		if item.Error != "" {
			result.ItemsFailed++
		} else {
			result.ItemsSynced++
		}
	}

	return e.finishBatch(integration, domain.SyncPush, result, started)
}

func (e *Engine) pushActivity(ctx context.Context, integration *domain.JiraIntegration, a *domain.Activity) ItemResult {
	item := ItemResult{EntityID: a.ID}

	mapping, ok := e.mappings.ForActivity(a.ID)
	switch {
	case !ok:
		epicKey := ""
		if parent, found := e.mappings.ForWBS(a.WBSID); found {
			epicKey = parent.JiraIssueKey
		}
		issue, err := e.client.CreateIssue(ctx, jira.CreateIssueInput{
			ProjectKey: integration.ProjectKey,
			Summary:    a.Name,
			EpicKey:    epicKey,
		})
		if err != nil {
			item.Action, item.Error = "create", err.Error()
			return item
		}
		e.mappings.Save(&domain.JiraMapping{
			ID:              uuid.New(),
			IntegrationID:   integration.ID,
			ActivityID:      &a.ID,
			JiraIssueKey:    issue.Key,
			JiraIssueID:     issue.ID,
			SyncDirection:   domain.SyncBidirectional,
			LastSyncedAt:    e.now(),
			LastJiraUpdated: issue.UpdatedTime(),
		})
		item.Action, item.IssueKey = "create", issue.Key

	case mapping.SyncDirection == domain.SyncFromJira:
		item.Action, item.IssueKey = "skip", mapping.JiraIssueKey

	default:
		if err := e.client.UpdateIssue(ctx, mapping.JiraIssueKey, a.Name, ""); err != nil {
			item.Action, item.IssueKey, item.Error = "update", mapping.JiraIssueKey, err.Error()
			return item
		}
		mapping.LastSyncedAt = e.now()
		e.mappings.Save(mapping)
		item.Action, item.IssueKey = "update", mapping.JiraIssueKey
	}
	return item
}

// Pull fetches the mapped issue and applies the remote state locally if
// Jira's updated timestamp says it is newer. Stale updates are a no-op,
// never an error.
func (e *Engine) Pull(ctx context.Context, integration *domain.JiraIntegration, mapping *domain.JiraMapping, dir Directory) (string, error) {
	started := e.now()

	issue, err := e.client.GetIssue(ctx, mapping.JiraIssueKey)
	if err != nil {
		e.audit.Record(domain.SyncLogEntry{
			IntegrationID: integration.ID,
			MappingID:     &mapping.ID,
			SyncType:      domain.SyncPull,
			Status:        domain.SyncFailed,
			ErrorMessage:  err.Error(),
			DurationMS:    e.sinceMS(started),
		})
		return "", err
	}

	action := e.applyPull(issue, mapping, dir)
	e.audit.Record(domain.SyncLogEntry{
		IntegrationID: integration.ID,
		MappingID:     &mapping.ID,
		SyncType:      domain.SyncPull,
		Status:        domain.SyncSuccess,
		ItemsSynced:   1,
		Action:        action,
		DurationMS:    e.sinceMS(started),
	})
	return action, nil
}

// applyPull carries the last-write-wins rule: Jira's own updated
// timestamp against the mapping's last_jira_updated.
func (e *Engine) applyPull(issue *jira.Issue, mapping *domain.JiraMapping, dir Directory) string {
	updated := issue.UpdatedTime()
	if !updated.After(mapping.LastJiraUpdated) {
		return "noop_not_newer"
	}

	switch {
	case mapping.ActivityID != nil:
		activity, ok := dir.ActivityByID(*mapping.ActivityID)
		if !ok {
			return "noop_entity_missing"
		}
		if pct, changed := statusToPercent(issue.Fields.Status.Name, activity.PercentComplete); changed {
			activity.PercentComplete = pct
		}
	case mapping.WBSID != nil:
		el, ok := dir.WBSByID(*mapping.WBSID)
		if !ok {
			return "noop_entity_missing"
		}
		el.Name = issue.Fields.Summary
		if issue.Fields.Description != "" {
			el.Description = issue.Fields.Description
		}
	}

	mapping.LastJiraUpdated = updated
	mapping.LastSyncedAt = e.now()
	e.mappings.Save(mapping)
	return "updated_local"
}

// SyncActivityProgress pushes an activity's percent_complete to Jira as
// a workflow transition. A failed transition is a warning, not a batch
// failure.
func (e *Engine) SyncActivityProgress(ctx context.Context, integration *domain.JiraIntegration, activity *domain.Activity) (string, error) {
	started := e.now()

	if !integration.Enabled {
		e.recordIgnored(integration, domain.SyncProgress, "ignored_sync_disabled", started)
		return "ignored_sync_disabled", nil
	}
	mapping, ok := e.mappings.ForActivity(activity.ID)
	if !ok {
		e.recordIgnored(integration, domain.SyncProgress, "ignored_no_mapping", started)
		return "ignored_no_mapping", nil
	}

	target := percentToStatus(activity.PercentComplete)
	issue, err := e.client.GetIssue(ctx, mapping.JiraIssueKey)
	if err != nil {
		e.audit.Record(domain.SyncLogEntry{
			IntegrationID: integration.ID,
			MappingID:     &mapping.ID,
			SyncType:      domain.SyncProgress,
			Status:        domain.SyncFailed,
			ErrorMessage:  err.Error(),
			DurationMS:    e.sinceMS(started),
		})
		return "", err
	}

	action := "noop_status_current"
	if !issue.StatusIs(target) {
		if transitionErr := e.transitionTo(ctx, mapping.JiraIssueKey, target); transitionErr != nil {
			// Transitions depend on the remote workflow; failure is
			// logged but does not fail the operation.
			log.Warn().
				Str("issue", mapping.JiraIssueKey).
				Str("target", target).
				Err(transitionErr).
				Msg("Jira transition failed")
			action = "transition_failed"
		} else {
			action = "transitioned"
		}
	}

	e.audit.Record(domain.SyncLogEntry{
		IntegrationID: integration.ID,
		MappingID:     &mapping.ID,
		SyncType:      domain.SyncProgress,
		Status:        domain.SyncSuccess,
		ItemsSynced:   1,
		Action:        action,
		DurationMS:    e.sinceMS(started),
	})
	return action, nil
}

func (e *Engine) transitionTo(ctx context.Context, issueKey, targetStatus string) error {
	transitions, err := e.client.GetTransitions(ctx, issueKey)
	if err != nil {
		return err
	}
	for _, t := range transitions {
		if strings.EqualFold(t.To.Name, targetStatus) || strings.EqualFold(t.Name, targetStatus) {
			return e.client.TransitionIssue(ctx, issueKey, t.ID)
		}
	}
	return domain.NotFound("jira_transition", targetStatus)
}

func (e *Engine) finishBatch(integration *domain.JiraIntegration, syncType domain.SyncType, result *BatchResult, started time.Time) *BatchResult {
	// A mixed batch is still a successful batch; only a total failure
	// flips the flag. Item-level errors live in Items and ItemsFailed.
	result.Success = result.ItemsFailed == 0 || result.ItemsSynced > 0
	result.DurationMS = e.sinceMS(started)

	status := domain.SyncSuccess
	if result.ItemsFailed > 0 {
		status = domain.SyncPartial
	}
	if result.ItemsSynced == 0 && result.ItemsFailed > 0 {
		status = domain.SyncFailed
	}
	e.audit.Record(domain.SyncLogEntry{
		IntegrationID: integration.ID,
		SyncType:      syncType,
		Status:        status,
		ItemsSynced:   result.ItemsSynced,
		ItemsFailed:   result.ItemsFailed,
		DurationMS:    result.DurationMS,
	})
	return result
}

func (e *Engine) recordIgnored(integration *domain.JiraIntegration, syncType domain.SyncType, action string, started time.Time) *BatchResult {
	e.audit.Record(domain.SyncLogEntry{
		IntegrationID: integration.ID,
		SyncType:      syncType,
		Status:        domain.SyncSuccess,
		Action:        action,
		DurationMS:    e.sinceMS(started),
	})
	return &BatchResult{Success: true, DurationMS: e.sinceMS(started)}
}

func (e *Engine) sinceMS(started time.Time) int64 {
	return e.now().Sub(started).Milliseconds()
}

// statusToPercent maps a Jira status name to percent_complete. The
// "progress" bucket only lifts an activity off zero; an activity already
// in flight keeps its finer-grained local percent.
func statusToPercent(status string, current decimal.Decimal) (decimal.Decimal, bool) {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "done") || strings.Contains(s, "complete"):
		return decimal.NewFromInt(100), true
	case strings.Contains(s, "progress"):
		if current.IsZero() {
			return decimal.NewFromInt(50), true
		}
		return current, false
	case strings.Contains(s, "todo") || strings.Contains(s, "to do") || strings.Contains(s, "open"):
		return decimal.Zero, true
	default:
		return current, false
	}
}

// percentToStatus derives the target Jira status from percent_complete.
func percentToStatus(percent decimal.Decimal) string {
	switch {
	case percent.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return "Done"
	case percent.IsPositive():
		return "In Progress"
	default:
		return "To Do"
	}
}
