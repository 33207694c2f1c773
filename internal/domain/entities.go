package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Program is the root aggregate. It exclusively owns its WBS tree,
// activities, dependencies, EVMS periods, MR log, and Jira mappings.
type Program struct {
	ID        uuid.UUID       `json:"id"`
	Owner     string          `json:"owner"` // opaque principal
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Status    ProgramStatus   `json:"status"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	BAC       decimal.Decimal `json:"bac"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
}

// WBSElement is one node of the work breakdown structure. Path is the
// materialized dot-delimited label chain (e.g. "1.2.3"); Level equals the
// path depth with the root at 1.
type WBSElement struct {
	ID             uuid.UUID       `json:"id"`
	ProgramID      uuid.UUID       `json:"program_id"`
	ParentID       *uuid.UUID      `json:"parent_id,omitempty"`
	WBSCode        string          `json:"wbs_code"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Path           string          `json:"path"`
	Level          int             `json:"level"`
	BAC            decimal.Decimal `json:"bac"`
	ControlAccount bool            `json:"control_account"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
}

// Activity is a schedulable unit of work. Duration is in working days.
// A milestone has duration 0. The CPM output fields are day offsets from
// the program start, measured in working days.
type Activity struct {
	ID        uuid.UUID `json:"id"`
	ProgramID uuid.UUID `json:"program_id"`
	WBSID     uuid.UUID `json:"wbs_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Duration  int       `json:"duration"`

	PlannedStart  *time.Time `json:"planned_start,omitempty"`
	PlannedFinish *time.Time `json:"planned_finish,omitempty"`
	ActualStart   *time.Time `json:"actual_start,omitempty"`
	ActualFinish  *time.Time `json:"actual_finish,omitempty"`

	EarlyStart  int  `json:"early_start"`
	EarlyFinish int  `json:"early_finish"`
	LateStart   int  `json:"late_start"`
	LateFinish  int  `json:"late_finish"`
	TotalFloat  int  `json:"total_float"`
	FreeFloat   int  `json:"free_float"`
	IsCritical  bool `json:"is_critical"`

	PercentComplete decimal.Decimal `json:"percent_complete"`
	Milestone       bool            `json:"milestone"`
	BCWSAtComplete  decimal.Decimal `json:"bcws_at_complete"`
	ACWPToDate      decimal.Decimal `json:"acwp_to_date"`

	Constraint     ConstraintType `json:"constraint"`
	ConstraintDate *time.Time     `json:"constraint_date,omitempty"`

	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Dependency is a typed edge from predecessor to successor. Lag is in
// working days; negative values are leads.
type Dependency struct {
	ID            uuid.UUID      `json:"id"`
	ProgramID     uuid.UUID      `json:"program_id"`
	PredecessorID uuid.UUID      `json:"predecessor_id"`
	SuccessorID   uuid.UUID      `json:"successor_id"`
	Type          DependencyType `json:"type"`
	Lag           int            `json:"lag"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
}

// Resource carries daily capacity (hours for labor/equipment, quantity for
// material) plus inventory fields that only apply to material.
type Resource struct {
	ID             uuid.UUID       `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           ResourceType    `json:"type"`
	CapacityPerDay float64         `json:"capacity_per_day"`
	CostRate       decimal.Decimal `json:"cost_rate"`

	QuantityAvailable float64         `json:"quantity_available,omitempty"`
	QuantityUnit      string          `json:"quantity_unit,omitempty"`
	UnitCost          decimal.Decimal `json:"unit_cost"`

	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Assignment links an activity to a resource. Units is the fraction of
// capacity for labor/equipment; the quantity fields apply to material.
type Assignment struct {
	ID         uuid.UUID `json:"id"`
	ActivityID uuid.UUID `json:"activity_id"`
	ResourceID uuid.UUID `json:"resource_id"`
	Units      float64   `json:"units"`

	QuantityAssigned float64 `json:"quantity_assigned,omitempty"`
	QuantityConsumed float64 `json:"quantity_consumed,omitempty"`

	PlannedHours decimal.Decimal `json:"planned_hours"`
	ActualHours  decimal.Decimal `json:"actual_hours"`
	PlannedCost  decimal.Decimal `json:"planned_cost"`
	ActualCost   decimal.Decimal `json:"actual_cost"`

	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// EVMSPeriod names a reporting window and stores cumulative values as of
// the period end.
type EVMSPeriod struct {
	ID        uuid.UUID       `json:"id"`
	ProgramID uuid.UUID       `json:"program_id"`
	Label     string          `json:"label"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	BCWSCum   decimal.Decimal `json:"bcws_cum"`
	BCWPCum   decimal.Decimal `json:"bcwp_cum"`
	ACWPCum   decimal.Decimal `json:"acwp_cum"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
}

// PeriodData is the (period x WBS) incremental cell.
type PeriodData struct {
	ID       uuid.UUID       `json:"id"`
	PeriodID uuid.UUID       `json:"period_id"`
	WBSID    uuid.UUID       `json:"wbs_id"`
	BCWS     decimal.Decimal `json:"bcws"`
	BCWP     decimal.Decimal `json:"bcwp"`
	ACWP     decimal.Decimal `json:"acwp"`
}

// MRLogEntry is one row of the management-reserve ledger. The chain
// invariant EndingMR = BeginningMR + ChangesIn - ChangesOut is enforced
// on append.
type MRLogEntry struct {
	ID          uuid.UUID       `json:"id"`
	ProgramID   uuid.UUID       `json:"program_id"`
	Sequence    int             `json:"sequence"`
	BeginningMR decimal.Decimal `json:"beginning_mr"`
	ChangesIn   decimal.Decimal `json:"changes_in"`
	ChangesOut  decimal.Decimal `json:"changes_out"`
	EndingMR    decimal.Decimal `json:"ending_mr"`
	Reason      string          `json:"reason"`
	PeriodID    *uuid.UUID      `json:"period_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// JiraIntegration configures one connected Jira project.
type JiraIntegration struct {
	ID            uuid.UUID  `json:"id"`
	ProgramID     uuid.UUID  `json:"program_id"`
	ProjectKey    string     `json:"project_key"`
	Enabled       bool       `json:"enabled"`
	WebhookSecret string     `json:"-"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// JiraMapping binds exactly one local entity (WBS element or activity) to
// a Jira issue. Hard-deleted when the Jira issue is deleted.
type JiraMapping struct {
	ID            uuid.UUID     `json:"id"`
	IntegrationID uuid.UUID     `json:"integration_id"`
	WBSID         *uuid.UUID    `json:"wbs_id,omitempty"`
	ActivityID    *uuid.UUID    `json:"activity_id,omitempty"`
	JiraIssueKey  string        `json:"jira_issue_key"`
	JiraIssueID   string        `json:"jira_issue_id"`
	SyncDirection SyncDirection `json:"sync_direction"`
	LastSyncedAt  time.Time     `json:"last_synced_at"`
	// LastJiraUpdated is the exact updated timestamp Jira returned,
	// never derived locally. Last-write-wins compares against it.
	LastJiraUpdated time.Time `json:"last_jira_updated"`
}

// SyncLogEntry is one append-only audit record. Exactly one is written per
// sync operation, ignores included.
type SyncLogEntry struct {
	ID            uuid.UUID  `json:"id"`
	IntegrationID uuid.UUID  `json:"integration_id"`
	MappingID     *uuid.UUID `json:"mapping_id,omitempty"`
	SyncType      SyncType   `json:"sync_type"`
	Status        SyncStatus `json:"status"`
	ItemsSynced   int        `json:"items_synced"`
	ItemsFailed   int        `json:"items_failed"`
	Action        string     `json:"action,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	DurationMS    int64      `json:"duration_ms"`
	Timestamp     time.Time  `json:"ts"`
}
