package domain

// ProgramStatus is the lifecycle state of a program.
type ProgramStatus string

const (
	ProgramPlanning ProgramStatus = "planning"
	ProgramActive   ProgramStatus = "active"
	ProgramComplete ProgramStatus = "complete"
	ProgramOnHold   ProgramStatus = "on_hold"
)

// DependencyType is the relation between a predecessor and a successor.
type DependencyType string

const (
	FinishToStart  DependencyType = "FS"
	StartToStart   DependencyType = "SS"
	FinishToFinish DependencyType = "FF"
	StartToFinish  DependencyType = "SF"
)

// ConstraintType restricts where CPM may place an activity.
type ConstraintType string

const (
	ConstraintASAP ConstraintType = "asap"
	ConstraintALAP ConstraintType = "alap"
	ConstraintSNET ConstraintType = "snet" // start no earlier than
	ConstraintSNLT ConstraintType = "snlt" // start no later than
	ConstraintFNET ConstraintType = "fnet" // finish no earlier than
	ConstraintFNLT ConstraintType = "fnlt" // finish no later than
)

// ResourceType distinguishes capacity-bearing resources from consumables.
type ResourceType string

const (
	ResourceLabor     ResourceType = "labor"
	ResourceEquipment ResourceType = "equipment"
	ResourceMaterial  ResourceType = "material"
)

// SyncDirection controls which side of a Jira mapping may overwrite the other.
type SyncDirection string

const (
	SyncToJira        SyncDirection = "to_jira"
	SyncFromJira      SyncDirection = "from_jira"
	SyncBidirectional SyncDirection = "bidirectional"
)

// SyncType names the operation that produced a sync log entry.
type SyncType string

const (
	SyncPush     SyncType = "push"
	SyncPull     SyncType = "pull"
	SyncWebhook  SyncType = "webhook"
	SyncProgress SyncType = "progress"
)

// SyncStatus is the outcome of a sync operation.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncPartial SyncStatus = "partial"
	SyncFailed  SyncStatus = "failed"
)
