package runbook

import "time"

// EventType enumerates every state transition the runbook service emits
// (spec §4.9.6). The event stream is the authoritative audit trail.
type EventType string

const (
	EventCommandStaged       EventType = "CommandStaged"
	EventEntityResolved      EventType = "EntityResolved"
	EventResolutionAmbiguous EventType = "ResolutionAmbiguous"
	EventResolutionFailed    EventType = "ResolutionFailed"
	EventPickerApplied       EventType = "PickerApplied"
	EventCommandRemoved      EventType = "CommandRemoved"
	EventRunbookReady        EventType = "RunbookReady"
	EventRunbookNotReady     EventType = "RunbookNotReady"
	EventExecutionStarted    EventType = "ExecutionStarted"
	EventCommandExecuted     EventType = "CommandExecuted"
	EventExecutionCompleted  EventType = "ExecutionCompleted"
	EventRunbookAborted      EventType = "RunbookAborted"
	EventStageFailed         EventType = "StageFailed"
)

// Blocker describes one command preventing a runbook from entering
// Executing (spec §4.9.4 RunbookNotReady.blockers).
type Blocker struct {
	CommandID string
	Status    ResolutionStatus
	Error     string
}

// ReorderMove describes one command's position change in the dependency
// reorder (spec §4.9.3 ReorderDiff).
type ReorderMove struct {
	CommandID  string
	FromPos    int
	ToPos      int
	Reason     string
}

// LearnedTag is emitted per resolved entity on successful execution (spec
// §4.9.7) so the tag store can reinforce future resolutions.
type LearnedTag struct {
	EntityID string
	Tag      string
	Source   string // always "user_confirmed"
}

// Event is one entry in the runbook's totally-ordered event stream (spec
// §4.9.6, §6.5). Category groups events for transports that want a
// coarse filter; the per-event-type fields below are carried in the
// typed pointer fields, with only the one matching EventType populated.
type Event struct {
	EventType EventType
	Category  string
	RunbookID string
	CommandID string
	TS        time.Time

	// CommandStaged / parse outcome
	DSLRaw string

	// EntityResolved
	ResolvedEntity *ResolvedEntity

	// ResolutionAmbiguous
	Candidates []Candidate

	// ResolutionFailed / StageFailed
	ErrorKind string
	Error     string

	// PickerApplied
	SelectedEntityIDs []string

	// RunbookNotReady
	Blockers []Blocker

	// reorder, carried alongside RunbookReady/ExecutionStarted since
	// dependency analysis runs as part of entering Executing
	ReorderDiff []ReorderMove

	// CommandExecuted
	Success    bool
	DurationMS int64

	// ExecutionCompleted
	LearnedTags []LearnedTag
}

func newEvent(evType EventType, runbookID string, now time.Time) Event {
	return Event{EventType: evType, Category: string(evType), RunbookID: runbookID, TS: now}
}
