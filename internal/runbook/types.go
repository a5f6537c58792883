// Package runbook implements the staged runbook service (spec §4.9), the
// default path for every prompt: stage without executing, resolve
// entities, let a picker disambiguate, reorder by dependency, enforce a
// server-side ready gate, and only then execute on an explicit run
// request. No teacher file implements this subsystem directly — it is
// built from spec §4.9 in the idiom of the teacher's session manager
// (mutex-guarded per-session state) and repository layer (sqlx-backed
// persistence), per DESIGN.md.
package runbook

import (
	"time"

	"github.com/google/uuid"
)

// RunbookStatus is the lifecycle state of a StagedRunbook (spec §3.4).
type RunbookStatus string

const (
	StatusBuilding  RunbookStatus = "building"
	StatusReady     RunbookStatus = "ready"
	StatusExecuting RunbookStatus = "executing"
	StatusCompleted RunbookStatus = "completed"
	StatusAborted   RunbookStatus = "aborted"
)

// ResolutionStatus is the per-command entity resolution state.
type ResolutionStatus string

const (
	ResolutionPending     ResolutionStatus = "pending"
	ResolutionResolved    ResolutionStatus = "resolved"
	ResolutionAmbiguous   ResolutionStatus = "ambiguous"
	ResolutionFailed      ResolutionStatus = "failed"
	ResolutionParseFailed ResolutionStatus = "parse_failed"
)

// ResolvedEntity is one entity bound into a command's footprint (spec
// §3.2 StagedCommand.entity_footprint).
type ResolvedEntity struct {
	EntityID          string
	EntityName        string
	ArgName           string
	ResolutionSource  string // TagExact | TagFuzzy | TagSemantic (mirrors entityresolve.ResolutionSource), Picker, or Deferred
	OriginalRef       string
	Confidence        float64
}

// Candidate is one possible entity when a command's resolution is
// Ambiguous; the server-authoritative set a pick() must stay within
// (I-candidate-closed).
type Candidate struct {
	EntityID   string
	EntityName string
	ArgName    string
	Score      float64
}

// StagedCommand is one DSL command staged into a runbook (spec §3.2).
type StagedCommand struct {
	ID             string
	RunbookID      string
	SourceOrder    int
	DAGOrder       *int
	DSLRaw         string
	Verb           string
	Description    string
	SourcePrompt   string
	Resolution     ResolutionStatus
	EntityFootprint []ResolvedEntity
	Candidates     []Candidate
	Reasoning      string
	GuardrailLog   []string
	ParseError     string
	CreatedAt      time.Time
}

// HasCandidate reports whether entityID is present in the command's
// stored candidate set, the basis for I-candidate-closed.
func (c *StagedCommand) HasCandidate(entityID string) bool {
	for _, cand := range c.Candidates {
		if cand.EntityID == entityID {
			return true
		}
	}
	return false
}

// StagedRunbook is a per-session ordered list of commands awaiting
// execution (spec §3.2).
type StagedRunbook struct {
	ID            string
	SessionID     string
	ClientGroupID string
	Persona       string
	Status        RunbookStatus
	Commands      []*StagedCommand
	CreatedAt     time.Time
}

// CommandByID finds a command in the runbook by id.
func (r *StagedRunbook) CommandByID(id string) *StagedCommand {
	for _, c := range r.Commands {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// newID generates a fresh UUID string; split out so tests can stub it if
// ever needed, mirroring the teacher's uuid.New().String() call sites.
func newID() string {
	return uuid.New().String()
}
