// Package guardrails implements the 15 pure-function stewardship checks
// (G01-G15, spec §4.10) that gate changes to the verb/attribute registry
// itself. Ported near-verbatim from the original implementation's
// sem_reg/stewardship/guardrails.rs, which defines the same checks over
// the same (Changeset, Entries, Conflicts, Basis, ActiveSnapshots,
// TemplatesUsed) tuple.
package guardrails

// Severity is the enforcement level a guardrail result carries.
type Severity string

const (
	Block    Severity = "Block"
	Warning  Severity = "Warning"
	Advisory Severity = "Advisory"
)

// ID names one of the 15 guardrails.
type ID string

const (
	G01RolePermission           ID = "G01"
	G02NamingConvention         ID = "G02"
	G03TypeConstraint           ID = "G03"
	G04ProofChainCompatibility  ID = "G04"
	G05ClassificationRequired   ID = "G05"
	G06SecurityLabelRequired    ID = "G06"
	G07SilentMeaningChange      ID = "G07"
	G08DeprecationWithoutReplacement ID = "G08"
	G09AIKnowledgeBoundary      ID = "G09"
	G10ConflictDetected         ID = "G10"
	G11StaleTemplate            ID = "G11"
	G12ObservationImpact        ID = "G12"
	G13ResolutionMetadataMissing ID = "G13"
	G14CompositionHintStale     ID = "G14"
	G15DraftUniquenessViolation ID = "G15"
)

// DefaultSeverity returns the fixed severity for a guardrail ID (spec
// §4.10 table). The one Open Question the spec names here -
// "should G12 be upgraded to Block when promoted attributes are
// referenced by a Proof-tier policy" - is left at Warning, the spec's
// stated default.
func (id ID) DefaultSeverity() Severity {
	switch id {
	case G01RolePermission, G03TypeConstraint, G04ProofChainCompatibility,
		G05ClassificationRequired, G06SecurityLabelRequired, G07SilentMeaningChange,
		G08DeprecationWithoutReplacement, G15DraftUniquenessViolation:
		return Block
	case G02NamingConvention, G10ConflictDetected, G11StaleTemplate,
		G12ObservationImpact, G13ResolutionMetadataMissing:
		return Warning
	case G09AIKnowledgeBoundary, G14CompositionHintStale:
		return Advisory
	default:
		return Warning
	}
}

// Action is a changeset entry's requested edit kind (spec §3.2).
type Action string

const (
	ActionAdd       Action = "Add"
	ActionModify    Action = "Modify"
	ActionPromote   Action = "Promote"
	ActionDeprecate Action = "Deprecate"
	ActionRetire    Action = "Retire"
)

// Changeset is the proposed set of registry edits a guardrail run
// evaluates (spec §3.2).
type Changeset struct {
	ChangesetID string
	Owner       string
	Scope       string
}

// Entry is one proposed edit within a Changeset.
type Entry struct {
	ObjectFQN     string
	ObjectType    string // "attribute_def", "verb_contract", ...
	Action        Action
	DraftPayload  map[string]any
	PredecessorID string
	Reasoning     string
}

// Conflict records another open changeset touching the same FQN.
type Conflict struct {
	FQN                string
	ResolutionStrategy string // empty means unresolved
}

// BasisRecord is one piece of AI-sourced evidence backing an entry.
type BasisRecord struct {
	EntryFQN string
	Narrative string // empty means no narrative was captured
}

// Snapshot is an Active registry object a guardrail may need to cross-
// reference (predecessor lookups, composition-hint validity, policy
// predicates).
type Snapshot struct {
	ObjectID        string
	ObjectFQN       string
	ObjectType      string
	GovernanceTier  string // "operational" | "governed"
	TrustClass      string // "convenience" | "decision-support" | "proof"
	IsPolicyRule    bool
	ReferencesFQN   []string // FQNs a policy_rule snapshot's predicate reads
	CompositionHints []CompositionHint
}

// CompositionHint is one verb-contract hint referencing another verb.
type CompositionHint struct {
	VerbFQN string
}

// TemplateStatus is the lifecycle state of a stewardship template.
type TemplateStatus string

const (
	TemplateActive     TemplateStatus = "Active"
	TemplateDeprecated TemplateStatus = "Deprecated"
)

// Template is a stewardship authoring template used to draft an entry.
type Template struct {
	EntryFQN string
	Status   TemplateStatus
}

// Result is one guardrail's verdict.
type Result struct {
	ID          ID
	Severity    Severity
	Message     string
	Remediation string
	Context     map[string]any
}
