// Package verbregistry loads RuntimeVerb definitions from a declarative
// YAML source, compiles each into a contract, and synchronizes the
// compiled contracts to a durable store with hash-based change detection.
package verbregistry

import "sort"

// BehaviorKind tags how a verb is actually carried out.
type BehaviorKind string

const (
	BehaviorCRUD       BehaviorKind = "crud"
	BehaviorPlugin     BehaviorKind = "plugin"
	BehaviorGraphQuery BehaviorKind = "graph_query"
)

// CRUDOperation enumerates the operation a CRUD behavior performs.
type CRUDOperation string

const (
	CRUDCreate CRUDOperation = "create"
	CRUDRead   CRUDOperation = "read"
	CRUDUpdate CRUDOperation = "update"
	CRUDDelete CRUDOperation = "delete"
)

// Behavior is the discriminated-union dispatch tag for a RuntimeVerb. Only
// one of the three embedded configs is populated, matching Kind.
type Behavior struct {
	Kind BehaviorKind `yaml:"type" json:"type"`

	// Kind == BehaviorCRUD
	CRUDOperation CRUDOperation `yaml:"operation,omitempty" json:"operation,omitempty"`
	Table         string        `yaml:"table,omitempty" json:"table,omitempty"`
	Schema        string        `yaml:"schema,omitempty" json:"schema,omitempty"`
	Key           string        `yaml:"key,omitempty" json:"key,omitempty"`
	Returning     []string      `yaml:"returning,omitempty" json:"returning,omitempty"`

	// Kind == BehaviorPlugin
	Handler string `yaml:"handler,omitempty" json:"handler,omitempty"`

	// Kind == BehaviorGraphQuery
	GraphOperation string `yaml:"graph_operation,omitempty" json:"graph_operation,omitempty"`
}

// ArgType enumerates the primitive types a verb argument may declare.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgInt     ArgType = "int"
	ArgFloat   ArgType = "float"
	ArgBool    ArgType = "bool"
	ArgUUID    ArgType = "uuid"
	ArgDate    ArgType = "date"
	ArgEntity  ArgType = "entity"
	ArgList    ArgType = "list"
	ArgMap     ArgType = "map"
)

// Lookup describes how a "lookup" style argument resolves against a table
// or the entity resolver.
type Lookup struct {
	Table      string `yaml:"table" json:"table"`
	Schema     string `yaml:"schema,omitempty" json:"schema,omitempty"`
	EntityType string `yaml:"entity_type,omitempty" json:"entity_type,omitempty"`
}

// Arg is one declared argument of a RuntimeVerb.
type Arg struct {
	Name        string   `yaml:"name" json:"name"`
	Type        ArgType  `yaml:"type" json:"type"`
	Required    bool     `yaml:"required,omitempty" json:"required,omitempty"`
	MapsTo      string   `yaml:"maps_to,omitempty" json:"maps_to,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Default     any      `yaml:"default,omitempty" json:"default,omitempty"`
	Lookup      *Lookup  `yaml:"lookup,omitempty" json:"lookup,omitempty"`
	ValidValues []string `yaml:"valid_values,omitempty" json:"valid_values,omitempty"`
}

// Returns describes the shape of a verb's result.
type Returns struct {
	Type    ArgType `yaml:"type" json:"type"`
	Name    string  `yaml:"name,omitempty" json:"name,omitempty"`
	Capture bool    `yaml:"capture,omitempty" json:"capture,omitempty"`
}

// Produces names the entity type a verb creates, if any.
type Produces struct {
	ProducedType string `yaml:"produced_type" json:"produced_type"`
	Subtype      string `yaml:"subtype,omitempty" json:"subtype,omitempty"`
}

// Consumes names an entity kind a verb reads.
type Consumes struct {
	ConsumedType string `yaml:"consumed_type" json:"consumed_type"`
	Required     bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// Lifecycle describes the state-machine rules a verb participates in.
type Lifecycle struct {
	EntityArg      string   `yaml:"entity_arg,omitempty" json:"entity_arg,omitempty"`
	RequiresStates []string `yaml:"requires_states,omitempty" json:"requires_states,omitempty"`
	TransitionsTo  string   `yaml:"transitions_to,omitempty" json:"transitions_to,omitempty"`
}

// RuntimeVerb is the declarative, in-memory definition of an invocable
// operation loaded from the YAML source (spec §3.2).
type RuntimeVerb struct {
	Domain      string     `yaml:"domain" json:"domain"`
	Verb        string     `yaml:"verb" json:"verb"`
	Description string     `yaml:"description" json:"description"`
	Behavior    Behavior   `yaml:"behavior" json:"behavior"`
	Args        []Arg      `yaml:"args,omitempty" json:"args,omitempty"`
	Returns     Returns    `yaml:"returns" json:"returns"`
	Produces    *Produces  `yaml:"produces,omitempty" json:"produces,omitempty"`
	Consumes    []Consumes `yaml:"consumes,omitempty" json:"consumes,omitempty"`
	Lifecycle   *Lifecycle `yaml:"lifecycle,omitempty" json:"lifecycle,omitempty"`
}

// FullName returns the FQN "domain.verb".
func (v *RuntimeVerb) FullName() string {
	return v.Domain + "." + v.Verb
}

// Diagnostic is a single compilation error or warning, tagged by a stable
// machine-readable code (spec §4.2).
type Diagnostic struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Path        string `json:"path,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

// Diagnostics accumulates compilation errors and warnings for one verb.
type Diagnostics struct {
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
}

func (d *Diagnostics) addError(code, message, path, remediation string) {
	d.Errors = append(d.Errors, Diagnostic{Code: code, Message: message, Path: path, Remediation: remediation})
}

func (d *Diagnostics) addWarning(code, message, path, remediation string) {
	d.Warnings = append(d.Warnings, Diagnostic{Code: code, Message: message, Path: path, Remediation: remediation})
}

// HasErrors reports whether any error-level diagnostic was recorded.
func (d *Diagnostics) HasErrors() bool {
	return len(d.Errors) > 0
}

// Diagnostic codes (spec §4.2 "Validation rules (examples)").
const (
	CodeLookupMissingEntityType  = "LOOKUP_MISSING_ENTITY_TYPE"
	CodeRequiredWithDefault      = "REQUIRED_WITH_DEFAULT"
	CodeLifecycleMissingEntity   = "LIFECYCLE_MISSING_ENTITY_ARG"
	CodeProducesEmptyType        = "PRODUCES_EMPTY_TYPE"
	CodeCRUDMissingTable         = "CRUD_MISSING_TABLE"
	CodePluginEmptyHandler       = "PLUGIN_EMPTY_HANDLER"
)

// VerbContract is the compiled, persisted form of a RuntimeVerb (spec §3.2).
type VerbContract struct {
	FullName            string
	CompiledJSON        map[string]any
	EffectiveConfigJSON map[string]any
	Diagnostics         Diagnostics
	CompiledHash        [32]byte
	YAMLHash            string
	CompilerVersion     string
	Category            string

	// RAG metadata, populated separately (§4.2 populate_rag_metadata).
	IntentPatterns  []string
	WorkflowPhases  []string
	GraphContexts   []string
	TypicalNext     []string
	SearchText      string
}

// Registry holds all loaded RuntimeVerbs, grouped by domain, with an
// FQN-uniqueness invariant (I-FQN-unique, scoped to this object type).
type Registry struct {
	byFullName map[string]*RuntimeVerb
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byFullName: make(map[string]*RuntimeVerb)}
}

// Add registers verb, returning an error if its FQN is already present.
func (r *Registry) Add(verb *RuntimeVerb) error {
	fqn := verb.FullName()
	if _, exists := r.byFullName[fqn]; exists {
		return &DuplicateFQNError{FQN: fqn}
	}
	r.byFullName[fqn] = verb
	return nil
}

// Get returns the verb for fqn, if loaded.
func (r *Registry) Get(fqn string) (*RuntimeVerb, bool) {
	v, ok := r.byFullName[fqn]
	return v, ok
}

// AllVerbs returns every loaded verb in FQN order (deterministic iteration,
// needed by HashRegistry and by the verb surface's base-set step).
func (r *Registry) AllVerbs() []*RuntimeVerb {
	out := make([]*RuntimeVerb, 0, len(r.byFullName))
	for _, v := range r.byFullName {
		out = append(out, v)
	}
	sortVerbsByFQN(out)
	return out
}

// AllFullNames returns every loaded verb's FQN in sorted order, used by
// the validator's vocabulary stage to suggest close alternatives for an
// unknown verb.
func (r *Registry) AllFullNames() []string {
	out := make([]string, 0, len(r.byFullName))
	for fqn := range r.byFullName {
		out = append(out, fqn)
	}
	sort.Strings(out)
	return out
}

func sortVerbsByFQN(verbs []*RuntimeVerb) {
	for i := 1; i < len(verbs); i++ {
		for j := i; j > 0 && verbs[j].FullName() < verbs[j-1].FullName(); j-- {
			verbs[j], verbs[j-1] = verbs[j-1], verbs[j]
		}
	}
}

// DuplicateFQNError is returned by Add when a verb's FQN is already loaded.
type DuplicateFQNError struct {
	FQN string
}

func (e *DuplicateFQNError) Error() string {
	return "duplicate verb FQN: " + e.FQN
}
