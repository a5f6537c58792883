// Package toolapi defines the transport-agnostic tool interface exposed
// to whatever carries requests into the runtime (MCP, gRPC, HTTP — spec
// §6.3). Every tool takes a JSON-like value and returns a ToolCallResult;
// the envelope never throws, so a transport maps codes to its own status
// space. Dispatch table shape follows the teacher's CLI command pattern
// (one function per command, returning a result struct instead of
// writing to stdout) generalized to the abstract tool surface named by
// spec §6.3.
package toolapi

// ToolCallResult is the uniform envelope every tool call returns (spec
// §6.3).
type ToolCallResult struct {
	OK    bool           `json:"ok"`
	Value any            `json:"value,omitempty"`
	Error *ToolCallError `json:"error,omitempty"`
}

// ToolCallError carries a machine code, a human message, and structured
// context (spec §7 "User-visible behaviour").
type ToolCallError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// Ok wraps a successful tool result.
func Ok(value any) ToolCallResult {
	return ToolCallResult{OK: true, Value: value}
}

// Err wraps a failed tool result.
func Err(code, message string, context map[string]any) ToolCallResult {
	return ToolCallResult{OK: false, Error: &ToolCallError{Code: code, Message: message, Context: context}}
}

// ErrFromGo wraps a Go error as a ToolCallResult under code, preserving
// its message. Used by handlers that have already classified an error
// into a spec §7 taxonomy code but just want the wrapped error's text.
func ErrFromGo(code string, err error) ToolCallResult {
	if err == nil {
		return Ok(nil)
	}
	return Err(code, err.Error(), nil)
}

// Name is the stable identifier of one exposed tool (spec §6.3 table).
type Name string

const (
	DSLValidate   Name = "dsl_validate"
	DSLPlan       Name = "dsl_plan"
	DSLExecute    Name = "dsl_execute"
	DSLGenerate   Name = "dsl_generate"
	DSLLookup     Name = "dsl_lookup"
	DSLComplete   Name = "dsl_complete"
	DSLSignature  Name = "dsl_signature"
	VerbsList     Name = "verbs_list"
	SchemaInfo    Name = "schema_info"
	RunbookStage   Name = "runbook_stage"
	RunbookPick    Name = "runbook_pick"
	RunbookRemove  Name = "runbook_remove"
	RunbookPreview Name = "runbook_preview"
	RunbookShow    Name = "runbook_show"
	RunbookRun     Name = "runbook_run"
	RunbookAbort   Name = "runbook_abort"
)

// Handler is the signature every tool implementation satisfies. input is
// the JSON-like request body (already decoded); the transport layer owns
// marshaling.
type Handler func(input map[string]any) ToolCallResult

// Registry maps a tool Name to its Handler, giving a transport a single
// dispatch point regardless of how it was reached (spec §6.3 "transport
// agnostic").
type Registry struct {
	handlers map[Name]Handler
}

// NewRegistry returns an empty tool Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Name]Handler)}
}

// Register binds a handler to name, overwriting any previous binding.
func (r *Registry) Register(name Name, h Handler) {
	r.handlers[name] = h
}

// Dispatch routes input to the handler bound to name. An unknown name
// returns a ToolCallResult error rather than panicking, matching the
// envelope's "never throws" contract.
func (r *Registry) Dispatch(name Name, input map[string]any) ToolCallResult {
	h, ok := r.handlers[name]
	if !ok {
		return Err("UnknownTool", "no handler registered for tool "+string(name), map[string]any{"tool": string(name)})
	}
	return h(input)
}
