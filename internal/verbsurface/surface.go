// Package verbsurface deterministically computes, for one session, the
// set of verbs the user or agent may invoke (spec §4.8). Ported from
// the original implementation's src/agent/verb_surface.rs: the same
// 8-step progressive-narrowing pipeline, the same safe-harbor fallback,
// and the same dual-fingerprint invariant, expressed against
// verbregistry.Registry instead of the original's SemReg-backed store.
package verbsurface

import (
	"fmt"
	"sort"

	"github.com/adamtc007/ob-poc-sub006/internal/canonicalhash"
	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
)

// VerbSurfaceFailPolicy controls what happens when the semantic
// registry's governance envelope cannot be consulted (spec §4.8 step 7).
type VerbSurfaceFailPolicy string

const (
	FailClosed VerbSurfaceFailPolicy = "FailClosed" // default
	FailOpen   VerbSurfaceFailPolicy = "FailOpen"
)

// PruneLayer names which pipeline step excluded a verb (SI-3: additive,
// one reason per layer, never first-hit).
type PruneLayer string

const (
	PruneAgentMode     PruneLayer = "AgentMode"
	PruneWorkflowPhase PruneLayer = "WorkflowPhase"
	PruneSemRegCCIR    PruneLayer = "SemRegCcir"
	PruneLifecycleState PruneLayer = "LifecycleState"
	PruneActorGating   PruneLayer = "ActorGating"
	PruneFailPolicy    PruneLayer = "FailPolicy"
)

// SurfacePrune is one exclusion reason attributed to one layer.
type SurfacePrune struct {
	Layer  PruneLayer
	Reason string
}

// ExcludedVerb is a verb dropped from the surface, with every reason it
// was dropped across every layer that pruned it.
type ExcludedVerb struct {
	FQN     string
	Reasons []SurfacePrune
}

// SurfaceVerb is one verb available on the computed surface.
type SurfaceVerb struct {
	FQN               string
	Domain            string
	Action            string
	Description       string
	LifecycleEligible bool
	RankBoost         float64
}

// Envelope is the SemReg-resolved governance response for a session
// (spec §4.8 "envelope"), an external collaborator's output. Unavailable
// signals SemReg could not be consulted at all; Allowed is the set of
// FQNs SemReg permits when available; PrunedReasons optionally carries a
// human-readable reason SemReg attached to a specific denied FQN.
type Envelope struct {
	Unavailable   bool
	Allowed       map[string]bool
	PrunedReasons map[string]string
	Fingerprint   string
}

// VerbSurfaceContext is the input to ComputeSessionVerbSurface.
type VerbSurfaceContext struct {
	AgentMode   string
	StageFocus  string
	Envelope    *Envelope
	FailPolicy  VerbSurfaceFailPolicy
	EntityState string
}

// FilterSummary records the verb count surviving each pipeline step, for
// debugging progressive narrowing.
type FilterSummary struct {
	TotalRegistry  int
	AfterAgentMode int
	AfterWorkflow  int
	AfterSemReg    int
	AfterLifecycle int
	AfterActor     int
	FinalCount     int
}

// SessionVerbSurface is the full computed result.
type SessionVerbSurface struct {
	Verbs              []SurfaceVerb
	Excluded           []ExcludedVerb
	SurfaceFingerprint string
	SemRegFingerprint  string
	FailPolicyApplied  bool
	Summary            FilterSummary
}

// SafeHarborDomains is the hard-coded fallback allowlist when SemReg is
// unavailable and FailPolicy is FailClosed (navigation / help / session
// management, spec §4.8 step 7).
var SafeHarborDomains = map[string]bool{"session": true, "view": true, "agent": true}

// governanceMutatingDomains are blocked under AgentMode "Research".
var governanceMutatingDomains = map[string]bool{"registry": true, "changeset": true, "governance": true, "schema": true, "authoring": true}

// changeStagingDomains are blocked under AgentMode "Governed".
var changeStagingDomains = map[string]bool{"changeset": true, "authoring": true}

type candidate struct {
	verb *verbregistry.RuntimeVerb
	fqn  string
}

// ComputeSessionVerbSurface runs the 8-step pipeline over reg under ctx.
func ComputeSessionVerbSurface(reg *verbregistry.Registry, ctx VerbSurfaceContext) *SessionVerbSurface {
	all := reg.AllVerbs()
	summary := FilterSummary{TotalRegistry: len(all)}
	exclusions := make(map[string][]SurfacePrune)

	base := make([]candidate, 0, len(all))
	for _, v := range all {
		base = append(base, candidate{verb: v, fqn: v.FullName()})
	}

	afterMode := make([]candidate, 0, len(base))
	for _, c := range base {
		if agentModeAllowed(ctx.AgentMode, c.verb.Domain) {
			afterMode = append(afterMode, c)
		} else {
			exclusions[c.fqn] = append(exclusions[c.fqn], SurfacePrune{
				Layer:  PruneAgentMode,
				Reason: fmt.Sprintf("agent mode %q blocks domain %q", ctx.AgentMode, c.verb.Domain),
			})
		}
	}
	summary.AfterAgentMode = len(afterMode)

	allowedDomains, primaryDomain, constrained := workflowAllowedDomains(ctx.StageFocus)
	afterWorkflow := make([]candidate, 0, len(afterMode))
	for _, c := range afterMode {
		if !constrained || allowedDomains[c.verb.Domain] {
			afterWorkflow = append(afterWorkflow, c)
		} else {
			exclusions[c.fqn] = append(exclusions[c.fqn], SurfacePrune{
				Layer:  PruneWorkflowPhase,
				Reason: fmt.Sprintf("workflow phase %q does not include domain %q", ctx.StageFocus, c.verb.Domain),
			})
		}
	}
	summary.AfterWorkflow = len(afterWorkflow)

	semregAvailable := ctx.Envelope != nil && !ctx.Envelope.Unavailable
	afterSemReg := make([]candidate, 0, len(afterWorkflow))
	for _, c := range afterWorkflow {
		if !semregAvailable {
			afterSemReg = append(afterSemReg, c)
			continue
		}
		if ctx.Envelope.Allowed[c.fqn] {
			afterSemReg = append(afterSemReg, c)
			continue
		}
		reason := ctx.Envelope.PrunedReasons[c.fqn]
		if reason == "" {
			reason = "Not in SemReg allowed set"
		}
		exclusions[c.fqn] = append(exclusions[c.fqn], SurfacePrune{Layer: PruneSemRegCCIR, Reason: reason})
	}
	summary.AfterSemReg = len(afterSemReg)

	afterLifecycle := make([]candidate, 0, len(afterSemReg))
	for _, c := range afterSemReg {
		if c.verb.Lifecycle == nil || len(c.verb.Lifecycle.RequiresStates) == 0 || ctx.EntityState == "" {
			afterLifecycle = append(afterLifecycle, c)
			continue
		}
		if containsString(c.verb.Lifecycle.RequiresStates, ctx.EntityState) {
			afterLifecycle = append(afterLifecycle, c)
		} else {
			exclusions[c.fqn] = append(exclusions[c.fqn], SurfacePrune{
				Layer:  PruneLifecycleState,
				Reason: fmt.Sprintf("entity state %q not in requires_states %v", ctx.EntityState, c.verb.Lifecycle.RequiresStates),
			})
		}
	}
	summary.AfterLifecycle = len(afterLifecycle)

	// Actor gating is currently a pass-through extension point (spec §4.8
	// step 6): no non-SemReg ABAC/role source exists yet to consult.
	afterActor := afterLifecycle
	summary.AfterActor = len(afterActor)

	failPolicyApplied := false
	var afterFailPolicy []candidate
	if !semregAvailable {
		if ctx.FailPolicy == FailOpen {
			afterFailPolicy = afterActor
		} else {
			failPolicyApplied = true
			for _, c := range afterActor {
				if SafeHarborDomains[c.verb.Domain] {
					afterFailPolicy = append(afterFailPolicy, c)
				} else {
					exclusions[c.fqn] = append(exclusions[c.fqn], SurfacePrune{
						Layer:  PruneFailPolicy,
						Reason: "SemReg unavailable; FailClosed restricts to safe-harbor domains",
					})
				}
			}
		}
	} else {
		afterFailPolicy = afterActor
	}

	verbs := make([]SurfaceVerb, 0, len(afterFailPolicy))
	fqns := make([]string, 0, len(afterFailPolicy))
	for _, c := range afterFailPolicy {
		verbs = append(verbs, SurfaceVerb{
			FQN:               c.fqn,
			Domain:            c.verb.Domain,
			Action:            c.verb.Verb,
			Description:       c.verb.Description,
			LifecycleEligible: c.verb.Lifecycle != nil,
			RankBoost:         computeRankBoost(c.verb.Domain, allowedDomains, primaryDomain, constrained),
		})
		fqns = append(fqns, c.fqn)
	}
	summary.FinalCount = len(verbs)

	excludedList := make([]ExcludedVerb, 0, len(exclusions))
	for fqn, reasons := range exclusions {
		excludedList = append(excludedList, ExcludedVerb{FQN: fqn, Reasons: reasons})
	}
	sort.Slice(excludedList, func(i, j int) bool { return excludedList[i].FQN < excludedList[j].FQN })

	semregFingerprint := ""
	if ctx.Envelope != nil {
		semregFingerprint = ctx.Envelope.Fingerprint
	}

	return &SessionVerbSurface{
		Verbs:              verbs,
		Excluded:           excludedList,
		SurfaceFingerprint: ComputeSurfaceFingerprint(fqns, ctx.AgentMode, ctx.StageFocus, ctx.EntityState, ctx.FailPolicy),
		SemRegFingerprint:  semregFingerprint,
		FailPolicyApplied:  failPolicyApplied,
		Summary:            summary,
	}
}

// agentModeAllowed applies the per-mode allowlist (spec §4.8 step 2).
func agentModeAllowed(mode, domain string) bool {
	switch mode {
	case "Research":
		return !governanceMutatingDomains[domain]
	case "Governed":
		return !changeStagingDomains[domain]
	default:
		return true
	}
}

// workflowAllowedDomains maps a stage focus to its allowed domain set and
// the domain used for rank-boost affinity (spec §4.8 step 3). An unknown
// or empty stageFocus means no constraint.
func workflowAllowedDomains(stageFocus string) (allowed map[string]bool, primaryDomain string, constrained bool) {
	switch stageFocus {
	case "semos-onboarding":
		return toSet("cbu", "entity", "session", "view", "agent", "contract", "deal", "billing",
			"trading-profile", "custody", "onboarding", "gleif", "research"), "cbu", true
	case "semos-kyc":
		return toSet("kyc", "screening", "document", "requirement", "ubo", "session", "view", "agent", "entity"), "kyc", true
	case "semos-data", "semos-data-management":
		return toSet("registry", "changeset", "governance", "schema", "authoring", "session", "view", "agent", "audit"), "registry", true
	case "semos-stewardship":
		return toSet("focus", "changeset", "governance", "audit", "maintenance", "registry", "schema", "session", "view", "agent"), "focus", true
	default:
		return nil, "", false
	}
}

func toSet(domains ...string) map[string]bool {
	out := make(map[string]bool, len(domains))
	for _, d := range domains {
		out[d] = true
	}
	return out
}

// computeRankBoost gives 0.15 when domain is the stage focus's primary
// domain, 0.05 when merely allowed by it, 0 otherwise (spec §4.8 step 8).
func computeRankBoost(domain string, allowedDomains map[string]bool, primaryDomain string, constrained bool) float64 {
	if !constrained {
		return 0.0
	}
	if domain == primaryDomain {
		return 0.15
	}
	if allowedDomains[domain] {
		return 0.05
	}
	return 0.0
}

// ComputeSurfaceFingerprint implements spec §6.6: "vs1:" || hash(sorted
// fqns ++ mode ++ focus ++ entity_state ++ fail_policy).
func ComputeSurfaceFingerprint(fqns []string, mode, focus, entityState string, failPolicy VerbSurfaceFailPolicy) string {
	sorted := append([]string(nil), fqns...)
	sort.Strings(sorted)

	focusStr := focus
	if focusStr == "" {
		focusStr = "none"
	}
	stateStr := entityState
	if stateStr == "" {
		stateStr = "none"
	}

	fqnList := make([]any, len(sorted))
	for i, f := range sorted {
		fqnList[i] = f
	}
	payload := map[string]any{
		"fqns":         fqnList,
		"mode":         mode,
		"focus":        focusStr,
		"entity_state": stateStr,
		"fail_policy":  string(failPolicy),
	}
	return canonicalhash.VS1Fingerprint(payload)
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

// AllowedFQNs returns the set of FQNs on the surface.
func (s *SessionVerbSurface) AllowedFQNs() map[string]bool {
	out := make(map[string]bool, len(s.Verbs))
	for _, v := range s.Verbs {
		out[v.FQN] = true
	}
	return out
}

// VerbsForDomain returns the surface verbs belonging to domain.
func (s *SessionVerbSurface) VerbsForDomain(domain string) []SurfaceVerb {
	var out []SurfaceVerb
	for _, v := range s.Verbs {
		if v.Domain == domain {
			out = append(out, v)
		}
	}
	return out
}

// Domains returns the sorted set of domains present on the surface.
func (s *SessionVerbSurface) Domains() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range s.Verbs {
		if !seen[v.Domain] {
			seen[v.Domain] = true
			out = append(out, v.Domain)
		}
	}
	sort.Strings(out)
	return out
}

// Contains reports whether fqn is present on the surface.
func (s *SessionVerbSurface) Contains(fqn string) bool {
	for _, v := range s.Verbs {
		if v.FQN == fqn {
			return true
		}
	}
	return false
}

// IsSafeHarbor reports whether this surface was computed under the
// FailClosed safe-harbor fallback (SemReg unavailable).
func (s *SessionVerbSurface) IsSafeHarbor() bool {
	return s.FailPolicyApplied && s.SemRegFingerprint == ""
}
