package guardrails

import (
	"strings"
)

var regulatedDomains = map[string]bool{"kyc": true, "sanctions": true, "regulatory": true, "compliance": true}

var sensitiveKeywords = []string{"pii", "tax", "ssn", "passport", "dob", "salary", "nationality"}

// EvaluateAll runs all 15 guardrails in order and concatenates their
// results (spec §4.10: "The orchestrator runs all 15, collects results,
// and enforces the severity map").
func EvaluateAll(cs Changeset, entries []Entry, conflicts []Conflict, basis []BasisRecord, active []Snapshot, templates []Template) []Result {
	var out []Result
	out = append(out, checkRolePermissions(entries)...)
	out = append(out, checkNamingConventions(entries)...)
	out = append(out, checkTypeConstraints(entries)...)
	out = append(out, checkProofChainCompatibility(entries, active)...)
	out = append(out, checkClassificationRequired(entries)...)
	out = append(out, checkSecurityLabelRequired(entries)...)
	out = append(out, checkSilentMeaningChange(entries, active)...)
	out = append(out, checkDeprecationReplacement(entries)...)
	out = append(out, checkAIKnowledgeBoundary(basis)...)
	out = append(out, checkConflictsDetected(conflicts)...)
	out = append(out, checkStaleTemplate(templates)...)
	out = append(out, checkObservationImpact(entries)...)
	out = append(out, checkResolutionMetadata(entries)...)
	out = append(out, checkCompositionHints(entries, active)...)
	out = append(out, checkDraftUniqueness(entries)...)
	return out
}

// HasBlockingGuardrails reports whether any result is Block severity.
func HasBlockingGuardrails(results []Result) bool {
	for _, r := range results {
		if r.Severity == Block {
			return true
		}
	}
	return false
}

// HasWarningGuardrails reports whether any result is Warning severity.
func HasWarningGuardrails(results []Result) bool {
	for _, r := range results {
		if r.Severity == Warning {
			return true
		}
	}
	return false
}

// G01: Promote/Deprecate actions require a recorded reasoning.
func checkRolePermissions(entries []Entry) []Result {
	var out []Result
	for _, e := range entries {
		if (e.Action == ActionPromote || e.Action == ActionDeprecate) && e.Reasoning == "" {
			out = append(out, Result{
				ID: G01RolePermission, Severity: G01RolePermission.DefaultSeverity(),
				Message:     "action " + string(e.Action) + " on " + e.ObjectFQN + " requires reasoning to justify the role/permission grant",
				Remediation: "add a reasoning string before resubmitting",
				Context:     map[string]any{"object_fqn": e.ObjectFQN, "action": e.Action},
			})
		}
	}
	return out
}

// G02: FQN must be "domain.noun_phrase", every segment non-empty and
// space-free.
func checkNamingConventions(entries []Entry) []Result {
	var out []Result
	for _, e := range entries {
		if !strings.Contains(e.ObjectFQN, ".") {
			out = append(out, namingViolation(e, "FQN must contain at least one '.' separating domain from name"))
			continue
		}
		segments := strings.Split(e.ObjectFQN, ".")
		bad := false
		for _, seg := range segments {
			if seg == "" || strings.Contains(seg, " ") {
				bad = true
				break
			}
		}
		if bad {
			out = append(out, namingViolation(e, "FQN segments must be non-empty and contain no spaces"))
		}
	}
	return out
}

func namingViolation(e Entry, msg string) Result {
	return Result{
		ID: G02NamingConvention, Severity: G02NamingConvention.DefaultSeverity(),
		Message:     msg,
		Remediation: "rename to domain.snake_or_kebab_noun_phrase",
		Context:     map[string]any{"object_fqn": e.ObjectFQN},
	}
}

// G03: operational governance tier combined with proof trust class is
// incoherent (Proof implies Governed review).
func checkTypeConstraints(entries []Entry) []Result {
	var out []Result
	for _, e := range entries {
		tier, _ := e.DraftPayload["governance_tier"].(string)
		trust, _ := e.DraftPayload["trust_class"].(string)
		if tier == "operational" && trust == "proof" {
			out = append(out, Result{
				ID: G03TypeConstraint, Severity: G03TypeConstraint.DefaultSeverity(),
				Message:     e.ObjectFQN + " declares governance_tier=operational with trust_class=proof",
				Remediation: "either raise governance_tier to governed or lower trust_class",
				Context:     map[string]any{"object_fqn": e.ObjectFQN},
			})
		}
	}
	return out
}

// G04: an attribute_def entry whose trust is below Proof but is read by
// an Active policy_rule's predicate breaks the proof chain.
func checkProofChainCompatibility(entries []Entry, active []Snapshot) []Result {
	var out []Result
	for _, e := range entries {
		if e.ObjectType != "attribute_def" {
			continue
		}
		trust, _ := e.DraftPayload["trust_class"].(string)
		if trust == "proof" {
			continue
		}
		for _, s := range active {
			if !s.IsPolicyRule {
				continue
			}
			for _, ref := range s.ReferencesFQN {
				if ref == e.ObjectFQN {
					out = append(out, Result{
						ID: G04ProofChainCompatibility, Severity: G04ProofChainCompatibility.DefaultSeverity(),
						Message:     e.ObjectFQN + " is referenced by policy rule " + s.ObjectFQN + " but is not trust_class=proof",
						Remediation: "raise the attribute's trust_class to proof or remove it from the policy predicate",
						Context:     map[string]any{"object_fqn": e.ObjectFQN, "policy_fqn": s.ObjectFQN},
					})
				}
			}
		}
	}
	return out
}

// G05: objects in a regulated domain must declare a taxonomy
// classification.
func checkClassificationRequired(entries []Entry) []Result {
	var out []Result
	for _, e := range entries {
		domain := firstSegment(e.ObjectFQN)
		if !regulatedDomains[domain] {
			continue
		}
		members, ok := e.DraftPayload["taxonomy_memberships"].([]any)
		if !ok || len(members) == 0 {
			out = append(out, Result{
				ID: G05ClassificationRequired, Severity: G05ClassificationRequired.DefaultSeverity(),
				Message:     e.ObjectFQN + " is in regulated domain " + domain + " but has no taxonomy_memberships",
				Remediation: "add at least one taxonomy classification before submitting",
				Context:     map[string]any{"object_fqn": e.ObjectFQN, "domain": domain},
			})
		}
	}
	return out
}

// G06: FQNs whose name suggests PII/tax semantics must carry a security
// label.
func checkSecurityLabelRequired(entries []Entry) []Result {
	var out []Result
	for _, e := range entries {
		lower := strings.ToLower(e.ObjectFQN)
		sensitive := false
		for _, kw := range sensitiveKeywords {
			if strings.Contains(lower, kw) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			continue
		}
		if _, ok := e.DraftPayload["security_label"]; !ok {
			out = append(out, Result{
				ID: G06SecurityLabelRequired, Severity: G06SecurityLabelRequired.DefaultSeverity(),
				Message:     e.ObjectFQN + " matches a sensitive-data naming pattern but declares no security_label",
				Remediation: "add a security_label classifying the sensitivity of this field",
				Context:     map[string]any{"object_fqn": e.ObjectFQN},
			})
		}
	}
	return out
}

// G07: a Modify with a type change, no reasoning, and a predecessor that
// is currently Active is a silent meaning change.
func checkSilentMeaningChange(entries []Entry, active []Snapshot) []Result {
	var out []Result
	for _, e := range entries {
		if e.Action != ActionModify || e.PredecessorID == "" || e.Reasoning != "" {
			continue
		}
		_, hasDataType := e.DraftPayload["data_type"]
		_, hasType := e.DraftPayload["type"]
		if !hasDataType && !hasType {
			continue
		}
		for _, s := range active {
			if s.ObjectID == e.PredecessorID {
				out = append(out, Result{
					ID: G07SilentMeaningChange, Severity: G07SilentMeaningChange.DefaultSeverity(),
					Message:     e.ObjectFQN + " changes type/data_type from an Active predecessor with no reasoning",
					Remediation: "add reasoning explaining the type change, or revert it",
					Context:     map[string]any{"object_fqn": e.ObjectFQN, "predecessor_id": e.PredecessorID},
				})
				break
			}
		}
	}
	return out
}

// G08: Deprecate actions must name a replacement FQN.
func checkDeprecationReplacement(entries []Entry) []Result {
	var out []Result
	for _, e := range entries {
		if e.Action != ActionDeprecate {
			continue
		}
		replacement, _ := e.DraftPayload["replacement_fqn"].(string)
		if replacement == "" {
			out = append(out, Result{
				ID: G08DeprecationWithoutReplacement, Severity: G08DeprecationWithoutReplacement.DefaultSeverity(),
				Message:     "deprecating " + e.ObjectFQN + " without naming a replacement_fqn",
				Remediation: "add replacement_fqn pointing at the object that supersedes this one",
				Context:     map[string]any{"object_fqn": e.ObjectFQN},
			})
		}
	}
	return out
}

// G09: basis records without a narrative are an AI-knowledge-boundary
// advisory (claim-level narrative checks live elsewhere).
func checkAIKnowledgeBoundary(basis []BasisRecord) []Result {
	var out []Result
	for _, b := range basis {
		if b.Narrative == "" {
			out = append(out, Result{
				ID: G09AIKnowledgeBoundary, Severity: G09AIKnowledgeBoundary.DefaultSeverity(),
				Message:     "basis record for " + b.EntryFQN + " has no narrative explaining its provenance",
				Remediation: "attach a narrative summarizing how this basis was derived",
				Context:     map[string]any{"object_fqn": b.EntryFQN},
			})
		}
	}
	return out
}

// G10: an unresolved conflict on the same FQN is flagged so it is not merged silently.
func checkConflictsDetected(conflicts []Conflict) []Result {
	var out []Result
	for _, c := range conflicts {
		if c.ResolutionStrategy == "" {
			out = append(out, Result{
				ID: G10ConflictDetected, Severity: G10ConflictDetected.DefaultSeverity(),
				Message:     "unresolved conflict with another open changeset on " + c.FQN,
				Remediation: "resolve the conflicting changeset or record a resolution_strategy",
				Context:     map[string]any{"object_fqn": c.FQN},
			})
		}
	}
	return out
}

// G11: a deprecated template used to draft an entry should be flagged.
func checkStaleTemplate(templates []Template) []Result {
	var out []Result
	for _, t := range templates {
		if t.Status == TemplateDeprecated {
			out = append(out, Result{
				ID: G11StaleTemplate, Severity: G11StaleTemplate.DefaultSeverity(),
				Message:     "entry for " + t.EntryFQN + " was drafted from a deprecated template",
				Remediation: "re-draft from the current template",
				Context:     map[string]any{"object_fqn": t.EntryFQN},
			})
		}
	}
	return out
}

// G12: promoting an attribute_def to governed tier may invalidate
// existing observations against it.
func checkObservationImpact(entries []Entry) []Result {
	var out []Result
	for _, e := range entries {
		if e.Action != ActionPromote || e.ObjectType != "attribute_def" {
			continue
		}
		tier, _ := e.DraftPayload["governance_tier"].(string)
		if tier == "governed" {
			out = append(out, Result{
				ID: G12ObservationImpact, Severity: G12ObservationImpact.DefaultSeverity(),
				Message:     "promoting " + e.ObjectFQN + " to governance_tier=governed may invalidate existing observations",
				Remediation: "review observations referencing this attribute before committing",
				Context:     map[string]any{"object_fqn": e.ObjectFQN},
			})
		}
	}
	return out
}

// G13: a verb_contract entry missing usage_examples or description is
// under-documented for discovery.
func checkResolutionMetadata(entries []Entry) []Result {
	var out []Result
	for _, e := range entries {
		if e.ObjectType != "verb_contract" {
			continue
		}
		examples, hasExamples := e.DraftPayload["usage_examples"].([]any)
		description, _ := e.DraftPayload["description"].(string)

		switch {
		case (!hasExamples || len(examples) == 0) && description == "":
			out = append(out, resolutionMetadataResult(e, "missing both usage_examples and description"))
		case !hasExamples || len(examples) == 0:
			out = append(out, resolutionMetadataResult(e, "missing usage_examples"))
		case description == "":
			out = append(out, resolutionMetadataResult(e, "missing description"))
		}
	}
	return out
}

func resolutionMetadataResult(e Entry, msg string) Result {
	return Result{
		ID: G13ResolutionMetadataMissing, Severity: G13ResolutionMetadataMissing.DefaultSeverity(),
		Message:     e.ObjectFQN + " is " + msg,
		Remediation: "add the missing resolution metadata before submitting",
		Context:     map[string]any{"object_fqn": e.ObjectFQN},
	}
}

// G14: a verb_contract's composition_hints must reference FQNs that are
// still Active.
func checkCompositionHints(entries []Entry, active []Snapshot) []Result {
	activeFQNs := make(map[string]bool, len(active))
	for _, s := range active {
		activeFQNs[s.ObjectFQN] = true
	}

	var out []Result
	for _, e := range entries {
		if e.ObjectType != "verb_contract" {
			continue
		}
		hints, _ := e.DraftPayload["composition_hints"].([]any)
		for _, h := range hints {
			hintMap, ok := h.(map[string]any)
			if !ok {
				continue
			}
			verbFQN, _ := hintMap["verb_fqn"].(string)
			if verbFQN != "" && !activeFQNs[verbFQN] {
				out = append(out, Result{
					ID: G14CompositionHintStale, Severity: G14CompositionHintStale.DefaultSeverity(),
					Message:     e.ObjectFQN + "'s composition hint references " + verbFQN + " which is not an Active snapshot",
					Remediation: "update or remove the stale composition hint",
					Context:     map[string]any{"object_fqn": e.ObjectFQN, "hint_fqn": verbFQN},
				})
			}
		}
	}
	return out
}

// G15: at most one Draft entry per (object_type, object_fqn) within a
// changeset (I-single-draft).
func checkDraftUniqueness(entries []Entry) []Result {
	type key struct{ objectType, fqn string }
	seen := make(map[key]bool)
	var out []Result
	for _, e := range entries {
		k := key{e.ObjectType, e.ObjectFQN}
		if seen[k] {
			out = append(out, Result{
				ID: G15DraftUniquenessViolation, Severity: G15DraftUniquenessViolation.DefaultSeverity(),
				Message:     "duplicate draft entry for (" + e.ObjectType + ", " + e.ObjectFQN + ") within this changeset",
				Remediation: "remove or merge the duplicate entry",
				Context:     map[string]any{"object_fqn": e.ObjectFQN, "object_type": e.ObjectType},
			})
			continue
		}
		seen[k] = true
	}
	return out
}

func firstSegment(fqn string) string {
	idx := strings.IndexByte(fqn, '.')
	if idx < 0 {
		return fqn
	}
	return fqn[:idx]
}
