package verbregistry

import (
	"github.com/adamtc007/ob-poc-sub006/internal/canonicalhash"
)

// CompilerVersion is stamped onto every compiled contract. Bump when the
// compilation rules below change.
const CompilerVersion = "1.0.0"

// CompileVerbContract produces the full contract for verb: a stable JSON
// projection, an expanded effective configuration, compilation
// diagnostics, and a canonical integrity hash (spec §4.2 "Compile").
func CompileVerbContract(verb *RuntimeVerb) *VerbContract {
	var diags Diagnostics

	compiled := verbToJSON(verb)
	effective := buildEffectiveConfig(verb, &diags)
	validateVerbContract(verb, &diags)

	return &VerbContract{
		FullName:            verb.FullName(),
		CompiledJSON:        compiled,
		EffectiveConfigJSON: effective,
		Diagnostics:         diags,
		CompiledHash:        canonicalhash.Hash(compiled),
		CompilerVersion:     CompilerVersion,
		Category:            InferCategory(verb.Domain),
	}
}

func verbToJSON(verb *RuntimeVerb) map[string]any {
	behavior := map[string]any{"type": string(verb.Behavior.Kind)}
	switch verb.Behavior.Kind {
	case BehaviorCRUD:
		behavior["operation"] = string(verb.Behavior.CRUDOperation)
		behavior["table"] = verb.Behavior.Table
		behavior["schema"] = verb.Behavior.Schema
		behavior["key"] = verb.Behavior.Key
		behavior["returning"] = toAnyList(verb.Behavior.Returning)
	case BehaviorPlugin:
		behavior["handler"] = verb.Behavior.Handler
	case BehaviorGraphQuery:
		behavior["operation"] = verb.Behavior.GraphOperation
	}

	args := make([]any, 0, len(verb.Args))
	for _, a := range verb.Args {
		argJSON := map[string]any{
			"name":     a.Name,
			"type":     string(a.Type),
			"required": a.Required,
		}
		if a.MapsTo != "" {
			argJSON["maps_to"] = a.MapsTo
		}
		if a.Description != "" {
			argJSON["description"] = a.Description
		}
		if a.Lookup != nil {
			argJSON["lookup"] = map[string]any{
				"table":       a.Lookup.Table,
				"schema":      a.Lookup.Schema,
				"entity_type": a.Lookup.EntityType,
			}
		}
		if a.Default != nil {
			argJSON["default"] = a.Default
		}
		args = append(args, argJSON)
	}

	out := map[string]any{
		"domain":      verb.Domain,
		"verb":        verb.Verb,
		"full_name":   verb.FullName(),
		"description": verb.Description,
		"behavior":    behavior,
		"args":        args,
		"returns": map[string]any{
			"type":    string(verb.Returns.Type),
			"name":    verb.Returns.Name,
			"capture": verb.Returns.Capture,
		},
	}

	if verb.Produces != nil {
		out["produces"] = map[string]any{
			"produced_type": verb.Produces.ProducedType,
			"subtype":       verb.Produces.Subtype,
		}
	}

	if len(verb.Consumes) > 0 {
		consumes := make([]any, 0, len(verb.Consumes))
		for _, c := range verb.Consumes {
			consumes = append(consumes, map[string]any{
				"consumed_type": c.ConsumedType,
				"required":      c.Required,
			})
		}
		out["consumes"] = consumes
	}

	if verb.Lifecycle != nil {
		out["lifecycle"] = map[string]any{
			"entity_arg":      verb.Lifecycle.EntityArg,
			"requires_states": toAnyList(verb.Lifecycle.RequiresStates),
			"transitions_to":  verb.Lifecycle.TransitionsTo,
		}
	}

	return out
}

// buildEffectiveConfig expands defaults into the full resolved
// configuration. Currently mirrors compiled_json; future enrichment
// (resolving cross-references) is additive and orthogonal.
func buildEffectiveConfig(verb *RuntimeVerb, _ *Diagnostics) map[string]any {
	return verbToJSON(verb)
}

// validateVerbContract runs the validation rules from spec §4.2 and
// records diagnostics; it never fails compilation, only annotates it.
func validateVerbContract(verb *RuntimeVerb, diags *Diagnostics) {
	for i, arg := range verb.Args {
		if arg.Lookup != nil && arg.Lookup.EntityType == "" && arg.Lookup.Table != "" {
			diags.addWarning(CodeLookupMissingEntityType,
				"arg '"+arg.Name+"' has lookup.table but no lookup.entity_type",
				argPath(i, "lookup"),
				"add entity_type for entity-resolver lookup")
		}
		if arg.Required && arg.Default != nil {
			diags.addWarning(CodeRequiredWithDefault,
				"arg '"+arg.Name+"' is marked required but has a default value",
				argPath(i, ""),
				"either remove required or remove the default")
		}
	}

	if verb.Lifecycle != nil {
		if verb.Lifecycle.TransitionsTo != "" && verb.Lifecycle.EntityArg == "" {
			diags.addError(CodeLifecycleMissingEntity,
				"lifecycle has transitions_to but no entity_arg specified",
				"lifecycle",
				"add entity_arg to identify which arg holds the transitioning entity")
		}
		if len(verb.Lifecycle.RequiresStates) > 0 && verb.Lifecycle.EntityArg == "" {
			diags.addWarning(CodeLifecycleMissingEntity,
				"lifecycle has requires_states but no entity_arg specified",
				"lifecycle",
				"add entity_arg for state validation to work")
		}
	}

	if verb.Produces != nil && verb.Produces.ProducedType == "" {
		diags.addWarning(CodeProducesEmptyType,
			"produces block has empty produced_type",
			"produces",
			"specify what entity type this verb produces")
	}

	switch verb.Behavior.Kind {
	case BehaviorCRUD:
		if verb.Behavior.Table == "" {
			diags.addError(CodeCRUDMissingTable, "CRUD behavior missing table name", "behavior.crud", "")
		}
	case BehaviorPlugin:
		if verb.Behavior.Handler == "" {
			diags.addWarning(CodePluginEmptyHandler, "plugin behavior has empty handler name", "behavior.plugin", "")
		}
	case BehaviorGraphQuery:
		// Graph queries are generally valid if they compile.
	}
}

func argPath(index int, suffix string) string {
	if suffix == "" {
		return "args[" + itoa(index) + "]"
	}
	return "args[" + itoa(index) + "]." + suffix
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

func toAnyList[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// InferCategory maps a domain name to a reporting category (supplemental
// field, additive only — see SPEC_FULL.md §5).
func InferCategory(domain string) string {
	switch domain {
	case "cbu":
		return "cbu_operations"
	case "entity":
		return "entity_management"
	case "ubo":
		return "ownership_control"
	case "document":
		return "document_management"
	case "kyc-case", "entity-workstream", "red-flag", "doc-request":
		return "kyc_workflow"
	case "case-screening", "screening":
		return "screening"
	case "graph":
		return "graph_visualization"
	case "cbu-custody", "isda", "entity-settlement":
		return "custody_settlement"
	case "product", "service", "service-resource":
		return "products_services"
	case "fund", "share-class", "holding", "movement":
		return "fund_structure"
	case "verify", "allegation", "observation", "discrepancy":
		return "verification"
	case "jurisdiction", "currency", "role", "client-type", "case-type",
		"screening-type", "risk-rating", "settlement-type", "ssi-type",
		"instrument-class", "market", "security-type", "subcustodian":
		return "reference_data"
	default:
		return ""
	}
}
