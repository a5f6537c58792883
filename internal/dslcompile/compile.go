// Package dslcompile lowers a validated parse tree into a flat, ordered
// execution plan: nested verb calls are hoisted into their own steps,
// argument values are converted from AST nodes into a small typed value
// representation, and every step is given a binding name (spec §4.5
// "Compile"). The ordering matches dslparser.Program.EvaluationOrder so
// the dataflow validator and the compiler never disagree about what a
// symbol reference can see.
package dslcompile

import (
	"fmt"
	"strconv"

	"github.com/adamtc007/ob-poc-sub006/internal/dslparser"
)

// ValueKind discriminates a compiled argument value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindDecimal
	KindBool
	KindNull
	KindUUID
	KindEntityRef
	KindSymbolRef
	KindList
	KindMap
)

// Value is one compiled argument value. Only the fields relevant to Kind
// are populated.
type Value struct {
	Kind      ValueKind
	Str       string // String, UUID, EntityRef
	Int       int64
	Float     float64
	Bool      bool
	List      []Value
	Map       []MapEntry
	SymbolRef string // capture name this value resolves against at execution time
}

// MapEntry is one key/value pair of a compiled map literal. A slice
// preserves source order instead of a map, since canonical hashing and
// diagnostics both want stable iteration.
type MapEntry struct {
	Key   string
	Value Value
}

// PlanStep is one verb invocation in execution order.
type PlanStep struct {
	Index    int
	FQN      string
	Domain   string
	Verb     string
	Args     map[string]Value
	BindAs   string // capture name this step's result is bound to
	Explicit bool   // true if BindAs came from an explicit ":as @name", false if synthesized
	Line     int
	Column   int
}

// ExecutionPlan is the fully lowered, ordered form of a program, ready
// for sequential execution (C6).
type ExecutionPlan struct {
	Steps []PlanStep
}

// Compile lowers prog into an ExecutionPlan. prog is expected to have
// already passed validation; Compile itself performs no semantic checks,
// only structural conversion.
func Compile(prog *dslparser.Program) (*ExecutionPlan, error) {
	order := prog.EvaluationOrder()

	bindNames := make(map[*dslparser.Node]string, len(order))
	for i, call := range order {
		name := call.CaptureAs
		if name == "" {
			name = syntheticBindName(i)
		}
		bindNames[call] = name
	}

	steps := make([]PlanStep, 0, len(order))
	for i, call := range order {
		args := make(map[string]Value, len(call.Children))
		for _, argNode := range call.Children {
			if argNode.Type != dslparser.KeywordArgNode {
				continue
			}
			val, err := convertValue(argNode.Children[0], bindNames)
			if err != nil {
				return nil, fmt.Errorf("compiling %s arg %q: %w", call.Value, argNode.Value, err)
			}
			args[argNode.Value] = val
		}
		steps = append(steps, PlanStep{
			Index:    i,
			FQN:      call.Domain + "." + call.Verb,
			Domain:   call.Domain,
			Verb:     call.Verb,
			Args:     args,
			BindAs:   bindNames[call],
			Explicit: call.CaptureAs != "",
			Line:     call.Line,
			Column:   call.Column,
		})
	}

	return &ExecutionPlan{Steps: steps}, nil
}

func convertValue(n *dslparser.Node, bindNames map[*dslparser.Node]string) (Value, error) {
	switch n.Type {
	case dslparser.StringNode:
		return Value{Kind: KindString, Str: n.Value}, nil
	case dslparser.IntNode:
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid integer literal %q: %w", n.Value, err)
		}
		return Value{Kind: KindInt, Int: i}, nil
	case dslparser.DecimalNode:
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid decimal literal %q: %w", n.Value, err)
		}
		return Value{Kind: KindDecimal, Float: f}, nil
	case dslparser.BoolNode:
		return Value{Kind: KindBool, Bool: n.Value == "true"}, nil
	case dslparser.NullNode:
		return Value{Kind: KindNull}, nil
	case dslparser.UUIDNode:
		return Value{Kind: KindUUID, Str: n.Value}, nil
	case dslparser.EntityRefNode:
		return Value{Kind: KindEntityRef, Str: n.Value}, nil
	case dslparser.SymbolRefNode:
		return Value{Kind: KindSymbolRef, SymbolRef: n.Value}, nil
	case dslparser.ListNode:
		items := make([]Value, 0, len(n.Children))
		for _, c := range n.Children {
			v, err := convertValue(c, bindNames)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{Kind: KindList, List: items}, nil
	case dslparser.MapNode:
		entries := make([]MapEntry, 0, len(n.Children))
		for _, entryNode := range n.Children {
			v, err := convertValue(entryNode.Children[0], bindNames)
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, MapEntry{Key: entryNode.Value, Value: v})
		}
		return Value{Kind: KindMap, Map: entries}, nil
	case dslparser.VerbCallNode:
		name, ok := bindNames[n]
		if !ok {
			return Value{}, fmt.Errorf("internal error: nested verb call %q missing a bind name", n.Value)
		}
		return Value{Kind: KindSymbolRef, SymbolRef: name}, nil
	default:
		return Value{}, fmt.Errorf("unexpected node type %d in value position", n.Type)
	}
}

func syntheticBindName(index int) string {
	return "__step" + strconv.Itoa(index)
}

// HasArg reports whether the Args map contains name.
func (s PlanStep) HasArg(name string) bool {
	_, ok := s.Args[name]
	return ok
}
