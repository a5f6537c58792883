package runbook

import (
	"fmt"
	"sort"

	"github.com/adamtc007/ob-poc-sub006/internal/dslparser"
	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
)

// VerbLookup is the seam the DAG builder uses to learn what entity type a
// verb produces/consumes, so it can add edges for commands that never
// share a symbol capture (spec §4.9.3 "or reads an entity that c_i
// produces").
type VerbLookup interface {
	Get(fqn string) (*verbregistry.RuntimeVerb, bool)
}

// CycleError is returned when the command graph is not acyclic; per spec
// §4.9.3 step 1, execution is refused with a diagnostic rather than
// silently breaking the cycle.
type CycleError struct {
	CommandIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among commands: %v", e.CommandIDs)
}

// buildEdges computes, for every command, the set of command IDs it
// depends on (must run before it): c_j depends on c_i iff c_j references
// a symbol c_i captures, or c_j's verb consumes an entity type that some
// other c_i's verb produces, wherever c_i sits in source order (a
// type-level approximation of "reads an
// entity that c_i produces" — the spec does not require instance-level
// provenance tracking, only that producers of a consumed type precede
// consumers).
func buildEdges(commands []*StagedCommand, lookup VerbLookup) map[string]map[string]bool {
	captureOwner := make(map[string]string, len(commands)) // symbol name -> command id
	producerOf := make(map[string][]string)                // produced_type -> command ids, in source order

	parsed := make(map[string]*dslparser.Node, len(commands))
	for _, cmd := range commands {
		node, err := dslparser.ParseSingleVerb(cmd.DSLRaw)
		if err != nil {
			continue // unparsable commands contribute no edges; ready gate blocks them anyway
		}
		parsed[cmd.ID] = node
		if node.CaptureAs != "" {
			captureOwner[node.CaptureAs] = cmd.ID
		}
		if lookup != nil {
			if verb, ok := lookup.Get(cmd.Verb); ok && verb.Produces != nil {
				producerOf[verb.Produces.ProducedType] = append(producerOf[verb.Produces.ProducedType], cmd.ID)
			}
		}
	}

	deps := make(map[string]map[string]bool, len(commands))
	for _, cmd := range commands {
		deps[cmd.ID] = make(map[string]bool)
	}

	for _, cmd := range commands {
		node, ok := parsed[cmd.ID]
		if !ok {
			continue
		}
		for _, ref := range symbolRefs(node) {
			if owner, ok := captureOwner[ref]; ok && owner != cmd.ID {
				deps[cmd.ID][owner] = true
			}
		}
		if lookup != nil {
			if verb, ok := lookup.Get(cmd.Verb); ok {
				for _, consumes := range verb.Consumes {
					for _, producerID := range producerOf[consumes.ConsumedType] {
						if producerID != cmd.ID {
							deps[cmd.ID][producerID] = true
						}
					}
				}
			}
		}
	}
	return deps
}

func symbolRefs(n *dslparser.Node) []string {
	var out []string
	var walk func(*dslparser.Node)
	walk = func(node *dslparser.Node) {
		if node.Type == dslparser.SymbolRefNode {
			out = append(out, node.Value)
		}
		for _, c := range node.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// TopoSort computes a topological order over commands, breaking ties by
// SourceOrder so user intent is preserved when dependencies allow (spec
// §4.9.3 step 2). Returns a *CycleError if the graph is not acyclic.
func TopoSort(commands []*StagedCommand, lookup VerbLookup) ([]*StagedCommand, error) {
	deps := buildEdges(commands, lookup)
	byID := make(map[string]*StagedCommand, len(commands))
	for _, c := range commands {
		byID[c.ID] = c
	}

	remaining := make(map[string]bool, len(commands))
	for _, c := range commands {
		remaining[c.ID] = true
	}

	var order []*StagedCommand
	for len(remaining) > 0 {
		var ready []string
		for id := range remaining {
			ok := true
			for dep := range deps[id] {
				if remaining[dep] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			var stuck []string
			for id := range remaining {
				stuck = append(stuck, id)
			}
			sort.Strings(stuck)
			return nil, &CycleError{CommandIDs: stuck}
		}
		sort.Slice(ready, func(i, j int) bool {
			return byID[ready[i]].SourceOrder < byID[ready[j]].SourceOrder
		})
		next := ready[0]
		order = append(order, byID[next])
		delete(remaining, next)
	}
	return order, nil
}

// ReorderDiff describes the moves between source order and the computed
// DAG order (spec §4.9.3 step 3), so a transport can justify reordering
// to a user. Only commands that the DAG order pulls ahead of their source
// position are listed; commands pushed later as a consequence are not
// listed separately.
func ReorderDiff(sourceOrder []*StagedCommand, dagOrder []*StagedCommand) []ReorderMove {
	fromPos := make(map[string]int, len(sourceOrder))
	for i, c := range sourceOrder {
		fromPos[c.ID] = i
	}

	var moves []ReorderMove
	for toPos, c := range dagOrder {
		from := fromPos[c.ID]
		if toPos < from {
			moves = append(moves, ReorderMove{
				CommandID: c.ID,
				FromPos:   from,
				ToPos:     toPos,
				Reason:    "moved ahead to satisfy dependency order",
			})
		}
	}
	return moves
}
