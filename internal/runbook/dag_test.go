package runbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S4 — Dependency reordering: c1 registers @x, c2 consumes @y, c3
// registers @y. c3 must be moved before c2; c1 stays first.
func TestTopoSortReordersOnSymbolDependency(t *testing.T) {
	c1 := &StagedCommand{ID: "c1", SourceOrder: 0, DSLRaw: `(entity.register :name "X" :as @x)`}
	c2 := &StagedCommand{ID: "c2", SourceOrder: 1, DSLRaw: `(kyc.start :entity-id @y)`}
	c3 := &StagedCommand{ID: "c3", SourceOrder: 2, DSLRaw: `(entity.register :name "Y" :as @y)`}

	order, err := TopoSort([]*StagedCommand{c1, c2, c3}, nil)
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, []string{"c1", "c3", "c2"}, idsOf(order))

	diff := ReorderDiff([]*StagedCommand{c1, c2, c3}, order)
	require.Len(t, diff, 1)
	assert.Equal(t, "c3", diff[0].CommandID)
	assert.Equal(t, 2, diff[0].FromPos)
	assert.Equal(t, 1, diff[0].ToPos)
}

func TestTopoSortPreservesSourceOrderWhenIndependent(t *testing.T) {
	c1 := &StagedCommand{ID: "c1", SourceOrder: 0, DSLRaw: `(session.info)`}
	c2 := &StagedCommand{ID: "c2", SourceOrder: 1, DSLRaw: `(session.info)`}

	order, err := TopoSort([]*StagedCommand{c2, c1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, idsOf(order))
}

func idsOf(cmds []*StagedCommand) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.ID
	}
	return out
}
