package rcsmaster

import (
	"testing"

	"github.com/rcowham/gitp4transfer/internal/cvsnumber"
	"github.com/stretchr/testify/require"
)

func num(t *cvsnumber.Table, s string) *cvsnumber.Number {
	n, err := t.Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

func TestBuildBranchesLinearTrunk(t *testing.T) {
	numbers := cvsnumber.NewTable()
	h := NewNodeHash()

	for _, s := range []string{"1.1", "1.2", "1.3"} {
		n := num(numbers, s)
		h.HashVersion(&Version{Number: n})
		h.HashPatch(&Patch{Number: n})
	}

	require.NoError(t, h.BuildBranches(numbers))
	require.NotNil(t, h.HeadNode)
	require.Equal(t, "1.3", h.HeadNode.Number.String())

	// Trunk chain links oldest->newest via Next, and To points from each
	// trunk revision to the next older one.
	n11 := h.nodeFor(num(numbers, "1.1"))
	n12 := h.nodeFor(num(numbers, "1.2"))
	n13 := h.nodeFor(num(numbers, "1.3"))
	require.Equal(t, n12, n11.Next)
	require.Equal(t, n13, n12.Next)
	require.Equal(t, n12, n13.To)
}

func TestBuildBranchesAttachesBranchToParent(t *testing.T) {
	numbers := cvsnumber.NewTable()
	h := NewNodeHash()

	for _, s := range []string{"1.1", "1.2", "1.2.2.1"} {
		n := num(numbers, s)
		h.HashVersion(&Version{Number: n})
		h.HashPatch(&Patch{Number: n})
	}

	require.NoError(t, h.BuildBranches(numbers))

	parent := h.nodeFor(num(numbers, "1.2"))
	branchRoot := h.nodeFor(num(numbers, "1.2.2.1"))
	require.Equal(t, branchRoot, parent.Down)
}

func TestBuildBranchesWarnsOnDuplicateDelta(t *testing.T) {
	numbers := cvsnumber.NewTable()
	h := NewNodeHash()
	var warnings []string
	h.Warnf = func(format string, args ...interface{}) {
		warnings = append(warnings, format)
	}

	n := num(numbers, "1.1")
	h.HashVersion(&Version{Number: n})
	h.HashVersion(&Version{Number: n})

	require.Len(t, warnings, 1)
}
