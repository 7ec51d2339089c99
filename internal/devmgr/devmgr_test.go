package devmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwiceForSameCompatiblePanics(t *testing.T) {
	r := New()
	r.Register("vendor,widget", func(n *Node) (bool, error) { return true, nil })
	assert.Panics(t, func() {
		r.Register("vendor,widget", func(n *Node) (bool, error) { return true, nil })
	})
}

func TestProbeInitialisesAllMatchingNodes(t *testing.T) {
	r := New()
	var probed []string
	r.Register("vendor,uart", func(n *Node) (bool, error) {
		probed = append(probed, n.Name)
		return true, nil
	})

	tree := []*Node{
		{Name: "uart0", Compatible: "vendor,uart"},
		{Name: "uart1", Compatible: "vendor,uart"},
	}

	initialized, unresolved, err := Probe(nil, r, tree)
	require.NoError(t, err)
	assert.Equal(t, 2, initialized)
	assert.Empty(t, unresolved)
	assert.ElementsMatch(t, []string{"uart0", "uart1"}, probed)
}

func TestProbeLeavesUnmatchedNodesUnresolved(t *testing.T) {
	r := New()
	_, unresolved, err := Probe(nil, r, []*Node{{Name: "mystery", Compatible: "vendor,unknown"}})
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "mystery", unresolved[0].Name)
}

// TestProbeResolvesInterruptParentOrdering exercises the multi-pass
// behaviour spec.md §6 calls for: a child device's handler only
// succeeds once its interrupt-parent has probed, and re-probing keeps
// going until a pass makes no progress.
func TestProbeResolvesInterruptParentOrdering(t *testing.T) {
	r := New()
	parentReady := false
	r.Register("vendor,intc", func(n *Node) (bool, error) {
		parentReady = true
		return true, nil
	})
	r.Register("vendor,child", func(n *Node) (bool, error) {
		return parentReady, nil
	})

	// child listed before its interrupt parent in traversal order, so the
	// first pass must fail it and only the second pass (after the parent
	// has probed) succeeds.
	tree := []*Node{
		{Name: "child", Compatible: "vendor,child"},
		{Name: "intc", Compatible: "vendor,intc"},
	}

	initialized, unresolved, err := Probe(nil, r, tree)
	require.NoError(t, err)
	assert.Equal(t, 2, initialized)
	assert.Empty(t, unresolved)
}

func TestProbeStopsOnHandlerError(t *testing.T) {
	r := New()
	boom := boomErr{}
	r.Register("vendor,bad", func(n *Node) (bool, error) { return false, boom })

	_, _, err := Probe(nil, r, []*Node{{Name: "bad", Compatible: "vendor,bad"}})
	assert.ErrorIs(t, err, boom)
}

type boomErr struct{}

func (boomErr) Error() string { return "probe failed" }
