// Package tournament implements a loser tree: a complete binary tree
// of fixed depth D whose leaves are fed by Providers (an input stage
// or a group of run readers) and whose root yields one proxy at a
// time in sorted order for a phase.
package tournament

import (
	"fmt"

	"github.com/sortkit/sortkit/pkg/proxy"
)

// Provider is the leaf-level data source: an InputStage or a
// SegmentReader both satisfy this by returning a Proxy until
// exhausted.
type Provider interface {
	Next(pool *proxy.Pool) (*proxy.Proxy, bool, error)
}

const (
	MinDepth = 2
	MaxDepth = 16
)

// node is one slot of the index-addressed tree array. Index 0 is the
// exit; leaves occupy [(1<<(D-1))-1 .. (1<<D)-2]. Internal node i has
// children 2i+1 and 2i+2.
type node struct {
	current *proxy.Proxy
	done    bool
	phase   int64
}

// Tree is the loser tree. It is reused across phases by reinitializing
// its nodes rather than being rebuilt from scratch.
type Tree struct {
	depth     int
	leafCount int // M = 1<<(depth-1)
	nodes     []node
	providers []Provider
	pool      *proxy.Pool
	phase     int64
	err       error
}

// New builds a Tree of the given depth over providers (len(providers)
// must equal M = 1<<(depth-1)); a nil provider leaf reports end-of-data
// immediately.
func New(depth int, providers []Provider, pool *proxy.Pool) (*Tree, error) {
	if depth < MinDepth || depth > MaxDepth {
		return nil, fmt.Errorf("tournament: depth %d out of range [%d,%d]", depth, MinDepth, MaxDepth)
	}

	leafCount := 1 << (depth - 1)
	if len(providers) != leafCount {
		return nil, fmt.Errorf("tournament: expected %d providers (M), got %d", leafCount, len(providers))
	}

	return &Tree{
		depth:     depth,
		leafCount: leafCount,
		nodes:     make([]node, (1<<depth)-1),
		providers: providers,
		pool:      pool,
	}, nil
}

// LeafCapacity returns M, the maximum number of records in one phase's
// emitted run.
func (t *Tree) LeafCapacity() int { return t.leafCount }

func (t *Tree) leafBase() int { return (1 << (t.depth - 1)) - 1 }

// leafIndex maps a provider index to its node-array slot.
func (t *Tree) leafIndex(providerIdx int) int { return t.leafBase() + providerIdx }

// StartPhase reinitializes every node for a fresh phase: clears
// current proxies, resets end-of-data, installs a new phase tag, then
// primes every leaf with one pull.
func (t *Tree) StartPhase() error {
	t.phase++
	for i := range t.nodes {
		t.nodes[i] = node{phase: t.phase}
	}

	for i, provider := range t.providers {
		leaf := t.leafIndex(i)
		if provider == nil {
			t.nodes[leaf].done = true
			continue
		}
		pr, ok, err := provider.Next(t.pool)
		if err != nil {
			return err
		}
		if !ok {
			t.nodes[leaf].done = true
			continue
		}
		t.nodes[leaf].current = pr
	}

	t.settleInternal()
	return nil
}

// settleInternal computes the winner at every internal node bottom-up,
// given the leaves already primed for this phase.
func (t *Tree) settleInternal() {
	base := t.leafBase()
	for i := base - 1; i >= 0; i-- {
		t.updateInternal(i)
	}
}

func (t *Tree) updateInternal(i int) {
	left, right := 2*i+1, 2*i+2

	ln, rn := &t.nodes[left], &t.nodes[right]

	switch {
	case ln.done && rn.done:
		t.nodes[i].done = true
		t.nodes[i].current = nil
	case ln.done:
		t.nodes[i].current = rn.current
		t.nodes[i].done = false
	case rn.done:
		t.nodes[i].current = ln.current
		t.nodes[i].done = false
	case ln.current.Compare(rn.current) <= 0:
		t.nodes[i].current = ln.current
		t.nodes[i].done = false
	default:
		t.nodes[i].current = rn.current
		t.nodes[i].done = false
	}
}

// Shake pulls the next winner from the root, requests a replacement
// from the leaf that produced it, and re-settles the path from that
// leaf to the root via an explicit top-down walk rather than
// recursion. Returns (nil, false, nil) when the phase is fully
// drained.
func (t *Tree) Shake() (*proxy.Proxy, bool, error) {
	if t.err != nil {
		return nil, false, t.err
	}
	if t.nodes[0].done {
		return nil, false, nil
	}

	winner := t.nodes[0].current
	leaf := t.findWinningLeaf(0)

	provider := t.providers[leaf-t.leafBase()]
	pr, ok, err := provider.Next(t.pool)
	if err != nil {
		t.err = err
		return nil, false, err
	}
	if !ok {
		t.nodes[leaf].done = true
		t.nodes[leaf].current = nil
	} else {
		t.nodes[leaf].current = pr
	}

	t.resettlePath(leaf)

	return winner, true, nil
}

// findWinningLeaf walks down from node i, at each step following
// whichever child currently equals this node's proxy, until it reaches
// a leaf. Ties (equal keys) are broken by always preferring the left
// child, which is deterministic and sufficient since Proxy.Compare
// already total-orders on ordinal.
func (t *Tree) findWinningLeaf(i int) int {
	base := t.leafBase()
	for i < base {
		left, right := 2*i+1, 2*i+2
		if t.nodes[i].current == t.nodes[left].current {
			i = left
		} else {
			i = right
		}
	}
	return i
}

// resettlePath recomputes every internal node on the path from leaf up
// to the root.
func (t *Tree) resettlePath(leaf int) {
	i := leaf
	for i > 0 {
		parent := (i - 1) / 2
		t.updateInternal(parent)
		i = parent
	}
}
