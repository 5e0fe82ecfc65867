package tournament

import (
	"testing"

	"github.com/sortkit/sortkit/pkg/proxy"
)

// sliceProvider feeds proxies from a fixed slice of keys, one per
// Next call, for deterministic tournament tests.
type sliceProvider struct {
	keys []string
	pool *proxy.Pool
	idx  int
	ord  int64
}

func (p *sliceProvider) Next(pool *proxy.Pool) (*proxy.Proxy, bool, error) {
	if p.idx >= len(p.keys) {
		return nil, false, nil
	}
	pr := pool.Acquire()
	p.ord++
	pr.Set([]byte(p.keys[p.idx]), len(p.keys[p.idx]), int64(p.idx), 0, p.ord)
	p.idx++
	return pr, true, nil
}

func emptyProvider() *sliceProvider { return &sliceProvider{} }

func TestTreeDrainsSingleProviderInOrder(t *testing.T) {
	pool := proxy.NewPool(8)
	providers := []Provider{
		&sliceProvider{keys: []string{"c", "a", "b"}},
		emptyProvider(),
	}

	tree, err := New(2, providers, pool)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := tree.StartPhase(); err != nil {
		t.Fatalf("start phase: %v", err)
	}

	var got []string
	for {
		pr, ok, err := tree.Shake()
		if err != nil {
			t.Fatalf("shake: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, string(pr.Key))
	}

	// The tree merges its leaves' streams; with one non-empty leaf there
	// is nothing to merge against, so records pass through in the
	// provider's own order.
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestTreeEmptyInputYieldsNoOutput(t *testing.T) {
	pool := proxy.NewPool(8)
	providers := []Provider{emptyProvider(), emptyProvider()}

	tree, err := New(2, providers, pool)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := tree.StartPhase(); err != nil {
		t.Fatalf("start phase: %v", err)
	}

	_, ok, err := tree.Shake()
	if err != nil {
		t.Fatalf("shake: %v", err)
	}
	if ok {
		t.Fatalf("expected no output from empty input")
	}
}

func TestTreeLeafCapacityAndDepthBounds(t *testing.T) {
	pool := proxy.NewPool(8)

	if _, err := New(1, nil, pool); err == nil {
		t.Fatalf("expected error for depth below MinDepth")
	}
	if _, err := New(17, nil, pool); err == nil {
		t.Fatalf("expected error for depth above MaxDepth")
	}

	providers := []Provider{emptyProvider(), emptyProvider(), emptyProvider(), emptyProvider()}
	tree, err := New(3, providers, pool)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if tree.LeafCapacity() != 4 {
		t.Fatalf("expected M=4, got %d", tree.LeafCapacity())
	}
}

func TestTreeExactlyMRecordsOnePhase(t *testing.T) {
	pool := proxy.NewPool(8)
	// power=3 -> depth 3 -> M=4
	providers := []Provider{
		&sliceProvider{keys: []string{"d"}},
		&sliceProvider{keys: []string{"b"}},
		&sliceProvider{keys: []string{"a"}},
		&sliceProvider{keys: []string{"c"}},
	}

	tree, err := New(3, providers, pool)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := tree.StartPhase(); err != nil {
		t.Fatalf("start phase: %v", err)
	}

	var got []string
	for {
		pr, ok, err := tree.Shake()
		if err != nil {
			t.Fatalf("shake: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, string(pr.Key))
	}

	want := []string{"a", "b", "c", "d"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
