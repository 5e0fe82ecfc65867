package dedup

import (
	"testing"

	"github.com/sortkit/sortkit/pkg/proxy"
)

func setProxy(pr *proxy.Proxy, key string, ordinal int64) {
	pr.Set([]byte(key), len(key), 0, 0, ordinal)
}

func TestDuplicateFilterLastOnly(t *testing.T) {
	// After LastOnly's ordinal negation and the tournament's sort, a
	// stream originally written as (A,1),(A,2),(B,3),(A,4) arrives as
	// (A,-4),(A,-2),(A,-1),(B,-3); Accept keeps only the first of each
	// equal-key run.
	pool := proxy.NewPool(8)
	f := New(LastOnly)

	order := []struct {
		key     string
		ordinal int64
	}{
		{"A", -4}, {"A", -2}, {"A", -1}, {"B", -3},
	}

	var kept []string
	for _, o := range order {
		pr := pool.Acquire()
		setProxy(pr, o.key, o.ordinal)
		if f.Accept(pr) {
			kept = append(kept, string(pr.Key))
		}
		pool.Release(pr)
	}

	if len(kept) != 2 || kept[0] != "A" || kept[1] != "B" {
		t.Fatalf("expected [A B], got %v", kept)
	}

	stats := f.Stats()
	if stats.Emitted != 2 || stats.Dropped != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDuplicateFilterOriginalEmitsAll(t *testing.T) {
	pool := proxy.NewPool(8)
	f := New(Original)

	for _, k := range []string{"A", "A", "B"} {
		pr := pool.Acquire()
		setProxy(pr, k, 1)
		if !f.Accept(pr) {
			t.Fatalf("Original policy must emit every record")
		}
		pool.Release(pr)
	}
}

func TestDuplicateFilterFirstOnly(t *testing.T) {
	pool := proxy.NewPool(8)
	f := New(FirstOnly)

	order := []struct {
		key     string
		ordinal int64
	}{
		{"A", 1}, {"A", 2}, {"A", 4}, {"B", 3},
	}

	var kept []int64
	for _, o := range order {
		pr := pool.Acquire()
		setProxy(pr, o.key, o.ordinal)
		if f.Accept(pr) {
			kept = append(kept, pr.Ordinal)
		}
		pool.Release(pr)
	}

	if len(kept) != 2 || kept[0] != 1 || kept[1] != 3 {
		t.Fatalf("expected first-seen ordinals [1 3], got %v", kept)
	}
}

func TestDuplicateFilterReverseRetainsDuplicates(t *testing.T) {
	// Reverse only reverses emission order (via upstream direction-bit
	// inversion and ordinal negation); it must not drop duplicates the
	// way FirstOnly/LastOnly do.
	pool := proxy.NewPool(8)
	f := New(Reverse)

	for _, k := range []string{"B", "A", "A", "A"} {
		pr := pool.Acquire()
		setProxy(pr, k, 1)
		if !f.Accept(pr) {
			t.Fatalf("Reverse policy must emit every record, rejected %q", k)
		}
		pool.Release(pr)
	}

	stats := f.Stats()
	if stats.Emitted != 4 || stats.Dropped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAdjustOrdinalConventions(t *testing.T) {
	if AdjustOrdinal(Original, 5) != 5 {
		t.Fatalf("Original must not negate ordinals")
	}
	if AdjustOrdinal(FirstOnly, 5) != 5 {
		t.Fatalf("FirstOnly must not negate ordinals")
	}
	if AdjustOrdinal(LastOnly, 5) != -5 {
		t.Fatalf("LastOnly must negate ordinals")
	}
	if AdjustOrdinal(Reverse, 5) != -5 {
		t.Fatalf("Reverse must negate ordinals")
	}
}
