package segment

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sortkit/sortkit/pkg/proxy"
)

func writeRun(t *testing.T, store Store, keys []string) Handle {
	t.Helper()
	w, err := store.NewWriter()
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	pool := proxy.NewPool(4)
	for i, k := range keys {
		pr := pool.Acquire()
		pr.Set([]byte(k), len(k), int64(i), 0, int64(i+1))
		if err := w.Write(pr); err != nil {
			t.Fatalf("write: %v", err)
		}
		pool.Release(pr)
	}

	h, err := w.Close()
	if err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return h
}

func readRun(t *testing.T, store Store, h Handle) []string {
	t.Helper()
	r, err := store.OpenReader(h)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()

	pool := proxy.NewPool(4)
	var got []string
	for {
		pr, ok, err := r.Next(pool)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, string(pr.Key))
		pool.Release(pr)
	}
	return got
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	h := writeRun(t, store, []string{"a", "b", "c"})
	if h.Count != 3 {
		t.Fatalf("expected count 3, got %d", h.Count)
	}

	got := readRun(t, store, h)
	want := []string{"a", "b", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("run contents mismatch (-want +got):\n%s", diff)
	}
}

func TestDiskStoreRoundTripMultipleRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sortkit-work.tmp")
	store, err := NewDiskStore(path)
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	defer store.Close()

	h1 := writeRun(t, store, []string{"alpha", "beta"})
	h2 := writeRun(t, store, []string{"gamma", "delta", "epsilon"})

	if got := readRun(t, store, h1); len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Fatalf("unexpected run 1 contents: %v", got)
	}
	if got := readRun(t, store, h2); len(got) != 3 || got[0] != "gamma" {
		t.Fatalf("unexpected run 2 contents: %v", got)
	}
}

func TestDiskStoreRejectsConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sortkit-work.tmp")
	store, err := NewDiskStore(path)
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	defer store.Close()

	w1, err := store.NewWriter()
	if err != nil {
		t.Fatalf("first writer: %v", err)
	}

	if _, err := store.NewWriter(); err == nil {
		t.Fatalf("expected error opening a second concurrent writer")
	}

	if _, err := w1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := store.NewWriter(); err != nil {
		t.Fatalf("expected second writer to succeed after first closed: %v", err)
	}
}
