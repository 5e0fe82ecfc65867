package segment

import (
	"fmt"
	"sync"

	"github.com/sortkit/sortkit/pkg/proxy"
)

// entry is a self-contained copy of a proxy's fields; a MemoryStore
// run never reaches back into a pooled Proxy once written, since that
// Proxy may already have been released and reused by the time the run
// is read back.
type entry struct {
	key         []byte
	size        int
	position    int64
	sourceIndex int
	ordinal     int64
}

// MemoryStore keeps every run as a slice of entries indexed by a side
// table.
type MemoryStore struct {
	mu     sync.Mutex
	runs   map[int][]entry
	nextID int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: map[int][]entry{}}
}

func (s *MemoryStore) NewWriter() (Writer, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	return &memoryWriter{store: s, id: id}, nil
}

func (s *MemoryStore) OpenReader(h Handle) (Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[h.ID]
	if !ok {
		return nil, fmt.Errorf("segment: unknown memory run %d", h.ID)
	}
	return &memoryReader{entries: run}, nil
}

func (s *MemoryStore) Remove(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, h.ID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = map[int][]entry{}
	return nil
}

type memoryWriter struct {
	store   *MemoryStore
	id      int
	entries []entry
	aborted bool
}

func (w *memoryWriter) Write(pr *proxy.Proxy) error {
	e := entry{
		key:         append([]byte(nil), pr.Key...),
		size:        pr.Size,
		position:    pr.Position,
		sourceIndex: pr.SourceIndex,
		ordinal:     pr.Ordinal,
	}
	w.entries = append(w.entries, e)
	return nil
}

func (w *memoryWriter) Close() (Handle, error) {
	w.store.mu.Lock()
	w.store.runs[w.id] = w.entries
	w.store.mu.Unlock()
	return Handle{ID: w.id, Count: int64(len(w.entries))}, nil
}

func (w *memoryWriter) Abort() error {
	w.aborted = true
	w.entries = nil
	return nil
}

type memoryReader struct {
	entries []entry
	pos     int
}

func (r *memoryReader) Next(pool *proxy.Pool) (*proxy.Proxy, bool, error) {
	if r.pos >= len(r.entries) {
		return nil, false, nil
	}
	e := r.entries[r.pos]
	r.pos++

	pr := pool.Acquire()
	pr.Set(e.key, e.size, e.position, e.sourceIndex, e.ordinal)
	return pr, true, nil
}

func (r *memoryReader) Close() error { return nil }
