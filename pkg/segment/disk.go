package segment

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/sortkit/sortkit/pkg/proxy"
)

// DiskStore persists runs as a length-prefixed sequence of
// (key_len, key_bytes, size, position, source_index, ordinal) records
// into a single work file, CRC32-trailed per run, using a
// seek-back-and-patch framing: a run's record count is written as a
// placeholder header and patched in once the run closes.
//
// At most one Writer may be open at a time; K readers may be open
// concurrently.
type DiskStore struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	cursor int64
	runs   map[int]runIndexEntry
	nextID int
	writing bool
}

type runIndexEntry struct {
	headerOffset int64
	count        int64
}

// NewDiskStore creates (or truncates) the backing work file at path.
func NewDiskStore(path string) (*DiskStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segment: failed to create work file: %w", err)
	}
	return &DiskStore{file: f, path: path, runs: map[int]runIndexEntry{}}, nil
}

func (s *DiskStore) NewWriter() (Writer, error) {
	s.mu.Lock()
	if s.writing {
		s.mu.Unlock()
		return nil, fmt.Errorf("segment: a writer is already open on this work file")
	}
	s.writing = true
	id := s.nextID
	s.nextID++
	headerOffset := s.cursor
	s.mu.Unlock()

	if _, err := s.file.Seek(headerOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("segment: seek to run header: %w", err)
	}

	// Placeholder count, patched in Close once the real count is known
	// (same trick as sst.Writer.appendDataBlock's deferred size field).
	if err := binary.Write(s.file, binary.LittleEndian, uint32(0)); err != nil {
		return nil, fmt.Errorf("segment: write run header: %w", err)
	}

	return &diskWriter{
		store:        s,
		id:           id,
		headerOffset: headerOffset,
		crc:          crc32.NewIEEE(),
	}, nil
}

func (s *DiskStore) OpenReader(h Handle) (Reader, error) {
	s.mu.Lock()
	entry, ok := s.runs[h.ID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("segment: unknown disk run %d", h.ID)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("segment: reopen work file: %w", err)
	}
	if _, err := f.Seek(entry.headerOffset+4, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("segment: seek to run body: %w", err)
	}

	return &diskReader{file: f, remaining: entry.count, crc: crc32.NewIEEE()}, nil
}

func (s *DiskStore) Remove(h Handle) error {
	s.mu.Lock()
	delete(s.runs, h.ID)
	s.mu.Unlock()
	return nil
}

func (s *DiskStore) Close() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("segment: close work file: %w", err)
	}
	return os.Remove(s.path)
}

type diskWriter struct {
	store        *DiskStore
	id           int
	headerOffset int64
	count        int64
	crc          hash.Hash32
	aborted      bool
}

func (w *diskWriter) Write(pr *proxy.Proxy) error {
	mw := io.MultiWriter(w.store.file, w.crc)

	if err := binary.Write(mw, binary.LittleEndian, uint32(len(pr.Key))); err != nil {
		return fmt.Errorf("segment: write key length: %w", err)
	}
	if _, err := mw.Write(pr.Key); err != nil {
		return fmt.Errorf("segment: write key: %w", err)
	}
	if err := binary.Write(mw, binary.LittleEndian, uint32(pr.Size)); err != nil {
		return fmt.Errorf("segment: write size: %w", err)
	}
	if err := binary.Write(mw, binary.LittleEndian, pr.Position); err != nil {
		return fmt.Errorf("segment: write position: %w", err)
	}
	if err := binary.Write(mw, binary.LittleEndian, int32(pr.SourceIndex)); err != nil {
		return fmt.Errorf("segment: write source index: %w", err)
	}
	if err := binary.Write(mw, binary.LittleEndian, pr.Ordinal); err != nil {
		return fmt.Errorf("segment: write ordinal: %w", err)
	}

	w.count++
	return nil
}

func (w *diskWriter) Close() (Handle, error) {
	if err := binary.Write(w.store.file, binary.LittleEndian, w.crc.Sum32()); err != nil {
		return Handle{}, fmt.Errorf("segment: write run crc: %w", err)
	}

	end, err := w.store.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Handle{}, fmt.Errorf("segment: seek to end: %w", err)
	}

	if _, err := w.store.file.Seek(w.headerOffset, io.SeekStart); err != nil {
		return Handle{}, fmt.Errorf("segment: seek to patch header: %w", err)
	}
	if err := binary.Write(w.store.file, binary.LittleEndian, uint32(w.count)); err != nil {
		return Handle{}, fmt.Errorf("segment: patch run header: %w", err)
	}
	if _, err := w.store.file.Seek(end, io.SeekStart); err != nil {
		return Handle{}, fmt.Errorf("segment: restore cursor: %w", err)
	}

	w.store.mu.Lock()
	w.store.runs[w.id] = runIndexEntry{headerOffset: w.headerOffset, count: w.count}
	w.store.cursor = end
	w.store.writing = false
	w.store.mu.Unlock()

	return Handle{ID: w.id, Count: w.count}, nil
}

func (w *diskWriter) Abort() error {
	w.aborted = true
	w.store.mu.Lock()
	w.store.cursor = w.headerOffset
	w.store.writing = false
	w.store.mu.Unlock()
	return nil
}

type diskReader struct {
	file      *os.File
	remaining int64
	crc       hash.Hash32
}

func (r *diskReader) Next(pool *proxy.Pool) (*proxy.Proxy, bool, error) {
	if r.remaining <= 0 {
		return nil, false, nil
	}

	tr := io.TeeReader(r.file, r.crc)

	var keyLen uint32
	if err := binary.Read(tr, binary.LittleEndian, &keyLen); err != nil {
		return nil, false, fmt.Errorf("segment: read key length: %w", err)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(tr, key); err != nil {
		return nil, false, fmt.Errorf("segment: read key: %w", err)
	}

	var size uint32
	var position int64
	var sourceIndex int32
	var ordinal int64
	for _, field := range []any{&size, &position, &sourceIndex, &ordinal} {
		if err := binary.Read(tr, binary.LittleEndian, field); err != nil {
			return nil, false, fmt.Errorf("segment: read run entry: %w", err)
		}
	}

	r.remaining--

	if r.remaining == 0 {
		var wantCRC uint32
		if err := binary.Read(r.file, binary.LittleEndian, &wantCRC); err != nil {
			return nil, false, fmt.Errorf("segment: read run crc: %w", err)
		}
		if wantCRC != r.crc.Sum32() {
			return nil, false, fmt.Errorf("segment: run crc mismatch")
		}
	}

	pr := pool.Acquire()
	pr.Set(key, int(size), position, int(sourceIndex), ordinal)
	return pr, true, nil
}

func (r *diskReader) Close() error {
	return r.file.Close()
}
