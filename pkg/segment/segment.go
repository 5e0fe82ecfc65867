// Package segment implements the run store: a Writer persists a
// sorted run (in memory or to disk) and a Reader re-reads it lazily,
// satisfying the tournament's Provider contract for the next merge
// pass.
package segment

import "github.com/sortkit/sortkit/pkg/proxy"

// Handle identifies one run within a Store. Its fields are opaque to
// callers outside this package; no on-disk layout it implies is
// stable across versions.
type Handle struct {
	ID    int
	Count int64
}

// Writer persists one run's proxies in the order they are written
// (the tournament already hands them over sorted).
type Writer interface {
	Write(pr *proxy.Proxy) error
	// Close finalizes the run and returns its Handle. The Writer must
	// not be used afterward.
	Close() (Handle, error)
	// Abort discards a partially written run: partial runs on fatal
	// error are discarded on close.
	Abort() error
}

// Reader re-reads a run's proxies in stored order and satisfies
// tournament.Provider directly.
type Reader interface {
	Next(pool *proxy.Pool) (*proxy.Proxy, bool, error)
	Close() error
}

// Store is the backing collaborator for one sort's runs, selected by
// configuration between the in-memory and on-disk variants.
type Store interface {
	NewWriter() (Writer, error)
	OpenReader(h Handle) (Reader, error)
	Remove(h Handle) error
	Close() error
}
