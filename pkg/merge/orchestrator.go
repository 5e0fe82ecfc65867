// Package merge implements the merge orchestrator: it drives
// phase -> run -> merge passes until a single run remains, then
// streams the final pass through a duplicate filter into an output
// sink.
package merge

import (
	"fmt"

	"github.com/sortkit/sortkit/pkg/dedup"
	"github.com/sortkit/sortkit/pkg/proxy"
	"github.com/sortkit/sortkit/pkg/segment"
	"github.com/sortkit/sortkit/pkg/tournament"
)

// Publisher is the output-stage collaborator: it re-reads and emits
// one record per call.
type Publisher func(pr *proxy.Proxy) error

// Orchestrator drives the full sort: building pass-1 runs from an
// input provider, then merging runs until one remains.
type Orchestrator struct {
	Depth int // tournament depth D, 2..16
	Store segment.Store
	Pool  *proxy.Pool
}

func (o *Orchestrator) leafCount() int { return 1 << (o.Depth - 1) }

// batchProvider wraps a continuous Provider (the input stage) so a
// tournament leaf delivers at most one proxy per phase: each node
// delivers exactly one proxy per phase position, which guarantees
// every emitted run has at most M records.
type batchProvider struct {
	source tournament.Provider
	used   bool
}

func (b *batchProvider) Next(pool *proxy.Pool) (*proxy.Proxy, bool, error) {
	if b.used {
		return nil, false, nil
	}
	pr, ok, err := b.source.Next(pool)
	if err != nil {
		return nil, false, err
	}
	b.used = true
	if !ok {
		return nil, false, nil
	}
	return pr, true, nil
}

// exhaustedProvider pads unused tournament leaves when a merge group
// has fewer than the tree's leaf capacity members.
type exhaustedProvider struct{}

func (exhaustedProvider) Next(*proxy.Pool) (*proxy.Proxy, bool, error) { return nil, false, nil }

// BuildInitialRuns runs pass 1: repeatedly batch up to M records
// from source into a loser tree and emit each phase's drained, sorted
// sequence as one run.
func (o *Orchestrator) BuildInitialRuns(source tournament.Provider) ([]segment.Handle, error) {
	m := o.leafCount()
	batches := make([]*batchProvider, m)
	providers := make([]tournament.Provider, m)
	for i := range batches {
		batches[i] = &batchProvider{source: source}
		providers[i] = batches[i]
	}

	tree, err := tournament.New(o.Depth, providers, o.Pool)
	if err != nil {
		return nil, err
	}

	var handles []segment.Handle
	for {
		for _, b := range batches {
			b.used = false
		}

		if err := tree.StartPhase(); err != nil {
			return nil, err
		}

		writer, err := o.Store.NewWriter()
		if err != nil {
			return nil, err
		}

		count := 0
		for {
			pr, ok, err := tree.Shake()
			if err != nil {
				_ = writer.Abort()
				return nil, err
			}
			if !ok {
				break
			}
			if err := writer.Write(pr); err != nil {
				_ = writer.Abort()
				o.Pool.Release(pr)
				return nil, err
			}
			o.Pool.Release(pr)
			count++
		}

		if count == 0 {
			_ = writer.Abort()
			break
		}

		h, err := writer.Close()
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}

	return handles, nil
}

// chooseK picks the group size for one merge pass: the smallest K
// that reduces runCount to <= M within at most one further pass,
// which is the ceiling of runCount/M, capped at M (the tree's fan-in).
// When the cap applies, further merge passes follow.
func chooseK(runCount, m int) int {
	if runCount <= m {
		return runCount
	}
	k := (runCount + m - 1) / m
	if k < 2 {
		k = 2
	}
	if k > m {
		k = m
	}
	return k
}

// mergeGroup merges a group of runs (len <= leafCount) into one new
// run via a single full drain of the loser tree.
func (o *Orchestrator) mergeGroup(group []segment.Handle) (segment.Handle, error) {
	m := o.leafCount()
	providers := make([]tournament.Provider, m)
	readers := make([]segment.Reader, 0, len(group))

	for i, h := range group {
		r, err := o.Store.OpenReader(h)
		if err != nil {
			for _, opened := range readers {
				opened.Close()
			}
			return segment.Handle{}, err
		}
		readers = append(readers, r)
		providers[i] = r
	}
	for i := len(group); i < m; i++ {
		providers[i] = exhaustedProvider{}
	}

	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	tree, err := tournament.New(o.Depth, providers, o.Pool)
	if err != nil {
		return segment.Handle{}, err
	}
	if err := tree.StartPhase(); err != nil {
		return segment.Handle{}, err
	}

	writer, err := o.Store.NewWriter()
	if err != nil {
		return segment.Handle{}, err
	}

	for {
		pr, ok, err := tree.Shake()
		if err != nil {
			_ = writer.Abort()
			return segment.Handle{}, err
		}
		if !ok {
			break
		}
		if err := writer.Write(pr); err != nil {
			_ = writer.Abort()
			o.Pool.Release(pr)
			return segment.Handle{}, err
		}
		o.Pool.Release(pr)
	}

	h, err := writer.Close()
	if err != nil {
		return segment.Handle{}, err
	}

	for _, old := range group {
		if err := o.Store.Remove(old); err != nil {
			return segment.Handle{}, err
		}
	}

	return h, nil
}

// finalPass merges every remaining run in one last drain, applying the
// DuplicateFilter and publishing survivors, with OutputStage's
// in-order self-check.
func (o *Orchestrator) finalPass(handles []segment.Handle, filter *dedup.Filter, publish Publisher) error {
	m := o.leafCount()
	providers := make([]tournament.Provider, m)
	readers := make([]segment.Reader, 0, len(handles))

	for i, h := range handles {
		r, err := o.Store.OpenReader(h)
		if err != nil {
			for _, opened := range readers {
				opened.Close()
			}
			return err
		}
		readers = append(readers, r)
		providers[i] = r
	}
	for i := len(handles); i < m; i++ {
		providers[i] = exhaustedProvider{}
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	tree, err := tournament.New(o.Depth, providers, o.Pool)
	if err != nil {
		return err
	}
	if err := tree.StartPhase(); err != nil {
		return err
	}

	var previous []byte
	for {
		pr, ok, err := tree.Shake()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		if previous != nil && len(pr.Key) > 0 {
			if compareBytes(pr.Key, previous) < 0 {
				o.Pool.Release(pr)
				return fmt.Errorf("merge: final pass ordering self-check failed")
			}
		}
		previous = append(previous[:0], pr.Key...)

		if filter.Accept(pr) {
			if err := publish(pr); err != nil {
				o.Pool.Release(pr)
				return err
			}
		}
		o.Pool.Release(pr)
	}

	for _, h := range handles {
		if err := o.Store.Remove(h); err != nil {
			return err
		}
	}

	return nil
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Run drives the whole sort: pass 1 via BuildInitialRuns, then merge
// passes via chooseK/mergeGroup until the remaining run count fits in
// one tournament, then the final pass through filter into publish.
func (o *Orchestrator) Run(source tournament.Provider, filter *dedup.Filter, publish Publisher) error {
	handles, err := o.BuildInitialRuns(source)
	if err != nil {
		return err
	}

	if len(handles) == 0 {
		return nil // empty input -> empty output, zero passes
	}

	m := o.leafCount()
	for len(handles) > m {
		k := chooseK(len(handles), m)

		var next []segment.Handle
		for i := 0; i < len(handles); i += k {
			end := i + k
			if end > len(handles) {
				end = len(handles)
			}
			merged, err := o.mergeGroup(handles[i:end])
			if err != nil {
				return err
			}
			next = append(next, merged)
		}
		handles = next
	}

	return o.finalPass(handles, filter, publish)
}
