package proxy

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Pool is a free-list of Proxy values, pre-sized to at least 2*M,
// where M is the tournament's leaf capacity. Acquiring beyond the
// pre-sized capacity allocates a new Proxy and grows the occupancy
// bitset; the extra Proxy is returned to the pool like any other on
// Release.
type Pool struct {
	mu        sync.Mutex
	free      []*Proxy
	occupancy *bitset.BitSet
	slots     []*Proxy // index -> proxy, for occupancy accounting only
	acquired  int64
	released  int64
	counter   int64 // shared RecordProxy.Compare() diagnostic counter
}

// NewPool preallocates capacity proxies and marks all of them free.
func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	p := &Pool{
		occupancy: bitset.New(uint(capacity)),
		slots:     make([]*Proxy, 0, capacity),
	}
	for i := 0; i < capacity; i++ {
		pr := &Proxy{slot: i}
		pr.AttachCounter(&p.counter)
		p.slots = append(p.slots, pr)
		p.free = append(p.free, pr)
	}
	return p
}

// Acquire returns a proxy from the free list, allocating a new one
// (and growing the occupancy bitset) if the pool is exhausted.
func (p *Pool) Acquire() *Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.acquired++

	var pr *Proxy
	if n := len(p.free); n > 0 {
		pr = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		pr = &Proxy{slot: len(p.slots)}
		pr.AttachCounter(&p.counter)
		p.slots = append(p.slots, pr)
	}

	p.occupancy.Set(uint(pr.slot))

	return pr
}

// Release returns a proxy to the free list.
func (p *Pool) Release(pr *Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.released++
	pr.Reset()
	p.free = append(p.free, pr)

	p.occupancy.Clear(uint(pr.slot))
}

// Live returns #acquired - #released, which must be zero at
// shutdown.
func (p *Pool) Live() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired - p.released
}

// Occupied returns the number of slots the occupancy bitset currently
// reports as in-use; used as a cross-check against Live in tests.
func (p *Pool) Occupied() uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.occupancy.Count()
}

// Comparisons returns the running total of Proxy.Compare calls across
// every proxy this pool has ever handed out.
func (p *Pool) Comparisons() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counter
}
