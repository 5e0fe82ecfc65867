package dedup

import "github.com/bits-and-blooms/bloom/v3"

// Prefilter is an optional probabilistic "have I possibly seen this
// key already this pass" check. It never affects correctness:
// Filter.Accept always falls back to the exact byte-equality rule.
// Its only job is to let a caller report an early duplicate-count
// estimate, or decide whether the exact check is worth doing at all
// on a stream known to be mostly unique.
type Prefilter struct {
	filter    *bloom.BloomFilter
	estimated int64
}

// NewPrefilter sizes the underlying bloom filter for an expected
// number of distinct keys at the given false-positive rate.
func NewPrefilter(expectedKeys uint, falsePositiveRate float64) *Prefilter {
	return &Prefilter{filter: bloom.NewWithEstimates(expectedKeys, falsePositiveRate)}
}

// MaybeSeen reports whether key may have already passed through; a
// false result is a guarantee, a true result is only a probabilistic
// hint.
func (p *Prefilter) MaybeSeen(key []byte) bool {
	hit := p.filter.Test(key)
	if hit {
		p.estimated++
	}
	return hit
}

// MarkSeen records key as observed.
func (p *Prefilter) MarkSeen(key []byte) {
	p.filter.Add(key)
}

// EstimatedDuplicates reports how many Accept calls the Prefilter
// flagged as likely duplicates, for diagnostics only.
func (p *Prefilter) EstimatedDuplicates() int64 { return p.estimated }
