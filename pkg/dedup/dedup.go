// Package dedup implements the duplicate-record dispositions applied
// to the tournament's final-pass emitted stream.
package dedup

import (
	"bytes"

	"github.com/sortkit/sortkit/pkg/proxy"
)

// Disposition selects which record among a run of equal encoded keys
// survives.
type Disposition int

const (
	Original Disposition = iota
	FirstOnly
	LastOnly
	Reverse
)

// NegatesOrdinal reports whether this disposition requires ordinals to
// be negated upstream (at extraction time) so that the tournament's
// natural ascending tie-break surfaces the record this disposition
// wants kept (LastOnly and Reverse both negate).
func (d Disposition) NegatesOrdinal() bool {
	return d == LastOnly || d == Reverse
}

// InvertsKeyDirection reports whether this disposition requires the
// KeyCodec's direction bits to be inverted at encode time, so the
// tournament emits records in reverse semantic key order.
func (d Disposition) InvertsKeyDirection() bool {
	return d == Reverse
}

// AdjustOrdinal applies this disposition's ordinal-sign convention to
// a freshly extracted (always-positive) ordinal.
func AdjustOrdinal(d Disposition, ordinal int64) int64 {
	if d.NegatesOrdinal() {
		return -ordinal
	}
	return ordinal
}

// Stats tracks the relationship output = selected - dropped.
type Stats struct {
	Emitted int64
	Dropped int64
}

// Filter consumes an already key-ordered stream — equality of keys is
// byte-equality of the full encoded key, including sentinel and
// length — and decides, one proxy at a time, whether it survives.
// Because the upstream tournament has already applied the
// ordinal-sign/direction-inversion convention for the active
// disposition, FirstOnly/LastOnly reduce to "keep the first proxy of
// each equal-key run, drop the rest". Original and Reverse retain
// every record: Reverse only changes emission order (via the
// direction-bit inversion and ordinal negation already applied
// upstream), it does not drop duplicates.
type Filter struct {
	disposition Disposition
	lastKey     []byte
	haveLast    bool
	stats       Stats
	prefilter   *Prefilter
}

func New(d Disposition) *Filter {
	return &Filter{disposition: d}
}

// WithPrefilter attaches an optional bloom-filter pre-check; it never
// changes Accept's decisions, only its diagnostics (see Prefilter).
func (f *Filter) WithPrefilter(p *Prefilter) *Filter {
	f.prefilter = p
	return f
}

// Accept reports whether pr should be emitted. It must be called on
// proxies in the order the final merge pass produces them.
func (f *Filter) Accept(pr *proxy.Proxy) bool {
	if f.prefilter != nil {
		f.prefilter.MaybeSeen(pr.Key)
		f.prefilter.MarkSeen(pr.Key)
	}

	if f.disposition == Original || f.disposition == Reverse {
		f.stats.Emitted++
		return true
	}

	if f.haveLast && bytes.Equal(f.lastKey, pr.Key) {
		f.stats.Dropped++
		return false
	}

	f.lastKey = append(f.lastKey[:0], pr.Key...)
	f.haveLast = true
	f.stats.Emitted++
	return true
}

func (f *Filter) Stats() Stats { return f.stats }
