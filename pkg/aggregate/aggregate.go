// Package aggregate implements the --count|--sum|--min|--max|--avg
// reducer set, run over the final deduplicated stream that the output
// stage would otherwise publish record-by-record.
package aggregate

import (
	"fmt"
	"math"

	"github.com/sortkit/sortkit/pkg/proxy"
)

// Reducer folds one proxy's numeric field value into running state.
// It mirrors pkg/dedup's Disposition-as-small-interface shape: one
// concern, swappable, no shared base type.
type Reducer interface {
	Add(value float64)
	Result() float64
	Name() string
}

// FieldExtractor pulls the numeric value a Reducer folds over out of a
// proxy's re-read raw record bytes; aggregation operates on the raw
// record, never on the opaque encoded key.
type FieldExtractor func(pr *proxy.Proxy, raw []byte) (float64, error)

type countReducer struct{ n int64 }

func NewCount() Reducer                 { return &countReducer{} }
func (c *countReducer) Add(float64)     { c.n++ }
func (c *countReducer) Result() float64 { return float64(c.n) }
func (c *countReducer) Name() string    { return "count" }

type sumReducer struct{ total float64 }

func NewSum() Reducer                 { return &sumReducer{} }
func (s *sumReducer) Add(v float64)   { s.total += v }
func (s *sumReducer) Result() float64 { return s.total }
func (s *sumReducer) Name() string    { return "sum" }

type minReducer struct {
	value float64
	seen  bool
}

func NewMin() Reducer { return &minReducer{value: math.Inf(1)} }
func (m *minReducer) Add(v float64) {
	if !m.seen || v < m.value {
		m.value = v
		m.seen = true
	}
}
func (m *minReducer) Result() float64 { return m.value }
func (m *minReducer) Name() string    { return "min" }

type maxReducer struct {
	value float64
	seen  bool
}

func NewMax() Reducer { return &maxReducer{value: math.Inf(-1)} }
func (m *maxReducer) Add(v float64) {
	if !m.seen || v > m.value {
		m.value = v
		m.seen = true
	}
}
func (m *maxReducer) Result() float64 { return m.value }
func (m *maxReducer) Name() string    { return "max" }

type avgReducer struct {
	total float64
	n     int64
}

func NewAvg() Reducer              { return &avgReducer{} }
func (a *avgReducer) Add(v float64) { a.total += v; a.n++ }
func (a *avgReducer) Result() float64 {
	if a.n == 0 {
		return 0
	}
	return a.total / float64(a.n)
}
func (a *avgReducer) Name() string { return "avg" }

// Pipeline runs a set of reducers over a stream of proxies, extracting
// each reducer's input value via extract.
type Pipeline struct {
	reducers []Reducer
	extract  FieldExtractor
}

func NewPipeline(extract FieldExtractor, reducers ...Reducer) *Pipeline {
	return &Pipeline{reducers: reducers, extract: extract}
}

// Feed folds one record's raw bytes into every configured reducer.
func (p *Pipeline) Feed(pr *proxy.Proxy, raw []byte) error {
	value, err := p.extract(pr, raw)
	if err != nil {
		return fmt.Errorf("aggregate: extract field: %w", err)
	}
	for _, r := range p.reducers {
		r.Add(value)
	}
	return nil
}

// Results returns each reducer's final value keyed by its name; as a
// map it carries no order.
func (p *Pipeline) Results() map[string]float64 {
	out := make(map[string]float64, len(p.reducers))
	for _, r := range p.reducers {
		out[r.Name()] = r.Result()
	}
	return out
}
