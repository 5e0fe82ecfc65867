// Package input implements the input stage: a lazy sequence of raw
// records with header skip, WHERE/STOP predicate evaluation, and key
// extraction into pooled RecordProxy values.
package input

import (
	"io"

	"github.com/sortkit/sortkit/pkg/keycodec"
	"github.com/sortkit/sortkit/pkg/proxy"
)

// RawRecord is one record pulled from a backing Reader before any
// filtering or key extraction.
type RawRecord struct {
	Bytes    []byte
	Position int64
}

// Reader is the out-of-core collaborator that knows how to split a
// concrete file format (fixed-length, newline-delimited, CSV) into
// RawRecords. Implementations advance to the next input file on EOF
// themselves if they hold a multi-file list; Next returns io.EOF only
// once every file is exhausted.
type Reader interface {
	Next() (RawRecord, error)
	SourceIndex() int // which input file the last-returned record came from
	Close() error
}

// Context is passed to predicate Evaluators so WHERE/STOP equations
// can see the current record.
type Context struct {
	Record        []byte
	Columns       [][]byte
	RecordNumber  int64
	ContinuousNum int64
}

// Evaluator abstracts the expression engine used for WHERE/STOP
// predicates as a swappable capability. Null is represented by
// (false, true, nil); a non-boolean result is reported as an error by
// the implementation, not by this interface.
type Evaluator interface {
	Evaluate(ctx Context) (value bool, isNull bool, err error)
}

// ColumnSplitter extracts typed columns from a raw record (e.g. CSV
// field splitting); nil for non-CSV inputs, in which case KeyCodec
// reads directly from Record bytes via offset/length.
type ColumnSplitter interface {
	Split(record []byte) ([][]byte, error)
}

// RecordLengthChecker rejects records that fail a provider-specific
// length guard; nil means "accept all lengths".
type RecordLengthChecker func(record []byte) bool

// Counters tracks the bookkeeping relationship
// input = selected + filtered.
type Counters struct {
	PerFile    map[int]int64
	Continuous int64
	Selected   int64
	Filtered   int64
}

// OrdinalTransform remaps a freshly extracted (always-positive,
// strictly increasing) ordinal before it is stamped onto a Proxy —
// the hook a DuplicateFilter disposition uses to negate ordinals
// upstream (see pkg/dedup's NegatesOrdinal/AdjustOrdinal).
type OrdinalTransform func(ordinal int64) int64

// Stage pulls records from a Reader, applies header skip and
// predicate filtering, and extracts sort keys.
type Stage struct {
	reader       Reader
	codec        *keycodec.Codec
	splitter     ColumnSplitter
	lengthOK     RecordLengthChecker
	where        []Evaluator
	stop         []Evaluator
	headerRows   int
	headerSeen   int
	counters     Counters
	stopped      bool
	maxRowsHint  int64
	ordinalXform OrdinalTransform
}

// Option configures a Stage at construction.
type Option func(*Stage)

func WithColumnSplitter(s ColumnSplitter) Option { return func(st *Stage) { st.splitter = s } }
func WithLengthChecker(f RecordLengthChecker) Option {
	return func(st *Stage) { st.lengthOK = f }
}
func WithWhere(evals ...Evaluator) Option { return func(st *Stage) { st.where = evals } }
func WithStop(evals ...Evaluator) Option  { return func(st *Stage) { st.stop = evals } }
func WithHeaderRows(n int) Option         { return func(st *Stage) { st.headerRows = n } }
func WithMaxRowsHint(n int64) Option      { return func(st *Stage) { st.maxRowsHint = n } }

// WithOrdinalTransform installs a hook applied to each record's ordinal
// right before it is stamped onto its Proxy.
func WithOrdinalTransform(f OrdinalTransform) Option {
	return func(st *Stage) { st.ordinalXform = f }
}

// New builds a Stage over a Reader and the KeyCodec used to extract
// sort keys.
func New(reader Reader, codec *keycodec.Codec, opts ...Option) *Stage {
	st := &Stage{
		reader:   reader,
		codec:    codec,
		counters: Counters{PerFile: map[int]int64{}},
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// MaxRowsEstimate returns the planning hint supplied via
// WithMaxRowsHint (--rowMax); 0 if none was given.
func (s *Stage) MaxRowsEstimate() int64 { return s.maxRowsHint }

func (s *Stage) Counters() Counters { return s.counters }

// Close releases the backing Reader.
func (s *Stage) Close() error { return s.reader.Close() }

// Next pulls a raw record, skips declared header rows, applies
// counters, the length guard, WHERE, STOP, extracts columns and the
// key, and returns a populated Proxy.
func (s *Stage) Next(pool *proxy.Pool) (*proxy.Proxy, bool, error) {
	if s.stopped {
		return nil, false, nil
	}

	var scratch keycodec.EncodedKey

	for {
		raw, err := s.reader.Next()
		if err == io.EOF {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}

		if s.headerSeen < s.headerRows {
			s.headerSeen++
			continue
		}

		s.counters.PerFile[s.reader.SourceIndex()]++
		s.counters.Continuous++

		if s.lengthOK != nil && !s.lengthOK(raw.Bytes) {
			s.counters.Continuous--
			s.counters.PerFile[s.reader.SourceIndex()]--
			continue
		}

		ctx := Context{
			Record:        raw.Bytes,
			RecordNumber:  s.counters.PerFile[s.reader.SourceIndex()],
			ContinuousNum: s.counters.Continuous,
		}

		var columns [][]byte
		if s.splitter != nil {
			columns, err = s.splitter.Split(raw.Bytes)
			if err != nil {
				return nil, false, err
			}
			ctx.Columns = columns
		}

		selected, err := s.evaluateWhere(ctx)
		if err != nil {
			return nil, false, err
		}
		if !selected {
			s.counters.Filtered++
			continue
		}

		stop, err := s.evaluateStop(ctx)
		if err != nil {
			return nil, false, err
		}
		if stop {
			// Back out the increment for this record: it triggered
			// STOP and must not be emitted.
			s.counters.Continuous--
			s.counters.PerFile[s.reader.SourceIndex()]--
			s.stopped = true
			return nil, false, nil
		}

		if err := s.codec.Encode(raw.Bytes, columns, &scratch); err != nil {
			return nil, false, err
		}

		ordinal := s.counters.Continuous
		if s.ordinalXform != nil {
			ordinal = s.ordinalXform(ordinal)
		}

		pr := pool.Acquire()
		pr.Set(scratch.Bytes(), len(raw.Bytes), raw.Position, s.reader.SourceIndex(), ordinal)
		s.counters.Selected++
		return pr, true, nil
	}
}

// evaluateWhere implements the asymmetric Null rule: a Null WHERE
// result means "not selected" (filtered out), same as
// false. All declared predicates must evaluate true for the record to
// be selected.
func (s *Stage) evaluateWhere(ctx Context) (bool, error) {
	for _, e := range s.where {
		v, isNull, err := e.Evaluate(ctx)
		if err != nil {
			return false, err
		}
		if isNull || !v {
			return false, nil
		}
	}
	return true, nil
}

// evaluateStop implements the asymmetric Null rule: a Null STOP
// result means "not stop" (continue), the opposite
// default from WHERE. All declared predicates must evaluate true to
// stop the input; with none declared the input never stops early.
func (s *Stage) evaluateStop(ctx Context) (bool, error) {
	if len(s.stop) == 0 {
		return false, nil
	}
	for _, e := range s.stop {
		v, isNull, err := e.Evaluate(ctx)
		if err != nil {
			return false, err
		}
		if isNull || !v {
			return false, nil
		}
	}
	return true, nil
}
