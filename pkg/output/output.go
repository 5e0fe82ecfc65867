// Package output re-reads a record's raw bytes by its locator and
// materializes it to the destination, with optional reformatting and
// an in-order self-check on the final pass.
package output

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/sortkit/sortkit/pkg/proxy"
)

// SourceReader re-reads original record bytes by the locator a Proxy
// carries (source index, absolute position, size). Concrete
// filesystem-backed readers are supplied by the caller; this package
// only depends on the interface.
type SourceReader interface {
	ReadAt(sourceIndex int, position int64, size int) ([]byte, error)
}

// Formatter reshapes a raw record before it is written (--formatOut);
// nil means "write the raw bytes unchanged".
type Formatter interface {
	Format(raw []byte) ([]byte, error)
}

// Option configures a Stage.
type Option func(*Stage)

func WithFormatter(f Formatter) Option { return func(s *Stage) { s.formatter = f } }
func WithDelimiter(d byte) Option      { return func(s *Stage) { s.delimiter = d } }
func WithHexDump(enabled bool) Option  { return func(s *Stage) { s.hexDump = enabled } }
func WithHeader(header []byte) Option  { return func(s *Stage) { s.header = header } }

// Stage re-reads and writes out records in publish order.
type Stage struct {
	source    SourceReader
	w         io.Writer
	formatter Formatter
	delimiter byte
	hexDump   bool
	header    []byte

	opened   bool
	previous []byte
}

func New(source SourceReader, w io.Writer, opts ...Option) *Stage {
	s := &Stage{source: source, w: w, delimiter: '\n'}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open writes the optional header, if any, once.
func (s *Stage) Open() error {
	if s.opened {
		return nil
	}
	s.opened = true
	if len(s.header) == 0 {
		return nil
	}
	if _, err := s.w.Write(s.header); err != nil {
		return fmt.Errorf("output: write header: %w", err)
	}
	return s.writeDelimiter()
}

func (s *Stage) writeDelimiter() error {
	_, err := s.w.Write([]byte{s.delimiter})
	if err != nil {
		return fmt.Errorf("output: write delimiter: %w", err)
	}
	return nil
}

// Publish re-reads pr's raw bytes, reformats/hex-dumps them if
// configured, and writes the result. It returns false (not an error)
// when the published key is lexicographically less than the
// previously published key: the caller treats this as a fatal
// self-check failure on the final pass.
func (s *Stage) Publish(pr *proxy.Proxy) (bool, error) {
	if s.previous != nil && bytes.Compare(pr.Key, s.previous) < 0 {
		return false, nil
	}
	s.previous = append(s.previous[:0], pr.Key...)

	raw, err := s.source.ReadAt(pr.SourceIndex, pr.Position, pr.Size)
	if err != nil {
		return false, fmt.Errorf("output: re-read record: %w", err)
	}

	out := raw
	if s.formatter != nil {
		out, err = s.formatter.Format(raw)
		if err != nil {
			return false, fmt.Errorf("output: format record: %w", err)
		}
	}
	if s.hexDump {
		out = []byte(hex.Dump(out))
	}

	if _, err := s.w.Write(out); err != nil {
		return false, fmt.Errorf("output: write record: %w", err)
	}
	if s.hexDump {
		return true, nil // hex.Dump already terminates each line
	}
	return true, s.writeDelimiter()
}

// Close is a no-op placeholder; concrete destinations (files) are
// closed by their owner.
func (s *Stage) Close() error { return nil }
