package input

import (
	"bytes"
	"encoding/csv"
)

// CsvSplitter implements ColumnSplitter over encoding/csv. Only the
// --csv delimiter is applied; Quote is carried but not used, since
// encoding/csv always quotes with '"', and no escape byte is
// supported. No third-party CSV library improves materially on the
// stdlib parser for this dialect (see DESIGN.md).
type CsvSplitter struct {
	Delimiter rune
	Quote     rune
}

func (c CsvSplitter) Split(record []byte) ([][]byte, error) {
	reader := csv.NewReader(bytes.NewReader(record))
	if c.Delimiter != 0 {
		reader.Comma = c.Delimiter
	}
	reader.LazyQuotes = true

	fields, err := reader.Read()
	if err != nil {
		return nil, err
	}

	out := make([][]byte, len(fields))
	for i, f := range fields {
		out[i] = []byte(f)
	}
	return out, nil
}
