package input

import (
	"io"
	"strings"
	"testing"

	"github.com/sortkit/sortkit/internal/predicate"
	"github.com/sortkit/sortkit/pkg/keycodec"
	"github.com/sortkit/sortkit/pkg/proxy"
)

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func newLineReaderFromString(s string) *LineReader {
	return NewLineReader([]io.ReadCloser{nopCloser{strings.NewReader(s)}}, '\n')
}

func TestStageWhereStopAsymmetry(t *testing.T) {
	// records 1..100, where recordnumber%2==0, stop at recordnumber>=10.
	var lines strings.Builder
	for i := 1; i <= 100; i++ {
		lines.WriteString(strings.Repeat("x", 1))
		lines.WriteByte('\n')
	}
	reader := newLineReaderFromString(lines.String())

	whereExpr, err := predicate.Parse("recordnumber%2==0")
	if err != nil {
		t.Fatalf("parse where: %v", err)
	}
	stopExpr, err := predicate.Parse("recordnumber>=10")
	if err != nil {
		t.Fatalf("parse stop: %v", err)
	}

	codec := &keycodec.Codec{Parts: []keycodec.KeyPart{{Type: keycodec.String, Offset: 0, Length: 1}}}
	stage := New(reader, codec, WithWhere(whereExpr), WithStop(stopExpr))
	pool := proxy.NewPool(16)

	var selectedOrdinals []int64
	for {
		pr, ok, err := stage.Next(pool)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		selectedOrdinals = append(selectedOrdinals, pr.Ordinal)
		pool.Release(pr)
	}

	want := []int64{2, 4, 6, 8}
	if len(selectedOrdinals) != len(want) {
		t.Fatalf("expected %v, got %v", want, selectedOrdinals)
	}
	for i, w := range want {
		if selectedOrdinals[i] != w {
			t.Fatalf("expected %v, got %v", want, selectedOrdinals)
		}
	}

	counters := stage.Counters()
	if counters.Selected != 4 {
		t.Fatalf("expected 4 selected, got %d", counters.Selected)
	}
}

func TestStageHeaderSkip(t *testing.T) {
	reader := newLineReaderFromString("header\nalpha\nbeta\n")
	codec := &keycodec.Codec{Parts: []keycodec.KeyPart{{Type: keycodec.String, Offset: 0, Length: 5}}}
	stage := New(reader, codec, WithHeaderRows(1))
	pool := proxy.NewPool(4)

	pr, ok, err := stage.Next(pool)
	if err != nil || !ok {
		t.Fatalf("expected a record, got ok=%v err=%v", ok, err)
	}
	if pr.Size != 5 {
		t.Fatalf("expected header row to be skipped, got size=%d", pr.Size)
	}
}

func TestStageOrdinalTransform(t *testing.T) {
	reader := newLineReaderFromString("a\nb\nc\n")
	codec := &keycodec.Codec{Parts: []keycodec.KeyPart{{Type: keycodec.String, Offset: 0, Length: 1}}}
	stage := New(reader, codec, WithOrdinalTransform(func(o int64) int64 { return -o }))
	pool := proxy.NewPool(8)

	var ordinals []int64
	for {
		pr, ok, err := stage.Next(pool)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		ordinals = append(ordinals, pr.Ordinal)
		pool.Release(pr)
	}

	want := []int64{-1, -2, -3}
	if len(ordinals) != len(want) {
		t.Fatalf("expected %v, got %v", want, ordinals)
	}
	for i, w := range want {
		if ordinals[i] != w {
			t.Fatalf("expected %v, got %v", want, ordinals)
		}
	}
}

func TestCsvSplitter(t *testing.T) {
	splitter := CsvSplitter{Delimiter: ','}
	fields, err := splitter.Split([]byte("a,b,c"))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(fields) != 3 || string(fields[1]) != "b" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
