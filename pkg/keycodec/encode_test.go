package keycodec

import (
	"bytes"
	"testing"
)

func TestEncodeStringAscending(t *testing.T) {
	codec := &Codec{Parts: []KeyPart{{Type: String, Offset: 0, Length: 6, Direction: ASC}}}

	var ka, kb EncodedKey
	if err := codec.Encode([]byte("banana"), nil, &ka); err != nil {
		t.Fatalf("encode banana: %v", err)
	}
	if err := codec.Encode([]byte("apple\x00"), nil, &kb); err != nil {
		t.Fatalf("encode apple: %v", err)
	}

	if bytes.Compare(ka.Bytes(), kb.Bytes()) <= 0 {
		t.Fatalf("expected banana > apple, got ka=%v kb=%v", ka.Bytes(), kb.Bytes())
	}
}

func TestEncodeSignedIntDescending(t *testing.T) {
	codec := &Codec{Parts: []KeyPart{{Type: Int, Offset: 0, Length: 4, Direction: DESC}}}

	encode := func(v uint32) EncodedKey {
		rec := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
		var k EncodedKey
		if err := codec.Encode(rec, nil, &k); err != nil {
			t.Fatalf("encode: %v", err)
		}
		return k
	}

	one := encode(0x00000001)
	negOne := encode(0xFFFFFFFF)
	zero := encode(0x00000000)

	// Expected order under DESC: 1, 0, -1
	if bytes.Compare(one.Bytes(), zero.Bytes()) >= 0 {
		t.Fatalf("expected 1 before 0 under DESC")
	}
	if bytes.Compare(zero.Bytes(), negOne.Bytes()) >= 0 {
		t.Fatalf("expected 0 before -1 under DESC")
	}
}

func TestEncodeShortRecord(t *testing.T) {
	codec := &Codec{Parts: []KeyPart{{Type: String, Offset: 0, Length: 10}}}

	var k EncodedKey
	if err := codec.Encode([]byte("short"), nil, &k); err == nil {
		t.Fatalf("expected ErrShortRecord")
	}
}

func TestEncodeUnsupportedLength(t *testing.T) {
	codec := &Codec{Parts: []KeyPart{{Type: Int, Offset: 0, Length: 3}}}

	var k EncodedKey
	err := codec.Encode([]byte{1, 2, 3}, nil, &k)
	if err == nil {
		t.Fatalf("expected ErrUnsupportedLength")
	}
}

func TestEncodeDateInvalidFormat(t *testing.T) {
	codec := &Codec{Parts: []KeyPart{{Type: Date, Offset: 0, Length: 10, ParseFormat: "2006-01-02"}}}

	var k EncodedKey
	if err := codec.Encode([]byte("not-a-date"), nil, &k); err == nil {
		t.Fatalf("expected ErrInvalidDateFormat")
	}
}

func TestEncodeDateMonotonic(t *testing.T) {
	codec := &Codec{Parts: []KeyPart{{Type: Date, Offset: 0, Length: 10, ParseFormat: "2006-01-02"}}}

	var early, late EncodedKey
	if err := codec.Encode([]byte("2020-01-01"), nil, &early); err != nil {
		t.Fatalf("encode early: %v", err)
	}
	if err := codec.Encode([]byte("2021-01-01"), nil, &late); err != nil {
		t.Fatalf("encode late: %v", err)
	}

	if bytes.Compare(early.Bytes(), late.Bytes()) >= 0 {
		t.Fatalf("expected early date to sort before late date")
	}
}

func TestEncodeCsvField(t *testing.T) {
	codec := &Codec{Parts: []KeyPart{{Type: CsvField, FieldNumber: 1, Length: 1}}}

	columns := [][]byte{[]byte("c"), []byte("a")}
	var k EncodedKey
	if err := codec.Encode(nil, columns, &k); err != nil {
		t.Fatalf("encode csv field: %v", err)
	}
	if !bytes.Equal(k.Bytes()[:2], []byte("a\x00")) {
		t.Fatalf("unexpected encoding: %v", k.Bytes())
	}
}

func TestEncodeCsvFieldIgnoresDeclaredLength(t *testing.T) {
	// Length 0 is the documented no-declared-length CLI form; the field
	// must still encode over its own content, not collapse to just the
	// sentinel byte.
	codec := &Codec{Parts: []KeyPart{{Type: CsvField, FieldNumber: 0, Length: 0}}}

	columns := [][]byte{[]byte("a long csv field value")}
	var k EncodedKey
	if err := codec.Encode(nil, columns, &k); err != nil {
		t.Fatalf("encode csv field: %v", err)
	}
	want := append(append([]byte(nil), columns[0]...), 0x00)
	if !bytes.Equal(k.Bytes(), want) {
		t.Fatalf("expected full field content preserved, got %v want %v", k.Bytes(), want)
	}
}

func TestEncodeRawBytes(t *testing.T) {
	codec := &Codec{Parts: []KeyPart{{Type: RawBytes}}}

	var k EncodedKey
	if err := codec.Encode([]byte("whole record"), nil, &k); err != nil {
		t.Fatalf("encode raw bytes: %v", err)
	}
	want := append([]byte("whole record"), 0x00)
	if !bytes.Equal(k.Bytes(), want) {
		t.Fatalf("unexpected encoding: %v", k.Bytes())
	}
}

func TestEncodeFloatNaNSortsGreatest(t *testing.T) {
	codec := &Codec{Parts: []KeyPart{{Type: Double, Offset: 0, Length: 8, Direction: ASC}}}

	toBytes := func(bits uint64) []byte {
		b := make([]byte, 8)
		for i := 7; i >= 0; i-- {
			b[i] = byte(bits)
			bits >>= 8
		}
		return b
	}

	var nan, big EncodedKey
	if err := codec.Encode(toBytes(0x7FF8000000000001), nil, &nan); err != nil {
		t.Fatalf("encode nan: %v", err)
	}
	if err := codec.Encode(toBytes(0x7FEFFFFFFFFFFFFF), nil, &big); err != nil { // max finite double
		t.Fatalf("encode big: %v", err)
	}

	if bytes.Compare(nan.Bytes(), big.Bytes()) <= 0 {
		t.Fatalf("expected NaN to sort greatest ascending")
	}
}
