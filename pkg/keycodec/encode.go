package keycodec

import (
	"math"
	"time"
)

// DefaultMaxKeyBytes is the default EncodedKey capacity (maxKeyBytes);
// the buffer itself is allocated at DefaultMaxKeyBytes+1 to leave room
// for the trailing string sentinel.
const DefaultMaxKeyBytes = 255

// EncodedKey is a fixed-capacity, byte-comparable encoding of a
// record's declared key parts. Comparing two EncodedKeys with
// bytes.Compare over their filled prefixes yields the declared
// semantic order (see Codec.Encode).
type EncodedKey struct {
	buf []byte
	n   int
}

// Bytes returns the filled prefix of the encoded key.
func (k *EncodedKey) Bytes() []byte { return k.buf[:k.n] }

// Len returns the number of filled bytes.
func (k *EncodedKey) Len() int { return k.n }

func (k *EncodedKey) reset(capacity int) {
	if cap(k.buf) < capacity {
		k.buf = make([]byte, capacity)
	}
	k.buf = k.buf[:capacity]
	k.n = 0
}

func (k *EncodedKey) append(b []byte) {
	k.n += copy(k.buf[k.n:], b)
}

// Codec encodes raw record bytes into an EncodedKey according to an
// ordered list of KeyParts (primary part first).
type Codec struct {
	Parts       []KeyPart
	MaxKeyBytes int // 0 means DefaultMaxKeyBytes
}

func (c *Codec) maxBytes() int {
	if c.MaxKeyBytes <= 0 {
		return DefaultMaxKeyBytes
	}
	return c.MaxKeyBytes
}

// Encode produces the EncodedKey for one record. columns holds the
// CSV parser's field split and is read only by CsvField parts; the
// codec is pure given record bytes and the CSV columns.
func (c *Codec) Encode(record []byte, columns [][]byte, out *EncodedKey) error {
	out.reset(c.maxBytes() + 1)

	for _, part := range c.Parts {
		var field []byte
		var err error

		switch part.Type {
		case CsvField:
			field, err = csvField(columns, part)
		case RawBytes:
			field = record
		default:
			field, err = rawField(record, part)
		}
		if err != nil {
			return err
		}

		encoded, err := encodePart(part, field)
		if err != nil {
			return err
		}

		if out.n+len(encoded) > len(out.buf) {
			return ErrKeyTooLong
		}
		out.append(encoded)
	}

	return nil
}

func rawField(record []byte, part KeyPart) ([]byte, error) {
	if part.Offset < 0 || part.Offset+part.Length > len(record) {
		return nil, ErrShortRecord
	}
	return record[part.Offset : part.Offset+part.Length], nil
}

func csvField(columns [][]byte, part KeyPart) ([]byte, error) {
	if part.FieldNumber < 0 || part.FieldNumber >= len(columns) {
		return nil, ErrMissingCsvField
	}
	return columns[part.FieldNumber], nil
}

func encodePart(part KeyPart, field []byte) ([]byte, error) {
	switch part.Type {
	case String, Byte:
		return encodeString(field, part)
	case Int:
		return encodeSignedInt(field, part)
	case UInt:
		return encodeUnsignedInt(field, part)
	case Float:
		return encodeFloat(field, part, 4)
	case Double:
		return encodeFloat(field, part, 8)
	case Date:
		return encodeDate(field, part)
	case CsvField, RawBytes:
		return encodeVariableField(field, part)
	default:
		return nil, ErrUnsupportedLength
	}
}

// encodeString right-pads to part.Length with 0x00, appends a 0x00
// sentinel, then applies direction by bitwise-NOT over the whole
// sequence for DESC/ADESC.
func encodeString(field []byte, part KeyPart) ([]byte, error) {
	out := make([]byte, part.Length+1)
	copy(out, field)

	if part.Direction.descending() {
		invertBytes(out)
	}
	return out, nil
}

// encodeVariableField encodes field verbatim over its own length (not
// part.Length, which CsvField/RawBytes parts leave at 0 or unused —
// the CSV parser's field split and the whole record are both already
// variable-length), appending a 0x00 sentinel the same way
// encodeString does.
func encodeVariableField(field []byte, part KeyPart) ([]byte, error) {
	out := make([]byte, len(field)+1)
	copy(out, field)

	if part.Direction.descending() {
		invertBytes(out)
	}
	return out, nil
}

func invertBytes(b []byte) {
	for i := range b {
		b[i] = ^b[i]
	}
}

func readBigEndian(field []byte, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		v = v<<8 | uint64(field[i])
	}
	return v
}

func signExtend(v uint64, width int) int64 {
	shift := uint(64 - width*8)
	return int64(v<<shift) >> shift
}

// encodeSignedInt reads N big-endian bytes, optionally takes the
// absolute value (AASC/ADESC), writes N bytes big-endian, then XORs
// the top byte with 0x80 so ascending byte order tracks ascending
// numeric order including negatives. DESC/ADESC negate before flipping.
func encodeSignedInt(field []byte, part KeyPart) ([]byte, error) {
	width, err := part.IntByteWidth()
	if err != nil {
		return nil, err
	}
	if len(field) < width {
		return nil, ErrShortRecord
	}

	raw := readBigEndian(field, width)
	v := signExtend(raw, width)

	if part.Direction.absolute() && v < 0 {
		v = -v
	}
	if part.Direction.descending() {
		v = -v
	}

	out := make([]byte, width)
	uv := uint64(v)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(uv)
		uv >>= 8
	}
	out[0] ^= 0x80

	return out, nil
}

// encodeUnsignedInt mirrors encodeSignedInt without the sign flip;
// DESC/ADESC is realized as a bitwise-NOT over the raw bytes.
func encodeUnsignedInt(field []byte, part KeyPart) ([]byte, error) {
	width, err := part.IntByteWidth()
	if err != nil {
		return nil, err
	}
	if len(field) < width {
		return nil, ErrShortRecord
	}

	out := make([]byte, width)
	copy(out, field[:width])

	if part.Direction.descending() {
		invertBytes(out)
	}
	return out, nil
}

// encodeFloat reinterprets IEEE-754 bits as an integer; if the sign
// bit is set the whole word is inverted (moves the negative range to
// sort before positive), otherwise only the top bit is flipped. NaN
// sorts as the greatest value ascending.
func encodeFloat(field []byte, part KeyPart, width int) ([]byte, error) {
	if len(field) < width {
		return nil, ErrShortRecord
	}

	var isNaN bool
	var bits uint64
	var bitWidth int
	switch width {
	case 4:
		u := readBigEndian(field, 4)
		f := math.Float32frombits(uint32(u))
		isNaN = f != f
		bits = uint64(math.Float32bits(f))
		bitWidth = 32
	case 8:
		u := readBigEndian(field, 8)
		f := math.Float64frombits(u)
		isNaN = f != f
		bits = math.Float64bits(f)
		bitWidth = 64
	}

	out := make([]byte, width)

	if isNaN {
		// NaN bypasses the sign transform below and sorts as the
		// greatest value ascending: all bits set.
		for i := range out {
			out[i] = 0xFF
		}
	} else {
		signMask := uint64(1) << (bitWidth - 1)
		if bits&signMask != 0 {
			bits = ^bits
		} else {
			bits ^= signMask
		}

		shift := uint(bitWidth)
		for i := 0; i < width; i++ {
			shift -= 8
			out[i] = byte(bits >> shift)
		}
	}

	if part.Direction.descending() {
		invertBytes(out)
	}
	return out, nil
}

// encodeDate parses ParseFormat into epoch-milliseconds and encodes it
// as a signed 8-byte integer.
func encodeDate(field []byte, part KeyPart) ([]byte, error) {
	t, err := time.Parse(part.ParseFormat, string(field))
	if err != nil {
		return nil, ErrInvalidDateFormat
	}

	ms := t.UnixMilli()
	intPart := KeyPart{Type: Int, Length: 8, Direction: part.Direction}
	buf := make([]byte, 8)
	uv := uint64(ms)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(uv)
		uv >>= 8
	}
	return encodeSignedInt(buf, intPart)
}
