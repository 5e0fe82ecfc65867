package keycodec

import "errors"

var (
	// ErrShortRecord is returned when a KeyPart's offset+length exceeds
	// the record's size.
	ErrShortRecord = errors.New("keycodec: record too short for key part")
	// ErrInvalidDateFormat is returned when a Date key part fails to
	// parse with its declared ParseFormat.
	ErrInvalidDateFormat = errors.New("keycodec: invalid date format")
	// ErrUnsupportedLength is returned for Int/UInt parts whose Length
	// is not one of 1, 2, 4, 8.
	ErrUnsupportedLength = errors.New("keycodec: unsupported integer length")
	// ErrKeyTooLong is returned when the concatenated encoding of all
	// key parts would exceed the codec's maxKeyBytes capacity.
	ErrKeyTooLong = errors.New("keycodec: encoded key exceeds capacity")
	// ErrMissingCsvField is returned when a CsvField key part
	// references a column index the CSV row does not have.
	ErrMissingCsvField = errors.New("keycodec: csv field out of range")
)
