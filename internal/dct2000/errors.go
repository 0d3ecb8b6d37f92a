package dct2000

import "errors"

var (
	// ErrNotDCT2000 is returned by Open when the first two lines do not carry
	// the transcript signature and creation timestamp.
	ErrNotDCT2000 = errors.New("not a DCT2000 session transcript")
	// ErrUnparsableLine marks a line that is not a decodable record. The read
	// loop skips these.
	ErrUnparsableLine = errors.New("unparsable trace line")
	// ErrRecordTooLarge indicates a corrupt file: the decoded record exceeds
	// MaxRecordSize.
	ErrRecordTooLarge = errors.New("record exceeds maximum size")
	// ErrNoPriorRead is returned when dumping an offset that was never read
	// through the same trace handle.
	ErrNoPriorRead = errors.New("no prefix recorded for offset")

	ErrSeekReadFailed = errors.New("seek read failed to read/parse line")
	ErrClosed         = errors.New("trace handle closed")
)
