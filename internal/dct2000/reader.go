package dct2000

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"example.com/dctgate/internal/common"
)

// Option adjusts a Reader at open time.
type Option func(*Reader)

// WithLocation sets the zone used to interpret the file creation time.
// The default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(r *Reader) { r.loc = loc }
}

func WithMaxLineLength(n int) Option {
	return func(r *Reader) { r.maxLine = n }
}

// WithMaxRecordSize lowers the frame size limit below MaxRecordSize.
func WithMaxRecordSize(n int) Option {
	return func(r *Reader) {
		if n > 0 && n < MaxRecordSize {
			r.maxRecord = n
		}
	}
}

func WithMetrics(m *common.Metrics) Option {
	return func(r *Reader) { r.metrics = m }
}

// Reader decodes a transcript sequentially. Every record it delivers leaves
// an entry in the prefix table so a Dumper can reproduce the line.
type Reader struct {
	closer  io.Closer
	src     LineSource
	size    int64
	loc     *time.Location
	maxLine int

	maxRecord int
	skipRun   int

	header   FileHeader
	prefixes *PrefixTable
	metrics  *common.Metrics
	index    FileIndex
}

// Open validates the two header lines of rs and prepares a reader
// positioned at the first record. ErrNotDCT2000 is returned for inputs that
// are not transcripts; other errors are I/O failures.
func Open(rs io.ReadSeeker, opts ...Option) (*Reader, error) {
	r := &Reader{
		size:      -1,
		loc:       time.Local,
		maxRecord: MaxRecordSize,
		prefixes:  NewPrefixTable(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loc == nil {
		r.loc = time.Local
	}
	r.src = NewLineReader(rs, r.maxLine)

	magic, _, err := r.src.ReadLine()
	if err != nil {
		return nil, headerError(err)
	}
	if !IsMagicLine(magic) {
		return nil, fmt.Errorf("%w: missing %q signature", ErrNotDCT2000, Magic)
	}
	r.header.MagicLine = string(magic)

	stamp, _, err := r.src.ReadLine()
	if err != nil {
		return nil, headerError(err)
	}
	r.header.TimestampLine = string(stamp)
	if r.header.Start, err = ParseFileTimestamp(r.header.TimestampLine, r.loc); err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.AddBytes(int64(len(magic) + len(stamp) + 2))
	}
	return r, nil
}

func headerError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, ErrUnparsableLine) {
		return fmt.Errorf("%w: %v", ErrNotDCT2000, err)
	}
	return err
}

// OpenFile opens the transcript at path.
func OpenFile(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := Open(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	r.size = info.Size()
	if r.metrics != nil {
		r.metrics.SetTotalBytes(r.size)
	}
	return r, nil
}

// Close releases the underlying file if the reader opened it and frees the
// prefix table. Dumpers built from this reader fail with ErrNoPriorRead
// once it is closed.
func (r *Reader) Close() error {
	r.src = nil
	r.prefixes.Reset()
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// SetMetrics attaches a metrics recorder to the reader.
func (r *Reader) SetMetrics(m *common.Metrics) {
	r.metrics = m
	if r.metrics != nil && r.size >= 0 {
		r.metrics.SetTotalBytes(r.size)
	}
}

func (r *Reader) Header() FileHeader {
	return r.header
}

// Prefixes exposes the table shared with writers of this reader's records.
func (r *Reader) Prefixes() *PrefixTable {
	return r.prefixes
}

// Index returns a copy of the accumulated file index.
func (r *Reader) Index() FileIndex {
	out := FileIndex{
		Records:      make([]RecordIndex, len(r.index.Records)),
		SkippedLines: r.index.SkippedLines,
	}
	copy(out.Records, r.index.Records)
	return out
}

// Next returns the next valid record. Unparsable lines are logged and
// skipped. It returns io.EOF at end of input and ErrRecordTooLarge if a
// line would build an oversized frame.
func (r *Reader) Next() (Record, error) {
	if r.src == nil {
		return Record{}, ErrClosed
	}
	for {
		line, offset, err := r.src.ReadLine()
		if err != nil {
			if errors.Is(err, ErrUnparsableLine) {
				r.skip(offset, 0, err)
				continue
			}
			return Record{}, err
		}
		parsed, err := ParseLine(line)
		if err != nil {
			r.skip(offset, len(line), err)
			continue
		}
		rec, err := r.build(offset, parsed, line)
		if err != nil {
			return Record{}, fmt.Errorf("record at offset %d: %w", offset, err)
		}
		if r.skipRun > 1 {
			common.Logf("resumed at offset %d after %d unparsable lines", offset, r.skipRun)
		}
		r.skipRun = 0
		r.prefixes.Store(offset, NewLinePrefixInfo(parsed, line))
		r.index.Records = append(r.index.Records, RecordIndex{
			Offset:       offset,
			ProtocolName: parsed.ProtocolName,
			Encap:        parsed.Encap,
			Direction:    parsed.Direction,
			IsComment:    parsed.IsComment,
			Relative:     rec.Relative,
			FrameLength:  len(rec.Frame),
		})
		if r.metrics != nil {
			r.metrics.AddRecord(int64(len(line) + 1))
		}
		return rec, nil
	}
}

func (r *Reader) skip(offset int64, size int, err error) {
	r.index.SkippedLines++
	r.skipRun++
	if r.metrics != nil {
		r.metrics.IncSkipped(int64(size + 1))
	}
	common.Debugf("skipping line at offset %d: %v", offset, err)
}

func (r *Reader) build(offset int64, parsed ParsedLine, line []byte) (Record, error) {
	frame, err := buildFrame(parsed, line, r.maxRecord)
	if err != nil {
		return Record{}, err
	}
	rel := parsed.Relative()
	return Record{
		Offset:    offset,
		Timestamp: Absolute(r.header.Start, rel),
		Relative:  rel,
		Encap:     parsed.Encap,
		Direction: parsed.Direction,
		Pseudo:    DerivePseudoHeader(parsed),
		Frame:     frame,
		Line:      parsed,
	}, nil
}

// SeekRead decodes the single line starting at offset without disturbing
// sequential reading. Failures wrap ErrSeekReadFailed.
func (r *Reader) SeekRead(offset int64) (Record, error) {
	if r.src == nil {
		return Record{}, ErrClosed
	}
	resume := r.src.Offset()
	defer func() {
		if err := r.src.Seek(resume); err != nil {
			common.Warnf("restore read position %d: %v", resume, err)
		}
	}()
	if err := r.src.Seek(offset); err != nil {
		return Record{}, fmt.Errorf("%w: seek %d: %v", ErrSeekReadFailed, offset, err)
	}
	line, _, err := r.src.ReadLine()
	if err != nil {
		return Record{}, fmt.Errorf("%w: offset %d: %w", ErrSeekReadFailed, offset, err)
	}
	parsed, err := ParseLine(line)
	if err != nil {
		return Record{}, fmt.Errorf("%w: offset %d: %w", ErrSeekReadFailed, offset, err)
	}
	rec, err := r.build(offset, parsed, line)
	if err != nil {
		return Record{}, fmt.Errorf("%w: offset %d: %w", ErrSeekReadFailed, offset, err)
	}
	return rec, nil
}

// ScanFile reads every record of the transcript at path and returns its
// header and index.
func ScanFile(path string, opts ...Option) (FileHeader, FileIndex, error) {
	r, err := OpenFile(path, opts...)
	if err != nil {
		return FileHeader{}, FileIndex{}, err
	}
	defer r.Close()
	for {
		_, err := r.Next()
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		return r.Header(), r.Index(), err
	}
	return r.Header(), r.Index(), nil
}
