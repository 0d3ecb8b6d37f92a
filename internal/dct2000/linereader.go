package dct2000

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxLineLength bounds a single trace line, excluding its terminator.
	MaxLineLength = 65536

	lineBufferSize = 64 * 1024
)

// LineSource yields newline-terminated records together with the byte offset
// at which each one starts.
type LineSource interface {
	ReadLine() (line []byte, offset int64, err error)
	Seek(offset int64) error
	// Offset is the position of the next unread byte.
	Offset() int64
}

type lineReader struct {
	rs      io.ReadSeeker
	br      *bufio.Reader
	offset  int64
	maxLine int
	buf     []byte
}

// NewLineReader wraps rs. Reading starts at the current position of rs, which
// is taken to be offset zero unless Seek is called.
func NewLineReader(rs io.ReadSeeker, maxLine int) LineSource {
	if maxLine <= 0 {
		maxLine = MaxLineLength
	}
	return &lineReader{
		rs:      rs,
		br:      bufio.NewReaderSize(rs, lineBufferSize),
		maxLine: maxLine,
	}
}

// ReadLine returns the next line with any trailing "\n" or "\r\n" removed.
// The returned slice is only valid until the next call. Lines longer than
// the configured maximum are consumed and reported as ErrUnparsableLine.
func (lr *lineReader) ReadLine() ([]byte, int64, error) {
	start := lr.offset
	lr.buf = lr.buf[:0]
	tooLong := false
	for {
		chunk, err := lr.br.ReadSlice('\n')
		lr.offset += int64(len(chunk))
		if !tooLong {
			if len(lr.buf)+len(chunk) > lr.maxLine+2 {
				tooLong = true
				lr.buf = lr.buf[:0]
			} else {
				lr.buf = append(lr.buf, chunk...)
			}
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if lr.offset == start {
				return nil, start, io.EOF
			}
			break
		}
		return nil, start, err
	}
	if tooLong {
		return nil, start, fmt.Errorf("%w: line at offset %d exceeds %d bytes", ErrUnparsableLine, start, lr.maxLine)
	}
	line := lr.buf
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) > lr.maxLine {
		return nil, start, fmt.Errorf("%w: line at offset %d exceeds %d bytes", ErrUnparsableLine, start, lr.maxLine)
	}
	return line, start, nil
}

// Seek repositions the reader so the next ReadLine starts at offset.
func (lr *lineReader) Seek(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("negative seek offset %d", offset)
	}
	if _, err := lr.rs.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	lr.br.Reset(lr.rs)
	lr.offset = offset
	return nil
}

// Offset returns the position of the next unread byte.
func (lr *lineReader) Offset() int64 {
	return lr.offset
}
