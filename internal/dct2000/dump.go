package dct2000

import (
	"fmt"
	"io"
)

// Dumper writes records back out in transcript form. It needs the prefix
// table of the Reader the records came from; each line is rebuilt from the
// stored prefix text, the record's relative time and its frame.
type Dumper struct {
	w             io.Writer
	header        FileHeader
	prefixes      *PrefixTable
	headerWritten bool
	buf           []byte
}

// NewDumper returns a writer that reproduces records read through src.
func NewDumper(w io.Writer, src *Reader) *Dumper {
	return NewDumperWithTable(w, src.Header(), src.Prefixes())
}

// NewDumperWithTable is NewDumper for callers that hold the header and
// prefix table without the Reader.
func NewDumperWithTable(w io.Writer, header FileHeader, prefixes *PrefixTable) *Dumper {
	return &Dumper{w: w, header: header, prefixes: prefixes}
}

// WriteHeader emits the two header lines. It is called implicitly before
// the first record and is a no-op afterwards.
func (d *Dumper) WriteHeader() error {
	if d.headerWritten {
		return nil
	}
	if _, err := io.WriteString(d.w, d.header.MagicLine+"\n"+d.header.TimestampLine+"\n"); err != nil {
		return err
	}
	d.headerWritten = true
	return nil
}

// WriteRecord writes rec using its absolute timestamp.
func (d *Dumper) WriteRecord(rec Record) error {
	return d.WriteLine(rec.Offset, Relative(d.header.Start, rec.Timestamp), rec.Frame)
}

// WriteLine writes the record read at offset with the given relative time.
func (d *Dumper) WriteLine(offset int64, rel Timestamp, frame Frame) error {
	var err error
	d.buf, err = d.AppendLine(d.buf[:0], offset, rel, frame)
	if err != nil {
		return err
	}
	if err := d.WriteHeader(); err != nil {
		return err
	}
	_, err = d.w.Write(d.buf)
	return err
}

// DumpLine returns the text line (with terminator) for a record.
func (d *Dumper) DumpLine(offset int64, rel Timestamp, frame Frame) ([]byte, error) {
	return d.AppendLine(nil, offset, rel, frame)
}

// AppendLine appends the text line for a record to dst. It fails with
// ErrNoPriorRead if offset was never delivered by the source reader.
func (d *Dumper) AppendLine(dst []byte, offset int64, rel Timestamp, frame Frame) ([]byte, error) {
	info, ok := d.prefixes.Lookup(offset)
	if !ok {
		return dst, fmt.Errorf("%w: offset %d", ErrNoPriorRead, offset)
	}
	stub, err := ParseStub(frame)
	if err != nil {
		return dst, err
	}
	comment := IsCommentPrefix(info.BeforeTime)
	freeform := comment && stub.ProtocolName == ProtocolFreeform

	dst = append(dst, info.BeforeTime...)
	if info.TimeText != "" && rel == info.Time {
		dst = append(dst, info.TimeText...)
	} else {
		dst = AppendTimestamp(dst, rel)
	}
	switch {
	case info.AfterTime != "":
		dst = append(dst, info.AfterTime...)
	case info.HasLiteralSeparator:
		dst = append(dst, literalSeparator...)
	case freeform:
		dst = append(dst, ' ')
	}
	if !freeform {
		dst = append(dst, '$')
	}
	dst = append(dst, info.SkippedPrefix...)

	payload := frame[stub.PayloadOffset:]
	switch {
	case comment:
		dst = append(dst, payload...)
	case info.PayloadText != "" && info.decodes(payload):
		dst = append(dst, info.PayloadText...)
	default:
		dst = AppendHex(dst, payload)
	}
	return append(dst, '\n'), nil
}
