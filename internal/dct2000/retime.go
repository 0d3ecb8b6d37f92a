package dct2000

import (
	"errors"
	"fmt"
	"io"
	"time"

	"example.com/dctgate/internal/common"
)

const RetimeOp = "retime"

// RetimeResult summarizes a Retime pass.
type RetimeResult struct {
	Records int
	Clamped int
	Edits   []common.EditEntry
}

// Retime copies every record of src to w with its time shifted by delta.
// Records that would move before the trace start are clamped to zero. One
// edit entry is produced per record whose timestamp text changed.
func Retime(src *Reader, w io.Writer, delta time.Duration) (RetimeResult, error) {
	var res RetimeResult
	d := NewDumper(w, src)
	if err := d.WriteHeader(); err != nil {
		return res, err
	}
	start := src.Header().Start
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		shifted := rec.Timestamp.Add(delta)
		if shifted.Before(start) {
			res.Clamped++
		}
		rel := Relative(start, shifted)
		if err := d.WriteLine(rec.Offset, rel, rec.Frame); err != nil {
			return res, fmt.Errorf("write record at offset %d: %w", rec.Offset, err)
		}
		res.Records++
		if rel != rec.Relative {
			res.Edits = append(res.Edits, common.EditEntry{
				Op:     RetimeOp,
				Offset: rec.Offset,
				Before: FormatTimestamp(rec.Relative),
				After:  FormatTimestamp(rel),
			})
		}
	}
	return res, nil
}
