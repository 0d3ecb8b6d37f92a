package dct2000

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	Magic = "Session Transcript"

	maxFirstLineLength     = 200
	maxTimestampLineLength = 100
	fileTimestampLayout    = "%s %d, %d     %02d:%02d:%02d.%04d"
)

var fileTimestampRe = regexp.MustCompile(`^\s*([A-Za-z]{1,9})\s+(\d{1,2}),\s*(\d{1,4})\s+(\d{1,2}):(\d{1,2}):(\d{1,2})\.(\d{1,4})`)

var monthsByName = map[string]time.Month{
	"January":   time.January,
	"February":  time.February,
	"March":     time.March,
	"April":     time.April,
	"May":       time.May,
	"June":      time.June,
	"July":      time.July,
	"August":    time.August,
	"September": time.September,
	"October":   time.October,
	"November":  time.November,
	"December":  time.December,
}

// IsMagicLine reports whether line carries the transcript signature.
func IsMagicLine(line []byte) bool {
	if len(line) < len(Magic) || len(line) >= maxFirstLineLength {
		return false
	}
	return string(line[:len(Magic)]) == Magic
}

// ParseFileTimestamp decodes the creation time on the second line of a
// transcript, e.g. "March 3, 2009     14:01:22.1234". The time is taken in
// loc; the four subsecond digits are in units of 100us.
func ParseFileTimestamp(line string, loc *time.Location) (time.Time, error) {
	if len(line) >= maxTimestampLineLength {
		return time.Time{}, fmt.Errorf("%w: timestamp line too long (%d bytes)", ErrNotDCT2000, len(line))
	}
	m := fileTimestampRe.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: unrecognised timestamp line %q", ErrNotDCT2000, line)
	}
	month, ok := monthsByName[m[1]]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month %q", ErrNotDCT2000, m[1])
	}
	nums := make([]int, 0, 6)
	for _, s := range m[2:8] {
		v, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrNotDCT2000, err)
		}
		nums = append(nums, v)
	}
	day, year, hour, minute, second, sub := nums[0], nums[1], nums[2], nums[3], nums[4], nums[5]
	if loc == nil {
		loc = time.Local
	}
	return time.Date(year, month, day, hour, minute, second, sub*microsPerTenThousand*int(time.Microsecond), loc), nil
}

// FormatFileTimestamp renders t in the layout accepted by ParseFileTimestamp.
func FormatFileTimestamp(t time.Time) string {
	return fmt.Sprintf(fileTimestampLayout,
		t.Month().String(), t.Day(), t.Year(),
		t.Hour(), t.Minute(), t.Second(),
		t.Nanosecond()/int(microsPerTenThousand*time.Microsecond))
}

// NewFileHeader builds the two header lines for a trace created at start.
func NewFileHeader(title string, start time.Time) FileHeader {
	magic := Magic
	if title = strings.TrimSpace(title); title != "" {
		magic = Magic + " " + title
	}
	start = start.Truncate(microsPerTenThousand * time.Microsecond)
	return FileHeader{
		MagicLine:     magic,
		TimestampLine: FormatFileTimestamp(start),
		Start:         start,
	}
}
