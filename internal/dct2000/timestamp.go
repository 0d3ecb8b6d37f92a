package dct2000

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	maxSecondsChars      = 16
	subsecondDecimals    = 4
	tenThousandthsPerSec = 10000
	microsPerTenThousand = 100
)

// scanTimestamp reads "<seconds>.<ssss>" starting at line[n]. It returns the
// parsed value and the index just past the last subsecond digit.
func scanTimestamp(line []byte, n int) (Timestamp, int, error) {
	var ts Timestamp
	start := n
	for n < len(line) && line[n] != '.' {
		if !isDigit(line[n]) {
			return ts, n, fmt.Errorf("%w: non-digit %q in seconds", ErrUnparsableLine, line[n])
		}
		if n-start >= maxSecondsChars {
			return ts, n, fmt.Errorf("%w: more than %d seconds digits", ErrUnparsableLine, maxSecondsChars)
		}
		n++
	}
	if n == start {
		return ts, n, fmt.Errorf("%w: empty seconds field", ErrUnparsableLine)
	}
	if n >= len(line) {
		return ts, n, fmt.Errorf("%w: timestamp missing decimal point", ErrUnparsableLine)
	}
	secs, err := strconv.ParseUint(string(line[start:n]), 10, 64)
	if err != nil || secs > math.MaxUint32 {
		return ts, n, fmt.Errorf("%w: seconds out of range", ErrUnparsableLine)
	}
	ts.Seconds = uint32(secs)
	// skip '.'
	n++

	var sub uint32
	digits := 0
	for n < len(line) && line[n] != ' ' {
		if !isDigit(line[n]) {
			return ts, n, fmt.Errorf("%w: non-digit %q in subseconds", ErrUnparsableLine, line[n])
		}
		if digits == subsecondDecimals {
			return ts, n, fmt.Errorf("%w: more than %d subsecond digits", ErrUnparsableLine, subsecondDecimals)
		}
		sub = sub*10 + uint32(line[n]-'0')
		digits++
		n++
	}
	if digits != subsecondDecimals {
		return ts, n, fmt.Errorf("%w: expected %d subsecond digits, got %d", ErrUnparsableLine, subsecondDecimals, digits)
	}
	ts.TenThousandths = sub
	return ts, n, nil
}

// ParseTimestamp parses a complete "<seconds>.<ssss>" string.
func ParseTimestamp(s string) (Timestamp, error) {
	b := []byte(s)
	ts, end, err := scanTimestamp(b, 0)
	if err != nil {
		return Timestamp{}, err
	}
	if end != len(b) {
		return Timestamp{}, fmt.Errorf("%w: trailing characters after timestamp", ErrUnparsableLine)
	}
	return ts, nil
}

func (t Timestamp) normalize() Timestamp {
	if t.TenThousandths >= tenThousandthsPerSec {
		t.Seconds += t.TenThousandths / tenThousandthsPerSec
		t.TenThousandths %= tenThousandthsPerSec
	}
	return t
}

func (t Timestamp) String() string {
	return string(AppendTimestamp(nil, t))
}

// FormatTimestamp renders t the way the reader expects to parse it: decimal
// seconds, '.', and exactly four zero-padded subsecond digits.
func FormatTimestamp(t Timestamp) string {
	return string(AppendTimestamp(nil, t))
}

// AppendTimestamp is the allocation-free form of FormatTimestamp. Second
// counts of up to six digits are written directly.
func AppendTimestamp(dst []byte, t Timestamp) []byte {
	t = t.normalize()
	secs := t.Seconds
	switch {
	case secs < 10:
		dst = append(dst, byte('0'+secs))
	case secs < 100:
		dst = append(dst, byte('0'+secs/10), byte('0'+secs%10))
	case secs < 1000:
		dst = append(dst, byte('0'+secs/100), byte('0'+secs/10%10), byte('0'+secs%10))
	case secs < 10000:
		dst = append(dst, byte('0'+secs/1000), byte('0'+secs/100%10), byte('0'+secs/10%10), byte('0'+secs%10))
	case secs < 100000:
		dst = append(dst, byte('0'+secs/10000), byte('0'+secs/1000%10), byte('0'+secs/100%10),
			byte('0'+secs/10%10), byte('0'+secs%10))
	case secs < 1000000:
		dst = append(dst, byte('0'+secs/100000), byte('0'+secs/10000%10), byte('0'+secs/1000%10),
			byte('0'+secs/100%10), byte('0'+secs/10%10), byte('0'+secs%10))
	default:
		return fmt.Appendf(dst, "%d.%04d", secs, t.TenThousandths)
	}
	sub := t.TenThousandths
	return append(dst, '.',
		byte('0'+sub/1000),
		byte('0'+sub%1000/100),
		byte('0'+sub%100/10),
		byte('0'+sub%10))
}

// Absolute returns the wall-clock time of a record at rel within a trace
// opened at start.
func Absolute(start time.Time, rel Timestamp) time.Time {
	return start.Add(rel.Duration())
}

// Relative converts an absolute record time back into the trace-relative
// form. Times before start clamp to zero; sub-100us precision is truncated.
func Relative(start, t time.Time) Timestamp {
	d := t.Sub(start)
	if d <= 0 {
		return Timestamp{}
	}
	secs := d / time.Second
	if secs > math.MaxUint32 {
		return Timestamp{Seconds: math.MaxUint32, TenThousandths: tenThousandthsPerSec - 1}
	}
	rem := d % time.Second
	return Timestamp{
		Seconds:        uint32(secs),
		TenThousandths: uint32(rem / (microsPerTenThousand * time.Microsecond)),
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
