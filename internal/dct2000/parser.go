package dct2000

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	ProtocolComment  = "comment"
	ProtocolFreeform = "sprint"
	DefaultVariant   = "1"

	maxContextName   = 64
	maxPortDigits    = 2
	maxProtocolName  = 64
	maxVariantDigits = 16
	maxOuthdr        = 256
	atmHeaderChars   = 12
	commentSlashes   = 5
	commentMarker    = "/////"
)

var commentSeparator = []byte("l $")

// IsCommentPrefix reports whether the first '/' in s starts the five-slash
// comment marker. Both the parser and the dump writer classify lines
// through this function.
func IsCommentPrefix(s string) bool {
	i := strings.IndexByte(s, '/')
	return i >= 0 && strings.HasPrefix(s[i:], commentMarker)
}

func unparsable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnparsableLine, fmt.Sprintf(format, args...))
}

func isContextChar(c byte) bool {
	return isAlnum(c) || c == '_' || c == '-'
}

func isProtocolChar(c byte) bool {
	return isAlnum(c) || c == '_' || c == '.'
}

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// isATMSymbol accepts the extended hex alphabet used by AAL header tokens:
// '0'-'9' followed by the six code points after '9' (":;<=>?").
func isATMSymbol(c byte) bool {
	return c >= '0' && c <= '?'
}

// ParseLine tokenizes one trace line (without its terminator). A returned
// error always wraps ErrUnparsableLine; callers skip such lines.
func ParseLine(line []byte) (ParsedLine, error) {
	var p ParsedLine
	length := len(line)
	n := 0

	// Context name, up to '.' or the comment marker.
	for ; n < maxContextName && n+1 < length && line[n] != '.'; n++ {
		c := line[n]
		if c == '/' {
			end := n + commentSlashes + 1
			if end > length {
				end = length
			}
			if !IsCommentPrefix(string(line[n:end])) {
				return p, unparsable("'/' in context name is not a comment marker")
			}
			p.IsComment = true
			p.ProtocolName = ProtocolComment
			break
		}
		if !isContextChar(c) {
			return p, unparsable("invalid context name character %q", c)
		}
	}
	if n == maxContextName {
		return p, unparsable("context name longer than %d characters", maxContextName-1)
	}
	if n+1 >= length {
		return p, unparsable("line ends inside context name")
	}
	p.ContextName = string(line[:n])

	if !p.IsComment {
		if line[n] != '.' {
			return p, unparsable("expected '.' after context name")
		}
		n++

		start := n
		for ; n+1 < length && line[n] != '/'; n++ {
			if !isDigit(line[n]) {
				return p, unparsable("non-digit %q in port number", line[n])
			}
			if n-start >= maxPortDigits {
				return p, unparsable("port number longer than %d digits", maxPortDigits)
			}
		}
		if n+1 >= length {
			return p, unparsable("line ends inside port number")
		}
		if n == start {
			return p, unparsable("empty port number")
		}
		port, _ := strconv.Atoi(string(line[start:n]))
		p.ContextPort = uint8(port)
		n++

		start = n
		for ; n < length && line[n] != '/'; n++ {
			if !isProtocolChar(line[n]) {
				return p, unparsable("invalid protocol name character %q", line[n])
			}
			if n-start >= maxProtocolName {
				return p, unparsable("protocol name longer than %d characters", maxProtocolName)
			}
		}
		if n >= length {
			return p, unparsable("line ends inside protocol name")
		}
		p.ProtocolName = string(line[start:n])
		n++

		start = n
		for ; n+1 < length && isDigit(line[n]); n++ {
			if n-start >= maxVariantDigits {
				return p, unparsable("variant longer than %d digits", maxVariantDigits)
			}
		}
		if n+1 >= length {
			return p, unparsable("line ends inside variant")
		}
		if n > start {
			p.Variant = string(line[start:n])
			v, err := strconv.ParseInt(p.Variant, 10, 64)
			if err != nil {
				return p, unparsable("variant %q: %v", p.Variant, err)
			}
			p.VariantNum = v
		} else {
			p.Variant = DefaultVariant
			p.VariantNum = 1
		}

		if line[n] == ',' {
			n++
			start = n
			for ; n+1 < length && (isDigit(line[n]) || line[n] == ','); n++ {
				if n-start >= maxOuthdr {
					return p, unparsable("outhdr longer than %d characters", maxOuthdr)
				}
			}
			if n+1 >= length {
				return p, unparsable("line ends inside outhdr")
			}
			p.Outhdr = string(line[start:n])
		}
	}

	p.Encap = Classify(p.ProtocolName, p.VariantNum)

	if p.Encap.NeedsATMHeader() {
		for ; n+1 < length && line[n] != '$'; n++ {
		}
		n++
		if n+1 >= length {
			return p, unparsable("missing ATM header")
		}
		start := n
		for ; n < length && isATMSymbol(line[n]) && n-start < atmHeaderChars; n++ {
		}
		if n-start != atmHeaderChars || n >= length {
			return p, unparsable("ATM header has %d symbols, want %d", n-start, atmHeaderChars)
		}
		p.ATMHeader = string(line[start:n])
	}

	// Step over the field separator and an optional numeric extension
	// ("/<n>/") that this codec does not interpret.
	n++
	if n < length && isDigit(line[n]) {
		for n+1 < length && line[n] != '/' {
			n++
		}
	}
	for n+1 < length && line[n] == '/' {
		n++
	}
	if n+1 < length && line[n] == ' ' {
		n++
	}

	if !p.IsComment {
		if n >= length {
			return p, unparsable("missing direction")
		}
		switch line[n] {
		case 's':
			p.Direction = Sent
		case 'r':
			p.Direction = Received
		default:
			return p, unparsable("invalid direction %q", line[n])
		}
		n++
	} else {
		p.Direction = Sent
	}

	// Timestamp: skip " tm " to the first digit.
	for n < length && !isDigit(line[n]) {
		n++
	}
	if n >= length {
		return p, unparsable("missing timestamp")
	}
	p.BeforeTimeOffset = n
	ts, n, err := scanTimestamp(line, n)
	if err != nil {
		return p, err
	}
	if n >= length || line[n] != ' ' {
		return p, unparsable("timestamp not followed by a space")
	}
	p.Seconds = ts.Seconds
	p.Microseconds = ts.Microseconds()
	p.AfterTimeOffset = n
	n++

	if p.IsComment && !bytes.HasPrefix(line[n:], commentSeparator) {
		p.IsFreeform = true
		p.ProtocolName = ProtocolFreeform
	}

	if p.IsFreeform {
		p.MarkerOffset = -1
	} else {
		for ; n+1 < length && line[n] != '$' && line[n] != '\''; n++ {
		}
		if n+1 >= length || line[n] != '$' {
			return p, unparsable("missing payload marker")
		}
		p.MarkerOffset = n
		n++
	}

	p.PayloadOffset = n
	p.PayloadLength = length - n

	if skipsFirstByte(p.ProtocolName) {
		if p.PayloadLength < 2 {
			return p, unparsable("payload too short for leading framing byte")
		}
		p.SkippedPrefix = string(line[n : n+2])
		p.PayloadOffset += 2
		p.PayloadLength -= 2
	}
	return p, nil
}

// Relative returns the timestamp field of the line.
func (p ParsedLine) Relative() Timestamp {
	return Timestamp{Seconds: p.Seconds, TenThousandths: p.Microseconds / microsPerTenThousand}
}

// Payload returns the payload text of line as located by the parser.
func (p ParsedLine) Payload(line []byte) []byte {
	return line[p.PayloadOffset : p.PayloadOffset+p.PayloadLength]
}
