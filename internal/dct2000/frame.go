package dct2000

import (
	"bytes"
	"fmt"

	"example.com/dctgate/internal/common"
)

// MaxRecordSize bounds the size of a built frame (stub plus payload).
const MaxRecordSize = 262144

// Frame is the byte sequence delivered for a record: a stub of
// NUL-terminated metadata strings and two flag bytes, followed by the
// payload.
type Frame []byte

// Stub is the decoded metadata at the front of a Frame.
type Stub struct {
	ContextName   string
	ContextPort   uint8
	Timestamp     string
	ProtocolName  string
	Variant       string
	Outhdr        string
	Direction     Direction
	Encap         Encapsulation
	PayloadOffset int
}

// BuildFrame assembles the frame for a parsed line. Hex payloads are
// decoded; comment payloads are copied as-is.
func BuildFrame(p ParsedLine, line []byte) (Frame, error) {
	return buildFrame(p, line, MaxRecordSize)
}

func buildFrame(p ParsedLine, line []byte, limit int) (Frame, error) {
	ts := AppendTimestamp(make([]byte, 0, 24), p.Relative())
	payload := p.Payload(line)

	payloadSize := len(payload)
	if !p.IsComment {
		payloadSize /= 2
	}
	size := len(p.ContextName) + 1 + 1 +
		len(ts) + 1 +
		len(p.ProtocolName) + 1 +
		len(p.Variant) + 1 +
		len(p.Outhdr) + 1 +
		2 + payloadSize
	if size > limit {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, size)
	}

	f := make([]byte, 0, size)
	f = append(f, p.ContextName...)
	f = append(f, 0, p.ContextPort)
	f = append(f, ts...)
	f = append(f, 0)
	f = append(f, p.ProtocolName...)
	f = append(f, 0)
	f = append(f, p.Variant...)
	f = append(f, 0)
	f = append(f, p.Outhdr...)
	f = append(f, 0, byte(p.Direction), byte(p.Encap))

	if p.IsComment {
		f = append(f, payload...)
	} else {
		var ok bool
		f, ok = DecodeHex(f, payload)
		if !ok {
			common.Debugf("non-hex payload characters in %s line decoded as zero", p.ProtocolName)
		}
	}
	return Frame(f), nil
}

func nextField(f []byte, pos int) (string, int, error) {
	i := bytes.IndexByte(f[pos:], 0)
	if i < 0 {
		return "", pos, fmt.Errorf("truncated frame stub at byte %d", pos)
	}
	return string(f[pos : pos+i]), pos + i + 1, nil
}

// ParseStub walks the stub fields of f.
func ParseStub(f Frame) (Stub, error) {
	var s Stub
	var err error
	pos := 0
	if s.ContextName, pos, err = nextField(f, pos); err != nil {
		return s, err
	}
	if pos >= len(f) {
		return s, fmt.Errorf("truncated frame stub at port")
	}
	s.ContextPort = f[pos]
	pos++
	if s.Timestamp, pos, err = nextField(f, pos); err != nil {
		return s, err
	}
	if s.ProtocolName, pos, err = nextField(f, pos); err != nil {
		return s, err
	}
	if s.Variant, pos, err = nextField(f, pos); err != nil {
		return s, err
	}
	if s.Outhdr, pos, err = nextField(f, pos); err != nil {
		return s, err
	}
	if pos+2 > len(f) {
		return s, fmt.Errorf("truncated frame stub at flags")
	}
	s.Direction = Direction(f[pos])
	s.Encap = Encapsulation(f[pos+1])
	s.PayloadOffset = pos + 2
	return s, nil
}

// Payload returns the bytes after the stub, or nil if the stub is malformed.
func (f Frame) Payload() []byte {
	s, err := ParseStub(f)
	if err != nil {
		return nil
	}
	return f[s.PayloadOffset:]
}
