package dct2000

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"
)

func TestHexRoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	text := AppendHex(nil, all)
	if len(text) != 512 {
		t.Fatalf("len = %d, want 512", len(text))
	}
	got, ok := DecodeHex(nil, text)
	if !ok {
		t.Fatalf("DecodeHex reported invalid input")
	}
	if !bytes.Equal(got, all) {
		t.Fatalf("round trip mismatch")
	}
	for i := 0; i < 256; i++ {
		if v := HexByte(HexChar(byte(i)>>4), HexChar(byte(i))); v != byte(i) {
			t.Fatalf("HexByte pair for %d = %d", i, v)
		}
	}
}

func TestDecodeHexLenient(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  []byte
		valid bool
	}{
		{"upper case", "ABcd", []byte{0xab, 0xcd}, true},
		{"odd trailing char", "abc", []byte{0xab}, true},
		{"invalid nibble is zero", "zz1g", []byte{0x00, 0x10}, false},
		{"empty", "", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DecodeHex(nil, []byte(tc.in))
			if ok != tc.valid {
				t.Fatalf("valid = %v, want %v", ok, tc.valid)
			}
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("DecodeHex(%q) = %x, want %x", tc.in, got, tc.want)
			}
		})
	}
	if _, ok := HexNibble('g'); ok {
		t.Fatalf("HexNibble accepted 'g'")
	}
}

func TestTimestampSymmetry(t *testing.T) {
	seconds := []uint32{0, 9, 10, 99, 100, 999, 1000, 9999, 10000, 99999, 100000, 999999, 1000000, 1234567, math.MaxUint32}
	subs := []uint32{0, 1, 10, 999, 9999}
	for _, s := range seconds {
		for _, sub := range subs {
			ts := Timestamp{Seconds: s, TenThousandths: sub}
			text := FormatTimestamp(ts)
			got, err := ParseTimestamp(text)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q): %v", text, err)
			}
			if got != ts {
				t.Fatalf("ParseTimestamp(%q) = %+v, want %+v", text, got, ts)
			}
		}
	}
	if got := FormatTimestamp(Timestamp{Seconds: 12, TenThousandths: 45}); got != "12.0045" {
		t.Fatalf("FormatTimestamp = %q, want 12.0045", got)
	}
	if got := FormatTimestamp(Timestamp{Seconds: 1, TenThousandths: 12345}); got != "2.2345" {
		t.Fatalf("FormatTimestamp carry = %q, want 2.2345", got)
	}
}

func TestRelativeAbsolute(t *testing.T) {
	start := time.Date(2009, time.March, 3, 14, 1, 22, 123400000, time.UTC)
	ts := Timestamp{Seconds: 3600, TenThousandths: 9999}
	abs := Absolute(start, ts)
	if got := Relative(start, abs); got != ts {
		t.Fatalf("Relative(Absolute) = %+v, want %+v", got, ts)
	}
	if got := Relative(start, start.Add(-time.Second)); got != (Timestamp{}) {
		t.Fatalf("negative offset = %+v, want zero", got)
	}
	if got := Relative(start, start.Add(150*time.Microsecond)); got != (Timestamp{TenThousandths: 1}) {
		t.Fatalf("sub-resolution = %+v, want 0.0001", got)
	}
}

func TestFileHeader(t *testing.T) {
	const line = "March 3, 2009     14:01:22.1234"
	got, err := ParseFileTimestamp(line, time.UTC)
	if err != nil {
		t.Fatalf("ParseFileTimestamp: %v", err)
	}
	want := time.Date(2009, time.March, 3, 14, 1, 22, 123400000, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("start = %v, want %v", got, want)
	}
	if s := FormatFileTimestamp(got); s != line {
		t.Fatalf("FormatFileTimestamp = %q, want %q", s, line)
	}

	for _, bad := range []string{"", "Smarch 3, 2009     14:01:22.1234", "March 3 2009"} {
		if _, err := ParseFileTimestamp(bad, time.UTC); !errors.Is(err, ErrNotDCT2000) {
			t.Fatalf("ParseFileTimestamp(%q) err = %v, want ErrNotDCT2000", bad, err)
		}
	}

	if !IsMagicLine([]byte("Session Transcript (format 5.0)")) {
		t.Fatalf("magic line rejected")
	}
	if IsMagicLine([]byte("Session")) {
		t.Fatalf("short line accepted")
	}
	if IsMagicLine(append([]byte(Magic), bytes.Repeat([]byte{' '}, 200)...)) {
		t.Fatalf("overlong line accepted")
	}

	h := NewFileHeader("(format 5.0)", want)
	if h.MagicLine != "Session Transcript (format 5.0)" || h.TimestampLine != line {
		t.Fatalf("NewFileHeader = %+v", h)
	}
}

func TestDecodeATMHeader(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		dir     Direction
		vpi     uint8
		vci     uint16
		cid     uint8
		channel uint8
	}{
		{"plain digits", "012345678901", Sent, 0x12, 0x3456, 0x01, 0},
		{"received channel", "012345678901", Received, 0x12, 0x3456, 0x01, 1},
		{"non-alnum terminal symbol", "01234567890:", Sent, 0x12, 0x3456, 10, 0},
		{"extended symbols", "0:;<=>?01234", Sent, 0xab, 0xcdef, 0x34, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, ok := DecodeATMHeader(tc.token, tc.dir)
			if !ok {
				t.Fatalf("DecodeATMHeader(%q) failed", tc.token)
			}
			if h.VPI != tc.vpi || h.VCI != tc.vci || h.AAL2CID != tc.cid {
				t.Fatalf("VPI/VCI/CID = %#x/%#x/%#x, want %#x/%#x/%#x", h.VPI, h.VCI, h.AAL2CID, tc.vpi, tc.vci, tc.cid)
			}
			if h.Channel != tc.channel {
				t.Fatalf("Channel = %d, want %d", h.Channel, tc.channel)
			}
			if h.AAL != AALType2 || h.Traffic != ATMTrafficFP || h.Cells != 0 {
				t.Fatalf("constant fields = %+v", h)
			}
		})
	}
	if _, ok := DecodeATMHeader("0123", Sent); ok {
		t.Fatalf("short token accepted")
	}
}

func TestDerivePseudoHeader(t *testing.T) {
	isdn := DerivePseudoHeader(ParsedLine{Encap: EncapISDN, Direction: Received})
	if h, ok := isdn.(ISDNPseudoHeader); !ok || !h.UserToNetwork || h.Channel != 0 {
		t.Fatalf("isdn pseudo header = %#v", isdn)
	}
	ppp := DerivePseudoHeader(ParsedLine{Encap: EncapPPP, Direction: Sent})
	if h, ok := ppp.(PPPPseudoHeader); !ok || !h.Sent {
		t.Fatalf("ppp pseudo header = %#v", ppp)
	}
	if h := DerivePseudoHeader(ParsedLine{Encap: EncapRawIP}); h != nil {
		t.Fatalf("raw ip pseudo header = %#v, want nil", h)
	}
	atm := DerivePseudoHeader(ParsedLine{Encap: EncapATM, ATMHeader: "012345678901"})
	if h, ok := atm.(ATMPseudoHeader); !ok || h.Encap() != EncapATM {
		t.Fatalf("atm pseudo header = %#v", atm)
	}
}

func TestBuildFrame(t *testing.T) {
	line := []byte("ctxA.3/ip/1,9 r tm 12.3456 l $4500")
	p, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	f, err := BuildFrame(p, line)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	want := []byte("ctxA\x00\x0312.3456\x00ip\x001\x009\x00\x01\x07\x45\x00")
	if !bytes.Equal(f, want) {
		t.Fatalf("frame = %q, want %q", []byte(f), want)
	}
	stub, err := ParseStub(f)
	if err != nil {
		t.Fatalf("ParseStub: %v", err)
	}
	if stub.ContextName != "ctxA" || stub.ContextPort != 3 || stub.Timestamp != "12.3456" ||
		stub.ProtocolName != "ip" || stub.Variant != "1" || stub.Outhdr != "9" ||
		stub.Direction != Received || stub.Encap != EncapRawIP {
		t.Fatalf("stub = %+v", stub)
	}
	if !bytes.Equal(f.Payload(), []byte{0x45, 0x00}) {
		t.Fatalf("payload = %x", f.Payload())
	}

	comment := []byte("ctx/////tm 1.0000 l $text")
	p, err = ParseLine(comment)
	if err != nil {
		t.Fatalf("ParseLine comment: %v", err)
	}
	f, err = BuildFrame(p, comment)
	if err != nil {
		t.Fatalf("BuildFrame comment: %v", err)
	}
	if string(f.Payload()) != "text" {
		t.Fatalf("comment payload = %q", f.Payload())
	}

	if _, err := ParseStub(Frame("ctx")); err == nil {
		t.Fatalf("truncated stub accepted")
	}
}

func TestBuildFrameTooLarge(t *testing.T) {
	line := append([]byte("ctx.0/ip/1 s tm 1.0000 l $"), bytes.Repeat([]byte("ab"), MaxRecordSize)...)
	p, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if _, err := BuildFrame(p, line); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("err = %v, want ErrRecordTooLarge", err)
	}
}
