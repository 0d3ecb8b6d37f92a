package dct2000

import (
	"errors"
	"strings"
	"testing"
)

func TestParseLineRecord(t *testing.T) {
	line := []byte("ctxA.0/ip/1 s tm 12.3456 l $4500")
	p, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if p.ContextName != "ctxA" || p.ContextPort != 0 {
		t.Fatalf("context = %q.%d, want ctxA.0", p.ContextName, p.ContextPort)
	}
	if p.ProtocolName != "ip" || p.Variant != "1" || p.VariantNum != 1 {
		t.Fatalf("protocol = %q/%q, want ip/1", p.ProtocolName, p.Variant)
	}
	if p.Direction != Sent {
		t.Fatalf("Direction = %v, want sent", p.Direction)
	}
	if p.Encap != EncapRawIP {
		t.Fatalf("Encap = %v, want raw-ip", p.Encap)
	}
	if p.Seconds != 12 || p.Microseconds != 345600 {
		t.Fatalf("time = %d.%06d, want 12.345600", p.Seconds, p.Microseconds)
	}
	if p.BeforeTimeOffset != 17 || p.AfterTimeOffset != 24 || p.MarkerOffset != 27 {
		t.Fatalf("offsets = %d/%d/%d, want 17/24/27", p.BeforeTimeOffset, p.AfterTimeOffset, p.MarkerOffset)
	}
	if got := string(p.Payload(line)); got != "4500" {
		t.Fatalf("payload = %q, want 4500", got)
	}
	if p.IsComment || p.IsFreeform {
		t.Fatalf("record classified as comment")
	}
}

func TestParseLineFields(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		port      uint8
		protocol  string
		variant   string
		outhdr    string
		dir       Direction
		encap     Encapsulation
		payload   string
		skipped   string
		atmHeader string
	}{
		{
			name:     "outhdr and received",
			line:     "ue1.12/rlc_r9/3,1,2 r tm 0.0001 l $01",
			port:     12,
			protocol: "rlc_r9",
			variant:  "3",
			outhdr:   "1,2",
			dir:      Received,
			encap:    EncapUnhandled,
			payload:  "01",
		},
		{
			name:     "default variant without separator",
			line:     "ctx.1/ip/ s tm 1.0000 $45",
			port:     1,
			protocol: "ip",
			variant:  "1",
			dir:      Sent,
			encap:    EncapRawIP,
			payload:  "45",
		},
		{
			name:     "isdn_l3 drops framing byte",
			line:     "ctx.0/isdn_l3/1 r tm 1.0000 l $08abcd",
			protocol: "isdn_l3",
			variant:  "1",
			dir:      Received,
			encap:    EncapISDN,
			payload:  "abcd",
			skipped:  "08",
		},
		{
			name:      "fp over atm",
			line:      "ctx.0/fp/1 $012345678901 r tm 1.0000 l $0102",
			protocol:  "fp",
			variant:   "1",
			dir:       Received,
			encap:     EncapATM,
			payload:   "0102",
			atmHeader: "012345678901",
		},
		{
			name:      "atm header with extended symbols",
			line:      "ctx.0/fp_r7/2 $01234567890: s tm 1.0000 l $00",
			protocol:  "fp_r7",
			variant:   "2",
			dir:       Sent,
			encap:     EncapATM,
			payload:   "00",
			atmHeader: "01234567890:",
		},
		{
			name:     "fp over udp has no atm header",
			line:     "ctx.0/fp_r8/259 s tm 1.0000 l $0102",
			protocol: "fp_r8",
			variant:  "259",
			dir:      Sent,
			encap:    EncapFPOverUDP,
			payload:  "0102",
		},
		{
			name:     "numeric extension field",
			line:     "ctx.2/ppp/1/7/ s tm 1.0000 l $ff03",
			port:     2,
			protocol: "ppp",
			variant:  "1",
			dir:      Sent,
			encap:    EncapPPP,
			payload:  "ff03",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			line := []byte(tc.line)
			p, err := ParseLine(line)
			if err != nil {
				t.Fatalf("ParseLine: %v", err)
			}
			if p.ContextPort != tc.port {
				t.Fatalf("ContextPort = %d, want %d", p.ContextPort, tc.port)
			}
			if p.ProtocolName != tc.protocol {
				t.Fatalf("ProtocolName = %q, want %q", p.ProtocolName, tc.protocol)
			}
			if p.Variant != tc.variant {
				t.Fatalf("Variant = %q, want %q", p.Variant, tc.variant)
			}
			if p.Outhdr != tc.outhdr {
				t.Fatalf("Outhdr = %q, want %q", p.Outhdr, tc.outhdr)
			}
			if p.Direction != tc.dir {
				t.Fatalf("Direction = %v, want %v", p.Direction, tc.dir)
			}
			if p.Encap != tc.encap {
				t.Fatalf("Encap = %v, want %v", p.Encap, tc.encap)
			}
			if got := string(p.Payload(line)); got != tc.payload {
				t.Fatalf("payload = %q, want %q", got, tc.payload)
			}
			if p.SkippedPrefix != tc.skipped {
				t.Fatalf("SkippedPrefix = %q, want %q", p.SkippedPrefix, tc.skipped)
			}
			if p.ATMHeader != tc.atmHeader {
				t.Fatalf("ATMHeader = %q, want %q", p.ATMHeader, tc.atmHeader)
			}
		})
	}
}

func TestParseLineComments(t *testing.T) {
	line := []byte("ctx/////tm 5.0000 l $hello world")
	p, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if !p.IsComment || p.IsFreeform {
		t.Fatalf("IsComment=%v IsFreeform=%v, want comment only", p.IsComment, p.IsFreeform)
	}
	if p.ProtocolName != ProtocolComment || p.ContextName != "ctx" {
		t.Fatalf("got %q/%q", p.ContextName, p.ProtocolName)
	}
	if p.Direction != Sent || p.Encap != EncapUnhandled {
		t.Fatalf("Direction=%v Encap=%v", p.Direction, p.Encap)
	}
	if got := string(p.Payload(line)); got != "hello world" {
		t.Fatalf("payload = %q", got)
	}

	line = []byte("ctx/////tm 5.0000 free text here")
	p, err = ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine freeform: %v", err)
	}
	if !p.IsFreeform || p.ProtocolName != ProtocolFreeform {
		t.Fatalf("IsFreeform=%v ProtocolName=%q", p.IsFreeform, p.ProtocolName)
	}
	if p.MarkerOffset != -1 {
		t.Fatalf("MarkerOffset = %d, want -1", p.MarkerOffset)
	}
	if got := string(p.Payload(line)); got != "free text here" {
		t.Fatalf("payload = %q", got)
	}

	line = []byte("ctxA//////anything tm 1.0000 l $hello")
	p, err = ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine six slashes: %v", err)
	}
	if !p.IsComment || p.ContextName != "ctxA" {
		t.Fatalf("IsComment=%v ContextName=%q", p.IsComment, p.ContextName)
	}
	if got := string(p.Payload(line)); got != "hello" {
		t.Fatalf("payload = %q", got)
	}
}

func TestParseLineRejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"garbage", "garbage line here"},
		{"four slashes", "ctx////tm 5.0000 l $aa"},
		{"context too long", strings.Repeat("a", 64) + ".0/ip/1 s tm 1.0000 l $45"},
		{"port too long", "ctx.123/ip/1 s tm 1.0000 l $45"},
		{"empty port", "ctx./ip/1 s tm 1.0000 l $45"},
		{"protocol too long", "ctx.0/" + strings.Repeat("p", 65) + "/1 s tm 1.0000 l $45"},
		{"bad protocol char", "ctx.0/i-p/1 s tm 1.0000 l $45"},
		{"bad direction", "ctx.0/ip/1 x tm 1.0000 l $45"},
		{"three subsecond digits", "ctx.0/ip/1 s tm 1.000 l $45"},
		{"five subsecond digits", "ctx.0/ip/1 s tm 1.00000 l $45"},
		{"seconds too long", "ctx.0/ip/1 s tm 12345678901234567.0000 l $45"},
		{"seconds overflow", "ctx.0/ip/1 s tm 4294967296.0000 l $45"},
		{"quote before marker", "ctx.0/ip/1 s tm 1.0000 l '45'"},
		{"marker at end", "ctx.0/ip/1 s tm 1.0000 l $"},
		{"short atm header", "ctx.0/fp/1 $01234 r tm 1.0000 l $00"},
		{"isdn_l3 without payload", "ctx.0/isdn_l3/1 r tm 1.0000 l $0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLine([]byte(tc.line))
			if !errors.Is(err, ErrUnparsableLine) {
				t.Fatalf("ParseLine(%q) err = %v, want ErrUnparsableLine", tc.line, err)
			}
		})
	}
}

func TestParseLineLimits(t *testing.T) {
	ctx := strings.Repeat("a", 63)
	if _, err := ParseLine([]byte(ctx + ".0/ip/1 s tm 1.0000 l $45")); err != nil {
		t.Fatalf("63-char context rejected: %v", err)
	}
	proto := strings.Repeat("p", 64)
	p, err := ParseLine([]byte("ctx.0/" + proto + "/1 s tm 1.0000 l $45"))
	if err != nil {
		t.Fatalf("64-char protocol rejected: %v", err)
	}
	if p.ProtocolName != proto {
		t.Fatalf("ProtocolName = %q", p.ProtocolName)
	}
	p, err = ParseLine([]byte("ctx.0/ip/1 s tm 4294967295.9999 l $45"))
	if err != nil {
		t.Fatalf("max seconds rejected: %v", err)
	}
	if p.Seconds != 4294967295 || p.Microseconds != 999900 {
		t.Fatalf("time = %d.%d", p.Seconds, p.Microseconds)
	}
}

func TestIsCommentPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ctx/////tm ", true},
		{"/////", true},
		{"ctx////tm ", false},
		{"ctx//////tm ", true},
		{"ctx/ip/////", false},
		{"ctx.0/ip/1 s tm ", false},
		{"no slashes", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := IsCommentPrefix(tc.in); got != tc.want {
			t.Fatalf("IsCommentPrefix(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		protocol string
		variant  int64
		want     Encapsulation
	}{
		{"fp", 259, EncapFPOverUDP},
		{"fp", 3, EncapATM},
		{"fp", 256, EncapATM},
		{"fp_r7", 515, EncapFPOverUDP},
		{"fp_r7", 258, EncapATM},
		{"fpiur_r5", 259, EncapATM},
		{"ip", 1, EncapRawIP},
		{"sctp", 1, EncapRawIP},
		{"ppp", 1, EncapPPP},
		{"isdn_l2", 1, EncapISDN},
		{"ethernet", 1, EncapEthernet},
		{"saal_sscop", 1, EncapSSCOP},
		{"frelay_l2", 1, EncapFrameRelay},
		{"ss7_mtp2", 1, EncapMTP2},
		{"nbap_r4", 1, EncapNBAP},
		{"nbap_sscfuni_r5", 1, EncapNBAP},
		{"mac_r8_lte", 1, EncapUnhandled},
		{ProtocolComment, 0, EncapUnhandled},
	}
	for _, tc := range tests {
		if got := Classify(tc.protocol, tc.variant); got != tc.want {
			t.Fatalf("Classify(%q, %d) = %v, want %v", tc.protocol, tc.variant, got, tc.want)
		}
	}
}

func TestParseEncapsulation(t *testing.T) {
	for e, name := range encapNames {
		got, ok := ParseEncapsulation(name)
		if !ok || got != e {
			t.Fatalf("ParseEncapsulation(%q) = %v, %v", name, got, ok)
		}
	}
	if _, ok := ParseEncapsulation("token-ring"); ok {
		t.Fatalf("unknown name accepted")
	}
}
