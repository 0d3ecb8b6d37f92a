package dct2000

import "time"

type Direction uint8

const (
	Sent     Direction = 0
	Received Direction = 1
)

func (d Direction) String() string {
	if d == Received {
		return "received"
	}
	return "sent"
}

// Letter returns the single character used for the direction in trace text.
func (d Direction) Letter() byte {
	if d == Received {
		return 'r'
	}
	return 's'
}

type ParsedLine struct {
	ContextName  string
	ContextPort  uint8
	ProtocolName string
	Variant      string
	VariantNum   int64
	Outhdr       string
	Direction    Direction
	Encap        Encapsulation
	IsComment    bool
	IsFreeform   bool
	ATMHeader    string

	Seconds      uint32
	Microseconds uint32

	BeforeTimeOffset int
	AfterTimeOffset  int
	MarkerOffset     int
	PayloadOffset    int
	PayloadLength    int

	// SkippedPrefix holds payload text dropped by the parser (the framing
	// byte of isdn_l3) so the writer can emit it back.
	SkippedPrefix string
}

// Timestamp is a trace-relative time with 100us resolution, as written in
// the "tm <seconds>.<ssss>" field.
type Timestamp struct {
	Seconds uint32
	// TenThousandths is the subsecond count in units of 100us (0-9999).
	TenThousandths uint32
}

func (t Timestamp) Microseconds() uint32 {
	return t.TenThousandths * 100
}

func (t Timestamp) Duration() time.Duration {
	return time.Duration(t.Seconds)*time.Second + time.Duration(t.TenThousandths)*100*time.Microsecond
}

type LinePrefixInfo struct {
	BeforeTime          string
	HasLiteralSeparator bool
	// AfterTime is the verbatim text between the timestamp digits and the
	// payload marker. Empty for freeform records.
	AfterTime     string
	SkippedPrefix string
	// TimeText and PayloadText keep the source spelling of fields that do
	// not re-encode identically (leading zeros, uppercase or odd-length
	// hex). Time is the value TimeText stood for.
	TimeText    string
	Time        Timestamp
	PayloadText string
}

type FileHeader struct {
	MagicLine     string
	TimestampLine string
	Start         time.Time
}

// Record is one decoded trace line as handed to consumers.
type Record struct {
	Offset    int64
	Timestamp time.Time
	Relative  Timestamp
	Encap     Encapsulation
	Direction Direction
	Pseudo    PseudoHeader
	Frame     Frame
	Line      ParsedLine
}

type RecordIndex struct {
	Offset       int64
	ProtocolName string
	Encap        Encapsulation
	Direction    Direction
	IsComment    bool
	Relative     Timestamp
	FrameLength  int
}

type FileIndex struct {
	Records      []RecordIndex
	SkippedLines int64
}
