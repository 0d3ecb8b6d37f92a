package export

import (
	"encoding/hex"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"example.com/dctgate/internal/dct2000"
)

// RecordView is the JSON shape of a record in decode output.
type RecordView struct {
	Offset     int64     `json:"offset"`
	Time       time.Time `json:"time"`
	Relative   string    `json:"relative"`
	Context    string    `json:"context"`
	Port       uint8     `json:"port"`
	Protocol   string    `json:"protocol"`
	Variant    string    `json:"variant,omitempty"`
	Outhdr     string    `json:"outhdr,omitempty"`
	Direction  string    `json:"direction"`
	Encap      string    `json:"encap"`
	Comment    bool      `json:"comment,omitempty"`
	Text       string    `json:"text,omitempty"`
	PayloadHex string    `json:"payloadHex,omitempty"`
	Length     int       `json:"length"`
	Layers     []string  `json:"layers,omitempty"`
	ATM        *ATMView  `json:"atm,omitempty"`
}

type ATMView struct {
	VPI     uint8  `json:"vpi"`
	VCI     uint16 `json:"vci"`
	CID     uint8  `json:"cid"`
	Channel uint8  `json:"channel"`
}

// NewRecordView flattens rec. Comment payloads are reported as text;
// binary payloads as hex together with a gopacket layer summary.
func NewRecordView(rec dct2000.Record) RecordView {
	payload := rec.Frame.Payload()
	v := RecordView{
		Offset:    rec.Offset,
		Time:      rec.Timestamp,
		Relative:  rec.Relative.String(),
		Context:   rec.Line.ContextName,
		Port:      rec.Line.ContextPort,
		Protocol:  rec.Line.ProtocolName,
		Variant:   rec.Line.Variant,
		Outhdr:    rec.Line.Outhdr,
		Direction: rec.Direction.String(),
		Encap:     rec.Encap.String(),
		Comment:   rec.Line.IsComment,
		Length:    len(payload),
	}
	if rec.Line.IsComment {
		v.Text = string(payload)
		return v
	}
	v.PayloadHex = hex.EncodeToString(payload)
	v.Layers = Summarize(rec)
	if h, ok := rec.Pseudo.(dct2000.ATMPseudoHeader); ok {
		v.ATM = &ATMView{VPI: h.VPI, VCI: h.VCI, CID: h.AAL2CID, Channel: h.Channel}
	}
	return v
}

// firstLayer picks the gopacket decoder for a payload, or false when the
// payload framing is not one gopacket understands.
func firstLayer(rec dct2000.Record, payload []byte) (gopacket.LayerType, bool) {
	switch rec.Encap {
	case dct2000.EncapEthernet:
		return layers.LayerTypeEthernet, true
	case dct2000.EncapPPP:
		return layers.LayerTypePPP, true
	case dct2000.EncapRawIP:
		if len(payload) == 0 {
			return 0, false
		}
		switch payload[0] >> 4 {
		case 4:
			return layers.LayerTypeIPv4, true
		case 6:
			return layers.LayerTypeIPv6, true
		}
	}
	return 0, false
}

// Summarize decodes the payload of rec with gopacket and returns the names
// of the layers found. A trailing "DecodeFailure" marks a truncated or
// malformed packet.
func Summarize(rec dct2000.Record) []string {
	payload := rec.Frame.Payload()
	first, ok := firstLayer(rec, payload)
	if !ok {
		return nil
	}
	pkt := gopacket.NewPacket(payload, first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	var out []string
	for _, l := range pkt.Layers() {
		out = append(out, l.LayerType().String())
	}
	return out
}
