package dct2000

// PseudoHeader is the per-record link metadata that accompanies a frame.
// Its concrete type depends on the encapsulation; kinds without link
// metadata have a nil PseudoHeader.
type PseudoHeader interface {
	Encap() Encapsulation
}

const (
	AALType2 = 2

	ATMTrafficFP = 1
)

// ATMPseudoHeader carries the AAL connection identifiers decoded from the
// 12-symbol header token of an FP line.
type ATMPseudoHeader struct {
	VPI     uint8
	VCI     uint16
	AAL2CID uint8
	Channel uint8
	Cells   uint16
	AAL     uint8
	Traffic uint8
}

func (ATMPseudoHeader) Encap() Encapsulation { return EncapATM }

type ISDNPseudoHeader struct {
	UserToNetwork bool
	Channel       uint8
}

func (ISDNPseudoHeader) Encap() Encapsulation { return EncapISDN }

type PPPPseudoHeader struct {
	Sent bool
}

func (PPPPseudoHeader) Encap() Encapsulation { return EncapPPP }

// atmNibble maps the extended alphabet '0'..'?' onto 0..15.
func atmNibble(c byte) uint16 {
	return uint16(c-'0') & 0x0f
}

// DecodeATMHeader derives VPI, VCI and the AAL2 channel id from a header
// token. Symbols 1-2 give the VPI, 3-6 the VCI and 10-11 the CID. If the
// final symbol is not alphanumeric the CID is taken from that symbol alone.
func DecodeATMHeader(token string, dir Direction) (ATMPseudoHeader, bool) {
	if len(token) != atmHeaderChars {
		return ATMPseudoHeader{}, false
	}
	for i := 0; i < len(token); i++ {
		if !isATMSymbol(token[i]) {
			return ATMPseudoHeader{}, false
		}
	}
	h := ATMPseudoHeader{
		AAL:     AALType2,
		Traffic: ATMTrafficFP,
	}
	h.VPI = uint8(atmNibble(token[1])<<4 | atmNibble(token[2]))
	h.VCI = atmNibble(token[3])<<12 | atmNibble(token[4])<<8 | atmNibble(token[5])<<4 | atmNibble(token[6])
	last := token[11]
	if isAlnum(last) {
		h.AAL2CID = uint8(atmNibble(token[10])<<4 | atmNibble(last))
	} else {
		h.AAL2CID = last - '0'
	}
	if dir == Received {
		h.Channel = 1
	}
	return h, true
}

// DerivePseudoHeader fills in link metadata for the kinds that need it.
func DerivePseudoHeader(p ParsedLine) PseudoHeader {
	switch p.Encap {
	case EncapATM:
		h, ok := DecodeATMHeader(p.ATMHeader, p.Direction)
		if !ok {
			return nil
		}
		return h
	case EncapISDN:
		return ISDNPseudoHeader{UserToNetwork: p.Direction == Received}
	case EncapPPP:
		return PPPPseudoHeader{Sent: p.Direction == Sent}
	}
	return nil
}
