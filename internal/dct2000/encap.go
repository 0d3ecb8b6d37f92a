package dct2000

import "strings"

// Encapsulation identifies the link framing of a record payload. The numeric
// value is the byte stored in the frame stub.
type Encapsulation uint8

const (
	EncapUnhandled  Encapsulation = 0
	EncapEthernet   Encapsulation = 1
	EncapPPP        Encapsulation = 4
	EncapRawIP      Encapsulation = 7
	EncapATM        Encapsulation = 14
	EncapISDN       Encapsulation = 17
	EncapFrameRelay Encapsulation = 26
	EncapSSCOP      Encapsulation = 101
	EncapMTP2       Encapsulation = 102
	EncapNBAP       Encapsulation = 103
	EncapFPOverUDP  Encapsulation = 104
)

var encapNames = map[Encapsulation]string{
	EncapUnhandled:  "unhandled",
	EncapEthernet:   "ethernet",
	EncapPPP:        "ppp",
	EncapRawIP:      "raw-ip",
	EncapATM:        "atm",
	EncapISDN:       "isdn",
	EncapFrameRelay: "frame-relay",
	EncapSSCOP:      "sscop",
	EncapMTP2:       "mtp2",
	EncapNBAP:       "nbap",
	EncapFPOverUDP:  "fp-udp",
}

func (e Encapsulation) String() string {
	if name, ok := encapNames[e]; ok {
		return name
	}
	return "unknown"
}

// ParseEncapsulation maps a name produced by String back to its kind.
func ParseEncapsulation(name string) (Encapsulation, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, v := range encapNames {
		if v == name {
			return k, true
		}
	}
	return EncapUnhandled, false
}

// NeedsATMHeader reports whether lines of this kind carry the 12-symbol AAL
// header token.
func (e Encapsulation) NeedsATMHeader() bool {
	return e == EncapATM
}

const (
	fpUDPVariantMin    = 256
	fpUDPVariantModulo = 256
	fpUDPVariantResult = 3
)

var exactEncaps = map[string]Encapsulation{
	"ip":             EncapRawIP,
	"sctp":           EncapRawIP,
	"gre":            EncapRawIP,
	"mipv6":          EncapRawIP,
	"igmp":           EncapRawIP,
	"fpiur_r5":       EncapATM,
	"ppp":            EncapPPP,
	"isdn_l3":        EncapISDN,
	"isdn_l2":        EncapISDN,
	"ethernet":       EncapEthernet,
	"saal_nni_sscop": EncapSSCOP,
	"saal_sscop":     EncapSSCOP,
	"frelay_l2":      EncapFrameRelay,
	"ss7_mtp2":       EncapMTP2,
	"nbap":           EncapNBAP,
	"nbap_r4":        EncapNBAP,
}

// Classify maps a protocol name and its numeric variant to an encapsulation
// kind. FP shares one protocol family between ATM/AAL framing and framing
// routed over UDP; the variant selects between them.
func Classify(protocol string, variant int64) Encapsulation {
	if protocol == "fp" || strings.HasPrefix(protocol, "fp_r") {
		if variant > fpUDPVariantMin && variant%fpUDPVariantModulo == fpUDPVariantResult {
			return EncapFPOverUDP
		}
		return EncapATM
	}
	if e, ok := exactEncaps[protocol]; ok {
		return e
	}
	if strings.HasPrefix(protocol, "nbap_sscfuni") {
		return EncapNBAP
	}
	return EncapUnhandled
}

// skipsFirstByte reports protocols whose payload starts with a framing byte
// that is not part of the encapsulated message.
func skipsFirstByte(protocol string) bool {
	return protocol == "isdn_l3"
}
