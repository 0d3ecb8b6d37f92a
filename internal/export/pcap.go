// Package export converts decoded trace records into pcap captures and
// JSON views.
package export

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"example.com/dctgate/internal/dct2000"
)

const (
	linkTypeMTP2      = layers.LinkType(140)
	linkTypeLinuxLAPD = layers.LinkType(177)
)

var ErrNoLinkType = errors.New("encapsulation has no pcap link type")

// LinkTypeFor maps an encapsulation to the pcap link type whose framing
// matches the decoded payload bytes.
func LinkTypeFor(e dct2000.Encapsulation) (layers.LinkType, bool) {
	switch e {
	case dct2000.EncapEthernet:
		return layers.LinkTypeEthernet, true
	case dct2000.EncapPPP:
		return layers.LinkTypePPP, true
	case dct2000.EncapRawIP:
		return layers.LinkTypeRaw, true
	case dct2000.EncapFrameRelay:
		return layers.LinkTypeFRelay, true
	case dct2000.EncapMTP2:
		return linkTypeMTP2, true
	}
	return 0, false
}

// PcapWriter writes the records of one encapsulation to a classic pcap
// stream. Records of other kinds are counted and skipped.
type PcapWriter struct {
	w        *pcapgo.Writer
	encap    dct2000.Encapsulation
	link     layers.LinkType
	snaplen  int
	protocol string

	Written int
	Skipped int
}

// NewPcapWriter writes the file header for encap to w.
func NewPcapWriter(w io.Writer, encap dct2000.Encapsulation, snaplen int) (*PcapWriter, error) {
	link, ok := LinkTypeFor(encap)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLinkType, encap)
	}
	return newPcapWriter(w, encap, link, snaplen)
}

// NewLAPDWriter writes isdn_l2 records using the Linux LAPD link type.
func NewLAPDWriter(w io.Writer, snaplen int) (*PcapWriter, error) {
	pw, err := newPcapWriter(w, dct2000.EncapISDN, linkTypeLinuxLAPD, snaplen)
	if err != nil {
		return nil, err
	}
	pw.protocol = "isdn_l2"
	return pw, nil
}

// NewWriterFor picks the writer for encap. ISDN records go out as LAPD.
func NewWriterFor(w io.Writer, encap dct2000.Encapsulation, snaplen int) (*PcapWriter, error) {
	if encap == dct2000.EncapISDN {
		return NewLAPDWriter(w, snaplen)
	}
	return NewPcapWriter(w, encap, snaplen)
}

func newPcapWriter(w io.Writer, encap dct2000.Encapsulation, link layers.LinkType, snaplen int) (*PcapWriter, error) {
	if snaplen <= 0 {
		snaplen = dct2000.MaxRecordSize
	}
	pw := &PcapWriter{
		w:       pcapgo.NewWriter(w),
		encap:   encap,
		link:    link,
		snaplen: snaplen,
	}
	if err := pw.w.WriteFileHeader(uint32(snaplen), link); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return pw, nil
}

func (p *PcapWriter) LinkType() layers.LinkType {
	return p.link
}

// WriteRecord appends rec as one packet. It reports false when the record
// was skipped because it is a comment or of another encapsulation.
func (p *PcapWriter) WriteRecord(rec dct2000.Record) (bool, error) {
	if rec.Line.IsComment || rec.Encap != p.encap {
		p.Skipped++
		return false, nil
	}
	if p.protocol != "" && rec.Line.ProtocolName != p.protocol {
		p.Skipped++
		return false, nil
	}
	data := rec.Frame.Payload()
	length := len(data)
	if len(data) > p.snaplen {
		data = data[:p.snaplen]
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     rec.Timestamp,
		CaptureLength: len(data),
		Length:        length,
	}
	if err := p.w.WritePacket(ci, data); err != nil {
		return false, fmt.Errorf("write packet for offset %d: %w", rec.Offset, err)
	}
	p.Written++
	return true, nil
}

// ChooseEncapsulation picks the exportable encapsulation with the most
// records in idx.
func ChooseEncapsulation(idx dct2000.FileIndex) (dct2000.Encapsulation, bool) {
	counts := make(map[dct2000.Encapsulation]int)
	for _, r := range idx.Records {
		if r.IsComment {
			continue
		}
		if _, ok := LinkTypeFor(r.Encap); ok {
			counts[r.Encap]++
		}
	}
	if len(counts) == 0 {
		return dct2000.EncapUnhandled, false
	}
	kinds := make([]dct2000.Encapsulation, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if counts[kinds[i]] != counts[kinds[j]] {
			return counts[kinds[i]] > counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	return kinds[0], true
}
