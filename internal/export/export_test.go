package export

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/dctgate/internal/dct2000"
)

func udpPacket(t *testing.T) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: 40001}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload([]byte("hello"))))
	return buf.Bytes()
}

func readTrace(t *testing.T, body string) ([]dct2000.Record, *dct2000.Reader) {
	t.Helper()
	text := "Session Transcript (format 5.0)\nMarch 3, 2009     14:01:22.0000\n" + body
	r, err := dct2000.Open(strings.NewReader(text), dct2000.WithLocation(time.UTC))
	require.NoError(t, err)
	var recs []dct2000.Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return recs, r
		}
		require.NoError(t, err)
		recs = append(recs, rec)
	}
}

func TestLinkTypeFor(t *testing.T) {
	tests := []struct {
		encap dct2000.Encapsulation
		want  layers.LinkType
		ok    bool
	}{
		{dct2000.EncapEthernet, layers.LinkTypeEthernet, true},
		{dct2000.EncapPPP, layers.LinkTypePPP, true},
		{dct2000.EncapRawIP, layers.LinkTypeRaw, true},
		{dct2000.EncapFrameRelay, layers.LinkTypeFRelay, true},
		{dct2000.EncapMTP2, layers.LinkType(140), true},
		{dct2000.EncapATM, 0, false},
		{dct2000.EncapUnhandled, 0, false},
	}
	for _, tc := range tests {
		got, ok := LinkTypeFor(tc.encap)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("LinkTypeFor(%v) = %v, %v; want %v, %v", tc.encap, got, ok, tc.want, tc.ok)
		}
	}
	_, err := NewPcapWriter(io.Discard, dct2000.EncapATM, 0)
	require.ErrorIs(t, err, ErrNoLinkType)

	pw, err := NewWriterFor(io.Discard, dct2000.EncapISDN, 0)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkType(177), pw.LinkType())
}

func TestPcapWriterRoundTrip(t *testing.T) {
	pkt := udpPacket(t)
	body := "ctx.0/ip/1 s tm 0.5000 l $" + hex.EncodeToString(pkt) + "\n" +
		"ctx/////tm 0.6000 l $note\n" +
		"ctx.1/ppp/1 r tm 0.7000 l $ff03\n" +
		"ctx.0/ip/1 r tm 1.0000 l $" + hex.EncodeToString(pkt) + "\n"
	recs, _ := readTrace(t, body)
	require.Len(t, recs, 4)

	var buf bytes.Buffer
	pw, err := NewPcapWriter(&buf, dct2000.EncapRawIP, 0)
	require.NoError(t, err)
	for _, rec := range recs {
		_, err := pw.WriteRecord(rec)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, pw.Written)
	assert.Equal(t, 2, pw.Skipped)

	rd, err := pcapgo.NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeRaw, rd.LinkType())
	data, ci, err := rd.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, pkt, data)
	assert.True(t, ci.Timestamp.Equal(recs[0].Timestamp))
	_, ci, err = rd.ReadPacketData()
	require.NoError(t, err)
	assert.True(t, ci.Timestamp.Equal(recs[3].Timestamp))
	_, _, err = rd.ReadPacketData()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPcapWriterSnapLen(t *testing.T) {
	recs, _ := readTrace(t, "ctx.0/ethernet/1 s tm 0.0001 l $00112233445566778899\n")
	var buf bytes.Buffer
	pw, err := NewPcapWriter(&buf, dct2000.EncapEthernet, 4)
	require.NoError(t, err)
	ok, err := pw.WriteRecord(recs[0])
	require.NoError(t, err)
	require.True(t, ok)

	rd, err := pcapgo.NewReader(&buf)
	require.NoError(t, err)
	data, ci, err := rd.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x11, 0x22, 0x33}, data)
	assert.Equal(t, 10, ci.Length)
}

func TestChooseEncapsulation(t *testing.T) {
	_, r := readTrace(t,
		"ctx.1/ppp/1 r tm 0.7000 l $ff03\n"+
			"ctx.0/ip/1 s tm 0.8000 l $4500\n"+
			"ctx.0/ip/1 s tm 0.9000 l $4500\n"+
			"ctx.0/mac_r8_lte/1 s tm 0.9000 l $00\n")
	got, ok := ChooseEncapsulation(r.Index())
	require.True(t, ok)
	assert.Equal(t, dct2000.EncapRawIP, got)

	_, r = readTrace(t, "ctx/////tm 0.6000 l $note\n")
	_, ok = ChooseEncapsulation(r.Index())
	assert.False(t, ok)
}

func TestRecordView(t *testing.T) {
	pkt := udpPacket(t)
	recs, _ := readTrace(t,
		"ctx.0/ip/1 s tm 0.5000 l $"+hex.EncodeToString(pkt)+"\n"+
			"ctx/////tm 0.6000 l $note\n"+
			"ctx.0/fp/1 $012345678901 r tm 1.0000 l $0102\n")
	require.Len(t, recs, 3)

	v := NewRecordView(recs[0])
	assert.Equal(t, "ip", v.Protocol)
	assert.Equal(t, "raw-ip", v.Encap)
	assert.Equal(t, "0.5000", v.Relative)
	assert.Equal(t, hex.EncodeToString(pkt), v.PayloadHex)
	require.NotEmpty(t, v.Layers)
	assert.Equal(t, "IPv4", v.Layers[0])
	assert.Contains(t, v.Layers, "UDP")

	c := NewRecordView(recs[1])
	assert.True(t, c.Comment)
	assert.Equal(t, "note", c.Text)
	assert.Empty(t, c.PayloadHex)

	a := NewRecordView(recs[2])
	require.NotNil(t, a.ATM)
	assert.Equal(t, ATMView{VPI: 0x12, VCI: 0x3456, CID: 1, Channel: 1}, *a.ATM)
	assert.Nil(t, a.Layers)
}
