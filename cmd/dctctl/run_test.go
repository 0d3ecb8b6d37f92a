package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/dctgate/internal/common"
	"example.com/dctgate/internal/dct2000"
	"example.com/dctgate/internal/export"
	"example.com/dctgate/internal/report"
)

const traceText = "Session Transcript (format 5.0)\n" +
	"March 3, 2009     14:01:22.0000\n" +
	"ctx.0/ip/1 s tm 0.5000 l $4500\n" +
	"not a record\n" +
	"ctx.0/fp/1 $012345678901 r tm 0.7500 l $0102\n" +
	"ctx.1/ppp/1 r tm 1.2500 l $ff03\n" +
	"ctx/////tm 1.5000 l $a comment\n" +
	"ctx/////tm 2.0000 free form text\n" +
	"ctx.0/ip/1 r tm 3.0000 l $4500aa\r\n"

var utc = []dct2000.Option{dct2000.WithLocation(time.UTC)}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunDecode(t *testing.T) {
	in := writeFile(t, t.TempDir(), "trace.out", traceText)
	var buf bytes.Buffer
	n, skipped, err := runDecode(in, &buf, utc)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.EqualValues(t, 1, skipped)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	var first export.RecordView
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "ip", first.Protocol)
	assert.Equal(t, "4500", first.PayloadHex)
	var atm export.RecordView
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &atm))
	require.NotNil(t, atm.ATM)
	assert.EqualValues(t, 0x12, atm.ATM.VPI)
}

func TestRunVerifyRoundTrip(t *testing.T) {
	in := writeFile(t, t.TempDir(), "trace.out", traceText)
	res, err := runVerify(in, utc)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Records)
	assert.EqualValues(t, 1, res.Skipped)
	assert.Empty(t, res.Mismatches)
}

func TestRunVerifyKeepsSourceSpelling(t *testing.T) {
	text := strings.Replace(traceText, "tm 1.2500 l $ff03", "tm 01.2500 l $FF03", 1)
	in := writeFile(t, t.TempDir(), "trace.out", text)
	res, err := runVerify(in, utc)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Records)
	assert.Empty(t, res.Mismatches)
}

func TestRunRetime(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "trace.out", traceText)
	out := filepath.Join(dir, "retimed.out")
	logPath := filepath.Join(dir, "edits.jsonl")

	res, err := runRetime(in, out, 250*time.Millisecond, common.NewEditLog(logPath), utc)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Records)
	assert.Zero(t, res.Clamped)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ctx.0/ip/1 s tm 0.7500 l $4500\n")
	assert.Contains(t, string(data), "ctx/////tm 2.2500 free form text\n")
	assert.NotContains(t, string(data), "not a record")

	entries, err := common.ReadEditLog(logPath)
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, dct2000.RetimeOp, entries[0].Op)
	assert.Equal(t, "trace.out", entries[0].Source)
	assert.Equal(t, "0.5000", entries[0].Before)
	assert.Equal(t, "0.7500", entries[0].After)
}

func TestRunExport(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "trace.out", traceText)
	out := filepath.Join(dir, "trace.pcap")

	res, err := runExport(in, out, "", 0, utc)
	require.NoError(t, err)
	assert.Equal(t, dct2000.EncapRawIP, res.Encap)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 4, res.Skipped)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rd, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeRaw, rd.LinkType())

	_, err = runExport(in, out, "bogus", 0, utc)
	assert.Error(t, err)
}

func TestRunExportNothingExportable(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "trace.out", "Session Transcript (format 5.0)\n"+
		"March 3, 2009     14:01:22.0000\n"+
		"ctx/////tm 1.5000 l $only a comment\n")
	_, err := runExport(in, filepath.Join(dir, "x.pcap"), "", 0, utc)
	assert.ErrorIs(t, err, errNoExportable)
}

func TestRunBatch(t *testing.T) {
	root := t.TempDir()
	inDir := filepath.Join(root, "in")
	writeFile(t, inDir, "alpha.out", traceText)
	writeFile(t, inDir, "nested/beta.out", traceText)
	writeFile(t, inDir, "notes.txt", "not a trace\n")
	outDir := filepath.Join(root, "out")

	results, err := runBatch(inDir, outDir, 2, utc)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, 6, r.Records)
	}
	assert.Equal(t, filepath.Join(outDir, "nested_beta.out.summary.json"), results[1].Output)

	sum, err := report.LoadSummaryJSON(results[1].Output)
	require.NoError(t, err)
	assert.Equal(t, "nested/beta.out", sum.File)
	assert.Equal(t, 2, sum.Comments)
}

func TestCodecFlagsResolve(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "dctctl.yaml", "codec:\n  timeZone: Local\n  maxRecordSize: 1024\n")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cf := addCodecFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", cfgPath, "-tz", "UTC"}))
	cfg, opts, err := cf.resolve()
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Codec.TimeZone)
	assert.Equal(t, 1024, cfg.Codec.MaxRecordSize)
	assert.NotEmpty(t, opts)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	cf = addCodecFlags(fs)
	require.NoError(t, fs.Parse([]string{"-tz", "Nowhere/Special"}))
	_, _, err = cf.resolve()
	assert.Error(t, err)
}
