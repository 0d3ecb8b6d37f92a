package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEditLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "edits.jsonl")
	log := NewEditLog(path)
	require.Equal(t, path, log.Path())

	require.NoError(t, log.Append(EditEntry{Op: "retime", Source: "a.out", Offset: 40, Before: "tm 1.0000", After: "tm 2.0000"}))
	require.NoError(t, log.AppendAll([]EditEntry{
		{Op: "retime", Offset: 90, Before: "tm 3.0000", After: "tm 4.0000"},
		{Op: "retime", Offset: 140, Before: "tm 5.0000", After: "tm 6.0000", Ts: time.Unix(10, 0).UTC()},
	}))

	entries, err := ReadEditLog(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "a.out", entries[0].Source)
	require.Equal(t, int64(90), entries[1].Offset)
	require.False(t, entries[1].Ts.IsZero())
	require.True(t, entries[2].Ts.Equal(time.Unix(10, 0)))
}

func TestEditLogRejects(t *testing.T) {
	var nilLog *EditLog
	require.Error(t, nilLog.Append(EditEntry{Op: "retime"}))
	require.Empty(t, nilLog.Path())

	log := NewEditLog(filepath.Join(t.TempDir(), "edits.jsonl"))
	require.Error(t, log.Append(EditEntry{Offset: 1}))
	require.NoError(t, log.AppendAll(nil))
	_, err := os.Stat(log.Path())
	require.True(t, os.IsNotExist(err))
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.SetTotalBytes(200)
	m.Start()
	m.AddRecord(50)
	m.AddRecord(0)
	m.AddBytes(10)
	m.IncSkipped(40)
	m.Stop()

	s := m.Snapshot()
	require.Equal(t, int64(1), s.Records)
	require.Equal(t, int64(1), s.Skipped)
	require.Equal(t, int64(100), s.Bytes)
	require.InDelta(t, 0.5, s.Completion(), 1e-9)

	line := formatProgressLine(s)
	require.Contains(t, line, "50.00%")
	require.Contains(t, line, "1 records, 1 skipped")
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		512:     "512 B",
		2048:    "2.00 KiB",
		3 << 20: "3.00 MiB",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Fatalf("FormatBytes(%d)=%q want %q", in, got, want)
		}
	}
}

func TestSetupLoggingToFile(t *testing.T) {
	dir := t.TempDir()
	closer, err := SetupLogging(LogConfig{Level: "debug", Format: "json", Directory: dir, Filename: "test.log"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = SetupLogging(LogConfig{})
	})

	WithFields(map[string]interface{}{"records": 3}).Info("decoded")
	Debugf("debug %d", 1)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	text := string(data)
	require.True(t, strings.Contains(text, `"msg":"decoded"`), text)
	require.Contains(t, text, `"records":3`)
	require.Contains(t, text, `"app":"dctgate"`)
	require.Contains(t, text, "debug 1")
}

func TestSha256OfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	sum, size, err := Sha256OfFile(path)
	require.NoError(t, err)
	require.Equal(t, int64(3), size)
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)

	h := NewHasher()
	_, _ = h.Write([]byte("abc"))
	require.Equal(t, sum, h.Sum())
	require.Equal(t, int64(3), h.Size())
}
