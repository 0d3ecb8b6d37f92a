package dct2000

import (
	"bytes"
	"sort"
	"sync"
)

const literalSeparator = " l "

// NewLinePrefixInfo captures the text a writer needs to reproduce line.
func NewLinePrefixInfo(p ParsedLine, line []byte) LinePrefixInfo {
	info := LinePrefixInfo{
		BeforeTime:    string(line[:p.BeforeTimeOffset]),
		SkippedPrefix: p.SkippedPrefix,
	}
	if p.IsFreeform {
		info.AfterTime = string(line[p.AfterTimeOffset:p.PayloadOffset])
	} else {
		info.AfterTime = string(line[p.AfterTimeOffset:p.MarkerOffset])
	}
	info.HasLiteralSeparator = info.AfterTime == literalSeparator

	if text := line[p.BeforeTimeOffset:p.AfterTimeOffset]; string(text) != FormatTimestamp(p.Relative()) {
		info.TimeText = string(text)
		info.Time = p.Relative()
	}
	if payload := p.Payload(line); !p.IsComment && !isCanonicalHex(payload) {
		info.PayloadText = string(payload)
	}
	return info
}

// decodes reports whether PayloadText still spells payload, so a frame
// edited since the read is re-encoded instead.
func (info LinePrefixInfo) decodes(payload []byte) bool {
	got, _ := DecodeHex(nil, []byte(info.PayloadText))
	return bytes.Equal(got, payload)
}

// PrefixTable maps the start offset of each successfully read line to its
// prefix information. Entries are written once; lookups may run
// concurrently with appends.
type PrefixTable struct {
	mu      sync.RWMutex
	entries map[int64]LinePrefixInfo
}

func NewPrefixTable() *PrefixTable {
	return &PrefixTable{entries: make(map[int64]LinePrefixInfo)}
}

// Store records info for offset. An existing entry is left untouched.
func (t *PrefixTable) Store(offset int64, info LinePrefixInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[offset]; ok {
		return
	}
	t.entries[offset] = info
}

func (t *PrefixTable) Lookup(offset int64) (LinePrefixInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.entries[offset]
	return info, ok
}

func (t *PrefixTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Offsets returns the stored offsets in ascending order.
func (t *PrefixTable) Offsets() []int64 {
	t.mu.RLock()
	out := make([]int64, 0, len(t.entries))
	for off := range t.entries {
		out = append(out, off)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset drops every entry. Dumps through the table fail afterwards.
func (t *PrefixTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[int64]LinePrefixInfo)
}
