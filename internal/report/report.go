package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"example.com/dctgate/internal/common"
	"example.com/dctgate/internal/dct2000"
)

// Count is one row of a breakdown table.
type Count struct {
	Name    string `json:"name"`
	Records int    `json:"records"`
	Bytes   int64  `json:"bytes"`
}

// Summary describes the contents of one trace file.
type Summary struct {
	File         string    `json:"file"`
	SHA256       string    `json:"sha256,omitempty"`
	SizeBytes    int64     `json:"sizeBytes"`
	MagicLine    string    `json:"magicLine"`
	Start        time.Time `json:"start"`
	Records      int       `json:"records"`
	Comments     int       `json:"comments"`
	SkippedLines int64     `json:"skippedLines"`
	First        string    `json:"first,omitempty"`
	Last         string    `json:"last,omitempty"`
	ByProtocol   []Count   `json:"byProtocol"`
	ByEncap      []Count   `json:"byEncap"`
	ByDirection  []Count   `json:"byDirection"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// BuildSummary scans the trace at path and hashes it.
func BuildSummary(path string, opts ...dct2000.Option) (Summary, error) {
	hdr, idx, err := dct2000.ScanFile(path, opts...)
	if err != nil {
		return Summary{}, err
	}
	sum := Summarize(hdr, idx)
	sum.File = filepath.Base(path)
	hash, size, err := common.Sha256OfFile(path)
	if err != nil {
		return sum, err
	}
	sum.SHA256 = hash
	sum.SizeBytes = size
	return sum, nil
}

// Summarize aggregates an index without touching the file.
func Summarize(hdr dct2000.FileHeader, idx dct2000.FileIndex) Summary {
	sum := Summary{
		MagicLine:    hdr.MagicLine,
		Start:        hdr.Start,
		Records:      len(idx.Records),
		SkippedLines: idx.SkippedLines,
		GeneratedAt:  time.Now().UTC(),
	}
	byProto := map[string]*Count{}
	byEncap := map[string]*Count{}
	byDir := map[string]*Count{}
	add := func(m map[string]*Count, name string, n int64) {
		c, ok := m[name]
		if !ok {
			c = &Count{Name: name}
			m[name] = c
		}
		c.Records++
		c.Bytes += n
	}
	var first, last dct2000.Timestamp
	for i, r := range idx.Records {
		if r.IsComment {
			sum.Comments++
		}
		payload := int64(r.FrameLength)
		add(byProto, r.ProtocolName, payload)
		add(byEncap, r.Encap.String(), payload)
		add(byDir, r.Direction.String(), payload)
		if i == 0 || r.Relative.Duration() < first.Duration() {
			first = r.Relative
		}
		if i == 0 || r.Relative.Duration() > last.Duration() {
			last = r.Relative
		}
	}
	if len(idx.Records) > 0 {
		sum.First = first.String()
		sum.Last = last.String()
	}
	sum.ByProtocol = sortedCounts(byProto)
	sum.ByEncap = sortedCounts(byEncap)
	sum.ByDirection = sortedCounts(byDir)
	return sum
}

func sortedCounts(m map[string]*Count) []Count {
	out := make([]Count, 0, len(m))
	for _, c := range m {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Records != out[j].Records {
			return out[i].Records > out[j].Records
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func SaveSummaryJSON(sum Summary, out string) error {
	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadSummaryJSON(path string) (Summary, error) {
	var sum Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return sum, err
	}
	err = json.Unmarshal(b, &sum)
	return sum, err
}
