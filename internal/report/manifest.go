package report

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/dctgate/internal/common"
	"example.com/dctgate/internal/dct2000"
)

// Item is one file in a manifest.
type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

// Manifest lists traces and their derived outputs with content hashes, so a
// delivery can be checked after transfer.
type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Items     []Item    `json:"items"`
}

func BuildManifest(paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{Path: p, Size: sz, Sha256: hex, Type: fileType(p)})
	}
	return m, nil
}

// fileType sniffs DCT2000 traces by their first line and falls back to the
// extension for everything else.
func fileType(path string) string {
	if IsTrace(path) {
		return "dct2000"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap":
		return "pcap"
	case ".json":
		return "json"
	case ".jsonl", ".ndjson":
		return "jsonl"
	case ".pdf":
		return "pdf"
	}
	return "other"
}

// IsTrace reports whether the file at path starts with a DCT2000 magic line.
func IsTrace(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 256), 256)
	return sc.Scan() && dct2000.IsMagicLine(sc.Bytes())
}

func SaveManifest(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

// VerifyManifest rehashes every item and returns the paths whose size or
// digest no longer match.
func VerifyManifest(m Manifest) ([]string, error) {
	var changed []string
	for _, it := range m.Items {
		hex, sz, err := common.Sha256OfFile(it.Path)
		if err != nil {
			if os.IsNotExist(err) {
				changed = append(changed, it.Path)
				continue
			}
			return changed, err
		}
		if sz != it.Size || hex != it.Sha256 {
			changed = append(changed, it.Path)
		}
	}
	return changed, nil
}

func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
