package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EditEntry records one change made to a trace while rewriting it.
type EditEntry struct {
	Op     string    `json:"op"`
	Source string    `json:"source,omitempty"`
	Offset int64     `json:"offset"`
	Before string    `json:"before"`
	After  string    `json:"after"`
	Ts     time.Time `json:"ts"`
}

// EditLog provides append-only access to a JSONL audit log.
type EditLog struct {
	path string
	mu   sync.Mutex
}

func NewEditLog(path string) *EditLog {
	return &EditLog{path: path}
}

// Path returns the backing file path for the log.
func (p *EditLog) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Append writes a new entry to the audit log, one JSON object per line.
func (p *EditLog) Append(entry EditEntry) error {
	return p.AppendAll([]EditEntry{entry})
}

// AppendAll writes entries with a single open and sync.
func (p *EditLog) AppendAll(entries []EditEntry) error {
	if p == nil {
		return errors.New("nil edit log")
	}
	if len(entries) == 0 {
		return nil
	}
	var buf []byte
	now := time.Now().UTC()
	for _, entry := range entries {
		if entry.Op == "" {
			return errors.New("edit entry missing op")
		}
		if entry.Ts.IsZero() {
			entry.Ts = now
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	dir := filepath.Dir(p.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Sync()
}

// ReadEditLog loads every entry from the supplied JSONL file.
func ReadEditLog(path string) ([]EditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []EditEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry EditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode edit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
