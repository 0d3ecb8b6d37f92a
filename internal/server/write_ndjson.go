package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"example.com/dctgate/internal/export"
)

// NDJSONWriter streams newline-delimited JSON objects to the underlying writer.
type NDJSONWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	// every flushes after this many objects; 1 flushes each write.
	every   int
	pending int
}

// NewNDJSONWriter wraps w. If it supports http.Flusher, output is pushed to
// the client every flushEvery objects.
func NewNDJSONWriter(w http.ResponseWriter, flushEvery int) *NDJSONWriter {
	var flusher http.Flusher
	if f, ok := w.(http.Flusher); ok {
		flusher = f
	}
	if flushEvery <= 0 {
		flushEvery = 1
	}
	return &NDJSONWriter{writer: w, flusher: flusher, every: flushEvery}
}

func (w *NDJSONWriter) WriteRecord(v export.RecordView) error {
	return w.WriteObject(v)
}

// WriteObject marshals v to JSON and writes it followed by a newline.
func (w *NDJSONWriter) WriteObject(v any) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	w.pending++
	if w.pending >= w.every {
		w.flushLocked()
	}
	return nil
}

// Flush pushes buffered objects to the client.
func (w *NDJSONWriter) Flush() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.flushLocked()
	w.mu.Unlock()
}

func (w *NDJSONWriter) flushLocked() {
	w.pending = 0
	if w.flusher != nil {
		w.flusher.Flush()
	}
}
