package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"example.com/dctgate/internal/common"
	"example.com/dctgate/internal/dct2000"
	"example.com/dctgate/internal/export"
	"example.com/dctgate/internal/report"
)

// Server coordinates HTTP handlers and manages uploaded traces and the
// artifacts produced from them.
type Server struct {
	artifacts   *ArtifactStore
	workDir     string
	uploadsDir  string
	readerOpts  []dct2000.Option
	maxUpload   int64
	edits       *common.EditLog
	snaplen     int
	exportEncap dct2000.Encapsulation
	slots       chan struct{}
}

// Artifact represents a file uploaded to or generated by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
	// Sha256 is set for uploads, hashed while the body is stored.
	Sha256      string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Sha256      string `json:"sha256,omitempty"`
}

// ArtifactStore keeps track of artifacts for later use and download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "dctd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	s := &Server{
		artifacts:   &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:     workDir,
		uploadsDir:  uploadsDir,
		readerOpts:  opts.ReaderOptions,
		maxUpload:   opts.MaxUploadBytes,
		snaplen:     opts.SnapLen,
		exportEncap: opts.ExportEncap,
		slots:       make(chan struct{}, concurrency),
	}
	if opts.EditLogPath != "" {
		s.edits = common.NewEditLog(opts.EditLogPath)
	}
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

// acquire blocks until a processing slot is free or ctx ends.
func (s *Server) acquire(ctx context.Context) (func(), error) {
	select {
	case s.slots <- struct{}{}:
		return func() { <-s.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	id := randomID()
	art := Artifact{
		ID:          id,
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[id] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

func (s *Server) removeArtifact(id string) {
	s.artifacts.mu.Lock()
	art, ok := s.artifacts.entries[id]
	delete(s.artifacts.entries, id)
	s.artifacts.mu.Unlock()
	if ok {
		os.Remove(art.Path)
	}
}

// openTrace resolves the request input and opens it for reading. On failure
// the response has already been written.
func (s *Server) openTrace(w http.ResponseWriter, r *http.Request) (Artifact, *dct2000.Reader, bool) {
	art, err := s.resolveInput(w, r)
	if err != nil {
		http.Error(w, err.Error(), inputErrorStatus(err))
		return Artifact{}, nil, false
	}
	rd, err := dct2000.OpenFile(art.Path, s.readerOpts...)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dct2000.ErrNotDCT2000) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, fmt.Sprintf("open %s: %v", art.Name, err), status)
		return Artifact{}, nil, false
	}
	return art, rd, true
}

type decodeTrailer struct {
	Done         bool   `json:"done"`
	Records      int    `json:"records"`
	SkippedLines int64  `json:"skippedLines"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	release, err := s.acquire(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer release()
	art, rd, ok := s.openTrace(w, r)
	if !ok {
		return
	}
	defer rd.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Artifact-Id", art.ID)
	w.WriteHeader(http.StatusOK)
	nd := NewNDJSONWriter(w, 64)
	defer nd.Flush()
	trailer := decodeTrailer{Done: true}
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			common.Warnf("decode %s: %v", art.Name, err)
			trailer.Done = false
			trailer.Error = err.Error()
			break
		}
		recordDecoded(rec)
		if err := nd.WriteRecord(export.NewRecordView(rec)); err != nil {
			common.Debugf("decode %s: client went away: %v", art.Name, err)
			return
		}
		trailer.Records++
	}
	trailer.SkippedLines = rd.Index().SkippedLines
	recordSkipped(trailer.SkippedLines)
	nd.WriteObject(trailer)
}

type retimeResponse struct {
	Artifact ArtifactRef `json:"artifact"`
	Delta    string      `json:"delta"`
	Records  int         `json:"records"`
	Clamped  int         `json:"clamped"`
	Edits    int         `json:"edits"`
}

func (s *Server) handleRetime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	delta, err := parseDelta(r.URL.Query().Get("delta"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	release, err := s.acquire(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer release()
	art, rd, ok := s.openTrace(w, r)
	if !ok {
		return
	}
	defer rd.Close()

	out, err := os.CreateTemp(s.workDir, "retime-*.out")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	res, err := dct2000.Retime(rd, out, delta)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		http.Error(w, fmt.Sprintf("retime %s: %v", art.Name, err), http.StatusInternalServerError)
		return
	}
	recordRetime(res)
	for i := range res.Edits {
		res.Edits[i].Source = art.Name
	}
	if s.edits != nil {
		if err := s.edits.AppendAll(res.Edits); err != nil {
			common.Errorf("append edit log %s: %v", s.edits.Path(), err)
		}
	}
	common.WithFields(map[string]interface{}{
		"source":  art.Name,
		"delta":   delta.String(),
		"records": res.Records,
		"clamped": res.Clamped,
	}).Info("retimed trace")

	name := strings.TrimSuffix(art.Name, filepath.Ext(art.Name)) + "-retimed.out"
	result, err := s.addArtifact(out.Name(), name, "text/plain", "retime")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, retimeResponse{
			Artifact: toRef(result),
			Delta:    delta.String(),
			Records:  res.Records,
			Clamped:  res.Clamped,
			Edits:    len(res.Edits),
		})
		return
	}
	w.Header().Set("X-Artifact-Id", result.ID)
	w.Header().Set("X-Retime-Records", strconv.Itoa(res.Records))
	w.Header().Set("X-Retime-Clamped", strconv.Itoa(res.Clamped))
	serveArtifact(w, r, result)
}

// parseDelta accepts a Go duration ("1.5s", "-250ms") or a bare number of
// seconds.
func parseDelta(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("delta required")
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid delta %q", raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	art, err := s.resolveInput(w, r)
	if err != nil {
		http.Error(w, err.Error(), inputErrorStatus(err))
		return
	}
	release, err := s.acquire(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer release()
	sum, err := report.BuildSummary(art.Path, s.readerOpts...)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dct2000.ErrNotDCT2000) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, fmt.Sprintf("summarize %s: %v", art.Name, err), status)
		return
	}
	sum.File = art.Name
	recordSkipped(sum.SkippedLines)
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	encap := s.exportEncap
	if name := r.URL.Query().Get("encap"); name != "" {
		var err error
		if encap, err = parseExportEncap(name); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	release, err := s.acquire(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer release()
	art, rd, ok := s.openTrace(w, r)
	if !ok {
		return
	}
	defer rd.Close()

	if encap == dct2000.EncapUnhandled {
		_, idx, err := dct2000.ScanFile(art.Path, s.readerOpts...)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var found bool
		if encap, found = export.ChooseEncapsulation(idx); !found {
			http.Error(w, "trace has no exportable records", http.StatusUnprocessableEntity)
			return
		}
	}
	out, err := os.CreateTemp(s.workDir, "export-*.pcap")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	pw, err := export.NewWriterFor(out, encap, s.snaplen)
	if err != nil {
		out.Close()
		os.Remove(out.Name())
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for err == nil {
		var rec dct2000.Record
		rec, err = rd.Next()
		if err == nil {
			_, err = pw.WriteRecord(rec)
		}
	}
	if cerr := out.Close(); errors.Is(err, io.EOF) {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		http.Error(w, fmt.Sprintf("export %s: %v", art.Name, err), http.StatusInternalServerError)
		return
	}
	recordExported(encap, pw.Written)
	name := strings.TrimSuffix(art.Name, filepath.Ext(art.Name)) + ".pcap"
	result, err := s.addArtifact(out.Name(), name, "", "export")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("X-Artifact-Id", result.ID)
	w.Header().Set("X-Export-Encap", encap.String())
	w.Header().Set("X-Export-Written", strconv.Itoa(pw.Written))
	w.Header().Set("X-Export-Skipped", strconv.Itoa(pw.Skipped))
	serveArtifact(w, r, result)
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		writeJSON(w, http.StatusOK, s.listArtifacts())
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	serveArtifact(w, r, art)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"artifacts": len(s.listArtifacts()),
		"busy":      len(s.slots),
	})
}

func serveArtifact(w http.ResponseWriter, r *http.Request, art Artifact) {
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	info, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, art.Name, info.ModTime(), f)
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
		Sha256:      art.Sha256,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json":
		return "application/json"
	case ".ndjson":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".pcap":
		return "application/vnd.tcpdump.pcap"
	case ".out", ".txt", ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%d%06d", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}
