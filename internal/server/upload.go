package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"example.com/dctgate/internal/common"
)

// uploadField is the multipart field carrying a trace.
const uploadField = "file"

var (
	errNoInput       = errors.New("no trace supplied")
	errInputNotFound = errors.New("artifact not found")
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.limitBody(w, r)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("parse multipart: %v", err), http.StatusBadRequest)
		return
	}
	if r.MultipartForm == nil {
		http.Error(w, "no files provided", http.StatusBadRequest)
		return
	}
	var refs []ArtifactRef
	for _, files := range r.MultipartForm.File {
		for _, fh := range files {
			art, err := s.saveUploadedFile(fh)
			if err != nil {
				http.Error(w, fmt.Sprintf("save upload %s: %v", fh.Filename, err), http.StatusBadRequest)
				return
			}
			refs = append(refs, toRef(art))
		}
	}
	if len(refs) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}
	resp := struct {
		Files []ArtifactRef `json:"files"`
	}{Files: refs}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) limitBody(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
}

// resolveInput finds the trace a request operates on: a previously uploaded
// artifact named by ?id=, the "file" part of a multipart body, or the raw
// request body.
func (s *Server) resolveInput(w http.ResponseWriter, r *http.Request) (Artifact, error) {
	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		art, ok := s.getArtifact(id)
		if !ok {
			return Artifact{}, fmt.Errorf("%w: %s", errInputNotFound, id)
		}
		return art, nil
	}
	if r.Method != http.MethodPost {
		return Artifact{}, errNoInput
	}
	s.limitBody(w, r)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return Artifact{}, fmt.Errorf("parse multipart: %w", err)
		}
		files := r.MultipartForm.File[uploadField]
		if len(files) == 0 {
			return Artifact{}, errNoInput
		}
		return s.saveUploadedFile(files[0])
	}
	return s.saveUploadedBody(r.Body, r.URL.Query().Get("name"))
}

func (s *Server) saveUploadedFile(fh *multipart.FileHeader) (Artifact, error) {
	if fh == nil {
		return Artifact{}, fmt.Errorf("nil file header")
	}
	src, err := fh.Open()
	if err != nil {
		return Artifact{}, err
	}
	defer src.Close()
	return s.storeUpload(src, fh.Filename)
}

func (s *Server) saveUploadedBody(body io.Reader, name string) (Artifact, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload.out"
	}
	art, err := s.storeUpload(body, name)
	if err != nil {
		return Artifact{}, err
	}
	if art.Size == 0 {
		s.removeArtifact(art.ID)
		return Artifact{}, errNoInput
	}
	return art, nil
}

func (s *Server) storeUpload(src io.Reader, filename string) (Artifact, error) {
	ext := filepath.Ext(filename)
	pattern := "upload-*"
	if ext != "" {
		pattern = fmt.Sprintf("upload-*%s", ext)
	}
	dest, err := os.CreateTemp(s.uploadsDir, pattern)
	if err != nil {
		return Artifact{}, err
	}
	hasher := common.NewHasher()
	if _, err := io.Copy(io.MultiWriter(dest, hasher), src); err != nil {
		dest.Close()
		os.Remove(dest.Name())
		return Artifact{}, err
	}
	if err := dest.Close(); err != nil {
		os.Remove(dest.Name())
		return Artifact{}, err
	}
	art, err := s.addArtifact(dest.Name(), filename, guessContentType(filename), "upload")
	if err != nil {
		return Artifact{}, err
	}
	art.Sha256 = hasher.Sum()
	s.artifacts.mu.Lock()
	s.artifacts.entries[art.ID] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func inputErrorStatus(err error) int {
	if errors.Is(err, errInputNotFound) {
		return http.StatusNotFound
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
