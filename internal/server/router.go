package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/upload", instrument("/upload", s.handleUpload))
	mux.Handle("/decode", instrument("/decode", s.handleDecode))
	mux.Handle("/retime", instrument("/retime", s.handleRetime))
	mux.Handle("/summary", instrument("/summary", s.handleSummary))
	mux.Handle("/export", instrument("/export", s.handleExport))
	mux.Handle("/artifacts/", instrument("/artifacts", s.handleArtifactDownload))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
