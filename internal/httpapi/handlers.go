package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/finsight/copilot"
)

type errorResponse struct {
	Error string `json:"error"`
}

type askRequest struct {
	Question string `json:"question"`
}

type clearResponse struct {
	Removed int    `json:"removed"`
	Status  string `json:"status"`
}

// handleUpload accepts a multipart "file" field, spools it to a temp file,
// and ingests it. The temp file is removed on every path.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !allowedUpload(filename) {
		s.respondError(w, http.StatusBadRequest, "unsupported file type: "+filepath.Ext(filename))
		return
	}

	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(filename))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "create temp file")
		return
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		s.respondError(w, http.StatusInternalServerError, "save upload")
		return
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		s.respondError(w, http.StatusInternalServerError, "rewind upload")
		return
	}

	stats, err := s.pipeline.IngestReader(r.Context(), tmp, filename, nil)
	if err != nil {
		s.logger.Error("http: ingest failed", "file", filename, "error", err)
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.logger.Info("http: document ingested", "file", filename, "chunks", stats.ChunkCount)
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := s.pipeline.Ask(r.Context(), req.Question)
	if err != nil {
		s.logger.Error("http: ask failed", "error", err)
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	if s.onFallback != nil &&
		(answer.Model == copilot.ModelNone || answer.Model == copilot.ModelFallbackContext) {
		s.onFallback(r.Context(), answer.Model)
	}

	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pipeline.Stats(r.Context())
	if err != nil {
		s.logger.Error("http: stats failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	removed, err := s.pipeline.Clear(r.Context())
	if err != nil {
		s.logger.Error("http: clear failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("http: store cleared", "removed", removed)
	s.respondJSON(w, http.StatusOK, clearResponse{Removed: removed, Status: "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// allowedUpload reports whether the filename has a supported extension.
func allowedUpload(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".txt", ".text", ".md", ".markdown", ".html", ".htm":
		return true
	default:
		return false
	}
}

// statusFor maps pipeline error types to HTTP status codes.
func statusFor(err error) int {
	var validation *copilot.ErrValidation
	if errors.As(err, &validation) {
		return http.StatusBadRequest
	}
	var extraction *copilot.ErrExtraction
	if errors.As(err, &extraction) {
		if strings.Contains(extraction.Message, "unsupported") {
			return http.StatusBadRequest
		}
		return http.StatusUnprocessableEntity
	}
	var httpErr *copilot.ErrHTTP
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusTooManyRequests {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("http: encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, errorResponse{Error: msg})
}
