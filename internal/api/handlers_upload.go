package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/dgallion1/docrank/internal/doctree"
	"github.com/dgallion1/docrank/internal/pipeline"
	"github.com/dgallion1/docrank/internal/report"
)

const internalError = "Internal server error"

type uploadResponse struct {
	Success  bool              `json:"success"`
	Filename string            `json:"filename"`
	Outline  doctree.Outline   `json:"outline"`
	Sections []doctree.Section `json:"sections"`
	Message  string            `json:"message"`
}

// batchItem is one file of a batch upload. The embedded response is nil
// when the file was rejected.
type batchItem struct {
	Original string `json:"original_filename"`
	Success  bool   `json:"success"`
	*uploadResponse
	Error string `json:"error,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Extra 1MB for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.formError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > s.cfg.MaxUploadBytes {
		jsonError(w, s.tooLarge(), http.StatusBadRequest)
		return
	}

	res, err := s.analyzer.Analyze(r.Context(), pipeline.Upload{Filename: header.Filename, Body: file})
	if err != nil {
		s.pipelineError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		html, err := report.OutlineHTML(res.Outline, s.cfg.HeadingLabels)
		if err != nil {
			s.pipelineError(w, r, err)
			return
		}
		writeHTML(w, html)
		return
	}
	writeJSON(w, http.StatusOK, newUploadResponse(res))
}

func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes*int64(s.cfg.MaxBatchFiles) + 10*1024*1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		s.formError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	if len(headers) > s.cfg.MaxBatchFiles {
		jsonError(w, fmt.Sprintf("Too many files. Maximum is %d per batch", s.cfg.MaxBatchFiles), http.StatusBadRequest)
		return
	}

	items := make([]batchItem, len(headers))
	var uploads []pipeline.Upload
	var slots []int
	for i, fh := range headers {
		items[i].Original = fh.Filename
		if fh.Size > s.cfg.MaxUploadBytes {
			items[i].Error = s.tooLarge()
			continue
		}
		f, err := fh.Open()
		if err != nil {
			items[i].Error = "Failed to read file"
			continue
		}
		defer f.Close()
		uploads = append(uploads, pipeline.Upload{Filename: fh.Filename, Body: f})
		slots = append(slots, i)
	}

	if len(uploads) > 0 {
		results, err := s.analyzer.AnalyzeBatch(r.Context(), uploads)
		if err != nil {
			s.pipelineError(w, r, err)
			return
		}
		for j, res := range results {
			item := &items[slots[j]]
			if res.Err != nil {
				item.Error = s.clientMessage(r, res.Err)
				continue
			}
			item.Success = true
			item.uploadResponse = newUploadResponse(res)
		}
	}

	ok := 0
	for _, it := range items {
		if it.Success {
			ok++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   ok > 0,
		"results":   items,
		"count":     len(items),
		"processed": ok,
	})
}

func newUploadResponse(res pipeline.Analysis) *uploadResponse {
	return &uploadResponse{
		Success:  true,
		Filename: res.Filename,
		Outline:  res.Outline,
		Sections: res.Sections,
		Message:  res.Message(),
	}
}

// formError reports a multipart parse failure, including an exceeded body
// limit.
func (s *Server) formError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) || errors.Is(err, multipart.ErrMessageTooLarge) {
		jsonError(w, s.tooLarge(), http.StatusBadRequest)
		return
	}
	jsonError(w, "Invalid multipart form", http.StatusBadRequest)
}

func (s *Server) tooLarge() string {
	return fmt.Sprintf("File too large. Maximum size is %dMB", s.cfg.MaxUploadBytes>>20)
}

// pipelineError maps input and extraction errors to 400. Capability and
// unexpected errors are 500.
func (s *Server) pipelineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInput), errors.Is(err, pipeline.ErrExtractionEmpty):
		jsonError(w, s.clientMessage(r, err), http.StatusBadRequest)
	default:
		jsonError(w, s.clientMessage(r, err), http.StatusInternalServerError)
	}
}

// clientMessage returns the text safe to show for err, logging the detail.
func (s *Server) clientMessage(r *http.Request, err error) string {
	if msg := pipeline.Message(err); msg != "" {
		s.log.Warn("request failed", "path", r.URL.Path, "error", err)
		return msg
	}
	s.log.Error("request failed", "path", r.URL.Path, "error", err)
	return internalError
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
