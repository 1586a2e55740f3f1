package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docrank/internal/store"
)

// handleListFiles lists stored uploads by name.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.files.List()
	if err != nil {
		s.log.Error("list uploads failed", "error", err)
		jsonError(w, internalError, http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []store.FileInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"files":   files,
		"count":   len(files),
	})
}

// handleServeFile streams one stored PDF. The file lock keeps a concurrent
// highlight save from being read half-written.
func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	path, err := s.files.Path(name)
	if err != nil {
		jsonError(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	unlock := s.files.Lock(name)
	defer unlock()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("open upload failed", "file", name, "error", err)
		jsonError(w, internalError, http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeContent(w, r, name, info.ModTime(), f)
}
