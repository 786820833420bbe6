package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
)

type ingestRequest struct {
	Paths []string `json:"paths"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ask request", zap.String("question", req.Question), zap.Int("top_k", req.TopK))
	answer, err := s.svc.Ask(r.Context(), req)
	if err != nil {
		s.metrics.observeQuestion(outcome(err), 0)
		s.respondServiceError(w, "ask", err)
		return
	}
	s.metrics.observeQuestion("ok", time.Since(start).Seconds())
	s.respondJSON(w, http.StatusOK, answer)
}

// handleIngest accepts either a multipart upload (field "files") or a JSON body naming
// server-side paths.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var paths []string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		saved, status, err := s.saveUploads(w, r)
		if err != nil {
			s.respondError(w, status, err.Error())
			return
		}
		paths = saved
	} else {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		paths = req.Paths
	}
	if len(paths) == 0 {
		s.respondError(w, http.StatusBadRequest, "no documents given")
		return
	}
	res, err := s.svc.Ingest(r.Context(), paths...)
	if err != nil {
		s.metrics.observeIngest(outcome(err))
		s.respondServiceError(w, "ingest", err)
		return
	}
	if res.Created {
		s.metrics.observeIngest("created")
		s.respondJSON(w, http.StatusCreated, res)
		return
	}
	s.metrics.observeIngest("ignored")
	s.respondJSON(w, http.StatusOK, res)
}

// multipartMemory is how much of an upload form is buffered in memory before spilling to disk.
const multipartMemory = 32 << 20

// saveUploads writes every uploaded file into the upload directory under a hidden name and
// renames it into place once complete. It returns the final paths. The whole request body is
// capped at MaxUploadBytes.
func (s *Server) saveUploads(w http.ResponseWriter, r *http.Request) ([]string, int, error) {
	limit := s.config.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(min(limit, multipartMemory)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", limit)
		}
		return nil, http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err)
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, http.StatusBadRequest, errors.New(`no files in form field "files"`)
	}
	dir := s.config.Storage.UploadDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("create upload directory: %w", err)
	}
	paths := make([]string, 0, len(files))
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid file name %q", fh.Filename)
		}
		if exts := s.config.Watch.Extensions; len(exts) > 0 && !indexer.ExtensionAllowed(filepath.Ext(name), exts) {
			return nil, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported file type %q", filepath.Ext(name))
		}
		if fh.Size > limit {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("%s exceeds %d bytes", name, limit)
		}
		path := filepath.Join(dir, name)
		if err := saveUpload(fh, path); err != nil {
			return nil, http.StatusInternalServerError, err
		}
		paths = append(paths, path)
	}
	return paths, 0, nil
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()
	tmp := filepath.Join(filepath.Dir(path), ".upload-"+uuid.NewString())
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("save upload %s: %w", fh.Filename, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("save upload %s: %w", fh.Filename, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save upload %s: %w", fh.Filename, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save upload %s: %w", fh.Filename, err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Status(r.Context())
	if err != nil {
		s.respondServiceError(w, "status", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"collection": stats,
		"config": map[string]interface{}{
			"chunk_size":        s.config.Chunking.ChunkSize,
			"chunk_overlap":     s.config.Chunking.Overlap(),
			"embedding_model":   s.config.Embedding.Model,
			"llm_model":         s.config.LLM.Model,
			"fusion":            s.config.Retrieval.Fusion,
			"top_k_per_variant": s.config.Retrieval.TopKPerVariant,
			"upload_dir":        s.config.Storage.UploadDir,
		},
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	docs, err := s.svc.Documents(r.Context(), offset, limit)
	if err != nil {
		s.respondServiceError(w, "documents", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "offset": offset, "limit": limit})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	detail, err := s.svc.Document(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, "document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Clear(r.Context()); err != nil {
		s.respondServiceError(w, "clear", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func outcome(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return models.ErrorKind(err)
}

// statusFor maps an error kind to the HTTP status returned for it.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNoCollection):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch models.ErrorKind(err) {
	case "invalid_request", "ingest":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "split":
		return http.StatusUnprocessableEntity
	case "embedding_service", "generation_service", "retrieval":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.String("kind", models.ErrorKind(err)), zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.String("kind", models.ErrorKind(err)), zap.Error(err))
	}
	s.respondJSON(w, status, map[string]string{"error": err.Error(), "kind": models.ErrorKind(err)})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
