// Package api exposes the analysis pipeline over HTTP: archive upload,
// task status polling, the extracted file tree, on-demand artifacts,
// cancellation and task history.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"codestory/internal/archive"
	"codestory/internal/artifact"
	"codestory/internal/pipeline"
	"codestory/pkg/types"
)

// Server is the HTTP API server.
type Server struct {
	orch      *pipeline.Orchestrator
	maxUpload int64
	logger    *zap.Logger
	mux       *http.ServeMux
}

// New creates a new Server.
func New(orch *pipeline.Orchestrator, maxUpload int64, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orch:      orch,
		maxUpload: maxUpload,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/tasks/{id}/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/tasks/{id}/structure", s.handleStructure)
	s.mux.HandleFunc("GET /api/tasks/{id}/artifact", s.handleArtifact)
	s.mux.HandleFunc("POST /api/tasks/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		// extra byte so an at-limit archive still parses and an oversized one
		// maps to 413 instead of a bare connection error
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+(64<<10))
	}
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable upload: "+err.Error())
		return
	}

	task, err := s.orch.Submit(header.Filename, data)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	// entry listing is cheap and lets clients render the tree skeleton
	// before extraction finishes
	files, err := archive.EntryPaths(data)
	if err != nil {
		files = nil
	}
	s.writeJSON(w, http.StatusAccepted, uploadResponse{Task: task, Files: files})
}

// uploadResponse acknowledges an accepted upload with the flat entry list.
type uploadResponse struct {
	*types.Task
	Files []string `json:"files,omitempty"`
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrSizeLimitExceeded):
		s.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, types.ErrUnsupportedFormat):
		s.writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, types.ErrEmptyUpload):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("upload failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	task, err := s.orch.Status(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleStructure(w http.ResponseWriter, r *http.Request) {
	tree, err := s.orch.Structure(r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, types.ErrUnknownTask):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, types.ErrNotReady):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	kind := types.ArtifactKind(r.URL.Query().Get("kind"))
	switch kind {
	case types.ArtifactArchitectureGraph, types.ArtifactChatScript, types.ArtifactGlossary:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown artifact kind: "+string(kind))
		return
	}

	params := artifact.Params{Scenario: r.URL.Query().Get("scenario")}
	result, err := s.orch.RequestArtifact(r.Context(), r.PathValue("id"), kind, params)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrUnknownTask):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, types.ErrNotReady), errors.Is(err, types.ErrTaskTerminal):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("artifact generation failed",
				zap.String("task", r.PathValue("id")), zap.String("kind", string(kind)), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orch.Cancel(id); err != nil {
		switch {
		case errors.Is(err, types.ErrUnknownTask):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, types.ErrTaskTerminal):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "cancelling"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	s.writeJSON(w, http.StatusOK, s.orch.History(limit))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write json", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
