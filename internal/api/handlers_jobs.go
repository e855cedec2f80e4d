package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/imgnamer/internal/pipeline"
)

// handleSubmitPreview queues a preview and returns immediately.
func (s *Server) handleSubmitPreview(w http.ResponseWriter, r *http.Request) {
	var req pipeline.PreviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.orchestrator.Submit(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"document": job.Document,
		"status":   job.Snapshot().Status,
		"poll_url": fmt.Sprintf("/api/documents/preview/jobs/%s", job.ID),
	})
}

func (s *Server) handlePreviewStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// handleCancelPreview stops dispatching new model calls for a job. Items
// already in flight finish and stay on the result.
func (s *Server) handleCancelPreview(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	if !s.orchestrator.Cancel(jobID) {
		jsonError(w, "job already finished", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}
