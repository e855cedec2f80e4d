package api

import (
	"net/http"

	"github.com/dgallion1/imgnamer/internal/pipeline"
)

// handlePreview runs a synchronous preview pass. The pass stops dispatching
// when the client disconnects.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req pipeline.PreviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.PreviewDocument(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ApplyRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.ApplyDocument(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req pipeline.RestoreRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.RestoreDocument(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleNormalizeHTML(w http.ResponseWriter, r *http.Request) {
	var req pipeline.NormalizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.NormalizeHTML(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	var req pipeline.CandidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.GenerateCandidates(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProcessText(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ProcessTextRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.ProcessText(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
