package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dgallion1/imgnamer/internal/llm"
	"github.com/dgallion1/imgnamer/internal/pipeline"
	"github.com/dgallion1/imgnamer/internal/presets"
	"github.com/dgallion1/imgnamer/internal/writeback"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return false
		}
		jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		jsonError(w, validationMessage(err), http.StatusUnprocessableEntity)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	var pe *writeback.PreconditionError
	var te *llm.TransientError
	var se *llm.StatusError
	var me *llm.MalformedResponseError
	switch {
	case errors.As(err, &pe), errors.Is(err, pipeline.ErrTemplateMissingText):
		return http.StatusBadRequest
	case errors.Is(err, presets.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.As(err, &te), errors.As(err, &se), errors.As(err, &me):
		return http.StatusBadGateway
	case errors.Is(err, llm.ErrNotDispatched):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "status", code, "error", err)
	}
	jsonError(w, err.Error(), code)
}
