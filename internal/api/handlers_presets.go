package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/imgnamer/internal/presets"
)

const redactedKey = "********"

func (s *Server) presetStore(w http.ResponseWriter) presets.Store {
	store := s.engine.Presets()
	if store == nil {
		jsonError(w, "preset store not configured", http.StatusServiceUnavailable)
	}
	return store
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	store := s.presetStore(w)
	if store == nil {
		return
	}
	list, err := store.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]presets.Preset, 0, len(list))
	for _, p := range list {
		out = append(out, p.Redacted())
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": out})
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	store := s.presetStore(w)
	if store == nil {
		return
	}
	p, err := store.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Redacted())
}

// handlePutPreset creates or replaces a preset. Sending back the redacted
// API key keeps the stored one.
func (s *Server) handlePutPreset(w http.ResponseWriter, r *http.Request) {
	store := s.presetStore(w)
	if store == nil {
		return
	}
	name := chi.URLParam(r, "name")
	if err := presets.ValidateName(name); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var p presets.Preset
	if !s.decode(w, r, &p) {
		return
	}
	p.Name = name

	if p.AI.APIKey == redactedKey {
		old, err := store.Get(r.Context(), name)
		switch {
		case err == nil:
			p.AI.APIKey = old.AI.APIKey
		case errors.Is(err, presets.ErrNotFound):
			p.AI.APIKey = ""
		default:
			s.writeError(w, r, err)
			return
		}
	}

	if err := store.Put(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Redacted())
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	store := s.presetStore(w)
	if store == nil {
		return
	}
	if err := store.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
