package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"secondmind/internal/storage"
)

type loginRequest struct {
	BrainID  string `json:"brainId"`
	Password string `json:"password"`
}

// handleLogin checks the brain's password, creating the brain on first use.
// Passwords are stored and compared as plain text; do not reuse a password
// that matters anywhere else.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.BrainID = strings.TrimSpace(req.BrainID)
	if req.BrainID == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "brainId and password are required")
		return
	}

	brain, err := s.store.GetBrain(r.Context(), req.BrainID)
	if errors.Is(err, storage.ErrNotFound) {
		if err := s.store.CreateBrain(r.Context(), req.BrainID, req.Password); err != nil {
			s.logger.Error().Err(err).Str("brain", req.BrainID).Msg("failed to create brain")
			respondError(w, http.StatusInternalServerError, "failed to create account")
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{"brainId": req.BrainID, "created": true})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("brain", req.BrainID).Msg("failed to load brain")
		respondError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	if brain.Password != req.Password {
		respondError(w, http.StatusUnauthorized, "wrong password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"brainId": brain.ID, "created": false})
}
