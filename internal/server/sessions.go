package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"secondmind/internal/chat"
	"secondmind/internal/queue"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context(), brainID(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list sessions")
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

// handleSyncSession accepts a whole-session snapshot. Last write wins; there
// is no merge of concurrent edits.
func (s *Server) handleSyncSession(w http.ResponseWriter, r *http.Request) {
	var session chat.Session
	if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if session.ID == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	if session.Title == "" {
		session.Title = chat.DefaultTitle
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now().UTC()
	}

	payload, _ := json.Marshal(session)
	jobID, ok := s.enqueue(w, r, queue.SyncJob{
		BrainID: brainID(r),
		Entity:  queue.EntitySession,
		Op:      queue.OpUpsert,
		Payload: payload,
	})
	if !ok {
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"queued": true, "jobId": jobID})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	payload, _ := json.Marshal(map[string]string{"id": id})
	jobID, ok := s.enqueue(w, r, queue.SyncJob{
		BrainID: brainID(r),
		Entity:  queue.EntitySession,
		Op:      queue.OpDelete,
		Payload: payload,
	})
	if !ok {
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"queued": true, "jobId": jobID})
}
