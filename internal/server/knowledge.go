package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"secondmind/internal/knowledge"
	"secondmind/internal/queue"
)

const maxImportBytes = 4 << 20

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListKnowledge(r.Context(), brainID(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list knowledge")
		respondError(w, http.StatusInternalServerError, "failed to list knowledge")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// handleSyncKnowledge accepts a full item snapshot and queues it for
// persistence. The 202 is an acknowledgement of the enqueue, not the write.
func (s *Server) handleSyncKnowledge(w http.ResponseWriter, r *http.Request) {
	var item knowledge.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if item.ID == "" || item.Title == "" {
		respondError(w, http.StatusBadRequest, "id and title are required")
		return
	}
	if !item.Type.Valid() {
		respondError(w, http.StatusBadRequest, "type must be one of book, note, strategy, observation")
		return
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	payload, _ := json.Marshal(item)
	jobID, ok := s.enqueue(w, r, queue.SyncJob{
		BrainID: brainID(r),
		Entity:  queue.EntityKnowledge,
		Op:      queue.OpUpsert,
		Payload: payload,
	})
	if !ok {
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"queued": true, "jobId": jobID})
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	payload, _ := json.Marshal(map[string]string{"id": id})
	jobID, ok := s.enqueue(w, r, queue.SyncJob{
		BrainID: brainID(r),
		Entity:  queue.EntityKnowledge,
		Op:      queue.OpDelete,
		Payload: payload,
	})
	if !ok {
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"queued": true, "jobId": jobID})
}

func (s *Server) handleExportKnowledge(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListKnowledge(r.Context(), brainID(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to export knowledge")
		respondError(w, http.StatusInternalServerError, "failed to export knowledge")
		return
	}

	doc := knowledge.Export(items, time.Now())
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="knowledge-export.md"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// handleImportKnowledge parses an exported document and queues every parsed
// item as an upsert, so re-importing the same file is harmless.
func (s *Server) handleImportKnowledge(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	items, err := knowledge.Import(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	brain := brainID(r)
	queued := 0
	for _, item := range items {
		payload, _ := json.Marshal(item)
		if _, err := s.queue.Enqueue(r.Context(), queue.SyncJob{
			BrainID: brain,
			Entity:  queue.EntityKnowledge,
			Op:      queue.OpUpsert,
			Payload: payload,
		}); err != nil {
			s.logger.Error().Err(err).Str("item", item.ID).Msg("failed to enqueue imported item")
			respondErrorDetails(w, http.StatusInternalServerError, "import partially queued",
				"sync queue unavailable", "")
			return
		}
		s.metrics.SyncEnqueued.Inc()
		queued++
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"queued": queued})
}

// enqueue pushes one sync job and writes the error response itself on
// failure. Callers only proceed when ok is true.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, job queue.SyncJob) (string, bool) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if _, err := s.queue.Enqueue(r.Context(), job); err != nil {
		s.logger.Error().Err(err).Str("entity", job.Entity).Msg("failed to enqueue sync job")
		respondError(w, http.StatusServiceUnavailable, "sync queue unavailable")
		return "", false
	}
	s.metrics.SyncEnqueued.Inc()
	return job.JobID, true
}
