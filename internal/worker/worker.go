// Package worker drains the sync stream into the database.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"secondmind/internal/chat"
	"secondmind/internal/knowledge"
	"secondmind/internal/metrics"
	"secondmind/internal/queue"
	"secondmind/internal/storage"
)

type Worker struct {
	store         *storage.Store
	queue         *queue.StreamQueue
	dedupe        *queue.JobDeduplicator
	maxJobRetries int
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	Store         *storage.Store
	Queue         *queue.StreamQueue
	Dedupe        *queue.JobDeduplicator
	MaxJobRetries int
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.MaxJobRetries < 0 {
		cfg.MaxJobRetries = 0
	}
	return &Worker{
		store:         cfg.Store,
		queue:         cfg.Queue,
		dedupe:        cfg.Dedupe,
		maxJobRetries: cfg.MaxJobRetries,
		logger:        cfg.Logger,
		metrics:       m,
	}
}

func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		messages, err := w.queue.Read(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read sync stream")
			time.Sleep(1 * time.Second)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		for _, msg := range messages {
			err := w.ProcessJob(ctx, msg.Job)
			if err == nil {
				w.metrics.SyncProcessed.Inc()
				if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
					log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack message")
				}
				continue
			}

			w.metrics.SyncFailed.Inc()
			log.Error().Err(err).Str("job_id", msg.Job.JobID).Int("attempt", msg.Job.Attempts).Msg("sync job failed")

			if msg.Job.Attempts < w.maxJobRetries {
				msg.Job.Attempts++
				if _, enqueueErr := w.queue.Enqueue(ctx, msg.Job); enqueueErr != nil {
					log.Error().Err(enqueueErr).Str("job_id", msg.Job.JobID).Msg("failed to re-enqueue failed job")
					continue
				}
				if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
					log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack after re-enqueue")
				}
				continue
			}

			// Terminal failure: the snapshot is lost, the client still has
			// its local copy and will re-send on the next change.
			log.Error().Str("job_id", msg.Job.JobID).Str("entity", msg.Job.Entity).Msg("dropping sync job after max retries")
			if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
				log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack terminal failed message")
			}
		}
	}
}

// ProcessJob applies one sync job to the store. Jobs are idempotent upserts
// or deletes, so retried deliveries are harmless.
func (w *Worker) ProcessJob(ctx context.Context, job queue.SyncJob) error {
	if w.dedupe != nil && job.Attempts == 0 {
		first, err := w.dedupe.MarkFirst(ctx, job.JobID)
		if err != nil {
			return fmt.Errorf("dedupe: %w", err)
		}
		if !first {
			w.logger.Debug().Str("job_id", job.JobID).Msg("duplicate sync job skipped")
			return nil
		}
	}

	switch job.Entity {
	case queue.EntityKnowledge:
		return w.applyKnowledge(ctx, job)
	case queue.EntitySession:
		return w.applySession(ctx, job)
	default:
		// Unknown entity kinds are acked, not retried.
		w.logger.Warn().Str("entity", job.Entity).Str("job_id", job.JobID).Msg("unknown sync entity")
		return nil
	}
}

func (w *Worker) applyKnowledge(ctx context.Context, job queue.SyncJob) error {
	if job.Op == queue.OpDelete {
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(job.Payload, &ref); err != nil {
			return fmt.Errorf("parse knowledge delete payload: %w", err)
		}
		if err := w.store.DeleteKnowledge(ctx, job.BrainID, ref.ID); err != nil && err != storage.ErrNotFound {
			return err
		}
		return nil
	}

	var item knowledge.Item
	if err := json.Unmarshal(job.Payload, &item); err != nil {
		return fmt.Errorf("parse knowledge payload: %w", err)
	}
	if item.ID == "" {
		return fmt.Errorf("knowledge payload missing id")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = job.EnqueuedAt
	}
	if !item.Type.Valid() {
		item.Type = knowledge.TypeNote
	}
	return w.store.UpsertKnowledge(ctx, job.BrainID, item)
}

func (w *Worker) applySession(ctx context.Context, job queue.SyncJob) error {
	if job.Op == queue.OpDelete {
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(job.Payload, &ref); err != nil {
			return fmt.Errorf("parse session delete payload: %w", err)
		}
		if err := w.store.DeleteSession(ctx, job.BrainID, ref.ID); err != nil && err != storage.ErrNotFound {
			return err
		}
		return nil
	}

	var session chat.Session
	if err := json.Unmarshal(job.Payload, &session); err != nil {
		return fmt.Errorf("parse session payload: %w", err)
	}
	if session.ID == "" {
		return fmt.Errorf("session payload missing id")
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = job.EnqueuedAt
	}
	session.DeriveTitle()
	return w.store.UpsertSession(ctx, job.BrainID, session)
}
