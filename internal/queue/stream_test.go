package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*StreamQueue, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewStreamQueue(rdb, "secondmind:sync", "secondmind-workers", "test-consumer", 50*time.Millisecond), rdb
}

func TestEnqueueReadAckRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	// Group must exist before the enqueue so "$" does not skip the entry.
	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	job := SyncJob{
		BrainID: "main",
		Entity:  EntityKnowledge,
		Payload: json.RawMessage(`{"id":"k1","title":"t","type":"note","content":"c"}`),
	}
	if _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	msgs, err := q.Read(ctx, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	got := msgs[0].Job
	if got.BrainID != "main" || got.Entity != EntityKnowledge || got.Op != OpUpsert {
		t.Fatalf("unexpected job %+v", got)
	}
	if got.JobID == "" || got.EnqueuedAt.IsZero() {
		t.Fatalf("enqueue did not fill defaults: %+v", got)
	}

	if err := q.Ack(ctx, msgs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	msgs, err = q.Read(ctx, 10)
	if err != nil {
		t.Fatalf("read after ack: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected drained stream, got %d messages", len(msgs))
	}
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
}

func TestJobDeduplicatorMarksFirstOnly(t *testing.T) {
	_, rdb := newTestQueue(t)
	d := NewJobDeduplicator(rdb, time.Hour)
	ctx := context.Background()

	first, err := d.MarkFirst(ctx, "job-1")
	if err != nil {
		t.Fatalf("mark#1: %v", err)
	}
	second, err := d.MarkFirst(ctx, "job-1")
	if err != nil {
		t.Fatalf("mark#2: %v", err)
	}
	if !first || second {
		t.Fatalf("expected first=true second=false, got %v %v", first, second)
	}
}
