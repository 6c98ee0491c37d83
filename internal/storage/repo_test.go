package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"secondmind/internal/chat"
	"secondmind/internal/knowledge"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "test.db"), true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBrainCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetBrain(ctx, "main"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.CreateBrain(ctx, "main", "secret"); err != nil {
		t.Fatalf("create brain: %v", err)
	}
	b, err := s.GetBrain(ctx, "main")
	if err != nil {
		t.Fatalf("get brain: %v", err)
	}
	if b.ID != "main" || b.Password != "secret" {
		t.Fatalf("unexpected brain %+v", b)
	}
}

func TestKnowledgeUpsertListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := knowledge.Item{
		ID:        "k1",
		Title:     "Deep Work",
		Type:      knowledge.TypeBook,
		Content:   "focus",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := s.UpsertKnowledge(ctx, "main", item); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	item.Content = "focus harder"
	if err := s.UpsertKnowledge(ctx, "main", item); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	items, err := s.ListKnowledge(ctx, "main")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Content != "focus harder" {
		t.Fatalf("unexpected items %+v", items)
	}

	// Other brains see nothing.
	other, err := s.ListKnowledge(ctx, "other")
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("knowledge leaked across brains: %+v", other)
	}

	if err := s.DeleteKnowledge(ctx, "main", "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteKnowledge(ctx, "main", "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSessionUpsertListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := chat.Session{
		ID:      "s1",
		Title:   "Budget review",
		Persona: "investor",
		Messages: []chat.Message{
			{ID: "m1", Role: chat.RoleUser, Text: "hi", Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
	}
	if err := s.UpsertSession(ctx, "main", sess); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sessions, err := s.ListSessions(ctx, "main")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.Persona != "investor" || len(got.Messages) != 1 || got.Messages[0].Text != "hi" {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := s.DeleteSession(ctx, "main", "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteSession(ctx, "main", "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
