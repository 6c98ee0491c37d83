package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"secondmind/internal/chat"
	"secondmind/internal/knowledge"
)

var ErrNotFound = errors.New("not found")

func (s *Store) GetBrain(ctx context.Context, id string) (Brain, error) {
	q := s.sql.Select("id", "password", "created_at").From("brains").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Brain{}, fmt.Errorf("build get brain query: %w", err)
	}

	var b Brain
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&b.ID, &b.Password, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Brain{}, ErrNotFound
		}
		return Brain{}, fmt.Errorf("get brain: %w", err)
	}
	return b, nil
}

func (s *Store) CreateBrain(ctx context.Context, id, password string) error {
	q := s.sql.Insert("brains").
		Columns("id", "password", "created_at").
		Values(id, password, nowExpr(s.driver))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build create brain query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("create brain: %w", err)
	}
	return nil
}

func (s *Store) UpsertKnowledge(ctx context.Context, brainID string, item knowledge.Item) error {
	q := s.sql.Insert("knowledge_items").
		Columns("id", "brain_id", "title", "type", "content", "created_at").
		Values(item.ID, brainID, item.Title, string(item.Type), item.Content, item.CreatedAt).
		Suffix("ON CONFLICT(brain_id, id) DO UPDATE SET title=excluded.title, type=excluded.type, content=excluded.content")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build knowledge upsert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert knowledge: %w", err)
	}
	return nil
}

func (s *Store) ListKnowledge(ctx context.Context, brainID string) ([]knowledge.Item, error) {
	q := s.sql.Select("id", "title", "type", "content", "created_at").
		From("knowledge_items").
		Where(sq.Eq{"brain_id": brainID}).
		OrderBy("created_at DESC")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build knowledge list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()

	items := make([]knowledge.Item, 0)
	for rows.Next() {
		var item knowledge.Item
		var typ string
		if err := rows.Scan(&item.ID, &item.Title, &typ, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		item.Type = knowledge.Type(typ)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) DeleteKnowledge(ctx context.Context, brainID, id string) error {
	q := s.sql.Delete("knowledge_items").Where(sq.Eq{"brain_id": brainID, "id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build knowledge delete query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete knowledge: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpsertSession(ctx context.Context, brainID string, session chat.Session) error {
	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("marshal session messages: %w", err)
	}

	q := s.sql.Insert("chat_sessions").
		Columns("id", "brain_id", "title", "persona", "messages_json", "updated_at").
		Values(session.ID, brainID, session.Title, session.Persona, string(messages), session.UpdatedAt).
		Suffix("ON CONFLICT(brain_id, id) DO UPDATE SET title=excluded.title, persona=excluded.persona, messages_json=excluded.messages_json, updated_at=excluded.updated_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build session upsert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, brainID string) ([]chat.Session, error) {
	q := s.sql.Select("id", "title", "persona", "messages_json", "updated_at").
		From("chat_sessions").
		Where(sq.Eq{"brain_id": brainID}).
		OrderBy("updated_at DESC")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build session list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]chat.Session, 0)
	for rows.Next() {
		var sess chat.Session
		var messages string
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Persona, &messages, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(messages), &sess.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal session %s messages: %w", sess.ID, err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, brainID, id string) error {
	q := s.sql.Delete("chat_sessions").Where(sq.Eq{"brain_id": brainID, "id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build session delete query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}
