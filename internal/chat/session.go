// Package chat holds the session and message models shared by the HTTP
// layer, the sync pipeline and the storage repo.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleModel = "model"

	DefaultTitle = "New chat"

	titleRuneLimit = 30
)

type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// IsThinking marks a transient placeholder bubble; it is never sent to a
	// provider and never persisted.
	IsThinking bool `json:"isThinking,omitempty"`
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Persona   string    `json:"persona"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewSession(persona string) Session {
	return Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Persona:   persona,
		UpdatedAt: time.Now().UTC(),
	}
}

// DeriveTitle fills the title from the first user message while the session
// still carries the default one. Long messages are cut at 30 runes.
func (s *Session) DeriveTitle() {
	if s.Title != "" && s.Title != DefaultTitle {
		return
	}
	for _, m := range s.Messages {
		if m.Role != RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > titleRuneLimit {
			text = string(runes[:titleRuneLimit]) + "..."
		}
		s.Title = text
		return
	}
}

// History returns the messages worth sending to a provider, dropping
// placeholder bubbles and blank turns.
func (s *Session) History() []Message {
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.IsThinking || strings.TrimSpace(m.Text) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
