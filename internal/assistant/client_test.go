package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"secondmind/internal/chat"
	"secondmind/internal/knowledge"
	"secondmind/internal/providers"
)

func TestSendPostsHistoryAndReturnsText(t *testing.T) {
	var got proxyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"text": "the reply", "usedModel": "gemini-2.0-flash", "usedProvider": "gemini",
		})
	}))
	defer srv.Close()

	session := chat.NewSession("general")
	session.Messages = []chat.Message{
		{ID: "1", Role: chat.RoleUser, Text: "earlier question"},
		{ID: "2", Role: chat.RoleModel, Text: "thinking...", IsThinking: true},
		{ID: "3", Role: chat.RoleModel, Text: "earlier answer"},
	}

	c := NewClient(srv.URL, srv.Client(), zerolog.Nop())
	reply := c.Send(context.Background(), &session, "new question", nil)
	if reply != "the reply" {
		t.Fatalf("reply = %q", reply)
	}

	if len(got.Contents) != 3 {
		t.Fatalf("expected 3 contents (thinking bubble dropped), got %d", len(got.Contents))
	}
	last := got.Contents[len(got.Contents)-1]
	if last.Role != chat.RoleUser || providers.FlattenText(last) != "new question" {
		t.Fatalf("last content = %+v", last)
	}
}

func TestSendEmptyKnowledgeBaseUsesMarker(t *testing.T) {
	var instruction string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req proxyRequest
		json.NewDecoder(r.Body).Decode(&req)
		instruction = req.SystemInstruction
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	session := chat.NewSession("skeptic")
	c := NewClient(srv.URL, srv.Client(), zerolog.Nop())
	c.Send(context.Background(), &session, "hi", nil)

	if !strings.Contains(instruction, EmptyKnowledgeMarker) {
		t.Fatalf("instruction missing empty marker: %q", instruction)
	}
	if !strings.Contains(instruction, PersonaSkeptic.Directive()) {
		t.Fatal("instruction missing persona directive")
	}
}

func TestSendKnowledgeBlocksRendered(t *testing.T) {
	var instruction string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req proxyRequest
		json.NewDecoder(r.Body).Decode(&req)
		instruction = req.SystemInstruction
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	session := chat.NewSession("general")
	kb := []knowledge.Item{{ID: "1", Title: "Pricing", Type: knowledge.TypeStrategy, Content: "raise it"}}

	c := NewClient(srv.URL, srv.Client(), zerolog.Nop())
	c.Send(context.Background(), &session, "hi", kb)

	for _, want := range []string{"[Type: strategy]", "[Title: Pricing]", "[Content]:", "raise it"} {
		if !strings.Contains(instruction, want) {
			t.Fatalf("instruction missing %q: %q", want, instruction)
		}
	}
	if strings.Contains(instruction, EmptyKnowledgeMarker) {
		t.Fatal("empty marker present despite items")
	}
}

func TestSendProxyErrorBecomesApology(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "All AI providers failed", "details": "rate limited",
		})
	}))
	defer srv.Close()

	session := chat.NewSession("general")
	c := NewClient(srv.URL, srv.Client(), zerolog.Nop())
	reply := c.Send(context.Background(), &session, "hi", nil)

	if !strings.Contains(reply, "All AI providers failed") || !strings.Contains(reply, "rate limited") {
		t.Fatalf("apology should embed the failure reason, got %q", reply)
	}
}

func TestSendBlocksDoubleSubmit(t *testing.T) {
	session := chat.NewSession("general")
	c := NewClient("http://127.0.0.1:0", http.DefaultClient, zerolog.Nop())
	c.pending.Store(true)
	if reply := c.Send(context.Background(), &session, "hi", nil); reply != BusyReply {
		t.Fatalf("expected busy reply, got %q", reply)
	}
}
