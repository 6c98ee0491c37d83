package custom_http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"secondmind/internal/providers"
)

func TestRenderBodyWithTemplate(t *testing.T) {
	c := New(Config{
		URL:          "https://example.test",
		APIKey:       "k-123",
		BodyTemplate: `{"model":"{{.Model}}","input":"{{.Prompt}}","key":"{{.APIKey}}"}`,
	})

	body, err := c.renderBody(providers.ChatRequest{
		Model: "m1",
		Contents: []providers.Content{
			{Role: "user", Parts: []providers.Part{{Text: "hi"}}},
			{Role: "model", Parts: []providers.Part{{Text: "hello"}}},
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["model"] != "m1" || payload["key"] != "k-123" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload["input"] != "user: hi\nassistant: hello" {
		t.Fatalf("transcript = %q", payload["input"])
	}
}

func TestChatExtractsCommonTextFields(t *testing.T) {
	for _, body := range []string{
		`{"text":"answer"}`,
		`{"response":"answer"}`,
		`{"choices":[{"message":{"content":"answer"}}]}`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			w.Write([]byte(body))
		}))

		c := New(Config{URL: srv.URL, HTTPClient: srv.Client()})
		resp, err := c.Chat(context.Background(), providers.ChatRequest{
			Model:    "m",
			Contents: []providers.Content{{Role: "user", Parts: []providers.Part{{Text: "hi"}}}},
		})
		srv.Close()
		if err != nil {
			t.Fatalf("chat for %s: %v", body, err)
		}
		if resp.Text != "answer" {
			t.Fatalf("text = %q for body %s", resp.Text, body)
		}
	}
}

func TestChatNoTextFieldIsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"done"}`))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, HTTPClient: srv.Client()})
	_, err := c.Chat(context.Background(), providers.ChatRequest{
		Model:    "m",
		Contents: []providers.Content{{Role: "user", Parts: []providers.Part{{Text: "hi"}}}},
	})
	if providers.Classify(err) != providers.KindEmptyResponse {
		t.Fatalf("expected empty response classification, got %v", err)
	}
}
