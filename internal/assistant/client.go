package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"secondmind/internal/chat"
	"secondmind/internal/knowledge"
	"secondmind/internal/providers"
)

const (
	// BusyReply is returned while a previous send is still in flight.
	BusyReply = "One moment, I am still working on your previous message."

	emptyReply = "Sorry, I could not come up with a reply. Please try again."
)

// Client is the chat-facing side of the proxy: it assembles the provider
// request from a session and the knowledge base, posts it to the chat
// endpoint and always hands back a displayable string. Errors are folded
// into an apologetic reply rather than surfaced to the conversation.
type Client struct {
	endpoint string
	http     *http.Client
	logger   zerolog.Logger

	// pending blocks double-submits: one in-flight exchange at a time.
	pending atomic.Bool
}

func NewClient(endpoint string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: httpClient, logger: logger}
}

type proxyRequest struct {
	Contents          []providers.Content `json:"contents"`
	SystemInstruction string              `json:"systemInstruction,omitempty"`
}

type proxyResponse struct {
	Text         string `json:"text"`
	UsedModel    string `json:"usedModel"`
	UsedProvider string `json:"usedProvider"`
	Error        string `json:"error"`
	Details      string `json:"details"`
}

// Send appends the user's message to the session history and asks the proxy
// for a reply. The returned string is always safe to show in the chat.
func (c *Client) Send(ctx context.Context, session *chat.Session, message string, kb []knowledge.Item) string {
	if !c.pending.CompareAndSwap(false, true) {
		return BusyReply
	}
	defer c.pending.Store(false)

	contents := make([]providers.Content, 0, len(session.Messages)+1)
	for _, m := range session.History() {
		contents = append(contents, providers.Content{
			Role:  m.Role,
			Parts: []providers.Part{{Text: m.Text}},
		})
	}
	contents = append(contents, providers.Content{
		Role:  chat.RoleUser,
		Parts: []providers.Part{{Text: message}},
	})

	body, err := json.Marshal(proxyRequest{
		Contents:          contents,
		SystemInstruction: BuildSystemInstruction(kb, Persona(session.Persona)),
	})
	if err != nil {
		return apologize(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return apologize(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("chat proxy unreachable")
		return apologize(err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apologize(err.Error())
	}

	var out proxyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return apologize(fmt.Sprintf("unexpected response (%d)", resp.StatusCode))
	}

	if resp.StatusCode != http.StatusOK || out.Error != "" {
		reason := out.Error
		if out.Details != "" {
			reason = reason + ": " + out.Details
		}
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("reason", reason).Msg("chat proxy returned an error")
		return apologize(reason)
	}

	if strings.TrimSpace(out.Text) == "" {
		return emptyReply
	}
	return out.Text
}

func apologize(reason string) string {
	return fmt.Sprintf("Sorry, something went wrong: %s", reason)
}
