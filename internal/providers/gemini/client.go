package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"secondmind/internal/providers"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

type Config struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 400 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return providers.ChatResponse{}, providers.NewError(providers.KindAuth, req.Model, fmt.Errorf("gemini api key is empty"))
	}
	body, err := buildPayload(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	endpointURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/"), req.Model)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		text, err := c.callOnce(ctx, endpointURL, body, req.Model)
		if err == nil {
			return providers.ChatResponse{Text: text, Model: req.Model}, nil
		}
		lastErr = err
		if providers.Classify(err) != providers.KindTransient || attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return providers.ChatResponse{}, ctx.Err()
		case <-time.After(c.cfg.BackoffBase * (1 << attempt)):
		}
	}

	return providers.ChatResponse{}, lastErr
}

func buildPayload(req providers.ChatRequest) ([]byte, error) {
	contents := make([]map[string]any, 0, len(req.Contents))
	for _, c := range req.Contents {
		role := c.Role
		// Gemini speaks user/model; accept assistant from upstream history.
		if role == "assistant" {
			role = "model"
		}
		parts := make([]map[string]string, 0, len(c.Parts))
		for _, p := range c.Parts {
			parts = append(parts, map[string]string{"text": p.Text})
		}
		contents = append(contents, map[string]any{"role": role, "parts": parts})
	}

	payload := map[string]any{"contents": contents}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": req.SystemInstruction}},
		}
	}
	genCfg := map[string]any{}
	if req.MaxTokens > 0 {
		genCfg["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		genCfg["temperature"] = req.Temperature
	}
	if len(genCfg) > 0 {
		payload["generationConfig"] = genCfg
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini payload: %w", err)
	}
	return b, nil
}

func (c *Client) callOnce(ctx context.Context, endpointURL string, body []byte, model string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return "", providers.NewError(providers.KindTransient, model, fmt.Errorf("gemini request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", providers.NewError(providers.KindTransient, model, fmt.Errorf("read gemini response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", providers.NewError(classifyError(resp.StatusCode, respBody), model, statusError(resp.StatusCode, respBody))
	}

	text, err := parseGenerateContent(respBody)
	if err != nil {
		return "", providers.NewError(providers.KindEmptyResponse, model, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", providers.NewError(providers.KindEmptyResponse, model, fmt.Errorf("gemini produced no text"))
	}
	return text, nil
}

// classifyError prefers the google rpc status string over the raw HTTP code
// because gemini reports invalid keys with 400 INVALID_ARGUMENT.
func classifyError(status int, body []byte) providers.Kind {
	var resp struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		switch resp.Error.Status {
		case "UNAUTHENTICATED", "PERMISSION_DENIED":
			return providers.KindAuth
		case "RESOURCE_EXHAUSTED":
			return providers.KindRateLimited
		case "NOT_FOUND":
			return providers.KindModelUnavailable
		}
		if strings.Contains(resp.Error.Message, "API key") {
			return providers.KindAuth
		}
	}
	return providers.ClassifyStatus(status)
}

func statusError(status int, body []byte) error {
	var resp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && strings.TrimSpace(resp.Error.Message) != "" {
		return fmt.Errorf("gemini status %d: %s", status, resp.Error.Message)
	}
	return fmt.Errorf("gemini status %d", status)
}

func parseGenerateContent(body []byte) (string, error) {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty candidates in gemini response")
	}
	parts := resp.Candidates[0].Content.Parts
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, ""), nil
}
