package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"secondmind/internal/fallback"
	"secondmind/internal/providers"
)

const providerFailedTip = "Check provider quotas and keys, or add more candidates to AI_CANDIDATES."

type chatRequest struct {
	Contents          []providers.Content `json:"contents"`
	SystemInstruction string              `json:"systemInstruction"`
}

type chatResponse struct {
	Text         string `json:"text"`
	UsedModel    string `json:"usedModel"`
	UsedProvider string `json:"usedProvider"`
}

// handleChat is the proxy: validate, run the fallback chain, relay the first
// usable answer. Validation failures never reach a provider.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.metrics.ChatRequests.Inc()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !hasText(req.Contents) {
		respondError(w, http.StatusBadRequest, "contents is required")
		return
	}
	if !s.ai.Configured() {
		respondErrorDetails(w, http.StatusInternalServerError,
			"AI provider is not configured",
			"no API key found for any candidate provider",
			"Set GEMINI_API_KEY in the server environment.")
		return
	}

	result, err := s.runner.Run(r.Context(), providers.ChatRequest{
		SystemInstruction: req.SystemInstruction,
		Contents:          req.Contents,
		MaxTokens:         s.ai.MaxTokens,
		Temperature:       s.ai.Temperature,
	})
	if err != nil {
		var failure *fallback.Failure
		if errors.As(err, &failure) {
			respondErrorDetails(w, http.StatusInternalServerError,
				"All AI providers failed",
				summarizeAttempts(failure.Attempts),
				providerFailedTip)
			return
		}
		if errors.Is(err, fallback.ErrNoCandidates) {
			respondErrorDetails(w, http.StatusInternalServerError,
				"AI provider is not configured",
				err.Error(),
				"Set AI_CANDIDATES in the server environment.")
			return
		}
		respondErrorDetails(w, http.StatusInternalServerError, "chat failed", err.Error(), "")
		return
	}

	respondJSON(w, http.StatusOK, chatResponse{
		Text:         result.Text,
		UsedModel:    result.Model,
		UsedProvider: result.Provider,
	})
}

// handleChatDiag reports proxy readiness without leaking credentials; with
// probe=1 it runs a one-word request through the real fallback chain.
func (s *Server) handleChatDiag(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("diag") == "" {
		respondError(w, http.StatusMethodNotAllowed, "use POST for chat, GET /api/chat?diag=1 for diagnostics")
		return
	}

	body := map[string]any{
		"ok":         true,
		"configured": s.ai.Configured(),
		"keyPrefix":  s.ai.KeyPrefix(),
		"candidates": s.runner.Candidates(),
	}

	if r.URL.Query().Get("probe") == "1" && s.ai.Configured() {
		result, err := s.runner.Run(r.Context(), providers.ChatRequest{
			Contents: []providers.Content{
				{Role: "user", Parts: []providers.Part{{Text: "ping"}}},
			},
			MaxTokens: 8,
		})
		if err != nil {
			body["probe"] = map[string]any{"ok": false, "error": err.Error()}
		} else {
			body["probe"] = map[string]any{"ok": true, "usedProvider": result.Provider, "usedModel": result.Model}
		}
	}

	respondJSON(w, http.StatusOK, body)
}

func hasText(contents []providers.Content) bool {
	for _, c := range contents {
		if strings.TrimSpace(providers.FlattenText(c)) != "" {
			return true
		}
	}
	return false
}

func summarizeAttempts(attempts []fallback.Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, fmt.Sprintf("%s/%s: %s", a.Provider, a.Model, a.Kind))
	}
	return strings.Join(parts, "; ")
}
