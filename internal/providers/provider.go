package providers

import "context"

type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type ChatRequest struct {
	Model             string
	SystemInstruction string
	Contents          []Content
	MaxTokens         int
	Temperature       float64
}

type ChatResponse struct {
	Text  string
	Model string
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// FlattenText joins the text parts of a content entry for providers that
// expect one flat string per message.
func FlattenText(c Content) string {
	switch len(c.Parts) {
	case 0:
		return ""
	case 1:
		return c.Parts[0].Text
	}
	out := c.Parts[0].Text
	for _, p := range c.Parts[1:] {
		out += "\n" + p.Text
	}
	return out
}
