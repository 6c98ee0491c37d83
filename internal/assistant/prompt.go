package assistant

import (
	"fmt"
	"strings"

	"secondmind/internal/knowledge"
)

// EmptyKnowledgeMarker is inserted verbatim when the knowledge base holds no
// items, so the model does not hallucinate entries that were never stored.
const EmptyKnowledgeMarker = "Knowledge base is empty."

// BuildSystemInstruction folds the persona directive and every knowledge item
// into one system instruction. Items are rendered as delimited blocks so the
// model can quote them without mixing entries up.
func BuildSystemInstruction(items []knowledge.Item, persona Persona) string {
	var sb strings.Builder
	sb.WriteString(persona.Directive())
	sb.WriteString("\n\nThe user's knowledge base follows. Treat it as ground truth about the user.\n\n")

	if len(items) == 0 {
		sb.WriteString(EmptyKnowledgeMarker)
		return sb.String()
	}

	for _, item := range items {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("[Type: %s]\n", item.Type))
		sb.WriteString(fmt.Sprintf("[Title: %s]\n", item.Title))
		sb.WriteString("[Content]:\n")
		sb.WriteString(item.Content)
		sb.WriteString("\n---\n")
	}
	return sb.String()
}
