package knowledge

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// The export format is one labelled block per item:
//
//	### [type] title
//	ID: <id>
//	Created: <RFC3339>
//
//	#### Content:
//	<free text>
//
//	---
//
// Import re-anchors blocks on the "### [" heading rather than the "---"
// separator, so content containing a bare "---" line survives a round trip.

var headingRe = regexp.MustCompile(`^### \[(.*?)\] (.*)$`)

// Export renders the knowledge base as a markdown document.
func Export(items []Item, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("# Knowledge Base Export\n")
	sb.WriteString("Generated: " + now.UTC().Format(time.RFC3339) + "\n\n")

	for _, item := range items {
		sb.WriteString(fmt.Sprintf("### [%s] %s\n", item.Type, item.Title))
		sb.WriteString("ID: " + item.ID + "\n")
		sb.WriteString("Created: " + item.CreatedAt.UTC().Format(time.RFC3339) + "\n\n")
		sb.WriteString("#### Content:\n")
		sb.WriteString(item.Content)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// Import parses an exported document back into items. Blocks without an ID
// label are skipped; unknown types fall back to note.
func Import(data []byte) ([]Item, error) {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	var items []Item
	var block []string
	inBlock := false

	flush := func() {
		if len(block) == 0 {
			return
		}
		if item, ok := parseBlock(block); ok {
			items = append(items, item)
		}
		block = nil
	}

	for _, line := range lines {
		if headingRe.MatchString(line) {
			flush()
			inBlock = true
		}
		if inBlock {
			block = append(block, line)
		}
	}
	flush()

	if len(items) == 0 {
		return nil, fmt.Errorf("no knowledge blocks found in import")
	}
	return items, nil
}

func parseBlock(lines []string) (Item, bool) {
	m := headingRe.FindStringSubmatch(lines[0])
	if m == nil {
		return Item{}, false
	}

	item := Item{
		Type:  Type(strings.TrimSpace(m[1])),
		Title: strings.TrimSpace(m[2]),
	}
	if !item.Type.Valid() {
		item.Type = TypeNote
	}
	if item.Title == "" {
		item.Title = "Untitled"
	}

	contentStart := -1
	for i, line := range lines[1:] {
		switch {
		case strings.HasPrefix(line, "ID: "):
			item.ID = strings.TrimSpace(strings.TrimPrefix(line, "ID: "))
		case strings.HasPrefix(line, "Created: "):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "Created: "))
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				item.CreatedAt = ts
			}
		case strings.TrimSpace(line) == "#### Content:":
			contentStart = i + 2
		}
		if contentStart > 0 {
			break
		}
	}

	if item.ID == "" {
		return Item{}, false
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if contentStart > 0 && contentStart < len(lines) {
		item.Content = trimBlockTail(lines[contentStart:])
	}
	return item, true
}

// trimBlockTail drops the trailing separator and surrounding blank lines
// while keeping any "---" that belongs to the content itself.
func trimBlockTail(lines []string) string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if end > 0 && strings.TrimSpace(lines[end-1]) == "---" {
		end--
	}
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}
