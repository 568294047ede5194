package drafts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseImport turns pasted input into drafts. JSON objects and arrays are
// read with the key spellings generators commonly emit, optionally wrapped
// in a markdown code fence. Anything else becomes a single draft.
func ParseImport(raw string) []Draft {
	input := strings.TrimSpace(raw)
	if input == "" {
		return nil
	}
	if items, err := parseJSON(stripFence(input)); err == nil {
		return items
	}
	return []Draft{{Text: input}}
}

func stripFence(s string) string {
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

type importItem struct {
	Text          string `json:"text"`
	Body          string `json:"body"`
	Content       string `json:"content"`
	ScheduledTime string `json:"scheduledTime"`
	ScheduledAt   string `json:"scheduled_at"`
	Start         string `json:"start"`
	Category      string `json:"category"`
}

func (it importItem) draft() Draft {
	return Draft{
		Text:          firstNonEmpty(it.Text, it.Body, it.Content),
		ScheduledTime: firstNonEmpty(it.ScheduledTime, it.ScheduledAt, it.Start),
		Category:      it.Category,
	}
}

func parseJSON(s string) ([]Draft, error) {
	var items []importItem
	switch {
	case strings.HasPrefix(s, "["):
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, err
		}
	case strings.HasPrefix(s, "{"):
		var one importItem
		if err := json.Unmarshal([]byte(s), &one); err != nil {
			return nil, err
		}
		items = []importItem{one}
	default:
		return nil, fmt.Errorf("not json")
	}

	out := make([]Draft, 0, len(items))
	for _, it := range items {
		if d := it.draft(); d.Text != "" {
			out = append(out, d)
		}
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
