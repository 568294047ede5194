package cdpcontrol

import (
	"encoding/json"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
)

func newError(code, msg string, cause error) error {
	return apperr.New(code, msg, cause)
}

// TabInfo describes a page target of the human-operated browser.
type TabInfo struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Active bool   `json:"active"`
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}
