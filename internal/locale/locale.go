// Package locale declares the localized label variants used to find
// controls whose text depends on the UI language.
package locale

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Action names a logical control.
type Action string

const (
	Login        Action = "login"
	SubmitPost   Action = "submit_post"
	CreatePost   Action = "create_post"
	StartCompose Action = "start_compose"
	Schedule     Action = "schedule"
)

var requiredActions = []Action{Login, SubmitPost, CreatePost, StartCompose, Schedule}

//go:embed table.yaml
var defaultTable []byte

// Table maps actions to their label variants.
type Table struct {
	Actions map[Action][]string `yaml:"actions"`
}

// Default returns the embedded table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("locale: embedded table: %v", err))
	}
	return t
}

// LoadFile reads a table from path and merges it over the embedded default.
// An empty path returns the default table.
func LoadFile(path string) (*Table, error) {
	base := Default()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("locale table: %w", err)
	}
	override, err := parse(data)
	if err != nil {
		return nil, err
	}
	for action, labels := range override.Actions {
		if len(labels) > 0 {
			base.Actions[action] = labels
		}
	}
	return base, nil
}

// Parse decodes and validates a complete table.
func Parse(data []byte) (*Table, error) {
	t, err := parse(data)
	if err != nil {
		return nil, err
	}
	for _, action := range requiredActions {
		if len(t.Actions[action]) == 0 {
			return nil, fmt.Errorf("locale table: action %q has no labels", action)
		}
	}
	return t, nil
}

func parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("locale table: %w", err)
	}
	if t.Actions == nil {
		t.Actions = make(map[Action][]string)
	}
	for action, labels := range t.Actions {
		for i, l := range labels {
			if strings.TrimSpace(l) == "" {
				return nil, fmt.Errorf("locale table: %s[%d] is empty", action, i)
			}
		}
	}
	return &t, nil
}

// Variants returns a copy of the labels for action.
func (t *Table) Variants(action Action) []string {
	labels := t.Actions[action]
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}

// Match returns the action whose label is contained in text.
func (t *Table) Match(text string) (Action, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, action := range requiredActions {
		for _, l := range t.Actions[action] {
			if strings.Contains(text, l) {
				return action, true
			}
		}
	}
	return "", false
}
