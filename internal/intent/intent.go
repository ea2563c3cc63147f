// Package intent turns raw model output into a structured ActionSet.
package intent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DefaultReply is used when the model gives no reply text.
const DefaultReply = "Done! ✅"

// NewTask is a task the model asked to create.
type NewTask struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Deadline    string `json:"deadline"`
}

// TaskFields carries the fields of an update; empty strings mean unchanged.
type TaskFields struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
}

// Update renames or edits the task currently called OldName.
type Update struct {
	OldName string     `json:"old_name"`
	NewData TaskFields `json:"new_data"`
}

// ProfileUpdate is an optional change to the user's settings.
// Timezone is kept raw; the model emits numbers as well as strings.
type ProfileUpdate struct {
	Name     string          `json:"name,omitempty"`
	Timezone json.RawMessage `json:"timezone,omitempty"`
}

// ActionSet is the full set of mutations requested by one message.
type ActionSet struct {
	Added         []NewTask      `json:"added_tasks"`
	Deleted       []string       `json:"deleted_tasks"`
	Updated       []Update       `json:"updated_tasks"`
	ProfileUpdate *ProfileUpdate `json:"update_profile,omitempty"`
	Reply         string         `json:"reply"`
}

// HasMutations reports whether the set changes anything.
func (a ActionSet) HasMutations() bool {
	return len(a.Added) > 0 || len(a.Deleted) > 0 || len(a.Updated) > 0 || a.ProfileUpdate != nil
}

var objectSpan = regexp.MustCompile(`(?s)\{.*\}`)

// Parse extracts an ActionSet from raw model text. It never fails: text
// without a decodable object becomes a reply-only set carrying the text.
func Parse(raw string) ActionSet {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") {
		if set, ok := decode(trimmed); ok {
			return set
		}
	}
	if span := objectSpan.FindString(trimmed); span != "" {
		if set, ok := decode(span); ok {
			return set
		}
	}
	if span, ok := balancedObject(trimmed); ok {
		if set, ok := decode(span); ok {
			return set
		}
	}

	if trimmed == "" {
		return ActionSet{Reply: DefaultReply}
	}
	return ActionSet{Reply: raw}
}

func decode(s string) (ActionSet, bool) {
	var set ActionSet
	if err := json.Unmarshal([]byte(s), &set); err != nil {
		return ActionSet{}, false
	}
	set.Reply = strings.TrimSpace(set.Reply)
	return set, true
}

// balancedObject returns the first brace-balanced object, skipping braces
// inside string literals.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
