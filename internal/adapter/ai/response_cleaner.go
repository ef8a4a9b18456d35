// Package ai implements the multi-provider completion client and the
// task-specific helpers built on it.
package ai

import (
	"encoding/json"
	"strings"
)

// CleanJSON strips markdown code fences and surrounding prose from a model
// response so the remainder parses as JSON. Models frequently wrap JSON in
// ```json fences or lead with a sentence.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "JSON")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}

	// Fall back to the outermost brace/bracket pair when prose surrounds
	// the payload.
	if !json.Valid([]byte(s)) {
		if trimmed, ok := outermost(s, '{', '}'); ok {
			s = trimmed
		} else if trimmed, ok := outermost(s, '[', ']'); ok {
			s = trimmed
		}
	}
	return strings.TrimSpace(s)
}

func outermost(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// ParseJSON cleans raw and unmarshals it into out. A nil error means out is
// populated; anything else means the response is unusable.
func ParseJSON(raw string, out any) error {
	return json.Unmarshal([]byte(CleanJSON(raw)), out)
}
