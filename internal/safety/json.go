package safety

import (
	"encoding/json"
	"strings"

	apperrors "github.com/harunnryd/autosend/internal/errors"
)

// decodeModelJSON pulls the first JSON object out of a model reply, tolerating
// code fences and surrounding prose.
func decodeModelJSON(raw string, v any) error {
	cleaned := cleanModelJSON(raw)
	if cleaned == "" {
		return apperrors.InvalidModelOutput("empty model response")
	}

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	candidate := extractFirstBalancedJSON(cleaned, '{', '}')
	if candidate == "" {
		return apperrors.InvalidModelOutput("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return apperrors.InvalidModelOutput("malformed json: " + err.Error())
	}
	return nil
}

func cleanModelJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func extractFirstBalancedJSON(input string, open, close byte) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(input); i++ {
		ch := input[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return strings.TrimSpace(input[start : i+1])
			}
		}
	}
	return ""
}

// cleanModelText strips wrapping a model adds around plain-text output.
func cleanModelText(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.Contains(s[:nl], " ") {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
