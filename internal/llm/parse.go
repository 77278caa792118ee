package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Model responses frequently wrap JSON in code fences or prose. These
// pre-compiled patterns handle the common formatting quirks.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// ParseJSON parses a model response into T, trying progressively more
// aggressive cleanup: direct parse, code-fence stripping, trailing-comma
// removal, then extracting the outermost JSON object from mixed content.
func ParseJSON[T any](text string) (T, error) {
	var out T
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return out, fmt.Errorf("empty response")
	}

	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, nil
	}

	if m := codeFenceRegex.FindStringSubmatch(trimmed); m != nil {
		candidate := strings.TrimSpace(m[1])
		if err := json.Unmarshal([]byte(candidate), &out); err == nil {
			return out, nil
		}
		trimmed = candidate
	}

	cleaned := trailingCommaRegex.ReplaceAllString(trimmed, "$1")
	if err := json.Unmarshal([]byte(cleaned), &out); err == nil {
		return out, nil
	}

	if m := objectRegex.FindString(cleaned); m != "" {
		if err := json.Unmarshal([]byte(m), &out); err == nil {
			return out, nil
		}
	}

	preview := text
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return out, fmt.Errorf("failed to parse model response as JSON: %s", preview)
}
