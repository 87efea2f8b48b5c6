package gemini

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// Kind classifies what an Intent asks the dispatcher to do.
type Kind string

const (
	// KindReply posts a single comment on the thread.
	KindReply Kind = "reply"
	// KindCodeChange creates a branch, commits files, and opens a pull
	// request.
	KindCodeChange Kind = "code_change"
)

// Intent is the dispatchable outcome of one generation pass.
type Intent struct {
	Kind        Kind              `json:"kind"`
	Reply       string            `json:"reply,omitempty"`
	Explanation string            `json:"explanation,omitempty"`
	Files       map[string]string `json:"files,omitempty"`
}

// NewReply wraps a conversational answer as an Intent.
func NewReply(text string) Intent {
	return Intent{Kind: KindReply, Reply: text}
}

type codeChangePayload struct {
	Explanation string            `json:"explanation"`
	Files       map[string]string `json:"files"`
}

// ParseCodeChange extracts the structured change set from a raw model
// response. The model is told to answer with a fenced JSON object but
// responses arrive with prose around the fence, missing fences, or
// truncated JSON, so parsing degrades through repair before giving up.
func ParseCodeChange(raw string) (Intent, error) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return Intent{}, fmt.Errorf("no JSON object found in response (%d chars)", len(raw))
	}

	var payload codeChangePayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		repaired, repairErr := repairJSON(jsonStr)
		if repairErr != nil {
			return Intent{}, fmt.Errorf("response is not valid JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			return Intent{}, fmt.Errorf("response is not valid JSON after repair: %w", err)
		}
		log.Debug().
			Int("original_chars", len(jsonStr)).
			Int("repaired_chars", len(repaired)).
			Msg("Repaired malformed JSON response")
	}

	if len(payload.Files) == 0 {
		return Intent{}, fmt.Errorf("response contains no files to change")
	}

	files := make(map[string]string, len(payload.Files))
	for p, content := range payload.Files {
		clean, err := cleanRepoPath(p)
		if err != nil {
			return Intent{}, err
		}
		files[clean] = content
	}

	explanation := strings.TrimSpace(payload.Explanation)
	if explanation == "" {
		explanation = "Automated change requested in conversation"
	}

	return Intent{
		Kind:        KindCodeChange,
		Explanation: explanation,
		Files:       files,
	}, nil
}

// cleanRepoPath normalizes a model-provided file path and rejects
// anything that escapes the repository root.
func cleanRepoPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return "", fmt.Errorf("empty file path in response")
	}

	clean := path.Clean(p)
	if strings.HasPrefix(clean, "/") || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("unsafe file path in response: %q", p)
	}

	return clean, nil
}

// extractJSON pulls the JSON object out of a model response. It prefers
// a ```json fence, then any fence, then the outermost brace pair.
func extractJSON(response string) string {
	for _, fence := range []string{"```json", "```"} {
		idx := strings.Index(response, fence)
		if idx == -1 {
			continue
		}
		rest := response[idx+len(fence):]
		end := strings.Index(rest, "```")
		if end == -1 {
			// Truncated output lost the closing fence.
			end = len(rest)
		}
		candidate := strings.TrimSpace(rest[:end])
		if strings.HasPrefix(candidate, "{") {
			return candidate
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(response[start : end+1])
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// repairJSON attempts to make malformed JSON parseable. Cheap local
// fixes run first, then the jsonrepair library as the heavyweight
// fallback.
func repairJSON(raw string) (string, error) {
	repaired := trailingCommaRe.ReplaceAllString(raw, "$1")
	repaired = closeOpenStructures(repaired)

	if json.Valid([]byte(repaired)) {
		return repaired, nil
	}

	libRepaired, err := jsonrepair.JSONRepair(repaired)
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	if !json.Valid([]byte(libRepaired)) {
		return "", fmt.Errorf("json still invalid after repair")
	}
	return libRepaired, nil
}

// closeOpenStructures appends the closing braces and brackets a
// truncated response is missing, last opened first closed. String
// content is skipped so braces inside values do not count.
func closeOpenStructures(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
