package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFence  = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
)

// ExtractJSON pulls the first JSON object or array out of a model response.
// Reasoning blocks and markdown fences around the payload are ignored.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkBlock.ReplaceAllString(response, "")

	candidates := make([]string, 0, 2)
	if m := codeFence.FindStringSubmatch(cleaned); len(m) == 2 {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, cleaned)

	for _, c := range candidates {
		if s, ok := firstJSONValue(c); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("no valid JSON found in response")
}

// firstJSONValue scans for the first '{' or '[' and returns the balanced value
// starting there, if it parses.
func firstJSONValue(s string) (string, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' && s[start] != '[' {
			continue
		}
		end, ok := matchClose(s, start)
		if !ok {
			continue
		}
		candidate := s[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	trimmed := strings.TrimSpace(s)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return trimmed, true
	}
	return "", false
}

func matchClose(s string, start int) (int, bool) {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			stack = append(stack, '}')
		case c == '[':
			stack = append(stack, ']')
		case c == '}' || c == ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, NewError(ErrorTypeResponse, "response is not JSON", true, err)
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, NewError(ErrorTypeResponse, "response JSON does not match expected shape", true, err)
	}
	return result, nil
}
