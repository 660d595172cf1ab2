package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
)

var (
	fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	fencedArray  = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")
)

// ExtractJSON finds the JSON payload in completion text. Text that is
// already a JSON object or array is returned as is; otherwise it tries, in
// order: a fenced object, a fenced array, the first balanced bare object,
// the first balanced bare array.
func ExtractJSON(text string) (string, error) {
	if trimmed := strings.TrimSpace(text); trimmed != "" && (trimmed[0] == '{' || trimmed[0] == '[') && sonic.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	if m := fencedObject.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}
	if m := fencedArray.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}
	if s, ok := balanced(text, '{', '}'); ok {
		return s, nil
	}
	if s, ok := balanced(text, '[', ']'); ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: no JSON found in response", ErrMalformedResponse)
}

// DecodeJSON extracts and decodes the JSON payload into T
func DecodeJSON[T any](text string) (T, error) {
	var out T
	raw, err := ExtractJSON(text)
	if err != nil {
		return out, err
	}
	if err := sonic.UnmarshalString(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// balanced returns the first span starting at open whose brackets balance,
// ignoring brackets inside JSON strings
func balanced(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	for start >= 0 {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(text); i++ {
			c := text[i]
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
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}

		next := strings.IndexByte(text[start+1:], open)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}
