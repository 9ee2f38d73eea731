package llm

import (
	"encoding/json"
	"strings"
)

// The generation contract gives no structured-output guarantee: models wrap
// JSON in prose, markdown fences, or emit none at all. DecodeObject and
// DecodeArray scan the text for the first balanced JSON value of the wanted
// shape and unmarshal it; on any failure the caller's fallback value is left
// untouched and false is returned.

// DecodeObject extracts the first {...} block from text into dst.
func DecodeObject(text string, dst any) bool {
	return decode(text, '{', '}', dst)
}

// DecodeArray extracts the first [...] block from text into dst.
func DecodeArray(text string, dst any) bool {
	return decode(text, '[', ']', dst)
}

func decode(text string, open, closer byte, dst any) bool {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return false
	}
	// Walk forward tracking nesting depth, skipping string literals, so that
	// braces inside generated prose don't truncate the candidate.
	depth := 0
	inString := false
	escaped := false
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
		case closer:
			depth--
			if depth == 0 {
				return json.Unmarshal([]byte(text[start:i+1]), dst) == nil
			}
		}
	}
	return false
}
