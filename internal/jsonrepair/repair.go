// Package jsonrepair recovers a parseable JSON value from model output that
// may be wrapped in prose or markdown fences, or truncated mid-token.
//
// Three strategies are tried in order, each only if the previous one fails:
// fence stripping with bracket trimming, token-balancing repair, and a
// truncation fallback that discards the last incomplete element. The package
// is pure: it never logs, and it never invents content that was not present
// in the input.
package jsonrepair

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// closerSuffixes are appended to truncation-fallback candidates, shortest
// first. They cover the common nesting shapes of object/array output.
var closerSuffixes = []string{"", "}", "]", "]}", "}}", "]}}"}

// maxCutPoints bounds the backward scan in the truncation fallback.
const maxCutPoints = 5

// Repair parses text that is supposed to contain a JSON value, repairing
// fence wrappers, unbalanced brackets, and truncation. It fails only when no
// strategy yields a structurally valid parse.
func Repair(text string) (any, error) {
	trimmed := trim(text)

	if v, err := parse(trimmed); err == nil {
		return v, nil
	}

	if v, err := parse(balance(trimmed)); err == nil {
		return v, nil
	}

	if v, ok := truncationFallback(trimmed); ok {
		return v, nil
	}

	return nil, eris.Errorf("jsonrepair: no strategy produced a valid parse (input %d bytes, trimmed %d bytes)",
		len(text), len(trimmed))
}

func parse(text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, eris.New("empty input")
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// trim strips markdown code fences and discards everything outside the first
// opening bracket and the last matching closing bracket.
func trim(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	start := objStart
	closer := "}"
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start = arrStart
		closer = "]"
	}
	if start >= 0 {
		if end := strings.LastIndex(text, closer); end > start {
			text = text[start : end+1]
		} else {
			// Truncated before any closer: keep the tail from the opener.
			text = text[start:]
		}
	}

	return strings.TrimSpace(text)
}

// balance closes whatever the scan leaves open: an unterminated string, a
// trailing comma or colon, and unclosed brackets in LIFO order. The scan
// tracks backslash escapes so escaped quotes do not toggle string state.
func balance(text string) string {
	if text == "" {
		return text
	}

	var stack []byte
	inString := false
	escape := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		text += `"`
	}

	text = strings.TrimRight(text, " \t\n\r")
	if strings.HasSuffix(text, ",") {
		text = strings.TrimRight(text, ",")
	} else if strings.HasSuffix(text, ":") {
		text += "null"
	}

	for i := len(stack) - 1; i >= 0; i-- {
		text = strings.TrimRight(text, " \t\n\r,")
		text += string(stack[i])
	}

	return text
}

// truncationFallback scans backward from the end collecting candidate cut
// points at closing brackets, then tries each candidate (longest first) with
// each closer suffix. The effect is dropping the trailing incomplete element
// or property rather than guessing its content.
func truncationFallback(text string) (any, bool) {
	var cuts []int
	for i := len(text) - 1; i >= 0 && len(cuts) < maxCutPoints; i-- {
		if text[i] == '}' || text[i] == ']' {
			cuts = append(cuts, i+1)
		}
	}

	for _, cut := range cuts {
		candidate := strings.TrimRight(text[:cut], " \t\n\r,")
		for _, suffix := range closerSuffixes {
			if v, err := parse(candidate + suffix); err == nil {
				return v, true
			}
		}
	}

	return nil, false
}
