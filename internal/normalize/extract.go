// Package normalize recovers the JSON payload from a model reply that may be
// wrapped in reasoning blocks, markdown fences or prose, or cut off mid-object.
package normalize

import (
	"errors"
	"strings"
)

// ErrNoObject is returned when the reply contains no '{' at all.
var ErrNoObject = errors.New("no JSON object in reply")

const thinkClose = "</think>"

// Extract returns the first JSON object in raw.
//
// Everything up to the last </think> is discarded and markdown fence markers
// are removed. The object is then located by a brace scan that ignores braces
// inside strings. An object that never closes is repaired by appending the
// closing quote, brackets and braces it is missing.
func Extract(raw string) (string, error) {
	s := raw
	if i := lastIndexFold(s, thinkClose); i >= 0 {
		s = s[i+len(thinkClose):]
	}
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoObject
	}
	s = s[start:]

	if end, ok := matchObject(s); ok {
		return s[:end+1], nil
	}
	return repair(s), nil
}

// lastIndexFold is a case-insensitive strings.LastIndex whose result is an
// offset into s. Lowercasing s first would shift offsets, since some runes
// change byte length when folded.
func lastIndexFold(s, sub string) int {
	for i := len(s) - len(sub); i >= 0; i-- {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

// matchObject returns the index of the '}' closing the object that opens at
// s[0].
func matchObject(s string) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
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
				return i, true
			}
		}
	}
	return 0, false
}

// repair closes a truncated object. It tracks open brackets on a stack so the
// closers come out in the right order, e.g. {"a":[{"b":"x  ->  {"a":[{"b":"x"}]}.
func repair(s string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	if inString {
		if escaped {
			// A lone trailing backslash would escape our closing quote.
			s = s[:len(s)-1]
		}
		b.WriteString(s)
		b.WriteByte('"')
	} else {
		s = strings.TrimRight(s, " \t\r\n")
		s = strings.TrimSuffix(s, ",")
		b.WriteString(s)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
