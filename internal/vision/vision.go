// Package vision defines the image-to-item extraction collaborator. The
// model backend is external; the core only depends on the Analyzer
// interface and on turning the model's free-form reply into structured
// item fields. A reply with no usable data falls back to manual entry.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoExtraction means the reply contained no usable item data.
var ErrNoExtraction = errors.New("no structured item data in reply")

// ExtractedItem is the fixed field schema the model is prompted to return.
type ExtractedItem struct {
	Name     string         `json:"name"`
	Category string         `json:"category"`
	Quantity float64        `json:"quantity"`
	Unit     string         `json:"unit"`
	Details  map[string]any `json:"details,omitempty"`
}

// Analyzer accepts an image payload and returns structured item fields, or
// an error when nothing could be extracted.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, image []byte) (*ExtractedItem, error)
}

// ParseExtraction pulls the first embedded JSON object out of the model's
// free-form reply. Models wrap the object in prose or markdown fences, so
// we scan for balanced braces rather than trusting the whole reply to be
// JSON.
func ParseExtraction(reply string) (*ExtractedItem, error) {
	for start := strings.IndexByte(reply, '{'); start >= 0; {
		candidate, next := balancedObject(reply[start:])
		if candidate != "" {
			var item ExtractedItem
			if err := json.Unmarshal([]byte(candidate), &item); err == nil && strings.TrimSpace(item.Name) != "" {
				return &item, nil
			}
		}
		if next < 0 {
			break
		}
		offset := strings.IndexByte(reply[start+next:], '{')
		if offset < 0 {
			break
		}
		start += next + offset
	}
	return nil, ErrNoExtraction
}

// balancedObject returns the shortest balanced {...} prefix of s, tracking
// string literals and escapes so braces inside values don't confuse the
// scan. The second return is where to resume searching after a failure,
// or -1 when s is exhausted.
func balancedObject(s string) (string, int) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// literal content
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1], i + 1
			}
		}
	}
	return "", -1
}
