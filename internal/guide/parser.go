package guide

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNotAGuide is returned when a file carries no guide payload.
var ErrNotAGuide = errors.New("not a valid howl guide")

// Parser deserializes a rendered guide back into structured data.
type Parser interface {
	Parse(data []byte) (*Guide, error)
}

// JSONParser parses a JSON-encoded Guide.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*Guide, error) {
	var g Guide
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse JSON guide: %w", err)
	}
	if g.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrNotAGuide, g.Version)
	}
	return &g, nil
}

// MarkdownParser extracts the embedded payload written by MarkdownRenderer.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte) (*Guide, error) {
	content := string(data)

	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("%w: missing version sentinel", ErrNotAGuide)
	}
	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("%w: missing data payload", ErrNotAGuide)
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], dataSuffix)
	if end == -1 {
		return nil, fmt.Errorf("%w: malformed data payload", ErrNotAGuide)
	}

	raw, err := base64.StdEncoding.DecodeString(content[start : start+end])
	if err != nil {
		return nil, fmt.Errorf("%w: corrupted base64 payload: %w", ErrNotAGuide, err)
	}
	var g Guide
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("%w: failed to parse embedded JSON: %w", ErrNotAGuide, err)
	}
	return &g, nil
}

// ParserFor picks a parser from a file's extension. Anything that is not
// .json is treated as Markdown.
func ParserFor(path string) Parser {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return &JSONParser{}
	}
	return &MarkdownParser{}
}
