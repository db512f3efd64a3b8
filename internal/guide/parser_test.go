package guide

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestMarkdownParserRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"plain markdown":   "# Some Document\n\nJust a regular file.\n",
		"corrupted base64": versionSentinel + "\n" + dataPrefix + "!!!not-base64!!!" + dataSuffix + "\n",
		"missing payload":  versionSentinel + "\n\n# Guide\n",
		"unterminated":     versionSentinel + "\n" + dataPrefix + "abcd\n",
		"invalid json": versionSentinel + "\n" + dataPrefix +
			base64.StdEncoding.EncodeToString([]byte("{not json")) + dataSuffix + "\n",
	}
	p := &MarkdownParser{}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Parse([]byte(input))
			if !errors.Is(err, ErrNotAGuide) {
				t.Fatalf("Parse() error = %v, want ErrNotAGuide", err)
			}
		})
	}
}

func TestJSONParserRejectsInvalidInput(t *testing.T) {
	p := &JSONParser{}
	if _, err := p.Parse([]byte(`{"title": "x",`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if _, err := p.Parse([]byte(`{"version": 7, "title": "x"}`)); !errors.Is(err, ErrNotAGuide) {
		t.Fatalf("expected ErrNotAGuide for wrong version, got %v", err)
	}
}

func TestParserFor(t *testing.T) {
	if _, ok := ParserFor("guide.JSON").(*JSONParser); !ok {
		t.Error("ParserFor(.JSON) should return a JSONParser")
	}
	if _, ok := ParserFor("guide.md").(*MarkdownParser); !ok {
		t.Error("ParserFor(.md) should return a MarkdownParser")
	}
}
