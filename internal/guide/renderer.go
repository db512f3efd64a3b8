package guide

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
)

const (
	versionSentinel = "<!-- howl-guide-version: 1 -->"
	dataPrefix      = "<!-- howl-data: "
	dataSuffix      = " -->"
)

// Renderer serializes a Guide to bytes.
type Renderer interface {
	Render(g *Guide) ([]byte, error)
}

// JSONRenderer renders a Guide as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(g *Guide) ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// MarkdownRenderer renders a Guide as readable Markdown with an embedded
// base64 JSON payload so the file can be parsed back losslessly.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(g *Guide) ([]byte, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal guide: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, base64.StdEncoding.EncodeToString(raw), dataSuffix)
	writeMarkdownBody(&sb, g)
	return []byte(sb.String()), nil
}

// writeMarkdownBody writes the human-facing part of the guide. The HTML
// renderer reuses it.
func writeMarkdownBody(sb *strings.Builder, g *Guide) {
	fmt.Fprintf(sb, "# %s\n\n", g.Title)
	if g.Summary != "" {
		fmt.Fprintf(sb, "%s\n\n", g.Summary)
	}

	sb.WriteString("## Details\n\n")
	if !g.CreatedAt.IsZero() {
		fmt.Fprintf(sb, "- Recorded: %s\n", g.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if g.Duration != "" {
		fmt.Fprintf(sb, "- Duration: %s\n", g.Duration)
	}
	if len(g.Applications) > 0 {
		fmt.Fprintf(sb, "- Applications: %s\n", strings.Join(g.Applications, ", "))
	}
	if g.Author != "" {
		fmt.Fprintf(sb, "- Author: %s\n", g.Author)
	}
	sb.WriteString("\n")

	if len(g.Prerequisites) > 0 {
		sb.WriteString("## Prerequisites\n\n")
		for _, p := range g.Prerequisites {
			fmt.Fprintf(sb, "- %s\n", p)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Steps\n\n")
	if len(g.Steps) == 0 {
		sb.WriteString("_No steps._\n\n")
		return
	}
	for _, s := range g.Steps {
		fmt.Fprintf(sb, "### Step %d\n\n%s\n\n", s.Number, s.Instruction)
		if s.Screenshot != "" {
			fmt.Fprintf(sb, "![Step %d](%s)\n\n", s.Number, s.Screenshot)
		}
	}
}

// HTMLRenderer renders a Guide as a standalone HTML page. Screenshots are
// referenced by relative file name, so they must sit next to the page. The
// head carries the same payload as Markdown output.
type HTMLRenderer struct{}

func (r *HTMLRenderer) Render(g *Guide) ([]byte, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal guide: %w", err)
	}
	var md strings.Builder
	writeMarkdownBody(&md, g)

	var body bytes.Buffer
	if err := goldmark.New().Convert([]byte(md.String()), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"UTF-8\">\n")
	out.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&out, "<title>%s</title>\n", html.EscapeString(g.Title))
	out.WriteString(pageStyle)
	// same payload as Markdown, so MarkdownParser reads pages back
	out.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&out, "%s%s%s\n", dataPrefix, base64.StdEncoding.EncodeToString(raw), dataSuffix)
	out.WriteString("</head>\n<body>\n<main>\n")
	out.Write(body.Bytes())
	out.WriteString("<p class=\"meta\">Recorded with <strong>Howl</strong></p>\n")
	out.WriteString("</main>\n</body>\n</html>\n")
	return out.Bytes(), nil
}

const pageStyle = `<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #f5f5f5; color: #333; line-height: 1.6; }
main { max-width: 900px; margin: 0 auto; padding: 40px 20px; }
h1 { color: #1a1a1a; }
h3 { margin-top: 32px; color: #0066cc; }
img { max-width: 100%; border: 1px solid #ddd; border-radius: 4px; }
.meta { color: #666; font-size: 14px; margin-top: 40px; }
</style>
`
