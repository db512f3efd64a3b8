package guide

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// Export formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatHTML     = "html"
	FormatZIP      = "zip"
)

// Formats lists every supported export format.
var Formats = []string{FormatMarkdown, FormatJSON, FormatHTML, FormatZIP}

// ErrUnknownFormat is returned for a format outside Formats.
var ErrUnknownFormat = errors.New("unknown export format")

// Ext returns the file extension, with dot, conventionally used for format.
func Ext(format string) string {
	switch format {
	case FormatJSON:
		return ".json"
	case FormatHTML:
		return ".html"
	case FormatZIP:
		return ".zip"
	}
	return ".md"
}

// RendererFor returns the renderer for a page format. ZIP has no renderer of
// its own: it packs the HTML page with its screenshots.
func RendererFor(format string) (Renderer, error) {
	switch format {
	case FormatMarkdown, "md":
		return &MarkdownRenderer{}, nil
	case FormatJSON:
		return &JSONRenderer{}, nil
	case FormatHTML:
		return &HTMLRenderer{}, nil
	}
	return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats, ", "))
}

// Export writes g to path in the given format. framesDir is where the
// session's screenshots live. Markdown and HTML pages get their screenshots
// copied next to them; a ZIP archive holds index.html plus the screenshots.
// Missing screenshots are skipped.
func Export(g *Guide, framesDir, path, format string) error {
	if format == FormatZIP {
		return exportZIP(g, framesDir, path)
	}
	r, err := RendererFor(format)
	if err != nil {
		return err
	}
	data, err := r.Render(g)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing guide: %w", err)
	}
	if format == FormatJSON || framesDir == "" {
		return nil
	}
	return copyScreenshots(g, framesDir, filepath.Dir(path))
}

func copyScreenshots(g *Guide, framesDir, dst string) error {
	for _, name := range g.Screenshots() {
		src := filepath.Join(framesDir, name)
		if err := copyFile(src, filepath.Join(dst, name)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("copying screenshot %s: %w", name, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func exportZIP(g *Guide, framesDir, path string) (err error) {
	page, err := (&HTMLRenderer{}).Render(g)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	modified := g.CreatedAt
	if modified.IsZero() {
		modified = time.Now()
	}
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "index.html", Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("adding index.html: %w", err)
	}
	if _, err := w.Write(page); err != nil {
		return fmt.Errorf("adding index.html: %w", err)
	}

	for _, name := range g.Screenshots() {
		if framesDir == "" {
			break
		}
		if err := addZIPFile(zw, filepath.Join(framesDir, name), name); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("adding screenshot %s: %w", name, err)
		}
	}
	return zw.Close()
}

func addZIPFile(zw *zip.Writer, src, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	// PNGs are already compressed.
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: info.ModTime()})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
