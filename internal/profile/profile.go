// Package profile manages the user's persistent howl profile.
// The profile lives at ~/.config/howl/profile.json. It is created once by
// the setup flow and read on every command.
package profile

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fakeyudi/howl/internal/config"
	"github.com/fakeyudi/howl/internal/guide"
	"github.com/fakeyudi/howl/internal/narrate"
)

// Profile holds user-level preferences set during first-run setup.
type Profile struct {
	Name          string `json:"name"`           // guide author
	Backend       string `json:"backend"`        // "openai" | "gemini"
	DefaultFormat string `json:"default_format"` // one of guide.Formats
	OutputDir     string `json:"output_dir"`
	Refine        bool   `json:"refine"`
}

// ErrNoProfile is returned by Load when setup has never run.
var ErrNoProfile = errors.New("no profile found, run 'howl setup' to configure")

func profilePath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

// Exists reports whether a profile file is present on disk.
func Exists() bool {
	p, err := profilePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Load reads the profile from disk.
func Load() (*Profile, error) {
	p, err := profilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoProfile
	}
	if err != nil {
		return nil, err
	}
	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil, fmt.Errorf("malformed profile at %s: %w", p, err)
	}
	return &prof, nil
}

// Save writes the profile to disk, creating the config directory if needed.
func Save(prof *Profile) error {
	p, err := profilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// Apply layers the profile's choices over cfg. Explicit config files win
// over the profile only for fields the profile leaves empty.
func (p *Profile) Apply(cfg *config.Config) {
	if p == nil {
		return
	}
	if p.Backend != "" {
		cfg.Backend = p.Backend
	}
	if p.DefaultFormat != "" {
		cfg.DefaultFormat = p.DefaultFormat
	}
	if p.OutputDir != "" {
		cfg.OutputDir = p.OutputDir
	}
	if p.Refine {
		r := true
		cfg.Refine = &r
	}
}

// Setup is the outcome of the setup wizard. GeminiKey is set only when the
// user entered a new key; it belongs in the secrets file, not the profile.
type Setup struct {
	Profile   *Profile
	GeminiKey string
}

// RunSetup runs the interactive setup wizard over in and out.
// If existing is non-nil, it is used as the default for each prompt (edit mode).
func RunSetup(in io.Reader, out io.Writer, existing *Profile) (*Setup, error) {
	r := bufio.NewReader(in)

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	askBool := func(prompt string, defaultVal bool) (bool, error) {
		def := "n"
		if defaultVal {
			def = "y"
		}
		ans, err := ask(prompt+" (y/n)", def)
		if err != nil {
			return false, err
		}
		ans = strings.ToLower(ans)
		return ans == "y" || ans == "yes", nil
	}

	prof := &Profile{
		Backend:       narrate.BackendOpenAI,
		DefaultFormat: guide.FormatMarkdown,
		OutputDir:     ".",
	}
	if existing != nil {
		*prof = *existing
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │     howl · first-time setup     │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error
	prof.Name, err = ask("  Your name (shown in guides)", prof.Name)
	if err != nil {
		return nil, err
	}

	backend, err := ask("  AI backend (openai/gemini)", prof.Backend)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(backend) {
	case narrate.BackendGemini:
		prof.Backend = narrate.BackendGemini
	default:
		prof.Backend = narrate.BackendOpenAI
	}

	res := &Setup{Profile: prof}
	if prof.Backend == narrate.BackendGemini && os.Getenv(config.EnvGeminiKey) == "" {
		res.GeminiKey, err = ask("  Gemini API key (leave empty to set "+config.EnvGeminiKey+" yourself)", "")
		if err != nil {
			return nil, err
		}
	}

	format, err := ask("  Default output format ("+strings.Join(guide.Formats, "/")+")", prof.DefaultFormat)
	if err != nil {
		return nil, err
	}
	if slices.Contains(guide.Formats, format) {
		prof.DefaultFormat = format
	} else {
		prof.DefaultFormat = guide.FormatMarkdown
	}

	prof.OutputDir, err = ask("  Default output directory", prof.OutputDir)
	if err != nil {
		return nil, err
	}

	prof.Refine, err = askBool("  Run a consistency pass over generated steps", prof.Refine)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(out)
	return res, nil
}
