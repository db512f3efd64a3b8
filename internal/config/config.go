// Package config loads howl settings from the global config file, the
// project's .howlconfig and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fakeyudi/howl/internal/guide"
	"github.com/fakeyudi/howl/internal/narrate"
)

// Environment variables holding backend secrets. Keys are never read from
// config files.
const (
	EnvGeminiKey = "GEMINI_API_KEY"
	EnvLLMKey    = "HOWL_LLM_API_KEY"
)

// ProjectFile is the per-directory override file.
const ProjectFile = ".howlconfig"

// Config holds all configurable howl settings.
type Config struct {
	Backend           string         `json:"backend"` // "openai" | "lmstudio" | "gemini"
	Gemini            GeminiConfig   `json:"gemini"`
	LMStudio          LMStudioConfig `json:"lmstudio"`
	Capture           CaptureConfig  `json:"capture"`
	Retry             RetryConfig    `json:"retry"`
	RequestsPerMinute int            `json:"requests_per_minute"`
	Cache             CacheConfig    `json:"cache"`
	Refine            *bool          `json:"refine,omitempty"`
	DefaultFormat     string         `json:"default_format"`
	OutputDir         string         `json:"output_dir"`
}

type GeminiConfig struct {
	Model           string  `json:"model"`
	BaseURL         string  `json:"base_url"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	TimeoutSeconds  int     `json:"timeout_seconds"`
}

// LMStudioConfig covers any OpenAI-compatible chat-completions server.
type LMStudioConfig struct {
	BaseURL                string  `json:"base_url"`
	Model                  string  `json:"model"`
	Temperature            float64 `json:"temperature"`
	MaxTokens              int     `json:"max_tokens"`
	TimeoutSeconds         int     `json:"timeout_seconds"`
	EnableVision           *bool   `json:"enable_vision,omitempty"`
	SendPreviousScreenshot *bool   `json:"send_previous_screenshot,omitempty"`
	MaxImageEdge           int     `json:"max_image_edge"`
	JPEGQuality            int     `json:"jpeg_quality"`
}

type CaptureConfig struct {
	WindowPollMS  int `json:"window_poll_ms"`
	ScreenshotMS  int `json:"screenshot_interval_ms"`
	MergeWindowMS int `json:"merge_window_ms"` // 0 disables step merging
}

type RetryConfig struct {
	MaxAttempts     int `json:"max_attempts"`
	BaseDelayMS     int `json:"base_delay_ms"`
	RateLimitStepMS int `json:"rate_limit_step_ms"`
}

type CacheConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"` // default $XDG_CACHE_HOME/howl/narrations.db
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	g := narrate.DefaultGeminiConfig()
	o := narrate.DefaultOpenAIConfig()
	r := narrate.DefaultRetryPolicy()
	return Config{
		Backend: narrate.BackendOpenAI,
		Gemini: GeminiConfig{
			Model:           g.Model,
			BaseURL:         g.BaseURL,
			Temperature:     g.Temperature,
			MaxOutputTokens: g.MaxOutputTokens,
			TimeoutSeconds:  int(g.Timeout / time.Second),
		},
		LMStudio: LMStudioConfig{
			BaseURL:                o.BaseURL,
			Model:                  o.Model,
			Temperature:            o.Temperature,
			MaxTokens:              o.MaxTokens,
			TimeoutSeconds:         int(o.Timeout / time.Second),
			EnableVision:           ptr(true),
			SendPreviousScreenshot: ptr(false),
			MaxImageEdge:           o.MaxImageEdge,
			JPEGQuality:            o.JPEGQuality,
		},
		Capture: CaptureConfig{
			WindowPollMS: 500,
			ScreenshotMS: 4000,
		},
		Retry: RetryConfig{
			MaxAttempts:     r.MaxAttempts,
			BaseDelayMS:     int(r.BaseDelay / time.Millisecond),
			RateLimitStepMS: int(r.RateLimitStep / time.Millisecond),
		},
		Cache:         CacheConfig{Enabled: ptr(true)},
		Refine:        ptr(false),
		DefaultFormat: guide.FormatMarkdown,
		OutputDir:     ".",
	}
}

func ptr[T any](v T) *T { return &v }

// Dir returns ~/.config/howl.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "howl"), nil
}

// LoadGlobal reads ~/.config/howl/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return loadFile(filepath.Join(dir, "config.json"), true)
}

// LoadProject reads .howlconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(ProjectFile, false)
}

// loadFile reads and parses a JSON config file at path. When the file is
// absent it returns defaults if returnDefaults is set, and nil otherwise.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// set overwrites *dst with v unless v is the zero value.
func set[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

// overlay applies every non-zero field of src onto dst.
func overlay(dst *Config, src *Config) {
	if src == nil {
		return
	}
	set(&dst.Backend, src.Backend)

	set(&dst.Gemini.Model, src.Gemini.Model)
	set(&dst.Gemini.BaseURL, src.Gemini.BaseURL)
	set(&dst.Gemini.Temperature, src.Gemini.Temperature)
	set(&dst.Gemini.MaxOutputTokens, src.Gemini.MaxOutputTokens)
	set(&dst.Gemini.TimeoutSeconds, src.Gemini.TimeoutSeconds)

	set(&dst.LMStudio.BaseURL, src.LMStudio.BaseURL)
	set(&dst.LMStudio.Model, src.LMStudio.Model)
	set(&dst.LMStudio.Temperature, src.LMStudio.Temperature)
	set(&dst.LMStudio.MaxTokens, src.LMStudio.MaxTokens)
	set(&dst.LMStudio.TimeoutSeconds, src.LMStudio.TimeoutSeconds)
	set(&dst.LMStudio.EnableVision, src.LMStudio.EnableVision)
	set(&dst.LMStudio.SendPreviousScreenshot, src.LMStudio.SendPreviousScreenshot)
	set(&dst.LMStudio.MaxImageEdge, src.LMStudio.MaxImageEdge)
	set(&dst.LMStudio.JPEGQuality, src.LMStudio.JPEGQuality)

	set(&dst.Capture.WindowPollMS, src.Capture.WindowPollMS)
	set(&dst.Capture.ScreenshotMS, src.Capture.ScreenshotMS)
	set(&dst.Capture.MergeWindowMS, src.Capture.MergeWindowMS)

	set(&dst.Retry.MaxAttempts, src.Retry.MaxAttempts)
	set(&dst.Retry.BaseDelayMS, src.Retry.BaseDelayMS)
	set(&dst.Retry.RateLimitStepMS, src.Retry.RateLimitStepMS)

	set(&dst.RequestsPerMinute, src.RequestsPerMinute)
	set(&dst.Cache.Enabled, src.Cache.Enabled)
	set(&dst.Cache.Path, src.Cache.Path)
	set(&dst.Refine, src.Refine)
	set(&dst.DefaultFormat, src.DefaultFormat)
	set(&dst.OutputDir, src.OutputDir)
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	overlay(&result, global)
	overlay(&result, project)
	return result
}

// Validate reports settings no command could run with.
func (c Config) Validate() error {
	switch c.Backend {
	case narrate.BackendGemini, narrate.BackendOpenAI, narrate.BackendLMStudio:
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, narrate.BackendOpenAI, narrate.BackendGemini)
	}
	if !slices.Contains(guide.Formats, c.DefaultFormat) {
		return fmt.Errorf("unknown default_format %q", c.DefaultFormat)
	}
	if c.Capture.WindowPollMS < 0 || c.Capture.ScreenshotMS < 0 || c.Capture.MergeWindowMS < 0 {
		return errors.New("capture intervals must not be negative")
	}
	return nil
}

// RefineEnabled reports whether the refinement pass runs by default.
func (c Config) RefineEnabled() bool {
	return c.Refine != nil && *c.Refine
}

// CacheEnabled reports whether narrations are cached.
func (c Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// WindowPollInterval is the foreground-window polling period.
func (c Config) WindowPollInterval() time.Duration {
	return time.Duration(c.Capture.WindowPollMS) * time.Millisecond
}

// ScreenshotInterval is the period between captured frames.
func (c Config) ScreenshotInterval() time.Duration {
	return time.Duration(c.Capture.ScreenshotMS) * time.Millisecond
}

// MergeWindow is the step-merging threshold; zero disables merging.
func (c Config) MergeWindow() time.Duration {
	return time.Duration(c.Capture.MergeWindowMS) * time.Millisecond
}

// Scope identifies the backend and model, for keying cached narrations.
func (c Config) Scope() string {
	if c.Backend == narrate.BackendGemini {
		return c.Backend + "/" + c.Gemini.Model
	}
	return narrate.BackendOpenAI + "/" + c.LMStudio.Model
}

// NarrateConfig maps the settings onto a backend configuration. API keys
// come from the environment.
func (c Config) NarrateConfig() narrate.Config {
	secs := func(n int) time.Duration { return time.Duration(n) * time.Second }
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return narrate.Config{
		Backend: c.Backend,
		Gemini: narrate.GeminiConfig{
			APIKey:          os.Getenv(EnvGeminiKey),
			Model:           c.Gemini.Model,
			BaseURL:         c.Gemini.BaseURL,
			Temperature:     c.Gemini.Temperature,
			MaxOutputTokens: c.Gemini.MaxOutputTokens,
			Timeout:         secs(c.Gemini.TimeoutSeconds),
		},
		OpenAI: narrate.OpenAIConfig{
			BaseURL:                c.LMStudio.BaseURL,
			Model:                  c.LMStudio.Model,
			APIKey:                 os.Getenv(EnvLLMKey),
			Temperature:            c.LMStudio.Temperature,
			MaxTokens:              c.LMStudio.MaxTokens,
			Timeout:                secs(c.LMStudio.TimeoutSeconds),
			EnableVision:           c.LMStudio.EnableVision == nil || *c.LMStudio.EnableVision,
			SendPreviousScreenshot: c.LMStudio.SendPreviousScreenshot != nil && *c.LMStudio.SendPreviousScreenshot,
			MaxImageEdge:           c.LMStudio.MaxImageEdge,
			JPEGQuality:            c.LMStudio.JPEGQuality,
		},
		Retry: narrate.RetryPolicy{
			MaxAttempts:   c.Retry.MaxAttempts,
			BaseDelay:     ms(c.Retry.BaseDelayMS),
			RateLimitStep: ms(c.Retry.RateLimitStepMS),
		},
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
