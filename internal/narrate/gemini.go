package narrate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fakeyudi/howl/internal/normalize"
	"github.com/fakeyudi/howl/internal/segment"
)

const geminiName = "Gemini"

// GeminiConfig configures the hosted Gemini backend.
type GeminiConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
}

// DefaultGeminiConfig returns the stock Gemini settings, without a key.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:           "gemini-2.0-flash-exp",
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta/models",
		Temperature:     0.3,
		MaxOutputTokens: 2048,
		Timeout:         30 * time.Second,
	}
}

// Gemini narrates steps through the generateContent API. It is text-only:
// the screenshot is described through the step metadata.
type Gemini struct {
	cfg GeminiConfig
	t   transport
}

// NewGemini returns a Gemini backend.
func NewGemini(cfg GeminiConfig, opts ...Option) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: %w (set GEMINI_API_KEY)", ErrMissingAPIKey)
	}
	d := DefaultGeminiConfig()
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = d.MaxOutputTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gemini{cfg: cfg, t: newTransport(geminiName, cfg.Timeout, opts)}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string  `json:"response_mime_type"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	TopK             int     `json:"topK"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// generate sends one combined prompt and returns the reply text.
func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMIMEType: "application/json",
			Temperature:      g.cfg.Temperature,
			TopP:             0.8,
			TopK:             40,
			MaxOutputTokens:  g.cfg.MaxOutputTokens,
		},
	}
	header := http.Header{}
	header.Set("x-goog-api-key", g.cfg.APIKey)

	var resp geminiResponse
	url := fmt.Sprintf("%s/%s:generateContent", g.cfg.BaseURL, g.cfg.Model)
	if err := g.t.doJSON(ctx, http.MethodPost, url, header, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", &APIError{Backend: geminiName, Message: "no candidates returned"}
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0].Text == "" {
		return "", &APIError{Backend: geminiName, Message: "empty response"}
	}
	return parts[0].Text, nil
}

// NarrateStep implements Narrator.
func (g *Gemini) NarrateStep(ctx context.Context, req Request) (string, error) {
	prompt := StepPrompt(req)
	var text string
	err := g.t.retry(ctx, func(ctx context.Context) error {
		raw, err := g.generate(ctx, prompt)
		if err != nil {
			return err
		}
		text, err = normalize.Instruction(raw)
		return err
	})
	return text, err
}

// NarrateGuide implements GuideNarrator.
func (g *Gemini) NarrateGuide(ctx context.Context, req GuideRequest) (*normalize.GuidePayload, error) {
	prompt := GuidePrompt(req)
	var out *normalize.GuidePayload
	err := g.t.retry(ctx, func(ctx context.Context) error {
		raw, err := g.generate(ctx, prompt)
		if err != nil {
			return err
		}
		out, err = normalize.Guide(raw)
		return err
	})
	return out, err
}

// Refine implements Refiner. It makes a single attempt.
func (g *Gemini) Refine(ctx context.Context, steps []segment.StepCandidate, instructions []string) []string {
	if err := g.t.wait(ctx); err != nil {
		return instructions
	}
	raw, err := g.generate(ctx, RefinementPrompt(steps, instructions))
	if err != nil {
		g.t.log.Warn("refinement failed, keeping original instructions", "err", err)
		return instructions
	}
	return acceptRefinement(g.t.log, raw, instructions)
}

// ListModels implements ModelLister.
func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	header := http.Header{}
	header.Set("x-goog-api-key", g.cfg.APIKey)
	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := g.t.doJSON(ctx, http.MethodGet, g.cfg.BaseURL, header, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		if m.Name != "" {
			out = append(out, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	return out, nil
}
