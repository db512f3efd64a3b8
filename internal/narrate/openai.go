package narrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fakeyudi/howl/internal/normalize"
	"github.com/fakeyudi/howl/internal/segment"
)

const openAIName = "LM Studio"

// OpenAIConfig configures an OpenAI-compatible chat-completions backend such
// as LM Studio.
type OpenAIConfig struct {
	BaseURL     string
	Model       string
	APIKey      string // optional; sent as a bearer token
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	EnableVision           bool
	MaxImageEdge           int
	JPEGQuality            int
	SendPreviousScreenshot bool
}

// DefaultOpenAIConfig returns settings for a local LM Studio server.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:      "http://127.0.0.1:1234",
		Model:        "zai-org/glm-4.6v-flash",
		Temperature:  0.2,
		MaxTokens:    1024,
		Timeout:      120 * time.Second,
		EnableVision: true,
		MaxImageEdge: DefaultMaxImageEdge,
		JPEGQuality:  DefaultJPEGQuality,
	}
}

// OpenAI narrates steps through /v1/chat/completions, attaching the step's
// screenshot (and optionally the previous one) as image parts.
type OpenAI struct {
	cfg OpenAIConfig
	t   transport
}

// NewOpenAI returns an OpenAI-compatible backend. Zero-valued numeric fields
// take their defaults.
func NewOpenAI(cfg OpenAIConfig, opts ...Option) *OpenAI {
	d := DefaultOpenAIConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxImageEdge <= 0 {
		cfg.MaxImageEdge = d.MaxImageEdge
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = d.JPEGQuality
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAI{cfg: cfg, t: newTransport(openAIName, cfg.Timeout, opts)}
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []chatPart
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) header() http.Header {
	h := http.Header{}
	if o.cfg.APIKey != "" {
		h.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}
	return h
}

// complete sends one chat request and returns the first choice's text.
func (o *OpenAI) complete(ctx context.Context, content any, maxTokens int) (string, error) {
	body := chatRequest{
		Model:       o.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: content}},
		Temperature: o.cfg.Temperature,
		MaxTokens:   maxTokens,
	}
	var resp chatResponse
	if err := o.t.doJSON(ctx, http.MethodPost, o.cfg.BaseURL+"/v1/chat/completions", o.header(), body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &APIError{Backend: openAIName, Message: "no choices returned"}
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", &APIError{Backend: openAIName, Message: "empty response"}
	}
	return text, nil
}

// imagePart encodes a frame, or returns nil when the file is gone.
func (o *OpenAI) imagePart(path string) (*chatPart, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	uri, err := ImageDataURI(path, o.cfg.MaxImageEdge, o.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}
	return &chatPart{Type: "image_url", ImageURL: &chatImageURL{URL: uri}}, nil
}

// stepContent builds the user message parts: prompt text, then the previous
// screenshot when enabled, then the current one.
func (o *OpenAI) stepContent(req Request) ([]chatPart, error) {
	parts := []chatPart{{Type: "text", Text: StepPrompt(req)}}
	if !o.cfg.EnableVision {
		return parts, nil
	}
	if o.cfg.SendPreviousScreenshot && req.Previous != nil {
		p, err := o.imagePart(req.Previous.Screenshot)
		if err != nil {
			return nil, err
		}
		if p != nil {
			parts = append(parts, *p)
		}
	}
	p, err := o.imagePart(req.Current.Screenshot)
	if err != nil {
		return nil, err
	}
	if p != nil {
		parts = append(parts, *p)
	}
	return parts, nil
}

// NarrateStep implements Narrator.
func (o *OpenAI) NarrateStep(ctx context.Context, req Request) (string, error) {
	content, err := o.stepContent(req)
	if err != nil {
		return "", fmt.Errorf("preparing step %d: %w", req.StepNumber, err)
	}
	var text string
	err = o.t.retry(ctx, func(ctx context.Context) error {
		raw, err := o.complete(ctx, content, o.cfg.MaxTokens)
		if err != nil {
			return err
		}
		text, err = normalize.Instruction(raw)
		return err
	})
	return text, err
}

// NarrateGuide implements GuideNarrator with a text-only request.
func (o *OpenAI) NarrateGuide(ctx context.Context, req GuideRequest) (*normalize.GuidePayload, error) {
	prompt := GuidePrompt(req)
	var out *normalize.GuidePayload
	err := o.t.retry(ctx, func(ctx context.Context) error {
		raw, err := o.complete(ctx, prompt, max(o.cfg.MaxTokens, 2048))
		if err != nil {
			return err
		}
		out, err = normalize.Guide(raw)
		return err
	})
	return out, err
}

// Refine implements Refiner. It makes a single attempt.
func (o *OpenAI) Refine(ctx context.Context, steps []segment.StepCandidate, instructions []string) []string {
	if err := o.t.wait(ctx); err != nil {
		return instructions
	}
	raw, err := o.complete(ctx, RefinementPrompt(steps, instructions), max(o.cfg.MaxTokens, 2048))
	if err != nil {
		o.t.log.Warn("refinement failed, keeping original instructions", "err", err)
		return instructions
	}
	return acceptRefinement(o.t.log, raw, instructions)
}

// ListModels implements ModelLister.
func (o *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := o.t.doJSON(ctx, http.MethodGet, o.cfg.BaseURL+"/v1/models", o.header(), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		if m.ID != "" {
			out = append(out, m.ID)
		}
	}
	return out, nil
}

// acceptRefinement returns the refined list when it parses and has one entry
// per original instruction, and the originals otherwise.
func acceptRefinement(log *slog.Logger, raw string, original []string) []string {
	refined, err := normalize.Refinement(raw)
	if err != nil {
		log.Warn("could not parse refined instructions, keeping originals", "err", err)
		return original
	}
	if len(refined) != len(original) {
		log.Warn("refinement changed the step count, keeping originals",
			"got", len(refined), "want", len(original))
		return original
	}
	return refined
}
