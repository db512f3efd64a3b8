package narrate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/howl/internal/segment"
	"github.com/fakeyudi/howl/internal/session"
)

func fastPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func geminiReply(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}}},
	})
	return string(b)
}

func TestEncodeImageFitsLongestEdge(t *testing.T) {
	dir := t.TempDir()
	wide := filepath.Join(dir, "wide.png")
	writePNG(t, wide, 200, 100)

	data, err := EncodeImage(wide, 50, 80)
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Width)
	require.Equal(t, 25, cfg.Height)

	tall := filepath.Join(dir, "tall.png")
	writePNG(t, tall, 30, 120)
	data, err = EncodeImage(tall, 60, 0)
	require.NoError(t, err)
	cfg, err = jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 15, cfg.Width)
	require.Equal(t, 60, cfg.Height)

	// Already small enough: dimensions unchanged.
	data, err = EncodeImage(tall, 500, 75)
	require.NoError(t, err)
	cfg, err = jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 30, cfg.Width)

	uri, err := ImageDataURI(tall, 500, 75)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/jpeg;base64,"))
	_, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/jpeg;base64,"))
	require.NoError(t, err)
}

func TestOpenAINarrateStepSendsImages(t *testing.T) {
	dir := t.TempDir()
	prev := filepath.Join(dir, "frame_0000.png")
	cur := filepath.Join(dir, "frame_0001.png")
	writePNG(t, prev, 40, 20)
	writePNG(t, cur, 40, 20)

	var got chatRequest
	var rawParts []chatPart
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer local-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var env struct {
			chatRequest
			Messages []struct {
				Role    string     `json:"role"`
				Content []chatPart `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(body, &env))
		got = env.chatRequest
		require.Len(t, env.Messages, 1)
		require.Equal(t, "user", env.Messages[0].Role)
		rawParts = env.Messages[0].Content
		fmt.Fprint(w, chatReply("<think>looking</think>```json\n{\"instruction\":\"Type hello into Notepad.\"}\n```"))
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{
		BaseURL:                srv.URL,
		APIKey:                 "local-key",
		EnableVision:           true,
		SendPreviousScreenshot: true,
	}, WithRetryPolicy(fastPolicy()))

	text, err := o.NarrateStep(context.Background(), Request{
		SystemPrompt: "SYSTEM",
		Current:      segment.StepCandidate{Index: 2, WindowTitle: "Notepad", Screenshot: cur, TextEntered: "hello"},
		Previous:     &segment.StepCandidate{Index: 1, WindowTitle: "Desktop", Screenshot: prev},
		StepNumber:   2,
	})
	require.NoError(t, err)
	require.Equal(t, "Type hello into Notepad.", text)

	require.Equal(t, "zai-org/glm-4.6v-flash", got.Model)
	require.Equal(t, 1024, got.MaxTokens)
	require.Len(t, rawParts, 3, "text, previous image, current image")
	require.Equal(t, "text", rawParts[0].Type)
	require.Contains(t, rawParts[0].Text, "SYSTEM")
	require.Contains(t, rawParts[0].Text, "Context for Step 2:")
	require.Contains(t, rawParts[0].Text, `Text entered: "hello"`)
	require.Contains(t, rawParts[0].Text, `Previous window: "Desktop"`)
	for _, p := range rawParts[1:] {
		require.Equal(t, "image_url", p.Type)
		require.True(t, strings.HasPrefix(p.ImageURL.URL, "data:image/jpeg;base64,"))
	}
}

func TestOpenAIRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, `{"error":{"message":"model crashed"}}`, http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chatReply(`{"instruction":"Open the settings."}`))
	}))
	defer srv.Close()

	p, slept := recordSleeps(3)
	o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}, WithRetryPolicy(p))
	text, err := o.NarrateStep(context.Background(), Request{StepNumber: 1, Current: segment.StepCandidate{WindowTitle: "Settings"}})
	require.NoError(t, err)
	require.Equal(t, "Open the settings.", text)
	require.Equal(t, int32(3), calls.Load())
	require.Len(t, *slept, 2)
	require.Less(t, (*slept)[0], (*slept)[1])
}

func TestOpenAINotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model not loaded"}`)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}, WithRetryPolicy(fastPolicy()))
	_, err := o.NarrateStep(context.Background(), Request{StepNumber: 1})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "model not loaded", apiErr.Message)
	require.Equal(t, int32(1), calls.Load())
}

func TestGeminiRateLimitExhausts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		require.True(t, strings.HasSuffix(r.URL.Path, "/gemini-test:generateContent"), r.URL.Path)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	p, slept := recordSleeps(3)
	g, err := NewGemini(GeminiConfig{APIKey: "secret", BaseURL: srv.URL, Model: "gemini-test"}, WithRetryPolicy(p))
	require.NoError(t, err)

	_, err = g.NarrateStep(context.Background(), Request{StepNumber: 1})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, *slept)
	require.Contains(t, err.Error(), "Gemini API error (RESOURCE_EXHAUSTED): Quota exceeded")
}

func TestGeminiRequestShape(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, geminiReply(`{"instruction":"Press Ctrl+S to save."}`))
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{APIKey: "k", BaseURL: srv.URL + "/", Temperature: 0.3}, WithRetryPolicy(fastPolicy()))
	require.NoError(t, err)
	text, err := g.NarrateStep(context.Background(), Request{
		StepNumber: 3,
		Current: segment.StepCandidate{WindowTitle: "Editor", Keystrokes: []session.KeystrokeEvent{
			{Key: "S", Ctrl: true},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, "Press Ctrl+S to save.", text)

	gen := body["generationConfig"].(map[string]any)
	require.Equal(t, "application/json", gen["response_mime_type"])
	require.Equal(t, 0.8, gen["topP"])
	require.Equal(t, float64(40), gen["topK"])
	require.Equal(t, float64(2048), gen["maxOutputTokens"])
	prompt := body["contents"].([]any)[0].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"].(string)
	require.Contains(t, prompt, "Keyboard shortcuts: Ctrl+S")
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(GeminiConfig{})
	require.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(Config{Backend: BackendGemini})
	require.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(Config{Backend: "carrier-pigeon"})
	require.Error(t, err)

	n, err := New(Config{Backend: BackendLMStudio})
	require.NoError(t, err)
	require.IsType(t, &OpenAI{}, n)
}

func TestRefineKeepsOriginalsOnMismatch(t *testing.T) {
	reply := `{"instructions":["Only one"]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply(reply))
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL})
	steps := []segment.StepCandidate{{Index: 1}, {Index: 2}}
	orig := []string{"First", "Second"}
	require.Equal(t, orig, o.Refine(context.Background(), steps, orig))

	reply = "```json\n{\"instructions\":[\"Open the app.\",\"Save the file.\"]}\n```"
	require.Equal(t, []string{"Open the app.", "Save the file."}, o.Refine(context.Background(), steps, orig))

	reply = "not json"
	require.Equal(t, orig, o.Refine(context.Background(), steps, orig))
}

func TestNarrateGuide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, geminiReply(`{"title":"Save a note","summary":"s","steps":[{"stepNumber":1,"instruction":"Open Notepad"},{"stepNumber":2,"instruction":"Save"}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{APIKey: "k", BaseURL: srv.URL}, WithRetryPolicy(fastPolicy()))
	require.NoError(t, err)
	out, err := g.NarrateGuide(context.Background(), GuideRequest{
		SystemPrompt: SystemPrompt(),
		Session:      session.New("s", time.Now().Add(-90*time.Second), ""),
		Steps:        []segment.StepCandidate{{Index: 1}, {Index: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, "Save a note", out.Title)
	require.Len(t, out.Steps, 2)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		fmt.Fprint(w, `{"object":"list","data":[{"id":"qwen2-vl"},{"id":""},{"id":"glm-4.6v"}]}`)
	}))
	defer srv.Close()

	models, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"qwen2-vl", "glm-4.6v"}, models)
}

func TestRateLimiterPacesRequests(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		fmt.Fprint(w, chatReply(`{"instruction":"ok"}`))
	}))
	defer srv.Close()

	// 1200/min is one request every 50ms.
	o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}, WithRequestsPerMinute(1200))
	for i := range 3 {
		_, err := o.NarrateStep(context.Background(), Request{StepNumber: i + 1})
		require.NoError(t, err)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	require.GreaterOrEqual(t, stamps[2].Sub(stamps[0]), 90*time.Millisecond)
}

func TestPrompts(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := session.New("s", start, "")
	s.AppendWindow(session.WindowEvent{Title: "Doc - Word", ProcessName: "WINWORD", Timestamp: start})
	s.AppendWindow(session.WindowEvent{Title: "Inbox", ProcessName: "OUTLOOK", Timestamp: start})
	s.AppendWindow(session.WindowEvent{Title: "Doc2 - Word", ProcessName: "WINWORD", Timestamp: start})
	require.NoError(t, s.Seal(start.Add(3*time.Minute+10*time.Second)))

	ctx := ContextPrompt(s)
	require.Contains(t, ctx, `  - "WINWORD"`)
	require.Contains(t, ctx, `  - "OUTLOOK"`)
	require.Equal(t, 1, strings.Count(ctx, "WINWORD"))
	require.Contains(t, ctx, "Approximate task duration: 3 minutes")

	require.Equal(t, "45 seconds", FormatDuration(45*time.Second))
	require.Equal(t, "2 hours", FormatDuration(2*time.Hour+5*time.Minute))

	steps := []segment.StepCandidate{{Index: 1, WindowTitle: "A"}, {Index: 2, WindowTitle: "B", TextEntered: "hi"}}
	ref := RefinementPrompt(steps, []string{"one", "two"})
	require.Contains(t, ref, "1. one\n2. two\n")
	require.Contains(t, ref, `  Text entered: "hi"`)
	require.Contains(t, ref, "Ensure step 1 and step 2 make sense")

	obs := ObservationPrompt(steps)
	require.Contains(t, obs, "StepCandidate 2 (see screenshot 2):")
}
