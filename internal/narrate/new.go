package narrate

import "fmt"

// Backend names accepted by New.
const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
	// BackendLMStudio is an alias for BackendOpenAI.
	BackendLMStudio = "lmstudio"
)

// Config selects and configures a backend.
type Config struct {
	Backend           string
	Gemini            GeminiConfig
	OpenAI            OpenAIConfig
	Retry             RetryPolicy
	RequestsPerMinute int
}

// New builds the configured backend. This is the only place that chooses
// between backend implementations.
func New(cfg Config, opts ...Option) (Narrator, error) {
	opts = append([]Option{
		WithRetryPolicy(cfg.Retry),
		WithRequestsPerMinute(cfg.RequestsPerMinute),
	}, opts...)

	switch cfg.Backend {
	case BackendGemini:
		g, err := NewGemini(cfg.Gemini, opts...)
		if err != nil {
			return nil, err
		}
		return g, nil
	case BackendOpenAI, BackendLMStudio, "":
		return NewOpenAI(cfg.OpenAI, opts...), nil
	}
	return nil, fmt.Errorf("unknown backend %q (want %q or %q)", cfg.Backend, BackendGemini, BackendOpenAI)
}
