// Package narrate turns step candidates into written instructions by calling a
// generative backend. Backends share one retry policy and differ only in how
// they shape the request.
package narrate

import (
	"context"

	"github.com/fakeyudi/howl/internal/normalize"
	"github.com/fakeyudi/howl/internal/segment"
	"github.com/fakeyudi/howl/internal/session"
)

// Request is everything a backend needs to narrate one step.
type Request struct {
	SystemPrompt string
	Current      segment.StepCandidate
	Previous     *segment.StepCandidate // nil for the first step
	StepNumber   int
}

// Narrator produces the instruction text for one step.
type Narrator interface {
	NarrateStep(ctx context.Context, req Request) (string, error)
}

// Refiner is implemented by backends that can revise a full list of
// instructions for consistency in one pass. Implementations return the
// originals unchanged on any failure.
type Refiner interface {
	Refine(ctx context.Context, steps []segment.StepCandidate, instructions []string) []string
}

// GuideRequest asks for a whole guide in a single call.
type GuideRequest struct {
	SystemPrompt string
	Session      *session.Session
	Steps        []segment.StepCandidate
}

// GuideNarrator is implemented by backends that can narrate every step of a
// recording in one request.
type GuideNarrator interface {
	NarrateGuide(ctx context.Context, req GuideRequest) (*normalize.GuidePayload, error)
}

// ModelLister is implemented by backends that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Decorator is implemented by Narrators that wrap another one, such as a
// cache.
type Decorator interface {
	Unwrap() Narrator
}

// Capability reports whether n, or any Narrator it decorates, implements T.
// It mirrors errors.As for optional backend features.
func Capability[T any](n Narrator) (T, bool) {
	for n != nil {
		if c, ok := n.(T); ok {
			return c, true
		}
		d, ok := n.(Decorator)
		if !ok {
			break
		}
		n = d.Unwrap()
	}
	var zero T
	return zero, false
}
