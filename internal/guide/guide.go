// Package guide holds the assembled, exportable form of a narrated recording
// and the renderers that write it to disk.
package guide

import (
	"time"
)

// Version is written into every rendered guide so parsers can reject files
// from an incompatible layout.
const Version = 1

// Guide is the complete, renderable representation of a narrated recording.
type Guide struct {
	Version       int       `json:"version"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary"`
	Prerequisites []string  `json:"prerequisites,omitempty"`
	SessionID     string    `json:"session_id"`
	CreatedAt     time.Time `json:"created_at"`
	Duration      string    `json:"duration"` // human-readable, e.g. "3 minutes"
	Applications  []string  `json:"applications,omitempty"`
	Author        string    `json:"author,omitempty"`
	Steps         []Step    `json:"steps"`
}

// Step is one narrated instruction.
type Step struct {
	Number      int       `json:"number"`
	Instruction string    `json:"instruction"`
	WindowTitle string    `json:"window_title"`
	Screenshot  string    `json:"screenshot,omitempty"` // frame file name, relative to the guide
	Timestamp   time.Time `json:"timestamp"`
	TextEntered string    `json:"text_entered,omitempty"`
	Shortcuts   []string  `json:"shortcuts,omitempty"`
}

// Screenshots returns the distinct screenshot names referenced by g, in step
// order.
func (g *Guide) Screenshots() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range g.Steps {
		if s.Screenshot == "" || seen[s.Screenshot] {
			continue
		}
		seen[s.Screenshot] = true
		out = append(out, s.Screenshot)
	}
	return out
}
