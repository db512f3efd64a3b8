// Package segment turns a sealed recording into an ordered list of step
// candidates, one per captured frame.
package segment

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fakeyudi/howl/internal/session"
)

// ErrNoSteps means the session produced no frames, so there is nothing to
// narrate.
var ErrNoSteps = errors.New("no steps detected in recording")

const (
	// UnknownWindow is the title given to steps captured before any window
	// change was observed.
	UnknownWindow = "Unknown"

	// TriggerVisualChange marks a step created from a timed frame.
	TriggerVisualChange = "visual-change"

	// KeystrokeLookahead extends a step's keystroke window past its frame
	// time, so typing that lands just after a capture stays with it.
	KeystrokeLookahead = 2 * time.Second

	// DefaultMergeWindow is the gap under which MergeAdjacent folds steps.
	DefaultMergeWindow = 2 * time.Second
)

// StepCandidate is one detected step awaiting narration.
type StepCandidate struct {
	Index       int                      `json:"index" yaml:"index"`
	WindowTitle string                   `json:"window_title" yaml:"window_title"`
	Trigger     string                   `json:"trigger" yaml:"trigger"`
	Screenshot  string                   `json:"screenshot" yaml:"screenshot"`
	Timestamp   time.Time                `json:"timestamp" yaml:"timestamp"`
	Keystrokes  []session.KeystrokeEvent `json:"keystrokes,omitempty" yaml:"-"`
	TextEntered string                   `json:"text_entered,omitempty" yaml:"text_entered,omitempty"`
}

// ScreenshotName is the frame's file name, used as the screenshot reference
// in exported guides.
func (c StepCandidate) ScreenshotName() string {
	if c.Screenshot == "" {
		return ""
	}
	return filepath.Base(c.Screenshot)
}

// Segment builds one candidate per frame in filename order. Each candidate
// takes the most recent window title at or before its frame time, and the
// keystrokes typed into that window between the previous frame (or session
// start) and KeystrokeLookahead after its own frame.
//
// Adjacent windows overlap by the lookahead, so a keystroke can be attributed
// to two consecutive steps.
func Segment(s *session.Session) ([]StepCandidate, error) {
	frames, err := s.Frames()
	if err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, ErrNoSteps
	}

	candidates := make([]StepCandidate, 0, len(frames))
	for i, f := range frames {
		candidates = append(candidates, StepCandidate{
			Index:       i + 1,
			WindowTitle: titleAt(s.WindowEvents, f.Timestamp),
			Trigger:     TriggerVisualChange,
			Screenshot:  f.Path,
			Timestamp:   f.Timestamp,
		})
	}

	for i := range candidates {
		start := s.StartTime
		if i > 0 {
			start = candidates[i-1].Timestamp
		}
		attachKeystrokes(&candidates[i], s.Keystrokes, start)
	}
	return candidates, nil
}

// titleAt scans backward for the last window event at or before t.
func titleAt(events []session.WindowEvent, t time.Time) string {
	for i := len(events) - 1; i >= 0; i-- {
		if !events[i].Timestamp.After(t) {
			return events[i].Title
		}
	}
	return UnknownWindow
}

func attachKeystrokes(c *StepCandidate, keys []session.KeystrokeEvent, start time.Time) {
	end := c.Timestamp.Add(KeystrokeLookahead)
	for _, k := range keys {
		if k.Timestamp.Before(start) || k.Timestamp.After(end) {
			continue
		}
		if k.WindowTitle != c.WindowTitle {
			continue
		}
		c.Keystrokes = append(c.Keystrokes, k)
	}
	c.TextEntered = typedText(c.Keystrokes)
}

// typedText concatenates the printable text of non-modifier keystrokes.
func typedText(keys []session.KeystrokeEvent) string {
	var text strings.Builder
	for _, k := range keys {
		if k.Text != "" && !k.IsModifier {
			text.WriteString(k.Text)
		}
	}
	return text.String()
}

// MergeAdjacent folds each candidate into its predecessor when both share a
// window title and were captured less than window apart. The first of a run
// is kept and indices are renumbered densely. The keystrokes of folded
// candidates move to the kept one, so no typed text is lost. It is not applied
// by Segment.
func MergeAdjacent(candidates []StepCandidate, window time.Duration) []StepCandidate {
	if len(candidates) <= 1 {
		return candidates
	}
	merged := []StepCandidate{candidates[0]}
	for _, c := range candidates[1:] {
		prev := &merged[len(merged)-1]
		if c.WindowTitle == prev.WindowTitle && c.Timestamp.Sub(prev.Timestamp) < window {
			prev.Keystrokes = foldKeystrokes(prev.Keystrokes, c.Keystrokes)
			prev.TextEntered = typedText(prev.Keystrokes)
			continue
		}
		merged = append(merged, c)
	}
	for i := range merged {
		merged[i].Index = i + 1
	}
	return merged
}

// foldKeystrokes appends the keystrokes of next that are not already in kept.
// Consecutive attribution windows overlap, so the same event can appear in
// both. The result never aliases the inputs.
func foldKeystrokes(kept, next []session.KeystrokeEvent) []session.KeystrokeEvent {
	out := make([]session.KeystrokeEvent, 0, len(kept)+len(next))
	out = append(out, kept...)
	for _, k := range next {
		if !slices.Contains(kept, k) {
			out = append(out, k)
		}
	}
	return out
}

// Shortcuts lists the distinct keyboard shortcuts and bare modifier presses
// during a step, in first-seen order. Plain typing is excluded.
func Shortcuts(c StepCandidate) []string {
	var out []string
	seen := make(map[string]bool)
	for _, k := range c.Keystrokes {
		if !k.Ctrl && !k.Alt && !k.IsModifier {
			continue
		}
		d := k.DisplayText()
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
