package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/howl/internal/session"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// writeFrames creates n frames under s.FramesDir(), the i-th stamped at
// base+offsets[i].
func writeFrames(tb fataler, s *session.Session, offsets []time.Duration) {
	tb.Helper()
	if err := os.MkdirAll(s.FramesDir(), 0o755); err != nil {
		tb.Fatal(err)
	}
	for i, off := range offsets {
		p := filepath.Join(s.FramesDir(), frameName(i))
		if err := os.WriteFile(p, []byte("png"), 0o644); err != nil {
			tb.Fatal(err)
		}
		ts := base.Add(off)
		if err := os.Chtimes(p, ts, ts); err != nil {
			tb.Fatal(err)
		}
	}
}

// fataler is the part of *testing.T and *rapid.T the helpers need.
type fataler interface {
	Helper()
	Fatal(args ...any)
}

func frameName(i int) string {
	return fmt.Sprintf("frame_%04d.png", i)
}

func TestSegmentNoFramesReturnsErrNoSteps(t *testing.T) {
	s := session.New("empty", base, t.TempDir())
	if _, err := Segment(s); !errors.Is(err, ErrNoSteps) {
		t.Fatalf("Segment: got %v, want ErrNoSteps", err)
	}

	// An existing but empty frames directory is the same condition.
	if err := os.MkdirAll(s.FramesDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := Segment(s); !errors.Is(err, ErrNoSteps) {
		t.Fatalf("Segment with empty dir: got %v, want ErrNoSteps", err)
	}
}

func TestSegmentAttributesTitlesAndKeystrokes(t *testing.T) {
	s := session.New("s", base, t.TempDir())
	writeFrames(t, s, []time.Duration{0, 4 * time.Second, 8 * time.Second})

	s.AppendWindow(session.WindowEvent{Title: "Notepad", ProcessName: "notepad", Timestamp: base.Add(time.Second)})
	s.AppendKeystroke(session.KeystrokeEvent{Key: "H", Text: "h", Timestamp: base.Add(5 * time.Second), WindowTitle: "Notepad"})
	s.AppendKeystroke(session.KeystrokeEvent{Key: "I", Text: "i", Timestamp: base.Add(5500 * time.Millisecond), WindowTitle: "Notepad"})
	s.AppendKeystroke(session.KeystrokeEvent{Key: "X", Text: "x", Timestamp: base.Add(5 * time.Second), WindowTitle: "Other"})
	s.AppendKeystroke(session.KeystrokeEvent{Key: "Shift", IsModifier: true, Shift: true, Timestamp: base.Add(5 * time.Second), WindowTitle: "Notepad"})

	steps, err := Segment(s)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("len(steps) = %d, want 3", len(steps))
	}

	if steps[0].WindowTitle != UnknownWindow {
		t.Errorf("step 1 title = %q, want %q", steps[0].WindowTitle, UnknownWindow)
	}
	if steps[1].WindowTitle != "Notepad" || steps[2].WindowTitle != "Notepad" {
		t.Errorf("titles = %q, %q, want Notepad", steps[1].WindowTitle, steps[2].WindowTitle)
	}
	for i, c := range steps {
		if c.Index != i+1 {
			t.Errorf("steps[%d].Index = %d, want %d", i, c.Index, i+1)
		}
		if c.Trigger != TriggerVisualChange {
			t.Errorf("steps[%d].Trigger = %q", i, c.Trigger)
		}
		if c.ScreenshotName() != frameName(i) {
			t.Errorf("steps[%d] screenshot = %q, want %q", i, c.ScreenshotName(), frameName(i))
		}
	}

	// Step 2 window is [0s, 6s]; step 3 window is [4s, 10s]. Both cover the
	// typing at 5s in Notepad, so both see it.
	if steps[1].TextEntered != "hi" {
		t.Errorf("step 2 text = %q, want %q", steps[1].TextEntered, "hi")
	}
	if steps[2].TextEntered != "hi" {
		t.Errorf("step 3 text = %q, want %q", steps[2].TextEntered, "hi")
	}
	if len(steps[1].Keystrokes) != 3 {
		t.Errorf("step 2 keystrokes = %d, want 3 (other window excluded)", len(steps[1].Keystrokes))
	}
	if steps[0].TextEntered != "" {
		t.Errorf("step 1 text = %q, want empty (window mismatch)", steps[0].TextEntered)
	}
	if got := Shortcuts(steps[1]); len(got) != 1 || got[0] != "Shift" {
		t.Errorf("Shortcuts(step 2) = %v, want [Shift]", got)
	}
}

func TestShortcutsDistinctInOrder(t *testing.T) {
	c := StepCandidate{Keystrokes: []session.KeystrokeEvent{
		{Key: "S", Ctrl: true},
		{Key: "a", Text: "a"},
		{Key: "S", Ctrl: true},
		{Key: "F4", Alt: true},
	}}
	got := Shortcuts(c)
	want := []string{"Ctrl+S", "Alt+F4"}
	if len(got) != len(want) {
		t.Fatalf("Shortcuts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Shortcuts[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// Candidates are dense, time-ordered and one per frame for any frame layout.
func TestSegmentOneCandidatePerFrame(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "frames")
		offsets := make([]time.Duration, n)
		var at time.Duration
		for i := range offsets {
			at += time.Duration(rapid.IntRange(1, 8000).Draw(t, "gap_ms")) * time.Millisecond
			offsets[i] = at
		}

		dir, err := os.MkdirTemp("", "segment")
		if err != nil {
			t.Fatal(err)
		}
		defer os.RemoveAll(dir)

		s := session.New("p", base, dir)
		writeFrames(t, s, offsets)
		for range rapid.IntRange(0, 6).Draw(t, "windows") {
			s.AppendWindow(session.WindowEvent{
				Title:     rapid.SampledFrom([]string{"A", "B", "C"}).Draw(t, "title"),
				Timestamp: base.Add(time.Duration(rapid.IntRange(0, 100_000).Draw(t, "win_ms")) * time.Millisecond),
			})
		}

		steps, err := Segment(s)
		if err != nil {
			t.Fatalf("Segment: %v", err)
		}
		if len(steps) != n {
			t.Fatalf("len(steps) = %d, want %d", len(steps), n)
		}
		for i, c := range steps {
			if c.Index != i+1 {
				t.Fatalf("steps[%d].Index = %d", i, c.Index)
			}
			if i > 0 && !c.Timestamp.After(steps[i-1].Timestamp) {
				t.Fatalf("steps not strictly time-ordered at %d", i)
			}
			if c.WindowTitle == "" {
				t.Fatalf("steps[%d] has empty title", i)
			}
		}
	})
}

func TestMergeAdjacent(t *testing.T) {
	steps := []StepCandidate{
		{Index: 1, WindowTitle: "A", Timestamp: base},
		{Index: 2, WindowTitle: "A", Timestamp: base.Add(time.Second)},
		{Index: 3, WindowTitle: "B", Timestamp: base.Add(1500 * time.Millisecond)},
		{Index: 4, WindowTitle: "B", Timestamp: base.Add(5 * time.Second)},
	}
	got := MergeAdjacent(steps, DefaultMergeWindow)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	wantTimes := []time.Time{base, base.Add(1500 * time.Millisecond), base.Add(5 * time.Second)}
	for i, c := range got {
		if c.Index != i+1 {
			t.Errorf("got[%d].Index = %d, want %d", i, c.Index, i+1)
		}
		if !c.Timestamp.Equal(wantTimes[i]) {
			t.Errorf("got[%d].Timestamp = %v, want %v", i, c.Timestamp, wantTimes[i])
		}
	}
}

func TestMergeAdjacentKeepsTypedText(t *testing.T) {
	hello := []session.KeystrokeEvent{
		{Key: "H", Text: "h", Timestamp: base.Add(1100 * time.Millisecond), WindowTitle: "Notepad"},
		{Key: "I", Text: "i", Timestamp: base.Add(1200 * time.Millisecond), WindowTitle: "Notepad"},
	}
	steps := []StepCandidate{
		{Index: 1, WindowTitle: "Notepad", Timestamp: base},
		{Index: 2, WindowTitle: "Notepad", Timestamp: base.Add(time.Second), Keystrokes: hello, TextEntered: "hi"},
	}
	got := MergeAdjacent(steps, DefaultMergeWindow)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].TextEntered != "hi" {
		t.Errorf("TextEntered = %q, want %q", got[0].TextEntered, "hi")
	}
	if len(got[0].Keystrokes) != 2 {
		t.Errorf("keystrokes = %d, want 2", len(got[0].Keystrokes))
	}
}

// Keystrokes seen by two overlapping attribution windows are counted once
// after the steps merge.
func TestMergeAdjacentAfterSegmentDoesNotDuplicate(t *testing.T) {
	s := session.New("s", base, t.TempDir())
	writeFrames(t, s, []time.Duration{0, time.Second, 5 * time.Second})
	s.AppendWindow(session.WindowEvent{Title: "Notepad", Timestamp: base})
	s.AppendKeystroke(session.KeystrokeEvent{Key: "H", Text: "h", Timestamp: base.Add(500 * time.Millisecond), WindowTitle: "Notepad"})
	s.AppendKeystroke(session.KeystrokeEvent{Key: "Shift", IsModifier: true, Shift: true, Timestamp: base.Add(2500 * time.Millisecond), WindowTitle: "Notepad"})
	s.AppendKeystroke(session.KeystrokeEvent{Key: "I", Text: "I", Shift: true, Timestamp: base.Add(2500 * time.Millisecond), WindowTitle: "Notepad"})

	steps, err := Segment(s)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	got := MergeAdjacent(steps, DefaultMergeWindow)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].TextEntered != "hI" {
		t.Errorf("merged text = %q, want %q", got[0].TextEntered, "hI")
	}
	if len(got[0].Keystrokes) != 3 {
		t.Errorf("merged keystrokes = %d, want 3", len(got[0].Keystrokes))
	}
	if len(steps[0].Keystrokes) != 1 {
		t.Errorf("input candidate mutated: %d keystrokes", len(steps[0].Keystrokes))
	}
}

// Merging never grows the list, keeps order and keeps indices dense.
func TestMergeAdjacentProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		in := make([]StepCandidate, n)
		at := base
		for i := range in {
			at = at.Add(time.Duration(rapid.IntRange(0, 4000).Draw(t, "gap_ms")) * time.Millisecond)
			in[i] = StepCandidate{
				Index:       i + 1,
				WindowTitle: rapid.SampledFrom([]string{"A", "B"}).Draw(t, "title"),
				Timestamp:   at,
			}
		}
		out := MergeAdjacent(in, DefaultMergeWindow)
		if len(out) > len(in) {
			t.Fatalf("merged list grew: %d > %d", len(out), len(in))
		}
		if n > 0 && (len(out) == 0 || !out[0].Timestamp.Equal(in[0].Timestamp)) {
			t.Fatal("first candidate not preserved")
		}
		for i, c := range out {
			if c.Index != i+1 {
				t.Fatalf("out[%d].Index = %d", i, c.Index)
			}
			if i > 0 && c.Timestamp.Before(out[i-1].Timestamp) {
				t.Fatalf("out not ordered at %d", i)
			}
		}
	})
}
