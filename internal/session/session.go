package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrSealed is returned by Seal when the session has already been stopped.
var ErrSealed = errors.New("session already sealed")

// FramesDirName is the per-session subfolder holding timed screenshots.
const FramesDirName = "frames"

// Session is one recording: the captured events plus the directory the
// screenshot frames are written to.
//
// The event lists are appended to concurrently by the capture producers while
// recording and are read-only once EndTime is set.
type Session struct {
	ID           string           `json:"id"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	Dir          string           `json:"dir"`
	Clicks       []ClickEvent     `json:"clicks"`
	WindowEvents []WindowEvent    `json:"window_events"`
	Keystrokes   []KeystrokeEvent `json:"keystrokes"`

	mu sync.Mutex
}

// New returns an empty, unsealed session rooted at dir.
func New(id string, start time.Time, dir string) *Session {
	return &Session{
		ID:           id,
		StartTime:    start,
		Dir:          dir,
		Clicks:       []ClickEvent{},
		WindowEvents: []WindowEvent{},
		Keystrokes:   []KeystrokeEvent{},
	}
}

// ButtonKind identifies which pointer button was pressed.
type ButtonKind string

const (
	ButtonLeft  ButtonKind = "left"
	ButtonRight ButtonKind = "right"
)

// Point is a screen position in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ClickEvent records a single pointer button press.
type ClickEvent struct {
	Position  Point      `json:"position"`
	Button    ButtonKind `json:"button"`
	Timestamp time.Time  `json:"timestamp"`
}

// KeyPhase is the key transition that produced a KeystrokeEvent. Only
// PhaseDown is captured.
type KeyPhase string

const (
	PhaseDown KeyPhase = "down"
	PhaseUp   KeyPhase = "up"
)

// KeystrokeEvent records a single key press.
type KeystrokeEvent struct {
	VirtualKeyCode int       `json:"vk"`
	Key            string    `json:"key"`
	Text           string    `json:"text,omitempty"` // resolved printable text, if any
	Phase          KeyPhase  `json:"phase"`
	Timestamp      time.Time `json:"timestamp"`
	WindowTitle    string    `json:"window_title"`
	Ctrl           bool      `json:"ctrl,omitempty"`
	Alt            bool      `json:"alt,omitempty"`
	Shift          bool      `json:"shift,omitempty"`
	IsModifier     bool      `json:"is_modifier,omitempty"`
}

// DisplayText renders the keystroke the way a reader would name it: the typed
// text when there is one, otherwise a combo such as "Ctrl+Shift+S".
func (k KeystrokeEvent) DisplayText() string {
	if k.Text != "" {
		return k.Text
	}
	if k.IsModifier || k.Ctrl || k.Alt || k.Shift {
		var parts []string
		if k.Ctrl {
			parts = append(parts, "Ctrl")
		}
		if k.Alt {
			parts = append(parts, "Alt")
		}
		if k.Shift {
			parts = append(parts, "Shift")
		}
		if !k.IsModifier {
			parts = append(parts, k.Key)
		}
		if len(parts) > 0 {
			return strings.Join(parts, "+")
		}
	}
	return k.Key
}

// WindowEvent records a change of the foreground window title.
type WindowEvent struct {
	Title       string    `json:"title"`
	ProcessName string    `json:"process_name"`
	Timestamp   time.Time `json:"timestamp"`
}

// AppendClick records a click. It reports false once the session is sealed.
func (s *Session) AppendClick(e ClickEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime != nil {
		return false
	}
	s.Clicks = append(s.Clicks, e)
	return true
}

// AppendKeystroke records a key press. It reports false once the session is sealed.
func (s *Session) AppendKeystroke(e KeystrokeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime != nil {
		return false
	}
	s.Keystrokes = append(s.Keystrokes, e)
	return true
}

// AppendWindow records a window change. It reports false once the session is sealed.
func (s *Session) AppendWindow(e WindowEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime != nil {
		return false
	}
	s.WindowEvents = append(s.WindowEvents, e)
	return true
}

// Seal stamps the end time. After Seal every Append* call is a no-op.
func (s *Session) Seal(end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime != nil {
		return ErrSealed
	}
	s.EndTime = &end
	return nil
}

// Sealed reports whether recording has stopped.
func (s *Session) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EndTime != nil
}

// Counts returns the number of clicks, window changes and keystrokes captured so far.
func (s *Session) Counts() (clicks, windows, keys int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Clicks), len(s.WindowEvents), len(s.Keystrokes)
}

// Duration is EndTime-StartTime, or the time elapsed so far while recording.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime == nil {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Applications returns the distinct process names seen in window events, in
// first-seen order.
func (s *Session) Applications() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var apps []string
	for _, w := range s.WindowEvents {
		if w.ProcessName == "" || seen[w.ProcessName] {
			continue
		}
		seen[w.ProcessName] = true
		apps = append(apps, w.ProcessName)
	}
	return apps
}

// FramesDir is the directory timed screenshots are written to.
func (s *Session) FramesDir() string {
	return filepath.Join(s.Dir, FramesDirName)
}

// Frame is one screenshot file on disk.
type Frame struct {
	Path      string
	Timestamp time.Time
}

// Frames lists the session's PNG frames in filename order. Frame names are
// zero-padded sequence numbers, so filename order is capture order. A missing
// frames directory yields no frames.
func (s *Session) Frames() ([]Frame, error) {
	entries, err := os.ReadDir(s.FramesDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return framesFrom(s.FramesDir(), entries)
}

// framesFrom builds the frame list from a directory listing. A frame whose
// file info cannot be read fails the whole listing.
func framesFrom(dir string, entries []fs.DirEntry) ([]Frame, error) {
	var frames []Frame
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("reading frame %s: %w", e.Name(), err)
		}
		frames = append(frames, Frame{
			Path:      filepath.Join(dir, e.Name()),
			Timestamp: info.ModTime(),
		})
	}
	sort.Slice(frames, func(i, j int) bool {
		return filepath.Base(frames[i].Path) < filepath.Base(frames[j].Path)
	})
	return frames, nil
}
