// Package capture records raw desktop interaction into a session: pointer
// clicks, key presses, foreground-window changes and timed screenshots.
package capture

import (
	"errors"

	"github.com/fakeyudi/howl/internal/session"
)

// ErrUnsupported is returned by a Platform that cannot hook input or grab the
// screen on the current OS or build.
var ErrUnsupported = errors.New("desktop capture is not supported in this build")

// ClickInput is a pointer press as reported by the platform hook.
type ClickInput struct {
	X, Y   int
	Button session.ButtonKind
}

// KeyInput is a key press as reported by the platform hook. VirtualKeyCode uses
// Windows virtual-key numbering; adapters for other platforms translate to it.
type KeyInput struct {
	VirtualKeyCode int
	Ctrl           bool
	Alt            bool
	Shift          bool
	// WindowTitle is the foreground title at the time of the press, if the
	// platform can report it cheaply. Empty means unknown.
	WindowTitle string
}

// ListenerHandle identifies an installed input listener. Its value is opaque to
// the recorder.
type ListenerHandle any

// Platform is the set of OS primitives the recorder is built on.
//
// The callbacks passed to InstallInputListener run on the platform's hook
// thread and must return quickly; the recorder only appends to the session.
type Platform interface {
	InstallInputListener(onClick func(ClickInput), onKeyDown func(KeyInput)) (ListenerHandle, error)
	Uninstall(h ListenerHandle) error
	PollForegroundWindow() (title, process string, err error)
	// CaptureScreen grabs the primary display as an encoded PNG.
	CaptureScreen() ([]byte, error)
	SaveImage(data []byte, path string) error
}
