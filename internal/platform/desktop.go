//go:build robotgo

package platform

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"os"
	"sync"

	"github.com/go-vgo/robotgo"
	hook "github.com/robotn/gohook"

	"github.com/fakeyudi/howl/internal/capture"
)

// Desktop hooks global input through gohook and reads windows and the screen
// through robotgo.
type Desktop struct {
	mu     sync.Mutex
	active *listener
}

type listener struct {
	done chan struct{}
	wg   sync.WaitGroup
}

// New returns the platform for this build.
func New() (capture.Platform, error) {
	return &Desktop{}, nil
}

// InstallInputListener starts the global hook. Only one listener can be
// installed at a time.
func (d *Desktop) InstallInputListener(onClick func(capture.ClickInput), onKeyDown func(capture.KeyInput)) (capture.ListenerHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return nil, errors.New("input listener already installed")
	}

	events := hook.Start()
	l := &listener{done: make(chan struct{})}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				dispatch(ev, onClick, onKeyDown)
			}
		}
	}()
	d.active = l
	return l, nil
}

func dispatch(ev hook.Event, onClick func(capture.ClickInput), onKeyDown func(capture.KeyInput)) {
	switch ev.Kind {
	case hook.MouseHold:
		if b, ok := button(ev.Button); ok {
			onClick(capture.ClickInput{X: int(ev.X), Y: int(ev.Y), Button: b})
		}
	case hook.KeyHold:
		vk, ok := virtualKey(ev.Keycode)
		if !ok {
			return
		}
		shift, ctrl, alt := modifiers(ev.Mask)
		onKeyDown(capture.KeyInput{VirtualKeyCode: vk, Shift: shift, Ctrl: ctrl, Alt: alt})
	}
}

// Uninstall stops the hook and waits for the dispatch goroutine to exit.
func (d *Desktop) Uninstall(h capture.ListenerHandle) error {
	l, ok := h.(*listener)
	if !ok {
		return fmt.Errorf("unknown listener handle %T", h)
	}
	d.mu.Lock()
	if d.active != l {
		d.mu.Unlock()
		return errors.New("listener is not installed")
	}
	d.active = nil
	d.mu.Unlock()

	close(l.done)
	hook.End()
	l.wg.Wait()
	return nil
}

// PollForegroundWindow reports the active window's title and process name.
func (d *Desktop) PollForegroundWindow() (string, string, error) {
	title := robotgo.GetTitle()
	name, err := robotgo.FindName(robotgo.GetPid())
	if err != nil {
		return title, "", nil
	}
	return title, name, nil
}

// CaptureScreen grabs the primary display as PNG.
func (d *Desktop) CaptureScreen() ([]byte, error) {
	img, err := robotgo.CaptureImg()
	if err != nil {
		return nil, fmt.Errorf("capturing screen: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Desktop) SaveImage(data []byte, path string) error {
	return os.WriteFile(path, data, 0o644)
}
