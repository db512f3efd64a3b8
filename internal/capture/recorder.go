package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/howl/internal/session"
)

var (
	// ErrAlreadyRecording is returned by Start while a session is live.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNotRecording is returned by Stop when nothing is being recorded.
	ErrNotRecording = errors.New("not recording")
)

const (
	DefaultWindowPollInterval = 500 * time.Millisecond
	DefaultScreenshotInterval = 4 * time.Second
)

// DirResolver maps a session ID to the directory its files are written to.
// session.SessionStore satisfies it.
type DirResolver interface {
	Dir(id string) string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger used for producer errors.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.log = l }
}

// WithWindowPollInterval overrides how often the foreground window is polled.
func WithWindowPollInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.pollEvery = d
		}
	}
}

// WithScreenshotInterval overrides how often a frame is captured.
func WithScreenshotInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.frameEvery = d
		}
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithIDFunc replaces the session ID generator.
func WithIDFunc(f func() string) Option {
	return func(r *Recorder) { r.newID = f }
}

// Recorder owns at most one live session at a time and the three producers
// feeding it: the input hook, the window poller and the screenshot timer.
type Recorder struct {
	platform   Platform
	dirs       DirResolver
	log        *slog.Logger
	pollEvery  time.Duration
	frameEvery time.Duration
	now        func() time.Time
	newID      func() string

	mu     sync.Mutex
	active *recording
}

// recording is the state of one live session.
type recording struct {
	sess      *session.Session
	cancel    context.CancelFunc
	group     *errgroup.Group
	handle    ListenerHandle
	lastTitle atomic.Value // string
	frames    atomic.Int64
}

// NewRecorder returns a Recorder that captures through p and places each
// session under dirs.Dir(id).
func NewRecorder(p Platform, dirs DirResolver, opts ...Option) *Recorder {
	r := &Recorder{
		platform:   p,
		dirs:       dirs,
		log:        slog.Default(),
		pollEvery:  DefaultWindowPollInterval,
		frameEvery: DefaultScreenshotInterval,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start begins a new session. The producers run until Stop is called or ctx
// is cancelled. A second Start while recording returns ErrAlreadyRecording and
// leaves the live session untouched.
func (r *Recorder) Start(ctx context.Context) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, ErrAlreadyRecording
	}

	id := r.newID()
	dir := r.dirs.Dir(id)
	sess := session.New(id, r.now(), dir)
	if err := os.MkdirAll(sess.FramesDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating frames directory: %w", err)
	}

	rec := &recording{sess: sess}
	rec.lastTitle.Store("")

	handle, err := r.platform.InstallInputListener(
		func(in ClickInput) { r.onClick(rec, in) },
		func(in KeyInput) { r.onKey(rec, in) },
	)
	if err != nil {
		return nil, fmt.Errorf("installing input listener: %w", err)
	}
	rec.handle = handle

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	rec.cancel = cancel
	rec.group = g
	g.Go(func() error { r.pollWindows(gctx, rec); return nil })
	g.Go(func() error { r.captureFrames(gctx, rec); return nil })

	r.active = rec
	r.log.Info("recording started", "session", id, "dir", dir)
	return sess, nil
}

// Stop tears down the producers, seals the live session and returns it.
func (r *Recorder) Stop() (*session.Session, error) {
	r.mu.Lock()
	rec := r.active
	r.active = nil
	r.mu.Unlock()
	if rec == nil {
		return nil, ErrNotRecording
	}

	rec.cancel()
	if err := r.platform.Uninstall(rec.handle); err != nil {
		r.log.Warn("uninstalling input listener", "err", err)
	}
	_ = rec.group.Wait()

	if err := rec.sess.Seal(r.now()); err != nil {
		return nil, err
	}
	clicks, windows, keys := rec.sess.Counts()
	r.log.Info("recording stopped",
		"session", rec.sess.ID,
		"clicks", clicks,
		"windows", windows,
		"keystrokes", keys,
		"frames", rec.frames.Load(),
	)
	return rec.sess, nil
}

// Recording reports whether a session is live.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Active returns the live session, or nil.
func (r *Recorder) Active() *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil
	}
	return r.active.sess
}

func (r *Recorder) onClick(rec *recording, in ClickInput) {
	rec.sess.AppendClick(session.ClickEvent{
		Position:  session.Point{X: in.X, Y: in.Y},
		Button:    in.Button,
		Timestamp: r.now(),
	})
}

func (r *Recorder) onKey(rec *recording, in KeyInput) {
	if in.WindowTitle == "" {
		in.WindowTitle = rec.lastTitle.Load().(string)
	}
	ev := keystroke(in)
	ev.Timestamp = r.now()
	rec.sess.AppendKeystroke(ev)
}

func (r *Recorder) pollWindows(ctx context.Context, rec *recording) {
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()
	for {
		r.pollOnce(rec)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Recorder) pollOnce(rec *recording) {
	title, process, err := r.platform.PollForegroundWindow()
	if err != nil {
		r.log.Debug("polling foreground window", "err", err)
		return
	}
	if strings.TrimSpace(title) == "" || title == rec.lastTitle.Load().(string) {
		return
	}
	if rec.sess.AppendWindow(session.WindowEvent{
		Title:       title,
		ProcessName: process,
		Timestamp:   r.now(),
	}) {
		rec.lastTitle.Store(title)
	}
}

func (r *Recorder) captureFrames(ctx context.Context, rec *recording) {
	ticker := time.NewTicker(r.frameEvery)
	defer ticker.Stop()
	for {
		r.captureOnce(rec)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// captureOnce writes the next frame_NNNN.png. The sequence number only
// advances on success so frame names stay dense.
func (r *Recorder) captureOnce(rec *recording) {
	data, err := r.platform.CaptureScreen()
	if err != nil {
		r.log.Debug("capturing screen", "err", err)
		return
	}
	n := rec.frames.Load()
	path := filepath.Join(rec.sess.FramesDir(), FrameName(int(n)))
	if err := r.platform.SaveImage(data, path); err != nil {
		r.log.Debug("saving frame", "path", path, "err", err)
		return
	}
	rec.frames.Add(1)
}

// FrameName is the file name of the n-th captured frame, counting from zero.
func FrameName(n int) string {
	return fmt.Sprintf("frame_%04d.png", n)
}
