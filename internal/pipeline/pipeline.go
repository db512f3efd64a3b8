// Package pipeline sequences a recording through segmentation, narration and
// assembly into a guide, reporting progress along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fakeyudi/howl/internal/capture"
	"github.com/fakeyudi/howl/internal/guide"
	"github.com/fakeyudi/howl/internal/narrate"
	"github.com/fakeyudi/howl/internal/normalize"
	"github.com/fakeyudi/howl/internal/segment"
	"github.com/fakeyudi/howl/internal/session"
)

var (
	ErrRecordingActive = errors.New("a recording is in progress")
	ErrNotRecording    = errors.New("no recording in progress")
	ErrNoSession       = errors.New("no session to process")
	ErrNoRecorder      = errors.New("pipeline has no recorder")
)

// StepError reports the step whose narration halted generation.
type StepError struct {
	Step int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// InstructionStep is one narrated step.
type InstructionStep struct {
	StepNumber  int
	Instruction string
	Screenshot  string // frame file name
}

// Result is the outcome of Generate. On failure it still carries the
// instructions produced before the error.
type Result struct {
	Session      *session.Session
	Steps        []segment.StepCandidate
	Instructions []InstructionStep
	Guide        *guide.Guide // nil unless generation completed
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithRecorder enables StartRecording and StopRecording.
func WithRecorder(r *capture.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithStore persists sessions when a recording stops.
func WithStore(s session.SessionStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithRefinement runs a consistency pass over all instructions after
// per-step generation, when the backend supports it.
func WithRefinement(on bool) Option {
	return func(o *Orchestrator) { o.refine = on }
}

// WithWholeGuide narrates every step in one request when the backend
// supports it, instead of one request per step.
func WithWholeGuide(on bool) Option {
	return func(o *Orchestrator) { o.wholeGuide = on }
}

// WithMergeWindow merges step candidates closer together than d. Zero
// disables merging.
func WithMergeWindow(d time.Duration) Option {
	return func(o *Orchestrator) { o.mergeWindow = d }
}

func WithSystemPrompt(p string) Option {
	return func(o *Orchestrator) { o.systemPrompt = p }
}

func WithAuthor(name string) Option {
	return func(o *Orchestrator) { o.author = name }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator owns the active recording and runs the generation pipeline.
type Orchestrator struct {
	narrator     narrate.Narrator
	recorder     *capture.Recorder
	store        session.SessionStore
	log          *slog.Logger
	refine       bool
	wholeGuide   bool
	mergeWindow  time.Duration
	systemPrompt string
	author       string
	now          func() time.Time

	mu    sync.Mutex
	state State

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// New returns an Orchestrator that narrates with n.
func New(n narrate.Narrator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		narrator:     n,
		log:          slog.Default(),
		systemPrompt: narrate.SystemPrompt(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnProgress registers a progress listener.
func (o *Orchestrator) OnProgress(l ProgressListener) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	o.listeners = append(o.listeners, l)
}

func (o *Orchestrator) notifyProgress(p Progress) {
	o.progressMu.Lock()
	listeners := make([]ProgressListener, len(o.listeners))
	copy(listeners, o.listeners)
	o.progressMu.Unlock()

	for _, l := range listeners {
		l(p)
	}
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// transition moves to s and emits p with s filled in.
func (o *Orchestrator) transition(s State, p Progress) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	p.State = s
	o.notifyProgress(p)
}

func (o *Orchestrator) fail(err error) error {
	o.transition(StateError, Progress{Err: err})
	return err
}

// busy reports whether a pipeline run owns the orchestrator.
func (o *Orchestrator) busy() bool {
	return busy(o.State())
}

func busy(s State) bool {
	switch s {
	case StateIdle, StateDone, StateError:
		return false
	}
	return true
}

// claim moves to next if no run owns the orchestrator. The check and the move
// happen under one lock, so of two concurrent callers only one wins. On
// failure it returns the state that blocked the claim.
func (o *Orchestrator) claim(next State) (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if busy(o.state) {
		return o.state, false
	}
	o.state = next
	return next, true
}

// StartRecording begins capturing a new session.
func (o *Orchestrator) StartRecording(ctx context.Context) (*session.Session, error) {
	if o.recorder == nil {
		return nil, ErrNoRecorder
	}
	if o.State() == StateRecording || o.recorder.Recording() {
		return nil, ErrRecordingActive
	}
	if o.busy() {
		return nil, fmt.Errorf("cannot record while %s", o.State())
	}
	s, err := o.recorder.Start(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrAlreadyRecording) {
			return nil, ErrRecordingActive
		}
		return nil, o.fail(fmt.Errorf("starting recording: %w", err))
	}
	o.transition(StateRecording, Progress{Message: "Recording started"})
	return s, nil
}

// StopRecording ends the active recording, seals its session and saves it
// when a store is configured.
func (o *Orchestrator) StopRecording() (*session.Session, error) {
	if o.recorder == nil {
		return nil, ErrNoRecorder
	}
	s, err := o.recorder.Stop()
	if errors.Is(err, capture.ErrNotRecording) {
		return nil, ErrNotRecording
	}
	if err != nil {
		return nil, o.fail(fmt.Errorf("stopping recording: %w", err))
	}
	if o.store != nil {
		if err := o.store.Save(s); err != nil {
			return s, o.fail(fmt.Errorf("saving session: %w", err))
		}
	}
	clicks, windows, keys := s.Counts()
	o.transition(StateIdle, Progress{Message: fmt.Sprintf(
		"Recording stopped: %d clicks, %d window changes, %d keystrokes", clicks, windows, keys)})
	return s, nil
}

// Generate segments s, narrates every step and assembles the guide. Steps
// are narrated one at a time, in order. On failure the returned Result holds
// the instructions produced so far and Guide is nil.
func (o *Orchestrator) Generate(ctx context.Context, s *session.Session) (*Result, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	if !s.Sealed() {
		return nil, ErrRecordingActive
	}
	if cur, ok := o.claim(StateSegmenting); !ok {
		if cur == StateRecording {
			return nil, ErrRecordingActive
		}
		return nil, fmt.Errorf("pipeline is already %s", cur)
	}
	res := &Result{Session: s}

	o.transition(StateSegmenting, Progress{Message: "Detecting steps from recording..."})
	steps, err := segment.Segment(s)
	if err != nil {
		return res, o.fail(err)
	}
	if o.mergeWindow > 0 {
		steps = segment.MergeAdjacent(steps, o.mergeWindow)
	}
	res.Steps = steps
	o.notifyProgress(Progress{State: StateSegmenting, Total: len(steps),
		Message: fmt.Sprintf("Detected %d unique steps", len(steps))})

	var payload *normalize.GuidePayload
	if gn, ok := narrate.Capability[narrate.GuideNarrator](o.narrator); ok && o.wholeGuide {
		payload, err = o.generateWhole(ctx, gn, res)
	} else {
		err = o.generateSteps(ctx, res)
	}
	if err != nil {
		return res, o.fail(err)
	}

	o.transition(StateAssembling, Progress{Total: len(steps), Message: "Assembling guide..."})
	if r, ok := narrate.Capability[narrate.Refiner](o.narrator); ok && o.refine && payload == nil {
		o.refineInstructions(ctx, r, res)
	}
	res.Guide = o.assemble(res, payload)

	o.transition(StateDone, Progress{Total: len(steps), Message: "Done!"})
	return res, nil
}

func (o *Orchestrator) generateSteps(ctx context.Context, res *Result) error {
	total := len(res.Steps)
	o.transition(StateGenerating, Progress{Total: total, Message: "Building AI prompts..."})
	o.notifyProgress(Progress{State: StateGenerating, Total: total, Message: "Generating instructions with AI..."})
	for i := range res.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := res.Steps[i]
		req := narrate.Request{
			SystemPrompt: o.systemPrompt,
			Current:      cur,
			StepNumber:   cur.Index,
		}
		if i > 0 {
			req.Previous = &res.Steps[i-1]
		}
		o.notifyProgress(Progress{State: StateGenerating, Step: i + 1, Total: total,
			Message: fmt.Sprintf("Generating instruction %d/%d...", i+1, total)})

		text, err := o.narrator.NarrateStep(ctx, req)
		if err != nil {
			return &StepError{Step: cur.Index, Err: err}
		}
		o.log.Debug("step narrated", "step", cur.Index, "instruction", text)
		res.Instructions = append(res.Instructions, InstructionStep{
			StepNumber:  cur.Index,
			Instruction: text,
			Screenshot:  cur.ScreenshotName(),
		})
	}
	return nil
}
