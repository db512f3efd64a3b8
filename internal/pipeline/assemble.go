package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/fakeyudi/howl/internal/guide"
	"github.com/fakeyudi/howl/internal/narrate"
	"github.com/fakeyudi/howl/internal/normalize"
	"github.com/fakeyudi/howl/internal/segment"
)

// DefaultTitle is used when the recording saw no named application.
const DefaultTitle = "Computer Task Guide"

// generateWhole narrates every step in one backend request. The reply must
// carry exactly one instruction per candidate.
func (o *Orchestrator) generateWhole(ctx context.Context, gn narrate.GuideNarrator, res *Result) (*normalize.GuidePayload, error) {
	total := len(res.Steps)
	o.transition(StateGenerating, Progress{Total: total, Message: "Building AI prompts..."})
	o.notifyProgress(Progress{State: StateGenerating, Total: total, Message: "Generating instructions with AI..."})

	payload, err := gn.NarrateGuide(ctx, narrate.GuideRequest{
		SystemPrompt: o.systemPrompt,
		Session:      res.Session,
		Steps:        res.Steps,
	})
	if err != nil {
		return nil, err
	}
	if len(payload.Steps) != total {
		return nil, fmt.Errorf("backend returned %d instructions for %d steps", len(payload.Steps), total)
	}
	for i, c := range res.Steps {
		res.Instructions = append(res.Instructions, InstructionStep{
			StepNumber:  c.Index,
			Instruction: strings.TrimSpace(payload.Steps[i].Instruction),
			Screenshot:  c.ScreenshotName(),
		})
	}
	return payload, nil
}

// refineInstructions replaces the instruction texts with the backend's
// consistency pass. The Refiner keeps the originals on any failure.
func (o *Orchestrator) refineInstructions(ctx context.Context, r narrate.Refiner, res *Result) {
	o.notifyProgress(Progress{State: StateAssembling, Total: len(res.Steps), Message: "Refining instructions..."})
	texts := make([]string, len(res.Instructions))
	for i, in := range res.Instructions {
		texts[i] = in.Instruction
	}
	refined := r.Refine(ctx, res.Steps, texts)
	if len(refined) != len(texts) {
		return
	}
	for i := range res.Instructions {
		res.Instructions[i].Instruction = refined[i]
	}
}

// Title names the guide after the first application seen in the recording.
func Title(apps []string) string {
	if len(apps) == 0 {
		return DefaultTitle
	}
	return "How to use " + apps[0]
}

// Summary is the default one-line description of a guide.
func Summary(steps int) string {
	return fmt.Sprintf("A %d-step guide", steps)
}

func (o *Orchestrator) assemble(res *Result, payload *normalize.GuidePayload) *guide.Guide {
	s := res.Session
	apps := s.Applications()
	g := &guide.Guide{
		Version:      guide.Version,
		Title:        Title(apps),
		Summary:      Summary(len(res.Instructions)),
		SessionID:    s.ID,
		CreatedAt:    s.StartTime,
		Duration:     narrate.FormatDuration(s.Duration()),
		Applications: apps,
		Author:       o.author,
	}
	if payload != nil {
		if t := strings.TrimSpace(payload.Title); t != "" {
			g.Title = t
		}
		if sum := strings.TrimSpace(payload.Summary); sum != "" {
			g.Summary = sum
		}
		g.Prerequisites = payload.Prerequisites
	}

	byIndex := make(map[int]segment.StepCandidate, len(res.Steps))
	for _, c := range res.Steps {
		byIndex[c.Index] = c
	}
	for _, in := range res.Instructions {
		c := byIndex[in.StepNumber]
		g.Steps = append(g.Steps, guide.Step{
			Number:      in.StepNumber,
			Instruction: in.Instruction,
			WindowTitle: c.WindowTitle,
			Screenshot:  in.Screenshot,
			Timestamp:   c.Timestamp,
			TextEntered: c.TextEntered,
			Shortcuts:   segment.Shortcuts(c),
		})
	}
	return g
}

// Export writes a completed result's guide to path. The result must come
// from a successful Generate.
func (o *Orchestrator) Export(ctx context.Context, res *Result, path, format string) error {
	if res == nil || res.Guide == nil {
		return fmt.Errorf("export: %w", ErrNoSession)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if cur, ok := o.claim(StateExporting); !ok {
		return fmt.Errorf("pipeline is %s", cur)
	}
	o.transition(StateExporting, Progress{Total: len(res.Guide.Steps),
		Message: fmt.Sprintf("Exporting to %s...", strings.ToUpper(format))})

	if err := guide.Export(res.Guide, res.Session.FramesDir(), path, format); err != nil {
		return o.fail(fmt.Errorf("exporting guide: %w", err))
	}
	o.log.Info("guide exported", "path", path, "format", format, "steps", len(res.Guide.Steps))
	o.transition(StateDone, Progress{Total: len(res.Guide.Steps), Message: "Done!"})
	return nil
}
