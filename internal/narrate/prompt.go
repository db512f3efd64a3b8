package narrate

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/fakeyudi/howl/internal/segment"
	"github.com/fakeyudi/howl/internal/session"
)

// SystemPrompt is the standing instruction sent with every step.
func SystemPrompt() string {
	return `You are Howl, a system that explains recorded computer actions as clear,
step-by-step instructions for another human to follow.

You will see a screenshot and metadata about what happened at that moment.
Use the visual information and keyboard/mouse data to describe the action.

Rules:
- Write ONE clear sentence describing the action taken.
- Do not mention timestamps or the recording.
- Do not mention "the user" - write as if instructing someone.
- Be specific about what was clicked or typed based on the screenshot.
- Prefer intent over mechanics (e.g., "Save the file" not "Click the save button").
- If you see text input in the metadata, mention what was typed.
- If you see a keyboard shortcut, mention it naturally (e.g., "Press Ctrl+C to copy").
- Keep it concise - one action per instruction.`
}

// osName is the human name of the running OS for the task context.
func osName() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS"
	case "windows":
		return "Windows"
	case "linux":
		return "Linux"
	}
	return runtime.GOOS
}

// ContextPrompt describes the recording as a whole: OS, applications and
// approximate duration.
func ContextPrompt(s *session.Session) string {
	var b strings.Builder
	b.WriteString("Task context:\n")
	fmt.Fprintf(&b, "- Operating system: %s\n", osName())
	if apps := s.Applications(); len(apps) > 0 {
		b.WriteString("- Application(s) used:\n")
		for _, app := range apps {
			fmt.Fprintf(&b, "  - %q\n", app)
		}
	}
	fmt.Fprintf(&b, "- Approximate task duration: %s\n", FormatDuration(s.Duration()))
	return b.String()
}

// FormatDuration renders d in whole seconds, minutes or hours.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	}
}

// writeStepFacts writes the window, typed text and shortcut lines for c.
func writeStepFacts(b *strings.Builder, c segment.StepCandidate, indent string) {
	fmt.Fprintf(b, "%sWindow: %q\n", indent, c.WindowTitle)
	if c.TextEntered != "" {
		fmt.Fprintf(b, "%sText entered: %q\n", indent, c.TextEntered)
	}
	if sc := segment.Shortcuts(c); len(sc) > 0 {
		fmt.Fprintf(b, "%sKeyboard shortcuts: %s\n", indent, strings.Join(sc, ", "))
	}
}

// StepPrompt is the per-step request text. It asks for a single
// {"instruction": ...} object.
func StepPrompt(req Request) string {
	var b strings.Builder
	if req.SystemPrompt != "" {
		b.WriteString(req.SystemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("Analyze this screenshot and respond with ONLY a valid JSON object.\n\n")
	fmt.Fprintf(&b, "Context for Step %d:\n", req.StepNumber)
	writeStepFacts(&b, req.Current, "- ")
	if req.Previous != nil && req.Previous.WindowTitle != req.Current.WindowTitle {
		fmt.Fprintf(&b, "- Previous window: %q\n", req.Previous.WindowTitle)
	}
	b.WriteString(`
Based on the screenshot and context, describe what action was performed.

{
  "instruction": "Clear, concise description of the action"
}

RULES:
- instruction: One to two sentences describing what the user did, max 200 chars
- Focus on the ACTION, not what's visible
- Be specific and actionable - include what was clicked, typed, or navigated to
- DO NOT include <think> tags or reasoning
- DO NOT explain your thought process

Respond with ONLY the JSON object, no markdown, no explanation, no thinking.
`)
	return b.String()
}

// ObservationPrompt lists every step for a whole-guide request.
func ObservationPrompt(steps []segment.StepCandidate) string {
	var b strings.Builder
	b.WriteString("Observed actions (ordered, with corresponding screenshots):\n\n")
	b.WriteString("Each StepCandidate below has a screenshot showing what was on screen.\n")
	b.WriteString("Use the visual information to understand what the user was doing.\n\n")
	for i, c := range steps {
		fmt.Fprintf(&b, "StepCandidate %d (see screenshot %d):\n", i+1, i+1)
		writeStepFacts(&b, c, "- ")
		b.WriteString("\n")
	}
	return b.String()
}

// GuideInstructionRequest describes the whole-guide reply format.
func GuideInstructionRequest() string {
	return `Generate a JSON object with the following structure:

{
  "title": "A clear, action-oriented title for this guide",
  "summary": "A brief 1-2 sentence summary of what this guide accomplishes",
  "prerequisites": ["Optional array of things needed before starting"],
  "steps": [
    {
      "stepNumber": 1,
      "instruction": "Clear, concise instruction text"
    }
  ]
}

CRITICAL REQUIREMENTS:
- You MUST create ONE step for EVERY StepCandidate provided above
- NEVER skip or combine steps - each StepCandidate gets exactly one instruction
- Match the stepNumber to the StepCandidate number (StepCandidate 1 = step 1, etc.)

Rules for instructions:
- Write one sentence per step
- Describe what the user is trying to accomplish
- Refer implicitly to the screenshot
- Do not name UI elements unless necessary
- Do not include tips or warnings
- Focus on intent, not mechanics`
}

// GuidePrompt assembles the single text prompt for a whole-guide request.
func GuidePrompt(req GuideRequest) string {
	parts := []string{req.SystemPrompt}
	if req.Session != nil {
		parts = append(parts, ContextPrompt(req.Session))
	}
	parts = append(parts, ObservationPrompt(req.Steps), GuideInstructionRequest())
	return strings.Join(parts, "\n\n")
}

// RefinementPrompt asks the backend to revise all instructions together.
func RefinementPrompt(steps []segment.StepCandidate, instructions []string) string {
	var b strings.Builder
	b.WriteString("Review and refine these step-by-step instructions for accuracy and consistency.\n\n")
	b.WriteString("Current instructions:\n")
	for i, in := range instructions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, in)
	}
	b.WriteString("\nContext for each step:\n")
	for i, c := range steps {
		fmt.Fprintf(&b, "Step %d:\n", i+1)
		writeStepFacts(&b, c, "  ")
	}
	fmt.Fprintf(&b, `
Refine the instructions to:
- Ensure step 1 and step %d make sense as the beginning and end
- Fix any contradictions (e.g., don't say 'started' and 'initiated' for different steps)
- Make descriptions specific and actionable
- Keep each instruction under 200 chars

Respond with a JSON object containing the refined instructions:
{
  "instructions": [
    "Refined instruction for step 1",
    "Refined instruction for step 2"
  ]
}

Respond with ONLY the JSON object, no markdown, no explanation.
`, len(steps))
	return b.String()
}
