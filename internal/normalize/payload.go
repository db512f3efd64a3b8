package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Error reports a reply that could not be turned into the expected payload,
// even after repair. It is terminal for the step that produced it.
type Error struct {
	Payload string // extracted (possibly repaired) JSON, empty if none was found
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("unusable backend reply: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// GuideStep is one entry of a whole-guide reply.
type GuideStep struct {
	StepNumber  int    `json:"stepNumber"`
	Instruction string `json:"instruction"`
}

// GuidePayload is the title/summary/steps object some backends return when
// asked to narrate a whole recording at once.
type GuidePayload struct {
	Title         string      `json:"title"`
	Summary       string      `json:"summary"`
	Prerequisites []string    `json:"prerequisites,omitempty"`
	Steps         []GuideStep `json:"steps"`
}

const instructionSchema = `{
  "type": "object",
  "required": ["instruction"],
  "properties": {
    "instruction": {"type": "string", "minLength": 1}
  }
}`

const guideSchema = `{
  "type": "object",
  "required": ["steps"],
  "properties": {
    "title": {"type": "string"},
    "summary": {"type": "string"},
    "prerequisites": {"type": "array", "items": {"type": "string"}},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["stepNumber", "instruction"],
        "properties": {
          "stepNumber": {"type": "integer", "minimum": 1},
          "instruction": {"type": "string"}
        }
      }
    }
  }
}`

const refinementSchema = `{
  "type": "object",
  "required": ["instructions"],
  "properties": {
    "instructions": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	instructionValidator = mustCompileSchema(instructionSchema, "instruction.schema.json")
	guideValidator       = mustCompileSchema(guideSchema, "guide.schema.json")
	refinementValidator  = mustCompileSchema(refinementSchema, "refinement.schema.json")
)

func mustCompileSchema(raw, name string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// decode extracts the object from raw, checks it against schema and
// unmarshals it into out.
func decode(raw string, schema *jsonschema.Schema, out any) (string, error) {
	payload, err := Extract(raw)
	if err != nil {
		return "", &Error{Err: err}
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(payload))
	if err != nil {
		return payload, &Error{Payload: payload, Err: err}
	}
	if err := schema.Validate(inst); err != nil {
		return payload, &Error{Payload: payload, Err: err}
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return payload, &Error{Payload: payload, Err: err}
	}
	return payload, nil
}

// Instruction returns the trimmed "instruction" field of a single-step reply.
func Instruction(raw string) (string, error) {
	var v struct {
		Instruction string `json:"instruction"`
	}
	payload, err := decode(raw, instructionValidator, &v)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(v.Instruction)
	if text == "" {
		return "", &Error{Payload: payload, Err: errors.New("instruction is blank")}
	}
	return text, nil
}

// Guide parses a whole-guide reply.
func Guide(raw string) (*GuidePayload, error) {
	var g GuidePayload
	if _, err := decode(raw, guideValidator, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Refinement returns the "instructions" array of a refinement reply, with
// blank entries dropped.
func Refinement(raw string) ([]string, error) {
	var v struct {
		Instructions []string `json:"instructions"`
	}
	if _, err := decode(raw, refinementValidator, &v); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(v.Instructions))
	for _, s := range v.Instructions {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
