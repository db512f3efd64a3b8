package normalize

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestExtractWrappings(t *testing.T) {
	const payload = `{"title":"T","steps":[{"stepNumber":1,"instruction":"Open {the} \"menu\""}]}`

	cases := map[string]string{
		"clean":           payload,
		"fenced":          "```json\n" + payload + "\n```",
		"think":           "<think>maybe {\"instruction\":\"no\"} </think>\n" + payload,
		"think-upper":     "<THINK>a</think><think>b</THINK>" + payload,
		"trailing prose":  "Sure! Here it is:\n" + payload + "\nLet me know if you need more.",
		"everything":      "<think>{{{</think>Result:\n```json\n" + payload + "\n```\nDone.",
		"think-growing":   "<think>" + strings.Repeat("Ⱥ", 20) + "</think>" + payload,
		"think-shrinking": "<think>" + strings.Repeat("İ", 20) + " {\"no\":1}</Think>" + payload,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Extract(in)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got != payload {
				t.Errorf("Extract =\n%s\nwant\n%s", got, payload)
			}
		})
	}
}

func TestExtractRepairsTruncation(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"mid-array string", `{"instructions":["Open the app","Click Save`, `{"instructions":["Open the app","Click Save"]}`},
		{"nested object", `{"steps":[{"stepNumber":1,"instruction":"x"`, `{"steps":[{"stepNumber":1,"instruction":"x"}]}`},
		{"trailing comma", `{"instructions":["a",`, `{"instructions":["a"]}`},
		{"dangling escape", `{"instruction":"say \`, `{"instruction":"say "}`},
		{"brace in string", `{"instruction":"use { and [`, `{"instruction":"use { and ["}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Extract(c.in)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got != c.want {
				t.Errorf("Extract = %s, want %s", got, c.want)
			}
			if !json.Valid([]byte(got)) {
				t.Errorf("repaired output is not valid JSON: %s", got)
			}
		})
	}
}

func TestExtractNoObject(t *testing.T) {
	for _, in := range []string{"", "just prose", "<think>{x}</think> nothing here", "```json\n```"} {
		if _, err := Extract(in); !errors.Is(err, ErrNoObject) {
			t.Errorf("Extract(%q): got %v, want ErrNoObject", in, err)
		}
	}
}

// Any wrapping of a valid object extracts to the same bytes as the bare object.
func TestExtractRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(t, "n")
		items := make([]string, n)
		for i := range items {
			items[i] = rapid.StringMatching(`[A-Za-z0-9 {}\[\],.:]{0,20}`).Draw(t, "item")
		}
		data, err := json.Marshal(map[string]any{"instructions": items})
		if err != nil {
			t.Fatal(err)
		}
		payload := string(data)

		wrapped := payload
		if rapid.Bool().Draw(t, "fence") {
			wrapped = "```json\n" + wrapped + "\n```"
		}
		if rapid.Bool().Draw(t, "think") {
			wrapped = "<think>" + rapid.StringMatching(`[a-z{} ]{0,30}`).Draw(t, "reasoning") + "</think>" + wrapped
		}
		if rapid.Bool().Draw(t, "prose") {
			wrapped = wrapped + "\n" + rapid.StringMatching(`[a-z .]{0,30}`).Draw(t, "prose_text")
		}

		got, err := Extract(wrapped)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if got != payload {
			t.Fatalf("Extract(%q) = %q, want %q", wrapped, got, payload)
		}

		// Truncating inside the last string and repairing yields valid JSON.
		cut := strings.LastIndex(payload, `"]`)
		if cut > 0 {
			repaired, err := Extract(payload[:cut])
			if err != nil {
				t.Fatalf("Extract truncated: %v", err)
			}
			if repaired != payload {
				t.Fatalf("repair(%q) = %q, want %q", payload[:cut], repaired, payload)
			}
		}
	})
}

func TestInstruction(t *testing.T) {
	got, err := Instruction("<think>hmm</think>```json\n{\"instruction\": \"  Save the file with Ctrl+S. \"}\n```")
	if err != nil {
		t.Fatalf("Instruction: %v", err)
	}
	if got != "Save the file with Ctrl+S." {
		t.Errorf("Instruction = %q", got)
	}
}

// Runes that change byte length when lowercased must not shift where the
// reasoning block is cut.
func TestInstructionAfterMultibyteReasoning(t *testing.T) {
	for _, r := range []string{"Ⱥ", "İ", "\u212a"} {
		for _, n := range []int{1, 10, 20, 50} {
			in := "<think>" + strings.Repeat(r, n) + "</think>{\"instruction\":\"Click Save.\"}"
			got, err := Instruction(in)
			if err != nil {
				t.Fatalf("Instruction(%d×%s): %v", n, r, err)
			}
			if got != "Click Save." {
				t.Errorf("Instruction(%d×%s) = %q", n, r, got)
			}
		}
	}
}

func TestInstructionFailuresAreTyped(t *testing.T) {
	cases := map[string]string{
		"no object":    "I could not see the screenshot.",
		"wrong field":  `{"text":"Open the app"}`,
		"wrong type":   `{"instruction":42}`,
		"blank":        `{"instruction":"   "}`,
		"unrepairable": `{"instruction":`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Instruction(in)
			var nerr *Error
			if !errors.As(err, &nerr) {
				t.Fatalf("Instruction(%q): got %v, want *Error", in, err)
			}
		})
	}
	if _, err := Instruction("prose only"); !errors.Is(err, ErrNoObject) {
		t.Errorf("expected ErrNoObject to unwrap, got %v", err)
	}
}

func TestGuide(t *testing.T) {
	raw := `Here you go: {"title":"Send an email","summary":"Compose and send.","prerequisites":["An account"],` +
		`"steps":[{"stepNumber":1,"instruction":"Open Mail"},{"stepNumber":2,"instruction":"Click Send`
	g, err := Guide(raw)
	if err != nil {
		t.Fatalf("Guide: %v", err)
	}
	if g.Title != "Send an email" || len(g.Prerequisites) != 1 || len(g.Steps) != 2 {
		t.Fatalf("unexpected guide: %+v", g)
	}
	if g.Steps[1].StepNumber != 2 || g.Steps[1].Instruction != "Click Send" {
		t.Errorf("repaired step = %+v", g.Steps[1])
	}

	if _, err := Guide(`{"title":"x","steps":[{"instruction":"no number"}]}`); err == nil {
		t.Error("Guide accepted a step without stepNumber")
	}
}

func TestRefinement(t *testing.T) {
	got, err := Refinement(`{"instructions":["One", " ", "Two"]}`)
	if err != nil {
		t.Fatalf("Refinement: %v", err)
	}
	if len(got) != 2 || got[0] != "One" || got[1] != "Two" {
		t.Errorf("Refinement = %q", got)
	}
	if _, err := Refinement(`{"instructions":"One"}`); err == nil {
		t.Error("Refinement accepted a non-array")
	}
}
