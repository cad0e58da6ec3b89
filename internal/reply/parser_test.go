package reply

import "testing"

func TestParse_PlainText(t *testing.T) {
	r := Parse("no json here")
	if r.Kind != KindText {
		t.Fatalf("expected text kind, got %q", r.Kind)
	}
	if r.Text != "no json here" {
		t.Errorf("expected text preserved, got %q", r.Text)
	}
}

func TestParse_StripsReasoningSpan(t *testing.T) {
	r := Parse(`[REASONING_START]x[REASONING_END]{"text":"hi"}`)
	if r.Kind != KindStructured {
		t.Fatalf("expected structured kind, got %q", r.Kind)
	}
	if got := r.Payload["text"]; got != "hi" {
		t.Errorf("expected payload text 'hi', got %v", got)
	}
}

func TestParse_UnterminatedReasoningStripsToEnd(t *testing.T) {
	r := Parse("Sure.[REASONING_START]still thinking")
	if r.Kind != KindText {
		t.Fatalf("expected text kind, got %q", r.Kind)
	}
	if r.Text != "Sure." {
		t.Errorf("expected reasoning stripped to end, got %q", r.Text)
	}
}

func TestParse_FencedJSONBlock(t *testing.T) {
	r := Parse("```json\n{\"a\":1}\n```")
	if r.Kind != KindStructured {
		t.Fatalf("expected structured kind, got %q", r.Kind)
	}
	if got, ok := r.Payload["a"].(float64); !ok || got != 1 {
		t.Errorf("expected payload a=1, got %v", r.Payload["a"])
	}
}

func TestParse_FencedBlockPreferredOverBraceSpan(t *testing.T) {
	r := Parse("{\"outer\":true} and ```json\n{\"inner\":true}\n```")
	if r.Kind != KindStructured {
		t.Fatalf("expected structured kind, got %q", r.Kind)
	}
	if _, ok := r.Payload["inner"]; !ok {
		t.Errorf("expected fenced block to win, got payload %v", r.Payload)
	}
}

func TestParse_MalformedFencedFallsThroughToBraceSpan(t *testing.T) {
	// The fenced block is broken JSON and there is no balanced brace span,
	// so the reply degrades to plain text rather than erroring.
	r := Parse("```json\n{not json\n```")
	if r.Kind != KindText {
		t.Fatalf("expected text kind for malformed JSON, got %q", r.Kind)
	}
}

func TestParse_MalformedBraceSpanDegradesToText(t *testing.T) {
	in := "prose {definitely: not json} more prose"
	r := Parse(in)
	if r.Kind != KindText {
		t.Fatalf("expected text kind, got %q", r.Kind)
	}
	if r.Text != in {
		t.Errorf("expected cleaned text unchanged, got %q", r.Text)
	}
}

func TestParse_NonObjectJSONDegradesToText(t *testing.T) {
	r := Parse("```json\n[1,2,3]\n```")
	if r.Kind != KindText {
		t.Fatalf("expected text kind for non-object JSON, got %q", r.Kind)
	}
}

func TestParse_Idempotent(t *testing.T) {
	first := Parse("just words")
	second := Parse(first.Text)
	if second.Kind != KindText || second.Text != first.Text {
		t.Errorf("expected stable text output, got kind=%q text=%q", second.Kind, second.Text)
	}
}

func TestDisplayText(t *testing.T) {
	structured := Parse(`{"text":"plan","files":["a.go"]}`)
	if structured.DisplayText() != "plan" {
		t.Errorf("expected display text 'plan', got %q", structured.DisplayText())
	}
	plain := Parse("hello")
	if plain.DisplayText() != "hello" {
		t.Errorf("expected display text 'hello', got %q", plain.DisplayText())
	}
	noText := Parse(`{"files":["a.go"]}`)
	if noText.DisplayText() != "" {
		t.Errorf("expected empty display text, got %q", noText.DisplayText())
	}
}
