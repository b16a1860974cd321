package perplexity

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func finalEvent(t *testing.T, content map[string]any) Event {
	t.Helper()
	steps, err := json.Marshal([]any{
		map[string]any{"step_type": "FINAL", "content": content},
	})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(map[string]any{"text": string(steps)})
	if err != nil {
		t.Fatal(err)
	}
	event, ok := DecodeEvent("data: "+string(raw), time.Now())
	if !ok || event.IsPlaceholder() {
		t.Fatalf("could not build final event: %+v", event)
	}
	return event
}

func TestExtractAnswerStructuredNested(t *testing.T) {
	nested, _ := json.Marshal(map[string]any{"answer": "The answer is 4."})
	event := finalEvent(t, map[string]any{"answer": string(nested)})

	answer, strategy, err := ExtractAnswer([]Event{event}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if answer != "The answer is 4." {
		t.Errorf("answer = %q", answer)
	}
	if strategy != "structured" {
		t.Errorf("strategy = %q", strategy)
	}
}

func TestExtractAnswerStructuredPlainString(t *testing.T) {
	event := finalEvent(t, map[string]any{"answer": "Plain text answer"})
	answer, _, err := ExtractAnswer([]Event{event}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if answer != "Plain text answer" {
		t.Errorf("answer = %q", answer)
	}
}

func TestExtractAnswerStructuredMap(t *testing.T) {
	event := finalEvent(t, map[string]any{
		"answer": map[string]any{"answer": "from a map"},
	})
	answer, _, err := ExtractAnswer([]Event{event}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if answer != "from a map" {
		t.Errorf("answer = %q", answer)
	}
}

func TestExtractAnswerRegexFallback(t *testing.T) {
	// Truncated nested JSON: the structured path cannot decode this, the
	// anchored regex recovers the text, including escaped punctuation.
	record := `data: {"text": [{"step_type": "FINAL", "content": {"answer": "{\"answer\": \"Go — a compiled language designed at Google`

	answer, strategy, err := ExtractAnswer(nil, []string{record})
	if err != nil {
		t.Fatal(err)
	}
	if strategy != "regex" {
		t.Errorf("strategy = %q", strategy)
	}
	if !strings.Contains(answer, "—") {
		t.Errorf("escaped em dash not replaced: %q", answer)
	}
	if !strings.Contains(answer, "designed at Google") {
		t.Errorf("answer = %q", answer)
	}
}

func TestExtractAnswerRegexRejectsShort(t *testing.T) {
	record := `data: {"step_type": "FINAL", "answer": "{\"answer\": \"short`
	_, _, err := ExtractAnswer(nil, []string{record})
	if !errors.Is(err, ErrNoAnswer) {
		t.Fatalf("err = %v, want ErrNoAnswer", err)
	}
}

func TestExtractAnswerScrapeFallback(t *testing.T) {
	record := `data: {"step_type": "FINAL", "answer": "x", body: The upstream mangled this record badly but the content is still readable and long enough to keep}`
	answer, strategy, err := ExtractAnswer(nil, []string{record})
	if err != nil {
		t.Fatal(err)
	}
	if strategy != "scrape" {
		t.Errorf("strategy = %q", strategy)
	}
	if !strings.Contains(answer, "still readable") {
		t.Errorf("answer = %q", answer)
	}
	if strings.ContainsAny(answer, `{}"\`) {
		t.Errorf("structural characters left in scrape output: %q", answer)
	}
}

func TestExtractAnswerNoAnswer(t *testing.T) {
	event := finalEvent(t, map[string]any{"answer": ""})
	_, _, err := ExtractAnswer([]Event{event}, []string{`data: {"status": "pending"}`})
	if !errors.Is(err, ErrNoAnswer) {
		t.Fatalf("err = %v, want ErrNoAnswer", err)
	}
}

func TestExtractAnswerFirstFinalWins(t *testing.T) {
	first := finalEvent(t, map[string]any{"answer": "first"})
	second := finalEvent(t, map[string]any{"answer": "second"})
	answer, _, err := ExtractAnswer([]Event{first, second}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if answer != "first" {
		t.Errorf("answer = %q, want first FINAL step to win", answer)
	}
}
