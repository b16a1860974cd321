package tokens

import "testing"

func TestCount(t *testing.T) {
	n, err := Count("hello world", "gpt-4o")
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("zero tokens for non-empty text")
	}

	empty, err := Count("", "gpt-4o")
	if err != nil {
		t.Fatal(err)
	}
	if empty != 0 {
		t.Errorf("empty text counted %d tokens", empty)
	}
}

func TestCountUnknownModelFallsBack(t *testing.T) {
	n, err := Count("hello world", "pplx_pro")
	if err != nil {
		t.Fatalf("fallback encoding failed: %v", err)
	}
	if n == 0 {
		t.Error("zero tokens under fallback encoding")
	}
}

func TestCountUsage(t *testing.T) {
	usage, err := CountUsage("what is 2+2", "2+2 equals 4", "sonar")
	if err != nil {
		t.Fatal(err)
	}
	if usage.PromptTokens == 0 || usage.CompletionTokens == 0 {
		t.Errorf("usage = %+v", usage)
	}
	if usage.TotalTokens != usage.PromptTokens+usage.CompletionTokens {
		t.Errorf("total %d != %d + %d", usage.TotalTokens, usage.PromptTokens, usage.CompletionTokens)
	}
}

func TestGetTokenizerCaches(t *testing.T) {
	first, err := GetTokenizer("sonar")
	if err != nil {
		t.Fatal(err)
	}
	second, err := GetTokenizer("sonar")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("tokenizer not cached")
	}
}
