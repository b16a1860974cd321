package perplexity

import (
	"errors"
	"testing"
)

func TestResolveModel(t *testing.T) {
	cases := []struct {
		name    string
		mode    string
		model   string
		want    string
		wantErr bool
	}{
		{name: "auto default", mode: ModeAuto, model: "", want: "turbo"},
		{name: "pro sonar", mode: ModePro, model: "sonar", want: "sonar"},
		{name: "pro claude alias", mode: ModePro, model: "claude", want: "claude2"},
		{name: "reasoning default", mode: ModeReasoning, model: "r1", want: "r1"},
		{name: "deep research default", mode: ModeDeepResearch, model: "", want: "pplx_alpha"},
		{name: "pro missing model", mode: ModePro, model: "", wantErr: true},
		{name: "reasoning missing model", mode: ModeReasoning, model: "", wantErr: true},
		{name: "deep lab missing model", mode: ModeDeepLab, model: "", wantErr: true},
		{name: "unknown mode", mode: "turbo", model: "", wantErr: true},
		{name: "model from wrong mode", mode: ModeAuto, model: "sonar", wantErr: true},
		{name: "unknown model", mode: ModePro, model: "gpt-9", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveModel(tc.mode, tc.model)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ResolveModel(%q, %q) succeeded, want error", tc.mode, tc.model)
				}
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("error %v is not a ConfigError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveModel(%q, %q): %v", tc.mode, tc.model, err)
			}
			if got != tc.want {
				t.Errorf("ResolveModel(%q, %q) = %q, want %q", tc.mode, tc.model, got, tc.want)
			}
		})
	}
}

func TestNormalizeMode(t *testing.T) {
	cases := map[string]string{
		"auto":          ModeAuto,
		"Pro":           ModePro,
		"deep-research": ModeDeepResearch,
		"deep_research": ModeDeepResearch,
		"deep research": ModeDeepResearch,
		"deep-lab":      ModeDeepLab,
		" reasoning ":   ModeReasoning,
	}
	for in, want := range cases {
		if got := NormalizeMode(in); got != want {
			t.Errorf("NormalizeMode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateSources(t *testing.T) {
	if err := ValidateSources([]string{SourceWeb, SourceScholar, SourceSocial, SourceEdgar}); err != nil {
		t.Fatalf("all valid sources rejected: %v", err)
	}
	err := ValidateSources([]string{SourceWeb, "reddit"})
	if err == nil {
		t.Fatal("unknown source accepted")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Value != "reddit" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := (&Config{}).WithDefaults()
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.TimeoutSecs != DefaultTimeoutSecs {
		t.Errorf("TimeoutSecs = %d", cfg.TimeoutSecs)
	}
	if cfg.UserAgent == "" {
		t.Error("UserAgent empty")
	}

	cfg = (&Config{BaseURL: "http://localhost:9", TimeoutSecs: 5}).WithDefaults()
	if cfg.BaseURL != "http://localhost:9" || cfg.TimeoutSecs != 5 {
		t.Errorf("explicit values overridden: %+v", cfg)
	}
}

func TestModelsForMode(t *testing.T) {
	models := ModelsForMode(ModePro)
	if len(models) == 0 {
		t.Fatal("no models for pro mode")
	}
	for _, m := range models {
		if m == "" {
			t.Error("default entry leaked into model list")
		}
	}
	if got := ModelsForMode("nope"); got != nil {
		t.Errorf("ModelsForMode(nope) = %v", got)
	}
}
