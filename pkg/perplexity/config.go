package perplexity

import "strings"

// Search modes accepted by the upstream. The wire values for the deep modes
// contain a space; façades map their dash forms ("deep-research") here.
const (
	ModeAuto         = "auto"
	ModePro          = "pro"
	ModeReasoning    = "reasoning"
	ModeDeepResearch = "deep research"
	ModeDeepLab      = "deep lab"
)

// Sources the upstream accepts.
const (
	SourceWeb     = "web"
	SourceScholar = "scholar"
	SourceSocial  = "social"
	SourceEdgar   = "edgar"
)

const (
	DefaultBaseURL     = "https://www.perplexity.ai"
	DefaultLanguage    = "en-US"
	DefaultTimezone    = "Europe/Berlin"
	DefaultSearchFocus = "internet"
	DefaultTimeoutSecs = 60
)

// modelPreferences maps mode → user-facing model name → upstream preference
// identifier. The empty key is the mode's default when no model is given.
// This table is the single source of truth for mode/model validation; every
// façade consults it through SupportedModes/ModelsForMode/ResolveModel.
var modelPreferences = map[string]map[string]string{
	ModeAuto: {
		"": "turbo",
	},
	ModePro: {
		"":                       "pplx_pro",
		"sonar":                  "sonar",
		"experimental":           "experimental",
		"gpt-4.5":                "gpt45",
		"gpt-4o":                 "gpt4o",
		"gpt41":                  "gpt41",
		"gpt5":                   "gpt5",
		"gpt5thinking":           "gpt5thinking",
		"o3":                     "o3",
		"claude":                 "claude2",
		"claude 3.7 sonnet":      "claude2",
		"claude37sonnetthinking": "claude37sonnetthinking",
		"claude45sonnet":         "claude45sonnet",
		"claude45sonnetthinking": "claude45sonnetthinking",
		"gemini 2.0 flash":       "gemini2flash",
		"gemini2flash":           "gemini2flash",
		"grok-2":                 "grok",
		"grok4":                  "grok4",
		"pplx_pro":               "pplx_pro",
	},
	ModeReasoning: {
		"":                  "pplx_reasoning",
		"r1":                "r1",
		"o3-mini":           "o3mini",
		"claude 3.7 sonnet": "claude37sonnetthinking",
	},
	ModeDeepResearch: {
		"":           "pplx_alpha",
		"pplx_alpha": "pplx_alpha",
	},
	ModeDeepLab: {
		"":          "pplx_beta",
		"pplx_beta": "pplx_beta",
	},
}

// modesRequiringModel lists modes that reject a request without an explicit
// model selection.
var modesRequiringModel = map[string]bool{
	ModePro:       true,
	ModeReasoning: true,
	ModeDeepLab:   true,
}

var validSources = map[string]bool{
	SourceWeb:     true,
	SourceScholar: true,
	SourceSocial:  true,
	SourceEdgar:   true,
}

// SupportedModes returns the mode names in a stable order.
func SupportedModes() []string {
	return []string{ModeAuto, ModePro, ModeReasoning, ModeDeepResearch, ModeDeepLab}
}

// ModelsForMode returns the user-facing model names valid for a mode,
// excluding the default empty entry.
func ModelsForMode(mode string) []string {
	prefs, ok := modelPreferences[mode]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(prefs))
	for name := range prefs {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// ValidSources returns the accepted source names.
func ValidSources() []string {
	return []string{SourceWeb, SourceScholar, SourceSocial, SourceEdgar}
}

// NormalizeMode maps dash-form mode names used by façades ("deep-research",
// "deep-lab") onto the upstream wire values.
func NormalizeMode(mode string) string {
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case "deep-research", "deep_research":
		return ModeDeepResearch
	case "deep-lab", "deep_lab":
		return ModeDeepLab
	default:
		return strings.TrimSpace(strings.ToLower(mode))
	}
}

// ResolveModel validates the (mode, model) pair against the preference table
// and returns the upstream model_preference identifier.
func ResolveModel(mode, model string) (string, error) {
	prefs, ok := modelPreferences[mode]
	if !ok {
		return "", &ConfigError{Field: "mode", Value: mode, Reason: "unknown search mode"}
	}
	if model == "" && modesRequiringModel[mode] {
		return "", &ConfigError{Field: "model", Reason: "model selection is required for '" + mode + "' mode"}
	}
	pref, ok := prefs[model]
	if !ok {
		return "", &ConfigError{Field: "model", Value: model, Reason: "not available in '" + mode + "' mode"}
	}
	return pref, nil
}

// ValidateSources checks every source name against the upstream's set.
func ValidateSources(sources []string) error {
	for _, source := range sources {
		if !validSources[source] {
			return &ConfigError{Field: "source", Value: source, Reason: "unknown search source"}
		}
	}
	return nil
}

// Config controls the upstream client.
type Config struct {
	BaseURL     string `yaml:"base_url"`
	CookiePath  string `yaml:"cookie_path"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
	UserAgent   string `yaml:"user_agent"`
}

func (c *Config) WithDefaults() *Config {
	if c == nil {
		c = &Config{}
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.TimeoutSecs <= 0 {
		c.TimeoutSecs = DefaultTimeoutSecs
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}
