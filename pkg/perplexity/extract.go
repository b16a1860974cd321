package perplexity

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// The upstream's FINAL event is sometimes well-formed nested JSON and
// sometimes a JSON string with broken internal escaping. Extraction runs an
// ordered chain of strategies, stopping at the first success; the layering
// is deliberate and each strategy is independently testable.

const (
	// minRegexAnswerLen is the plausibility floor for the regex-anchored
	// strategy; shorter captures are treated as extraction artifacts.
	minRegexAnswerLen = 10
	// minScrapeAnswerLen is the higher floor for the best-effort scrape,
	// which tolerates structural garbage in exchange for never returning
	// nothing when real content is present.
	minScrapeAnswerLen = 50
)

var (
	finalStepMarkerRE = regexp.MustCompile(`"step_type":\s*"FINAL"`)

	// nestedAnswerRE anchors on the doubled-escaped nested answer opening:
	// "answer": "{\"answer\": \"...
	nestedAnswerRE = regexp.MustCompile(`"answer":\s*"{\s*\\"answer\\":\s*\\"([^"]*(?:\\"[^"]*)*)`)

	// broadAnswerRE captures everything after the first answer marker for
	// the scrape strategy.
	broadAnswerRE = regexp.MustCompile(`"answer":\s*"[^"]*"([^"]+)`)

	structuralCharsRE = regexp.MustCompile(`[{}",\\]`)
	whitespaceRunRE   = regexp.MustCompile(`\s+`)
)

// jsonEscapeReplacer undoes standard JSON escapes plus the Unicode
// punctuation the upstream leaves escaped in broken payloads.
var jsonEscapeReplacer = strings.NewReplacer(
	`\"`, `"`,
	`\\`, `\`,
	`\n`, "\n",
	`\t`, "\t",
	`\r`, "\r",
	`\/`, "/",
	`\u2014`, "—",
	`\u2013`, "–",
	`\u2018`, "‘",
	`\u2019`, "’",
	`\u201c`, "“",
	`\u201d`, "”",
	`\u2026`, "…",
	`\u00a0`, " ",
)

// extractStrategy recovers the final answer from a completed stream. events
// holds every decoded event in arrival order; records holds the matching raw
// record text for strategies that work below the JSON layer.
type extractStrategy interface {
	name() string
	extract(events []Event, records []string) (string, bool)
}

var extractChain = []extractStrategy{
	structuredStrategy{},
	regexStrategy{},
	scrapeStrategy{},
}

// ExtractAnswer runs the strategy chain over a completed stream and returns
// the first non-empty answer along with the name of the strategy that
// produced it. ErrNoAnswer is returned when every strategy fails; an empty
// string is never returned as a success.
func ExtractAnswer(events []Event, records []string) (answer, strategy string, err error) {
	for _, s := range extractChain {
		if answer, ok := s.extract(events, records); ok {
			return answer, s.name(), nil
		}
	}
	return "", "", ErrNoAnswer
}

// structuredStrategy reads the FINAL step's answer through proper JSON
// decoding, following one level of nested encoding.
type structuredStrategy struct{}

func (structuredStrategy) name() string { return "structured" }

func (structuredStrategy) extract(events []Event, _ []string) (string, bool) {
	for _, event := range events {
		if event.IsPlaceholder() {
			continue
		}
		for _, step := range event.Steps {
			if step.StepType != StepFinal {
				continue
			}
			if answer, ok := answerFromContent(step.Content); ok {
				return answer, true
			}
			// The upstream should send exactly one FINAL step. If it
			// sends more, the first one wins; no double-processing.
			return "", false
		}
	}
	return "", false
}

// answerFromContent pulls content["answer"], decoding a nested JSON string
// when present.
func answerFromContent(content map[string]any) (string, bool) {
	rawAnswer, ok := content["answer"]
	if !ok {
		return "", false
	}
	switch v := rawAnswer.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "{") {
			if !gjson.Valid(trimmed) {
				// Broken nested JSON: leave it to the regex strategy.
				return "", false
			}
			if s := gjson.Get(trimmed, "answer").String(); s != "" {
				return s, true
			}
			return "", false
		}
		// Some responses carry the answer as a plain string.
		if trimmed != "" {
			return v, true
		}
		return "", false
	case map[string]any:
		if s, ok := v["answer"].(string); ok && s != "" {
			return s, true
		}
		return "", false
	default:
		return "", false
	}
}

// regexStrategy recovers the answer directly from raw record text when the
// nested JSON is too broken to decode. It anchors on the doubled-escaped
// answer prefix and unescapes the capture by literal substitution.
type regexStrategy struct{}

func (regexStrategy) name() string { return "regex" }

func (regexStrategy) extract(_ []Event, records []string) (string, bool) {
	for _, record := range records {
		if !finalStepMarkerRE.MatchString(record) {
			continue
		}
		match := nestedAnswerRE.FindStringSubmatch(record)
		if match == nil {
			continue
		}
		answer := strings.TrimSpace(jsonEscapeReplacer.Replace(match[1]))
		if len(answer) > minRegexAnswerLen {
			return answer, true
		}
	}
	return "", false
}

// scrapeStrategy is the last resort: capture everything after the first
// answer marker, strip JSON structural characters, and accept only
// substantial content.
type scrapeStrategy struct{}

func (scrapeStrategy) name() string { return "scrape" }

func (scrapeStrategy) extract(_ []Event, records []string) (string, bool) {
	for _, record := range records {
		if !finalStepMarkerRE.MatchString(record) {
			continue
		}
		match := broadAnswerRE.FindStringSubmatch(record)
		if match == nil {
			continue
		}
		cleaned := structuralCharsRE.ReplaceAllString(match[1], " ")
		cleaned = strings.TrimSpace(whitespaceRunRE.ReplaceAllString(cleaned, " "))
		if len(cleaned) > minScrapeAnswerLen {
			return cleaned, true
		}
	}
	return "", false
}
