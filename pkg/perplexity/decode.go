package perplexity

import (
	"encoding/json"
	"strings"
	"time"
)

// recordDelimiter separates event records on the wire. The upstream does not
// use standard blank-line SSE framing; records end with a literal CRLF pair.
const recordDelimiter = "\r\n\r\n"

// EventStep is one step entry inside a decoded event.
type EventStep struct {
	StepType string
	Content  map[string]any
}

// Event is one decoded unit from the stream. ReceivedAt is assigned at
// decode time; the upstream supplies no per-event timestamp.
type Event struct {
	Raw        map[string]any
	Steps      []EventStep
	ReceivedAt time.Time

	// DecodeErr is set when the record could not be parsed. The event then
	// carries an inline error placeholder in Raw and decoding continues;
	// one bad event never aborts the stream.
	DecodeErr error
}

// IsPlaceholder reports whether this event stands in for an undecodable
// record.
func (e Event) IsPlaceholder() bool {
	return e.DecodeErr != nil
}

// stripFrame removes SSE-style framing from a record and reports whether the
// record is the end-of-stream sentinel. Both CRLF and already-normalized LF
// frame markers are recognized.
func stripFrame(record string) (payload string, end bool, ok bool) {
	record = strings.TrimSpace(record)
	switch {
	case record == "", record == "[DONE]":
		return "", record == "[DONE]", false
	case strings.HasPrefix(record, "event: end_of_stream"):
		return "", true, false
	case strings.HasPrefix(record, "event: message\r\ndata: "):
		return record[len("event: message\r\ndata: "):], false, true
	case strings.HasPrefix(record, "event: message\ndata: "):
		return record[len("event: message\ndata: "):], false, true
	case strings.HasPrefix(record, "data: "):
		payload = strings.TrimSpace(record[len("data: "):])
		if payload == "[DONE]" {
			return "", true, false
		}
		return payload, false, true
	default:
		return "", false, false
	}
}

// unescapeRecord turns the literal backslash-n/backslash-r sequences the
// upstream embeds as text into real line breaks, then normalizes CRLF/CR to
// LF. This runs per record, after delimiter splitting, and only as a
// recovery pass once a direct JSON decode has failed: applying it to a
// well-formed record would corrupt genuine newline escapes inside answer
// text by unescaping them twice.
func unescapeRecord(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\r`, "\r")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// DecodeEvent parses one framed record into an Event. Decoding is idempotent
// and side-effect-free: the same record always yields a structurally equal
// result (timestamps excepted, supplied by the caller).
func DecodeEvent(record string, now time.Time) (Event, bool) {
	payload, end, ok := stripFrame(record)
	if end || !ok {
		return Event{}, false
	}

	var raw map[string]any
	err := json.Unmarshal([]byte(payload), &raw)
	if err != nil {
		// The upstream sometimes double-escapes an entire record. Retry
		// with the escape sequences collapsed before giving up.
		if retryErr := json.Unmarshal([]byte(unescapeRecord(payload)), &raw); retryErr == nil {
			err = nil
		}
	}
	if err != nil {
		return Event{
			Raw:        map[string]any{"error": "parse error", "message": err.Error()},
			ReceivedAt: now,
			DecodeErr:  err,
		}, true
	}

	// The "text" (or "content") field is frequently a JSON-encoded string
	// that needs a second decode pass. Failure keeps the original value.
	for _, key := range []string{"text", "content"} {
		if s, isString := raw[key].(string); isString {
			var nested any
			if err := json.Unmarshal([]byte(s), &nested); err == nil {
				raw[key] = nested
			}
		}
	}

	return Event{
		Raw:        raw,
		Steps:      extractSteps(raw),
		ReceivedAt: now,
	}, true
}

func extractSteps(raw map[string]any) []EventStep {
	list, ok := raw["text"].([]any)
	if !ok {
		return nil
	}
	steps := make([]EventStep, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		step := EventStep{StepType: "unknown"}
		if st, ok := entry["step_type"].(string); ok && st != "" {
			step.StepType = st
		}
		if content, ok := entry["content"].(map[string]any); ok {
			step.Content = content
		}
		steps = append(steps, step)
	}
	return steps
}

// splitRecords cuts a fully-buffered response body into framed records. Used
// by the collect-mode path; the streaming path splits incrementally.
func splitRecords(body string) []string {
	parts := strings.Split(body, recordDelimiter)
	records := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			records = append(records, part)
		}
	}
	return records
}
