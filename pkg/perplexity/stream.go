package perplexity

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"time"
)

const (
	// streamScanInitial and streamScanMax size the record scanner. Deep
	// research responses routinely carry multi-megabyte FINAL records.
	streamScanInitial = 64 * 1024
	streamScanMax     = 16 * 1024 * 1024
)

// Stream iterates decoded events from an open response body. Records are
// split on the wire delimiter as bytes arrive; each call to Next advances to
// the next decodable event. Close must be called exactly once.
type Stream struct {
	body    io.ReadCloser
	cancel  context.CancelFunc
	scanner *bufio.Scanner

	cur     Event
	err     error
	ended   bool
	events  []Event
	records []string
}

func newStream(body io.ReadCloser, cancel context.CancelFunc) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, streamScanInitial), streamScanMax)
	scanner.Split(splitEventRecords)
	return &Stream{body: body, cancel: cancel, scanner: scanner}
}

// splitEventRecords is a bufio.SplitFunc cutting the body on the literal
// CRLF-pair delimiter. A trailing partial record at EOF is emitted as-is.
func splitEventRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, []byte(recordDelimiter)); i >= 0 {
		return i + len(recordDelimiter), data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Next advances to the next decoded event, skipping frames that carry no
// payload. It returns false at end of stream or on a transport error.
func (s *Stream) Next() bool {
	if s.ended {
		return false
	}
	for s.scanner.Scan() {
		record := s.scanner.Text()
		event, ok := DecodeEvent(record, time.Now())
		if !ok {
			if _, end, _ := stripFrame(record); end {
				s.ended = true
				return false
			}
			continue
		}
		s.records = append(s.records, record)
		s.events = append(s.events, event)
		s.cur = event
		return true
	}
	s.ended = true
	if err := s.scanner.Err(); err != nil {
		s.err = &TransportError{Err: err}
	}
	return false
}

// Event returns the event Next last advanced to.
func (s *Stream) Event() Event {
	return s.cur
}

// Err returns the transport error that terminated the stream, if any. An
// end_of_stream sentinel or clean EOF is not an error.
func (s *Stream) Err() error {
	return s.err
}

// Events returns every event decoded so far, in arrival order.
func (s *Stream) Events() []Event {
	return s.events
}

// Records returns the raw record text matching Events, for the extraction
// strategies that work below the JSON layer.
func (s *Stream) Records() []string {
	return s.records
}

// Close releases the underlying response body and cancels the request
// context. Safe to call after the stream is drained.
func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.body.Close()
}

// Chunks projects the event into the per-step stream surface. Events without
// recognizable steps yield a single chunk carrying only the raw payload.
func (e Event) Chunks() []StreamChunk {
	ts := float64(e.ReceivedAt.UnixNano()) / float64(time.Second)
	if len(e.Steps) == 0 {
		return []StreamChunk{{StepType: "unknown", Timestamp: ts, Raw: e.Raw}}
	}
	chunks := make([]StreamChunk, 0, len(e.Steps))
	for _, step := range e.Steps {
		chunks = append(chunks, StreamChunk{
			StepType:  step.StepType,
			Content:   step.Content,
			Timestamp: ts,
			Raw:       e.Raw,
		})
	}
	return chunks
}
