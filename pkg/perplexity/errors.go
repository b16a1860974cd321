package perplexity

import (
	"errors"
	"fmt"
)

// ErrNoAnswer is returned when the stream completed but no final answer could
// be recovered through any extraction strategy. It is distinct from an
// empty-but-present answer, which never occurs: extraction strategies reject
// empty strings.
var ErrNoAnswer = errors.New("no answer found in response")

// ConfigError reports an invalid mode/model/profile/source combination. It is
// always raised before any network call.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// TransportError reports a failed HTTP exchange with the upstream. Status is
// zero for network-level failures (timeout, connection reset).
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream http %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UploadError reports a failed file upload, naming the offending file. Any
// upload failure aborts the whole request; partial uploads are not retried.
type UploadError struct {
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
