package perplexity

import "time"

// SearchRequest describes one search call. It is built by the caller and
// discarded after the call; nothing in it is retained by the client.
type SearchRequest struct {
	Query     string
	Mode      string
	Model     string
	Sources   []string
	Language  string
	Incognito bool

	// Files maps filename to raw content. Non-empty triggers the upload
	// sub-protocol before the search request is sent.
	Files map[string][]byte

	// FollowUp continues a prior conversation turn.
	FollowUp *FollowUp

	// Profile selects a static query-augmentation preset; resolved by the
	// caller (pkg/profiles) into Instruction before reaching the client.
	Instruction string

	PromptSource           string
	QuerySource            string
	AskForToolConfirmation *bool
	SearchFocus            string
	Timezone               string

	// Timeout overrides the client default for this call.
	Timeout time.Duration
}

// FollowUp replays a prior turn's identifiers so the upstream treats the new
// query as a continuation. The caller owns persisting these across turns.
type FollowUp struct {
	BackendUUID    string
	ReadWriteToken string
	Attachments    []string
}

// Source is one ranked reference backing an answer. Extra keeps fields the
// structured projection dropped.
type Source struct {
	Name  string         `json:"name,omitempty"`
	URL   string         `json:"url,omitempty"`
	Extra map[string]any `json:"-"`
}

// SearchResult is the durable artifact of one search.
type SearchResult struct {
	Query          string   `json:"query"`
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	Mode           string   `json:"mode"`
	Model          string   `json:"model,omitempty"`
	Language       string   `json:"language"`
	Timestamp      float64  `json:"timestamp"`
	BackendUUID    string   `json:"backend_uuid,omitempty"`
	ContextUUID    string   `json:"context_uuid,omitempty"`
	ReadWriteToken string   `json:"read_write_token,omitempty"`
	RelatedQueries []string `json:"related_queries,omitempty"`

	// Chunks holds raw answer fragments kept for debugging.
	Chunks []string `json:"chunks,omitempty"`
}

// StreamChunk is the per-event projection surfaced by SearchStream. Raw keeps
// the full decoded event so consumers can recover fields the projection
// dropped (continuation tokens in particular).
type StreamChunk struct {
	StepType  string         `json:"step_type"`
	Content   map[string]any `json:"content"`
	Timestamp float64        `json:"timestamp"`
	Raw       map[string]any `json:"raw_data,omitempty"`
}

// Step types the upstream is known to emit. Unknown step types pass through
// untouched.
const (
	StepSearchWeb     = "SEARCH_WEB"
	StepSearchResults = "SEARCH_RESULTS"
	StepFinal         = "FINAL"
)
