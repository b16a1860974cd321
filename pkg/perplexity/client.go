package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const searchPath = "/rest/sse/perplexity_ask"

// Client talks to the upstream search API. One Client is safe for concurrent
// use; per-call state lives in SearchRequest.
type Client struct {
	cfg     *Config
	http    *http.Client
	log     zerolog.Logger
	cookies map[string]string

	visitorID      string
	userNextauthID string
}

// NewClient builds a client from config. Session cookies are loaded from disk
// immediately; the identity probe is deferred to Identify so construction
// never touches the network.
func NewClient(cfg *Config, log zerolog.Logger) *Client {
	cfg = cfg.WithDefaults()
	c := &Client{
		cfg: cfg,
		// No client-level timeout: streamed bodies outlive any fixed
		// deadline. Cancellation is per-request via context.
		http:      &http.Client{},
		log:       log.With().Str("component", "perplexity").Logger(),
		cookies:   LoadCookies(cfg.CookiePath),
		visitorID: uuid.NewString(),
	}
	if len(c.cookies) == 0 {
		c.log.Warn().Msg("No session cookies found, running anonymously")
	}
	return c
}

// Identify probes the upstream auth endpoint and caches the nextauth user id
// for subsequent payloads. Call once at startup; failures are non-fatal.
func (c *Client) Identify(ctx context.Context) SessionInfo {
	if len(c.cookies) > 0 {
		c.fetchSessionIdentity(ctx)
	}
	return c.Session()
}

// Session reports the client's current authenticated state.
func (c *Client) Session() SessionInfo {
	return SessionInfo{
		HasCookies:  len(c.cookies) > 0,
		UserID:      c.userNextauthID,
		OwnsAccount: c.userNextauthID != "",
	}
}

// applyHeaders sets the browser-mimicking headers and the session cookies on
// an outgoing request.
func (c *Client) applyHeaders(req *http.Request) {
	for key, values := range browserHeaders(c.cfg.UserAgent) {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}
	if len(c.cookies) > 0 {
		pairs := make([]string, 0, len(c.cookies))
		for name, value := range c.cookies {
			pairs = append(pairs, name+"="+value)
		}
		req.Header.Set("Cookie", strings.Join(pairs, "; "))
	}
}

func (c *Client) timeoutFor(req SearchRequest) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return time.Duration(c.cfg.TimeoutSecs) * time.Second
}

// open validates the request, builds the payload, and issues the upstream
// POST. The returned cancel func bounds the whole exchange including body
// reads.
func (c *Client) open(ctx context.Context, req SearchRequest) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeoutFor(req))

	payload, err := c.buildPayload(ctx, req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	c.applyHeaders(httpReq)

	c.log.Debug().
		Str("mode", req.Mode).
		Str("model", req.Model).
		Strs("sources", req.Sources).
		Int("attachments", len(req.Files)).
		Msg("Sending search request")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, &TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, nil, &TransportError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return resp, cancel, nil
}

// Search runs one search to completion and returns the shaped result. The
// whole body is buffered before extraction so the fallback strategies can see
// raw record text.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	resp, cancel, err := c.open(ctx, req)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	records := collectRecords(string(raw))
	events := make([]Event, 0, len(records))
	decoded := records[:0]
	for _, record := range records {
		event, ok := DecodeEvent(record, time.Now())
		if !ok {
			continue
		}
		events = append(events, event)
		decoded = append(decoded, record)
	}
	records = decoded

	answer, strategy, err := ExtractAnswer(events, records)
	if err != nil {
		c.log.Warn().Int("events", len(events)).Msg("No answer found in completed stream")
		return nil, err
	}
	c.log.Debug().Str("strategy", strategy).Int("events", len(events)).Msg("Extracted final answer")

	return BuildResult(req, answer, events), nil
}

// SearchStream opens a search and returns the live event stream. The caller
// iterates with Next and must Close the stream.
func (c *Client) SearchStream(ctx context.Context, req SearchRequest) (*Stream, error) {
	resp, cancel, err := c.open(ctx, req)
	if err != nil {
		return nil, err
	}
	return newStream(resp.Body, cancel), nil
}

// collectRecords splits a fully-buffered body into records. When the body
// carries no wire delimiter at all it arrived double-escaped; recover by
// collapsing escapes globally and splitting on blank lines.
func collectRecords(body string) []string {
	if strings.Contains(body, recordDelimiter) {
		return splitRecords(body)
	}
	loose := unescapeRecord(body)
	parts := strings.Split(loose, "\n\n")
	records := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			records = append(records, part)
		}
	}
	return records
}
