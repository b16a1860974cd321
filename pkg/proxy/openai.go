package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/zykairotis/perplexity-bridge/pkg/convstore"
	"github.com/zykairotis/perplexity-bridge/pkg/perplexity"
	"github.com/zykairotis/perplexity-bridge/pkg/profiles"
	"github.com/zykairotis/perplexity-bridge/pkg/tokens"
)

// conversationHeader keys continuation state for /v1/chat/completions. The
// OpenAI wire format has no conversation id, so callers opt in via header;
// the "user" field works as a fallback key.
const conversationHeader = "X-Conversation-Id"

// parseModelName splits a façade model name ("pro-sonar", "reasoning-r1")
// into upstream mode and model. The deep modes carry fixed models; a bare
// name defaults to pro mode.
func parseModelName(model string) (mode, preference string) {
	parts := strings.SplitN(model, "-", 2)
	if len(parts) == 2 {
		switch parts[0] {
		case "deep":
			return perplexity.ModeDeepResearch, "pplx_alpha"
		case "lab":
			return perplexity.ModeDeepLab, "pplx_beta"
		}
		return parts[0], parts[1]
	}
	return perplexity.ModePro, model
}

// servedModels is the façade's advertised model list. Any valid mode-model
// pair works; these are the ones worth advertising to pickers.
var servedModels = []string{
	"pro-sonar",
	"pro-claude37sonnetthinking",
	"pro-claude45sonnet",
	"pro-claude45sonnetthinking",
	"pro-gpt5",
	"pro-gpt5thinking",
	"pro-grok4",
	"reasoning-r1",
	"deep-research",
	"lab-research",
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model        string        `json:"model"`
	Messages     []chatMessage `json:"messages"`
	Stream       bool          `json:"stream"`
	User         string        `json:"user"`
	Profile      string        `json:"profile"`
	PromptSource string        `json:"prompt_source"`
	QuerySource  string        `json:"query_source"`
	AskConfirm   *bool         `json:"should_ask_for_mcp_tool_confirmation"`
	SearchFocus  string        `json:"search_focus"`
	Timezone     string        `json:"timezone"`
}

type completionRequest struct {
	Model        string          `json:"model"`
	Prompt       json.RawMessage `json:"prompt"`
	Stream       bool            `json:"stream"`
	User         string          `json:"user"`
	Profile      string          `json:"profile"`
	PromptSource string          `json:"prompt_source"`
	QuerySource  string          `json:"query_source"`
	AskConfirm   *bool           `json:"should_ask_for_mcp_tool_confirmation"`
	SearchFocus  string          `json:"search_focus"`
	Timezone     string          `json:"timezone"`
}

// promptText accepts the OpenAI prompt union: a string, a list of strings, or
// token id arrays (described, not decoded).
func promptText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("prompt is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "\n"), nil
	}
	var ids []int
	if err := json.Unmarshal(raw, &ids); err == nil {
		return fmt.Sprintf("[Token sequence of length %d]", len(ids)), nil
	}
	var batches [][]int
	if err := json.Unmarshal(raw, &batches); err == nil {
		return fmt.Sprintf("[Multiple token sequences: %d sequences]", len(batches)), nil
	}
	return "", fmt.Errorf("prompt must be a string or list of strings")
}

// messagesToQuery flattens a chat history into one upstream query. Role
// prefixes are dropped; the upstream is a search engine, not a chat model.
func messagesToQuery(messages []chatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n")
}

func (s *Server) buildSearchRequest(model, query, profile string, req *perplexity.SearchRequest) error {
	mode, preference := parseModelName(model)
	mode = perplexity.NormalizeMode(mode)

	normalized, ok := profiles.Validate(profile)
	if !ok {
		return &perplexity.ConfigError{Field: "profile", Value: profile, Reason: "unknown search profile"}
	}

	req.Query = query
	req.Mode = mode
	req.Model = preference
	req.Sources = s.cfg.Sources
	req.Incognito = s.cfg.Incognito
	req.Instruction = profiles.Instruction(normalized)
	return nil
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeOpenAIError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
		return
	}
	prompt, err := promptText(req.Prompt)
	if err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	var search perplexity.SearchRequest
	if err := s.buildSearchRequest(req.Model, prompt, req.Profile, &search); err != nil {
		s.writeError(w, err)
		return
	}
	search.PromptSource = req.PromptSource
	search.QuerySource = req.QuerySource
	search.AskForToolConfirmation = req.AskConfirm
	search.SearchFocus = req.SearchFocus
	search.Timezone = req.Timezone

	result, err := s.client.Search(r.Context(), search)
	if err != nil {
		s.writeError(w, err)
		return
	}

	usage, err := tokens.CountUsage(prompt, result.Answer, req.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      "cmpl-" + xid.New().String(),
		"object":  "text_completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{
			{
				"text":          result.Answer,
				"index":         0,
				"logprobs":      nil,
				"finish_reason": "stop",
			},
		},
		"usage": usage,
	})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeOpenAIError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "at least one message is required")
		return
	}
	query := messagesToQuery(req.Messages)
	if query == "" {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "messages carry no content")
		return
	}

	var search perplexity.SearchRequest
	if err := s.buildSearchRequest(req.Model, query, req.Profile, &search); err != nil {
		s.writeError(w, err)
		return
	}
	search.PromptSource = req.PromptSource
	search.QuerySource = req.QuerySource
	search.AskForToolConfirmation = req.AskConfirm
	search.SearchFocus = req.SearchFocus
	search.Timezone = req.Timezone

	// Continuation is keyed explicitly, never by ambient global state.
	conversationID := r.Header.Get(conversationHeader)
	if conversationID == "" {
		conversationID = req.User
	}
	if conversationID != "" {
		if turn, ok := s.conversations.Get(conversationID); ok {
			search.FollowUp = &perplexity.FollowUp{
				BackendUUID:    turn.BackendUUID,
				ReadWriteToken: turn.ReadWriteToken,
				Attachments:    turn.Attachments,
			}
			// Only the latest user message is new content on a follow-up.
			if last := lastUserContent(req.Messages); last != "" {
				search.Query = last
			}
		}
	}

	result, err := s.client.Search(r.Context(), search)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if conversationID != "" && result.BackendUUID != "" {
		s.conversations.Put(conversationID, convstore.Turn{
			Query:          search.Query,
			BackendUUID:    result.BackendUUID,
			ContextUUID:    result.ContextUUID,
			ReadWriteToken: result.ReadWriteToken,
		})
	}

	usage, err := tokens.CountUsage(search.Query, result.Answer, req.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id := "chatcmpl-" + xid.New().String()
	created := time.Now().Unix()

	if req.Stream {
		s.streamChatCompletion(w, id, created, req.Model, result.Answer)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"object":  "chat.completion",
		"created": created,
		"model":   req.Model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": result.Answer,
				},
				"finish_reason": "stop",
			},
		},
		"usage": usage,
	})
}

func lastUserContent(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}

// streamChatCompletion replays a finished answer as OpenAI chunk frames. The
// upstream only yields the final answer at end of stream, so there is one
// content delta.
func (s *Server) streamChatCompletion(w http.ResponseWriter, id string, created int64, model, answer string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	writeChunk := func(delta map[string]any, finish any) {
		frame, _ := json.Marshal(map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": created,
			"model":   model,
			"choices": []map[string]any{
				{"index": 0, "delta": delta, "finish_reason": finish},
			},
		})
		fmt.Fprintf(w, "data: %s\n\n", frame)
		if flusher != nil {
			flusher.Flush()
		}
	}

	writeChunk(map[string]any{"role": "assistant"}, nil)
	writeChunk(map[string]any{"content": answer}, nil)
	writeChunk(map[string]any{}, "stop")
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeOpenAIError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	created := time.Now().Unix()
	data := make([]map[string]any, 0, len(servedModels))
	for _, model := range servedModels {
		data = append(data, map[string]any{
			"id":         model,
			"object":     "model",
			"created":    created,
			"owned_by":   "perplexity",
			"permission": []any{},
			"root":       model,
			"parent":     nil,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

// handleTags serves the Ollama-style model listing some clients probe for.
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	models := make([]map[string]any, 0, len(servedModels))
	for _, model := range servedModels {
		models = append(models, map[string]any{"name": model, "model": model, "size": 0})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}
