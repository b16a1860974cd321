package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zykairotis/perplexity-bridge/pkg/convstore"
	"github.com/zykairotis/perplexity-bridge/pkg/perplexity"
	"github.com/zykairotis/perplexity-bridge/pkg/profiles"
	"github.com/zykairotis/perplexity-bridge/pkg/spaces"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": float64(time.Now().UnixNano()) / float64(time.Second),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.client.Session())
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"modes":                perplexity.SupportedModes(),
		"pro_models":           perplexity.ModelsForMode(perplexity.ModePro),
		"reasoning_models":     perplexity.ModelsForMode(perplexity.ModeReasoning),
		"deep_research_models": perplexity.ModelsForMode(perplexity.ModeDeepResearch),
		"deep_lab_models":      perplexity.ModelsForMode(perplexity.ModeDeepLab),
		"sources":              perplexity.ValidSources(),
	})
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": profiles.List(),
		"usage":    "Add profile parameter to search requests to enhance query effectiveness",
	})
}

type searchRequest struct {
	Query          string   `json:"query"`
	Mode           string   `json:"mode"`
	Model          string   `json:"model"`
	Sources        []string `json:"sources"`
	Profile        string   `json:"profile"`
	Language       string   `json:"language"`
	Incognito      bool     `json:"incognito"`
	Stream         bool     `json:"stream"`
	ConversationID string   `json:"conversation_id"`
	Space          string   `json:"space"`
	SearchFocus    string   `json:"search_focus"`
	Timezone       string   `json:"timezone"`
}

// toSearch validates and converts the API request. Space names resolve
// through the registry into collection UUIDs carried as the query source.
func (s *Server) toSearch(req searchRequest) (perplexity.SearchRequest, error) {
	profile, ok := profiles.Validate(req.Profile)
	if !ok {
		return perplexity.SearchRequest{}, &perplexity.ConfigError{Field: "profile", Value: req.Profile, Reason: "unknown search profile"}
	}
	mode := perplexity.NormalizeMode(req.Mode)
	if mode == "" {
		mode = perplexity.ModeAuto
	}
	sources := req.Sources
	if len(sources) == 0 {
		sources = s.cfg.Sources
	}

	search := perplexity.SearchRequest{
		Query:       req.Query,
		Mode:        mode,
		Model:       req.Model,
		Sources:     sources,
		Language:    req.Language,
		Incognito:   req.Incognito || s.cfg.Incognito,
		Instruction: profiles.Instruction(profile),
		SearchFocus: req.SearchFocus,
		Timezone:    req.Timezone,
	}
	if req.Space != "" {
		spaceUUID, ok := spaces.Resolve(s.cfg.SpacesPath, req.Space)
		if !ok {
			return perplexity.SearchRequest{}, &perplexity.ConfigError{Field: "space", Value: req.Space, Reason: "not found in spaces registry"}
		}
		search.QuerySource = "collection:" + spaceUUID
	}
	if req.ConversationID != "" {
		if turn, ok := s.conversations.Get(req.ConversationID); ok {
			search.FollowUp = &perplexity.FollowUp{
				BackendUUID:    turn.BackendUUID,
				ReadWriteToken: turn.ReadWriteToken,
				Attachments:    turn.Attachments,
			}
		}
	}
	return search, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeOpenAIError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
		return
	}
	search, err := s.toSearch(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.Stream {
		s.streamSearch(w, r, req, search)
		return
	}

	result, err := s.client.Search(r.Context(), search)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.rememberTurn(req.ConversationID, search.Query, result)
	writeJSON(w, http.StatusOK, result)
}

// streamSearch relays upstream events as SSE, then a final frame with the
// shaped result.
func (s *Server) streamSearch(w http.ResponseWriter, r *http.Request, req searchRequest, search perplexity.SearchRequest) {
	stream, err := s.client.SearchStream(r.Context(), search)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for stream.Next() {
		for _, chunk := range stream.Event().Chunks() {
			frame, err := json.Marshal(chunk)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", frame)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
	if err := stream.Err(); err != nil {
		frame, _ := json.Marshal(map[string]any{"error": err.Error()})
		fmt.Fprintf(w, "data: %s\n\n", frame)
		return
	}

	answer, _, err := perplexity.ExtractAnswer(stream.Events(), stream.Records())
	final := map[string]any{"done": true}
	if err != nil {
		final["error"] = err.Error()
	} else {
		result := perplexity.BuildResult(search, answer, stream.Events())
		s.rememberTurn(req.ConversationID, search.Query, result)
		final["result"] = result
	}
	frame, _ := json.Marshal(final)
	fmt.Fprintf(w, "data: %s\n\n", frame)
	if flusher != nil {
		flusher.Flush()
	}
}

// handleSearchFiles accepts multipart uploads alongside the query fields.
func (s *Server) handleSearchFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeOpenAIError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: "+err.Error())
		return
	}

	req := searchRequest{
		Query:          r.FormValue("query"),
		Mode:           r.FormValue("mode"),
		Model:          r.FormValue("model"),
		Profile:        r.FormValue("profile"),
		Language:       r.FormValue("language"),
		ConversationID: r.FormValue("conversation_id"),
		Space:          r.FormValue("space"),
		SearchFocus:    r.FormValue("search_focus"),
		Timezone:       r.FormValue("timezone"),
		Incognito:      r.FormValue("incognito") == "true",
	}
	if raw := strings.TrimSpace(r.FormValue("sources")); raw != "" {
		req.Sources = strings.Split(raw, ",")
	}
	if strings.TrimSpace(req.Query) == "" {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
		return
	}
	search, err := s.toSearch(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if r.MultipartForm != nil {
		search.Files = make(map[string][]byte)
		for _, headers := range r.MultipartForm.File {
			for _, header := range headers {
				file, err := header.Open()
				if err != nil {
					writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "read upload: "+err.Error())
					return
				}
				content, err := io.ReadAll(file)
				file.Close()
				if err != nil {
					writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "read upload: "+err.Error())
					return
				}
				search.Files[header.Filename] = content
			}
		}
	}

	result, err := s.client.Search(r.Context(), search)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.rememberTurn(req.ConversationID, search.Query, result)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) rememberTurn(conversationID, query string, result *perplexity.SearchResult) {
	if conversationID == "" || result.BackendUUID == "" {
		return
	}
	s.conversations.Put(conversationID, convstore.Turn{
		Query:          query,
		BackendUUID:    result.BackendUUID,
		ContextUUID:    result.ContextUUID,
		ReadWriteToken: result.ReadWriteToken,
	})
}

type createSpaceRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Emoji        string `json:"emoji"`
	Instructions string `json:"instructions"`
	Access       int    `json:"access"`
	AutoSave     bool   `json:"auto_save"`
}

func (s *Server) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeOpenAIError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	var req createSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
		return
	}

	space, err := s.client.CreateSpace(r.Context(), perplexity.SpaceRequest{
		Title:        req.Title,
		Description:  req.Description,
		Emoji:        req.Emoji,
		Instructions: req.Instructions,
		Access:       req.Access,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.AutoSave {
		if err := spaces.Add(s.cfg.SpacesPath, space.Title, space.UUID); err != nil {
			s.log.Warn().Err(err).Msg("Space created but registry save failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"uuid":          space.UUID,
		"title":         space.Title,
		"slug":          space.Slug,
		"auto_saved":    req.AutoSave,
		"full_response": space,
	})
}

func (s *Server) handleListSpaces(w http.ResponseWriter, r *http.Request) {
	file, err := spaces.Load(spaces.ResolveStorePath(s.cfg.SpacesPath))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"spaces": file.Spaces,
		"count":  len(file.Spaces),
	})
}
