package perplexity

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const upstreamVersion = "2.18"

var supportedBlockUseCases = []string{
	"answer_modes", "media_items", "knowledge_cards", "inline_entity_cards",
	"place_widgets", "finance_widgets", "sports_widgets", "shopping_widgets",
	"jobs_widgets", "search_result_widgets", "clarification_responses",
	"inline_images", "inline_assets", "inline_finance_widgets",
	"placeholder_cards", "diff_blocks", "inline_knowledge_cards",
	"entity_group_v2", "refinement_filters", "canvas_mode", "maps_preview",
}

// buildPayload assembles the upstream request body. Validation happens here,
// before any network call; the only network activity is the file-upload
// sub-protocol when req.Files is non-empty.
func (c *Client) buildPayload(ctx context.Context, req SearchRequest) (map[string]any, error) {
	sources := req.Sources
	if len(sources) == 0 {
		sources = []string{SourceWeb}
	}
	if err := ValidateSources(sources); err != nil {
		return nil, err
	}
	pref, err := ResolveModel(req.Mode, req.Model)
	if err != nil {
		return nil, err
	}

	query := req.Query
	if instruction := strings.TrimSpace(req.Instruction); instruction != "" {
		query = query + ". " + instruction
	}

	attachments := make([]string, 0, len(req.Files))
	for filename, content := range req.Files {
		assetURL, err := c.uploadFile(ctx, filename, content)
		if err != nil {
			return nil, &UploadError{Filename: filename, Err: err}
		}
		attachments = append(attachments, assetURL)
	}

	var lastBackendUUID, readWriteToken any
	if req.FollowUp != nil {
		attachments = append(attachments, req.FollowUp.Attachments...)
		if req.FollowUp.BackendUUID != "" {
			lastBackendUUID = req.FollowUp.BackendUUID
		}
		if req.FollowUp.ReadWriteToken != "" {
			readWriteToken = req.FollowUp.ReadWriteToken
		}
	}

	language := req.Language
	if language == "" {
		language = DefaultLanguage
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = DefaultTimezone
	}
	searchFocus := req.SearchFocus
	if searchFocus == "" {
		searchFocus = DefaultSearchFocus
	}
	promptSource := req.PromptSource
	if promptSource == "" {
		promptSource = "user"
	}
	querySource := req.QuerySource
	if querySource == "" {
		querySource = "home"
	}
	askConfirmation := true
	if req.AskForToolConfirmation != nil {
		askConfirmation = *req.AskForToolConfirmation
	}

	upstreamMode := "copilot"
	if req.Mode == ModeAuto {
		upstreamMode = "concise"
	}

	params := map[string]any{
		"attachments":                          attachments,
		"language":                             language,
		"timezone":                             timezone,
		"search_focus":                         searchFocus,
		"search_recency_filter":                nil,
		"frontend_context_uuid":                uuid.NewString(),
		"frontend_uuid":                        uuid.NewString(),
		"mode":                                 upstreamMode,
		"model_preference":                     pref,
		"is_related_query":                     false,
		"is_sponsored":                         false,
		"visitor_id":                           c.visitorID,
		"user_nextauth_id":                     nilIfEmpty(c.userNextauthID),
		"prompt_source":                        promptSource,
		"query_source":                         querySource,
		"is_incognito":                         req.Incognito,
		"time_from_first_type":                 nil,
		"local_search_enabled":                 false,
		"use_schematized_api":                  true,
		"send_back_text_in_streaming_api":      false,
		"supported_block_use_cases":            supportedBlockUseCases,
		"client_coordinates":                   nil,
		"mentions":                             []string{},
		"dsl_query":                            query,
		"skip_search_enabled":                  true,
		"is_nav_suggestions_disabled":          false,
		"always_search_override":               false,
		"override_no_search":                   false,
		"comet_max_assistant_enabled":          false,
		"should_ask_for_mcp_tool_confirmation": askConfirmation,
		"last_backend_uuid":                    lastBackendUUID,
		"read_write_token":                     readWriteToken,
		"source":                               "default",
		"sources":                              sources,
		"version":                              upstreamVersion,
	}

	return map[string]any{
		"query_str": query,
		"params":    params,
	}, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
