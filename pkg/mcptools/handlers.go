package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zykairotis/perplexity-bridge/pkg/convstore"
	"github.com/zykairotis/perplexity-bridge/pkg/perplexity"
	"github.com/zykairotis/perplexity-bridge/pkg/profiles"
	"github.com/zykairotis/perplexity-bridge/pkg/spaces"
)

type searchArgs struct {
	Query       string   `json:"query"`
	Mode        string   `json:"mode"`
	Model       string   `json:"model"`
	Sources     []string `json:"sources"`
	Profile     string   `json:"profile"`
	Language    string   `json:"language"`
	RawMode     bool     `json:"raw_mode"`
	SearchFocus string   `json:"search_focus"`
	Timezone    string   `json:"timezone"`
}

// toSearchRequest applies tool-level defaults and validation shared by every
// search-backed tool.
func (s *Service) toSearchRequest(args searchArgs) (perplexity.SearchRequest, error) {
	if strings.TrimSpace(args.Query) == "" {
		return perplexity.SearchRequest{}, fmt.Errorf("query is required")
	}
	mode := perplexity.NormalizeMode(args.Mode)
	if mode == "" {
		mode = perplexity.ModePro
	}
	model := args.Model
	if model == "" && mode == perplexity.ModePro {
		model = "claude45sonnet"
	}
	profile := args.Profile
	if profile == "" {
		profile = profiles.Research
	}
	normalized, ok := profiles.Validate(profile)
	if !ok {
		return perplexity.SearchRequest{}, fmt.Errorf("invalid profile %q, available: %s", profile, strings.Join(profiles.Names(), ", "))
	}
	return perplexity.SearchRequest{
		Query:       args.Query,
		Mode:        mode,
		Model:       model,
		Sources:     args.Sources,
		Language:    args.Language,
		Instruction: profiles.Instruction(normalized),
		SearchFocus: args.SearchFocus,
		Timezone:    args.Timezone,
	}, nil
}

func (s *Service) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args searchArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	search, err := s.toSearchRequest(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	s.log.Info().Str("tool", "search_perplexity").Str("mode", search.Mode).Msg("Tool call")
	result, err := s.client.Search(ctx, search)
	if err != nil {
		return errorResult("search failed: " + err.Error()), nil
	}
	return renderResult(result, args.RawMode), nil
}

type chatArgs struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Mode           string `json:"mode"`
	Model          string `json:"model"`
	Profile        string `json:"profile"`
	RawMode        bool   `json:"raw_mode"`
}

func (s *Service) handleChat(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args chatArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	search, err := s.toSearchRequest(searchArgs{
		Query:   args.Message,
		Mode:    args.Mode,
		Model:   args.Model,
		Profile: args.Profile,
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}

	if args.ConversationID != "" {
		if turn, ok := s.conversations.Get(args.ConversationID); ok {
			search.FollowUp = &perplexity.FollowUp{
				BackendUUID:    turn.BackendUUID,
				ReadWriteToken: turn.ReadWriteToken,
				Attachments:    turn.Attachments,
			}
		}
	}

	s.log.Info().Str("tool", "chat_with_perplexity").Str("conversation_id", args.ConversationID).Msg("Tool call")
	result, err := s.client.Search(ctx, search)
	if err != nil {
		return errorResult("chat failed: " + err.Error()), nil
	}
	if args.ConversationID != "" && result.BackendUUID != "" {
		s.conversations.Put(args.ConversationID, convstore.Turn{
			Query:          search.Query,
			BackendUUID:    result.BackendUUID,
			ContextUUID:    result.ContextUUID,
			ReadWriteToken: result.ReadWriteToken,
		})
	}
	return renderResult(result, args.RawMode), nil
}

type analyzeFileArgs struct {
	FileContent string `json:"file_content"`
	FileType    string `json:"file_type"`
	Query       string `json:"query"`
	Mode        string `json:"mode"`
	Model       string `json:"model"`
	Profile     string `json:"profile"`
	RawMode     bool   `json:"raw_mode"`
	Space       string `json:"space"`
}

func (s *Service) handleAnalyzeFile(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args analyzeFileArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	if strings.TrimSpace(args.FileContent) == "" {
		return errorResult("file_content is required"), nil
	}
	if args.Query == "" {
		args.Query = "Analyze this file content"
	}
	if args.Profile == "" {
		args.Profile = profiles.CodeAnalysis
	}
	fileType := args.FileType
	if fileType == "" {
		fileType = "text"
	}

	search, err := s.toSearchRequest(searchArgs{
		Query:   args.Query,
		Mode:    args.Mode,
		Model:   args.Model,
		Profile: args.Profile,
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	// The content rides along as an attachment so large files do not blow
	// up the query string.
	search.Files = map[string][]byte{
		"content." + extensionFor(fileType): []byte(args.FileContent),
	}
	if args.Space != "" {
		spaceUUID, ok := spaces.Resolve(s.spacesPath, args.Space)
		if !ok {
			return errorResult(fmt.Sprintf("space %q not found in registry", args.Space)), nil
		}
		search.QuerySource = "collection:" + spaceUUID
	}

	s.log.Info().Str("tool", "analyze_file_with_perplexity").Str("file_type", fileType).Msg("Tool call")
	result, err := s.client.Search(ctx, search)
	if err != nil {
		return errorResult("file analysis failed: " + err.Error()), nil
	}
	return renderResult(result, args.RawMode), nil
}

// extensionFor maps a declared file type onto an upload filename extension.
func extensionFor(fileType string) string {
	switch strings.ToLower(strings.TrimSpace(fileType)) {
	case "python", "py":
		return "py"
	case "go", "golang":
		return "go"
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	case "markdown", "md":
		return "md"
	case "csv":
		return "csv"
	default:
		return "txt"
	}
}

type createSpaceArgs struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Emoji        string `json:"emoji"`
	Instructions string `json:"instructions"`
	Access       int    `json:"access"`
	AutoSave     *bool  `json:"auto_save"`
}

func (s *Service) handleCreateSpace(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createSpaceArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}

	space, err := s.client.CreateSpace(ctx, perplexity.SpaceRequest{
		Title:        args.Title,
		Description:  args.Description,
		Emoji:        args.Emoji,
		Instructions: args.Instructions,
		Access:       args.Access,
	})
	if err != nil {
		return errorResult("create space failed: " + err.Error()), nil
	}

	autoSave := args.AutoSave == nil || *args.AutoSave
	if autoSave {
		if err := spaces.Add(s.spacesPath, space.Title, space.UUID); err != nil {
			s.log.Warn().Err(err).Msg("Space created but registry save failed")
		}
	}

	return jsonResult(map[string]any{
		"success":    true,
		"uuid":       space.UUID,
		"title":      space.Title,
		"slug":       space.Slug,
		"auto_saved": autoSave,
	}), nil
}

func (s *Service) handleListSpaces(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := spaces.Load(spaces.ResolveStorePath(s.spacesPath))
	if err != nil {
		return errorResult("load spaces registry: " + err.Error()), nil
	}
	return jsonResult(map[string]any{
		"spaces": file.Spaces,
		"count":  len(file.Spaces),
	}), nil
}

func (s *Service) handleListModels(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modes := make(map[string]any, len(perplexity.SupportedModes()))
	for _, mode := range perplexity.SupportedModes() {
		modes[mode] = perplexity.ModelsForMode(mode)
	}
	return jsonResult(map[string]any{
		"modes":   modes,
		"sources": perplexity.ValidSources(),
	}), nil
}

func (s *Service) handleListProfiles(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"profiles": profiles.List(),
		"count":    len(profiles.Names()),
	}), nil
}

func (s *Service) handleHealth(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := s.client.Session()
	return jsonResult(map[string]any{
		"status":        "ok",
		"authenticated": session.HasCookies,
		"owns_account":  session.OwnsAccount,
	}), nil
}
