// Package mcptools exposes the search client as MCP tools over stdio or
// streamable HTTP.
package mcptools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/zykairotis/perplexity-bridge/pkg/convstore"
	"github.com/zykairotis/perplexity-bridge/pkg/perplexity"
	"github.com/zykairotis/perplexity-bridge/pkg/profiles"
)

const serverName = "perplexity-bridge"

// Service carries the dependencies shared by every tool handler.
type Service struct {
	client        *perplexity.Client
	conversations convstore.Store
	spacesPath    string
	log           zerolog.Logger
}

func NewService(client *perplexity.Client, conversations convstore.Store, spacesPath string, log zerolog.Logger) *Service {
	return &Service{
		client:        client,
		conversations: conversations,
		spacesPath:    spacesPath,
		log:           log.With().Str("component", "mcp").Logger(),
	}
}

// NewServer builds the MCP server with every tool registered.
func (s *Service) NewServer(version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version,
	}, nil)

	server.AddTool(&mcp.Tool{
		Name:        "search_perplexity",
		Description: "Search using Perplexity AI for current, factual, or research-based answers. Returns a clean text answer by default, or the full JSON result with sources and metadata when raw_mode is set.",
		InputSchema: searchSchema(),
	}, s.handleSearch)

	server.AddTool(&mcp.Tool{
		Name:        "chat_with_perplexity",
		Description: "Chat with Perplexity AI for interactive, context-aware explanations. Pass the same conversation_id across calls to continue a conversation.",
		InputSchema: chatSchema(),
	}, s.handleChat)

	server.AddTool(&mcp.Tool{
		Name:        "analyze_file_with_perplexity",
		Description: "Analyze file content with Perplexity AI: code review, document understanding, security checks, data pattern extraction.",
		InputSchema: analyzeFileSchema(),
	}, s.handleAnalyzeFile)

	server.AddTool(&mcp.Tool{
		Name:        "create_perplexity_space",
		Description: "Create a new Perplexity space (collection) for organizing conversations, documents, and references. Requires an authenticated session.",
		InputSchema: createSpaceSchema(),
	}, s.handleCreateSpace)

	server.AddTool(&mcp.Tool{
		Name:        "list_perplexity_spaces",
		Description: "List the Perplexity spaces configured in the local registry.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleListSpaces)

	server.AddTool(&mcp.Tool{
		Name:        "get_available_models",
		Description: "List the supported search modes and the models each mode accepts.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleListModels)

	server.AddTool(&mcp.Tool{
		Name:        "get_search_profiles",
		Description: "List the available search profiles and their query-augmentation instructions.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleListProfiles)

	server.AddTool(&mcp.Tool{
		Name:        "get_perplexity_health",
		Description: "Report the bridge's upstream session state: whether cookies are loaded and the session owns an account.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleHealth)

	return server
}

func stringEnum(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func searchSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {Type: "string", Description: "The search question or topic"},
			"mode": {
				Type:        "string",
				Description: "Search mode",
				Enum:        stringEnum(perplexity.SupportedModes()),
				Default:     json.RawMessage(`"pro"`),
			},
			"model": {
				Type:        "string",
				Description: "Model for the chosen mode, e.g. sonar, claude45sonnet, gpt5",
				Default:     json.RawMessage(`"claude45sonnet"`),
			},
			"sources": {
				Type:        "array",
				Description: "Data origins: web, scholar, social, edgar",
				Items:       &jsonschema.Schema{Type: "string", Enum: stringEnum(perplexity.ValidSources())},
			},
			"profile": {
				Type:        "string",
				Description: "Query-augmentation profile",
				Enum:        stringEnum(profiles.Names()),
				Default:     json.RawMessage(`"research"`),
			},
			"language":     {Type: "string", Description: "Response language tag, e.g. en-US"},
			"raw_mode":     {Type: "boolean", Description: "Return the full JSON result instead of clean text"},
			"search_focus": {Type: "string", Description: "Focus area for the search, e.g. technical, academic, news"},
			"timezone":     {Type: "string", Description: "Timezone for context-aware answers, e.g. UTC"},
		},
		Required: []string{"query"},
	}
}

func chatSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"message":         {Type: "string", Description: "User message or question"},
			"conversation_id": {Type: "string", Description: "Stable id to continue a conversation across calls"},
			"mode": {
				Type:    "string",
				Enum:    stringEnum(perplexity.SupportedModes()),
				Default: json.RawMessage(`"pro"`),
			},
			"model":    {Type: "string", Default: json.RawMessage(`"claude45sonnet"`)},
			"profile":  {Type: "string", Enum: stringEnum(profiles.Names()), Default: json.RawMessage(`"research"`)},
			"raw_mode": {Type: "boolean", Description: "Return the full JSON result instead of clean text"},
		},
		Required: []string{"message"},
	}
}

func analyzeFileSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"file_content": {Type: "string", Description: "Raw file content to analyze"},
			"file_type":    {Type: "string", Description: "File format: python, go, json, txt, ...", Default: json.RawMessage(`"text"`)},
			"query":        {Type: "string", Description: "Specific question or task", Default: json.RawMessage(`"Analyze this file content"`)},
			"mode": {
				Type:    "string",
				Enum:    stringEnum(perplexity.SupportedModes()),
				Default: json.RawMessage(`"pro"`),
			},
			"model":    {Type: "string", Default: json.RawMessage(`"claude45sonnet"`)},
			"profile":  {Type: "string", Enum: stringEnum(profiles.Names()), Default: json.RawMessage(`"code_analysis"`)},
			"raw_mode": {Type: "boolean", Description: "Return the full JSON result instead of clean text"},
			"space":    {Type: "string", Description: "Space name or UUID to analyze within"},
		},
		Required: []string{"file_content"},
	}
}

func createSpaceSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"title":        {Type: "string", Description: "Name of the space"},
			"description":  {Type: "string", Description: "Purpose and contents of the space"},
			"emoji":        {Type: "string", Description: "Emoji representing the space"},
			"instructions": {Type: "string", Description: "System prompt for the AI when operating in this space"},
			"access": {
				Type:        "integer",
				Description: "Access level: 1 private, 2 team, 3 public",
				Default:     json.RawMessage(`1`),
			},
			"auto_save": {Type: "boolean", Description: "Save the space UUID to the local registry", Default: json.RawMessage(`true`)},
		},
		Required: []string{"title"},
	}
}

func decodeArgs(req *mcp.CallToolRequest, target any) error {
	if req.Params.Arguments == nil {
		return fmt.Errorf("missing arguments")
	}
	return json.Unmarshal(req.Params.Arguments, target)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("encode result: " + err.Error())
	}
	return textResult(string(payload))
}

// renderResult formats a search result for tool output: the full JSON when
// rawMode, otherwise the answer followed by a source list.
func renderResult(result *perplexity.SearchResult, rawMode bool) *mcp.CallToolResult {
	if rawMode {
		return jsonResult(result)
	}
	var sb strings.Builder
	sb.WriteString(result.Answer)
	if len(result.Sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for _, source := range result.Sources {
			name := source.Name
			if name == "" {
				name = source.URL
			}
			fmt.Fprintf(&sb, "- %s: %s\n", name, source.URL)
		}
	}
	return textResult(sb.String())
}
