package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zykairotis/perplexity-bridge/pkg/perplexity"
	"github.com/zykairotis/perplexity-bridge/pkg/profiles"
	"github.com/zykairotis/perplexity-bridge/pkg/spaces"
)

var (
	searchMode      string
	searchModel     string
	searchSources   []string
	searchProfile   string
	searchFiles     []string
	searchSpace     string
	searchIncognito bool
	searchJSON      bool
	searchTimeout   time.Duration
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Run a one-shot search and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", perplexity.ModeAuto, "Search mode: "+strings.Join(perplexity.SupportedModes(), ", "))
	searchCmd.Flags().StringVar(&searchModel, "model", "", "Model for the chosen mode, e.g. sonar, claude45sonnet")
	searchCmd.Flags().StringSliceVar(&searchSources, "source", nil, "Data origins: web, scholar, social, edgar")
	searchCmd.Flags().StringVar(&searchProfile, "profile", "", "Query-augmentation profile, see 'modes' in the proxy API")
	searchCmd.Flags().StringSliceVar(&searchFiles, "file", nil, "Attach a local file to the query (repeatable)")
	searchCmd.Flags().StringVar(&searchSpace, "space", "", "Space name or UUID to search within")
	searchCmd.Flags().BoolVar(&searchIncognito, "incognito", false, "Keep the query out of the account's thread history")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print the full result as JSON")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", 0, "Per-request timeout, e.g. 120s")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := perplexity.SearchRequest{
		Query:     strings.Join(args, " "),
		Mode:      perplexity.NormalizeMode(searchMode),
		Model:     searchModel,
		Sources:   searchSources,
		Incognito: searchIncognito,
		Timeout:   searchTimeout,
	}
	if searchProfile != "" {
		normalized, ok := profiles.Validate(searchProfile)
		if !ok {
			return fmt.Errorf("unknown profile %q, available: %s", searchProfile, strings.Join(profiles.Names(), ", "))
		}
		req.Instruction = profiles.Instruction(normalized)
	}
	if searchSpace != "" {
		spaceUUID, ok := spaces.Resolve(cfg.SpacesPath, searchSpace)
		if !ok {
			return fmt.Errorf("space %q not found in registry", searchSpace)
		}
		req.QuerySource = "collection:" + spaceUUID
	}
	if len(searchFiles) > 0 {
		req.Files = make(map[string][]byte, len(searchFiles))
		for _, path := range searchFiles {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read attachment: %w", err)
			}
			req.Files[filepath.Base(path)] = content
		}
	}

	client := perplexity.NewClient(cfg.Upstream, log)
	client.Identify(cmd.Context())

	result, err := client.Search(cmd.Context(), req)
	if err != nil {
		return err
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, source := range result.Sources {
			fmt.Printf("  - %s: %s\n", source.Name, source.URL)
		}
	}
	return nil
}
