package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zykairotis/perplexity-bridge/pkg/proxy"
)

var (
	configPath string
	cookiePath string
	logLevel   string
	logJSON    bool

	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "perplexity-bridge",
	Short: "Unofficial Perplexity AI client, proxy, and MCP server",
	Long: `perplexity-bridge talks to Perplexity AI through its web interface using
browser session cookies. It can run one-shot searches, serve an
OpenAI-compatible HTTP proxy, or expose search as MCP tools.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&cookiePath, "cookies", "", "Path to the session cookie file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs instead of console output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(chatCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	// A local .env is optional; absence is not an error.
	_ = godotenv.Load()

	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		return fmt.Errorf("invalid log level %q", logLevel)
	}
	if logJSON {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log = log.Level(level).With().Timestamp().Logger()
	return nil
}

// loadConfig layers config sources: YAML file, then environment, then flags.
func loadConfig() (*proxy.Config, error) {
	cfg := &proxy.Config{}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.ApplyEnvDefaults()
	if cookiePath != "" {
		cfg.Upstream.CookiePath = cookiePath
	}
	return cfg.WithDefaults(), nil
}
