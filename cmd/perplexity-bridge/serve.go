package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zykairotis/perplexity-bridge/pkg/convstore"
	"github.com/zykairotis/perplexity-bridge/pkg/perplexity"
	"github.com/zykairotis/perplexity-bridge/pkg/proxy"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OpenAI-compatible HTTP proxy",
	Long: `Start the HTTP proxy. /v1 serves the OpenAI wire format for existing
clients; /api serves the native search surface with streaming, file
uploads, and spaces.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen address (default "+proxy.DefaultHost+")")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	client := perplexity.NewClient(cfg.Upstream, log)
	session := client.Identify(cmd.Context())
	log.Info().
		Bool("authenticated", session.HasCookies).
		Bool("owns_account", session.OwnsAccount).
		Msg("Upstream session ready")

	server := proxy.NewServer(cfg, client, convstore.NewMemory(), log)
	if err := server.Start(); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Stop(ctx)
}
