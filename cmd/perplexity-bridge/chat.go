package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/xid"
	"github.com/spf13/cobra"
)

var (
	chatBaseURL string
	chatModel   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat against a running proxy",
	Long: `Open a terminal chat session against the proxy's /v1 surface. Every turn
carries the same conversation id, so the proxy threads answers as
follow-ups upstream. Requires 'perplexity-bridge serve' to be running.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatBaseURL, "base-url", "http://127.0.0.1:9522/v1", "Proxy base URL")
	chatCmd.Flags().StringVar(&chatModel, "model", "pro-claude45sonnet", "Model name, e.g. pro-sonar, reasoning-r1, deep-research")
}

func runChat(cmd *cobra.Command, args []string) error {
	conversationID := xid.New().String()
	client := openai.NewClient(
		option.WithBaseURL(chatBaseURL),
		option.WithAPIKey("unused"),
		option.WithHeader("X-Conversation-Id", conversationID),
	)

	fmt.Printf("Chatting with %s (conversation %s). Empty line or Ctrl-D to exit.\n", chatModel, conversationID)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}

		resp, err := client.Chat.Completions.New(cmd.Context(), openai.ChatCompletionNewParams{
			Model: openai.ChatModel(chatModel),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(line),
			},
		})
		if err != nil {
			log.Error().Err(err).Msg("Chat turn failed")
			continue
		}
		if len(resp.Choices) == 0 {
			log.Warn().Msg("Empty response")
			continue
		}
		fmt.Printf("\n%s\n\n", resp.Choices[0].Message.Content)
	}
	return scanner.Err()
}
