package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/genrelay/tgbot/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tgbot",
		Short:        "Telegram webhook relay to Gemini text and image models",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWebhookCmd())
	return cmd
}
