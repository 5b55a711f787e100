package main

import (
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/genrelay/tgbot/internal/config"
	"github.com/genrelay/tgbot/internal/logger"
)

var allowedUpdates = []string{"message", "callback_query"}

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	cmd.AddCommand(newWebhookSetCmd())
	cmd.AddCommand(newWebhookInfoCmd())
	return cmd
}

func newWebhookSetCmd() *cobra.Command {
	var dropPending bool
	cmd := &cobra.Command{
		Use:   "set [url]",
		Short: "Register the webhook URL and secret with Telegram",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := config.AppConfig.WebhookURL
			if len(args) == 1 {
				url = args[0]
			}
			if url == "" {
				return fmt.Errorf("no webhook URL given and WEBHOOK_URL is not set")
			}

			tgAPI, err := tgbotapi.NewBotAPI(config.AppConfig.BotToken)
			if err != nil {
				return fmt.Errorf("failed to initialize Telegram client: %w", err)
			}
			if err := registerWebhook(tgAPI, url, config.AppConfig.WebhookSecret, dropPending); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook set to %s\n", url)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dropPending, "drop-pending", false, "Drop updates queued while no webhook was set")
	return cmd
}

func newWebhookInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the current webhook registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			tgAPI, err := tgbotapi.NewBotAPI(config.AppConfig.BotToken)
			if err != nil {
				return fmt.Errorf("failed to initialize Telegram client: %w", err)
			}
			info, err := tgAPI.GetWebhookInfo()
			if err != nil {
				return fmt.Errorf("failed to get webhook info: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

// registerWebhook calls setWebhook directly; the client's WebhookConfig has
// no secret_token field.
func registerWebhook(tgAPI *tgbotapi.BotAPI, url, secret string, dropPending bool) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	params.AddBool("drop_pending_updates", dropPending)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return err
	}

	if _, err := tgAPI.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	log := logger.Log.WithField("url", url)
	if secret == "" {
		log.Warn("Webhook registered without a secret token")
		return nil
	}
	log.Info("Webhook registered")
	return nil
}
