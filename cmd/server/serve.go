package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/genrelay/tgbot/internal/api"
	"github.com/genrelay/tgbot/internal/archive"
	"github.com/genrelay/tgbot/internal/bot"
	"github.com/genrelay/tgbot/internal/config"
	"github.com/genrelay/tgbot/internal/core"
	"github.com/genrelay/tgbot/internal/logger"
	"github.com/genrelay/tgbot/internal/ratelimit"
	"github.com/genrelay/tgbot/internal/state"
	"github.com/genrelay/tgbot/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = 5 * time.Minute
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg := config.AppConfig
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize document store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	// Initialize model client
	modelClient, err := core.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.TextModelFlash)
	if err != nil {
		return err
	}
	defer modelClient.Close()

	generator := core.NewGenerator(modelClient, core.Models{
		Flash: cfg.TextModelFlash,
		Pro:   cfg.TextModelPro,
		Image: cfg.ImageModel,
	})

	// Archive is optional; without a bucket every lookup falls back to Telegram
	var blobs archive.BlobStore
	if cfg.BucketName != "" {
		gcs, err := archive.NewGCSStore(ctx, cfg.BucketName, cfg.ProjectID)
		if err != nil {
			logger.Log.WithField("error", err).Error("Failed to initialize archive bucket, continuing without it")
		} else {
			defer gcs.Close()
			blobs = gcs
		}
	}

	tgAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram client: %w", err)
	}
	logger.Log.WithField("bot", tgAPI.Self.UserName).Info("Authorized on Telegram")

	if cfg.WebhookURL != "" {
		if err := registerWebhook(tgAPI, cfg.WebhookURL, cfg.WebhookSecret, false); err != nil {
			logger.Log.WithField("error", err).Error("Failed to register webhook")
		}
	}

	msgs, err := bot.LoadCatalog(cfg.Locale)
	if err != nil {
		return err
	}

	router := bot.NewRouter(bot.RouterDeps{
		States:    state.NewStore(),
		Prefs:     store.NewPreferenceStore(dbStore),
		History:   store.NewHistoryStore(dbStore),
		Generator: generator,
		Archive:   archive.New(blobs),
		Messenger: bot.NewTelegramMessenger(tgAPI),
		Catalog:   msgs,
		ChatTier:  cfg.ChatModelTier,
	})
	dispatcher := bot.NewDispatcher(router, ratelimit.New(cfg.RateLimitInterval), cfg.ThrottleCallbacks)
	go dispatcher.RunSweeper(ctx, sweepInterval)

	apiHandler := api.NewAPIHandler(dispatcher, map[string]api.Pinger{
		"model": generator,
		"store": dbStore,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      api.NewRouter(apiHandler, cfg.WebhookSecret),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Log.WithFields(logrus.Fields{
			"addr":    serverAddr,
			"locale":  msgs.Locale(),
			"project": cfg.ProjectID,
			"region":  cfg.Region,
			"bucket":  cfg.BucketName,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
	case <-ctx.Done():
	}
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithField("error", err).Error("Server forced to shutdown")
	}
	// In-flight generations keep running after the HTTP side closed.
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Log.WithField("error", err).Warn("Abandoning in-flight events")
	}

	logger.Log.Info("Server exiting gracefully")
	return nil
}
