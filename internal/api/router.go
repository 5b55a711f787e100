package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/genrelay/tgbot/internal/auth"
	"github.com/genrelay/tgbot/internal/logger"
)

// WebhookPath is where Telegram posts updates.
const WebhookPath = "/webhook"

func NewRouter(apiHandler *APIHandler, webhookSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)        // Structured request logging
	r.Use(middleware.Recoverer) // Recover from panics
	r.Use(middleware.StripSlashes)

	// Public probes
	r.Get("/", apiHandler.LivenessHandler)
	r.Get("/health", apiHandler.HealthHandler)

	// Telegram-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSecret(webhookSecret))
		r.Post(WebhookPath, apiHandler.WebhookHandler)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		logger.Log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("HTTP request")
	})
}
