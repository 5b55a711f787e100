package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/genrelay/tgbot/internal/logger"
)

// maxUpdateSize bounds a webhook body; Telegram updates are a few KB.
const maxUpdateSize = 1 << 20

// UpdateDispatcher accepts decoded updates for background processing.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, update tgbotapi.Update) bool
}

// Pinger is a dependency checked by the deep health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type APIHandler struct {
	dispatcher   UpdateDispatcher
	checks       map[string]Pinger
	probeTimeout time.Duration
}

func NewAPIHandler(d UpdateDispatcher, checks map[string]Pinger) *APIHandler {
	return &APIHandler{dispatcher: d, checks: checks, probeTimeout: 10 * time.Second}
}

// WebhookHandler acknowledges every well-formed update at once; processing
// continues in the background so Telegram never retries a slow generation.
func (h *APIHandler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateSize)).Decode(&update); err != nil {
		logger.Log.WithField("error", err).Warn("Rejected malformed webhook body")
		http.Error(w, "Invalid update body: "+err.Error(), http.StatusBadRequest)
		return
	}

	accepted := h.dispatcher.Dispatch(r.Context(), update)
	logger.Log.WithFields(logrus.Fields{
		"update_id": update.UpdateID,
		"accepted":  accepted,
	}).Debug("Webhook update received")

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// LivenessHandler answers without touching any dependency.
func (h *APIHandler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthHandler pings every dependency and fails with 503 if any is down.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.probeTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			logger.Log.WithFields(logrus.Fields{"check": name, "error": err}).Error("Health check failed")
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithField("error", err).Debug("Failed to write response")
	}
}
