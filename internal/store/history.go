package store

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/genrelay/tgbot/internal/logger"
)

const historyField = "history"

// HistoryStore keeps the last MaxHistoryEntries chat turns per user.
type HistoryStore struct {
	docs DocumentStore
}

func NewHistoryStore(docs DocumentStore) *HistoryStore {
	return &HistoryStore{docs: docs}
}

// Load returns the stored history, or nil if it is missing or unreadable.
func (h *HistoryStore) Load(ctx context.Context, userID int64) []HistoryEntry {
	history, err := h.load(ctx, userID)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("Failed to load chat history, proceeding without it")
		return nil
	}
	return history
}

// load reports backend failures so writers can tell "empty" from "unknown".
// A malformed document counts as empty.
func (h *HistoryStore) load(ctx context.Context, userID int64) ([]HistoryEntry, error) {
	if h.docs == nil {
		return nil, nil
	}
	doc, err := h.docs.Get(ctx, HistoryCollection, userKey(userID))
	if err != nil {
		return nil, err
	}
	raw, ok := doc[historyField]
	if !ok {
		return nil, nil
	}

	// Documents come back as generic JSON; round-trip to get typed entries.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, nil
	}
	var entries []HistoryEntry
	if err := json.Unmarshal(encoded, &entries); err != nil {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Warn("Discarding malformed chat history")
		return nil, nil
	}
	return Truncate(entries), nil
}

// Append adds entries to the history, truncates and saves it. If the stored
// history cannot be read, nothing is written: the new entries are returned
// but the stored ones are left as they are.
func (h *HistoryStore) Append(ctx context.Context, userID int64, entries ...HistoryEntry) []HistoryEntry {
	stored, err := h.load(ctx, userID)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("Failed to load chat history, skipping save")
		return Truncate(entries)
	}
	history := Truncate(append(stored, entries...))
	h.Save(ctx, userID, history)
	return history
}

// Save overwrites the stored history with the last MaxHistoryEntries of history.
func (h *HistoryStore) Save(ctx context.Context, userID int64, history []HistoryEntry) {
	if h.docs == nil {
		return
	}
	history = Truncate(history)
	items := make([]any, 0, len(history))
	for _, e := range history {
		items = append(items, map[string]any{"role": e.Role, "text": e.Text})
	}
	if err := h.docs.Set(ctx, HistoryCollection, userKey(userID), map[string]any{historyField: items}, false); err != nil {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("Failed to save chat history")
	}
}

// Clear removes the user's history document.
func (h *HistoryStore) Clear(ctx context.Context, userID int64) {
	if h.docs == nil {
		return
	}
	if err := h.docs.Delete(ctx, HistoryCollection, userKey(userID)); err != nil {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("Failed to clear chat history")
	}
}

// Truncate keeps the most recent MaxHistoryEntries entries in order.
func Truncate(history []HistoryEntry) []HistoryEntry {
	if len(history) <= MaxHistoryEntries {
		return history
	}
	out := make([]HistoryEntry, MaxHistoryEntries)
	copy(out, history[len(history)-MaxHistoryEntries:])
	return out
}
