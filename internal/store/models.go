package store

import (
	"context"
	"time"
)

// DocumentStore is a small keyed document API: one JSON object per (collection, key).
type DocumentStore interface {
	// Get returns nil, nil when the document does not exist.
	Get(ctx context.Context, collection, key string) (map[string]any, error)
	Set(ctx context.Context, collection, key string, doc map[string]any, merge bool) error
	Delete(ctx context.Context, collection, key string) error
}

const (
	SettingsCollection = "user_settings"
	HistoryCollection  = "chat_contexts"
)

type Resolution string

const (
	ResolutionStandard Resolution = "Standard"
	ResolutionHD       Resolution = "HD"
	Resolution4K       Resolution = "4K"
)

var SupportedAspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4"}

// Preferences are the generation settings a user picks from the settings keyboard.
type Preferences struct {
	AspectRatio string     `json:"aspect_ratio"`
	Style       string     `json:"style"`
	MagicPrompt bool       `json:"magic_prompt"`
	Resolution  Resolution `json:"resolution"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		AspectRatio: "1:1",
		Style:       "photo",
		MagicPrompt: true,
		Resolution:  ResolutionStandard,
	}
}

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// MaxHistoryEntries caps the stored chat history (five user/model exchanges).
const MaxHistoryEntries = 10

type HistoryEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type document struct {
	Collection string
	Key        string
	Body       map[string]any
	UpdatedAt  time.Time
}
