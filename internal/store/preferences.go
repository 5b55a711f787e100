package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/genrelay/tgbot/internal/logger"
)

const (
	KeyAspectRatio = "aspect_ratio"
	KeyStyle       = "style"
	KeyMagicPrompt = "magic_prompt"
	KeyResolution  = "resolution"
)

// PreferenceStore persists generation preferences. It never fails a request:
// reads fall back to defaults and writes are logged and dropped on error.
type PreferenceStore struct {
	docs DocumentStore
}

func NewPreferenceStore(docs DocumentStore) *PreferenceStore {
	return &PreferenceStore{docs: docs}
}

func (p *PreferenceStore) Get(ctx context.Context, userID int64) Preferences {
	prefs := DefaultPreferences()
	if p.docs == nil {
		return prefs
	}

	doc, err := p.docs.Get(ctx, SettingsCollection, userKey(userID))
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("Failed to load preferences, using defaults")
		return prefs
	}
	if v, ok := doc[KeyAspectRatio].(string); ok && slices.Contains(SupportedAspectRatios, v) {
		prefs.AspectRatio = v
	}
	if v, ok := doc[KeyStyle].(string); ok && v != "" {
		prefs.Style = v
	}
	if v, ok := doc[KeyMagicPrompt].(bool); ok {
		prefs.MagicPrompt = v
	}
	if v, ok := doc[KeyResolution].(string); ok {
		if r, err := parseResolution(v); err == nil {
			prefs.Resolution = r
		}
	}
	return prefs
}

// Set validates and merges a single preference into the user's document.
func (p *PreferenceStore) Set(ctx context.Context, userID int64, key, value string) {
	log := logger.Log.WithFields(logrus.Fields{"user_id": userID, "key": key, "value": value})

	parsed, err := ParsePreference(key, value)
	if err != nil {
		log.WithField("error", err).Warn("Rejected preference update")
		return
	}
	if p.docs == nil {
		return
	}
	if err := p.docs.Set(ctx, SettingsCollection, userKey(userID), map[string]any{key: parsed}, true); err != nil {
		log.WithField("error", err).Error("Failed to persist preference")
	}
}

// ParsePreference validates a raw value for key and returns its stored form.
func ParsePreference(key, value string) (any, error) {
	switch key {
	case KeyAspectRatio:
		if !slices.Contains(SupportedAspectRatios, value) {
			return nil, fmt.Errorf("unsupported aspect ratio %q", value)
		}
		return value, nil
	case KeyStyle:
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, fmt.Errorf("style cannot be empty")
		}
		return value, nil
	case KeyMagicPrompt:
		switch strings.ToLower(value) {
		case "on":
			return true, nil
		case "off":
			return false, nil
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid magic prompt toggle %q", value)
		}
		return b, nil
	case KeyResolution:
		r, err := parseResolution(value)
		if err != nil {
			return nil, err
		}
		return string(r), nil
	default:
		return nil, fmt.Errorf("unknown preference %q", key)
	}
}

// With returns a copy of prefs with one raw key/value applied; invalid input leaves prefs as is.
func (prefs Preferences) With(key, value string) Preferences {
	parsed, err := ParsePreference(key, value)
	if err != nil {
		return prefs
	}
	switch key {
	case KeyAspectRatio:
		prefs.AspectRatio = parsed.(string)
	case KeyStyle:
		prefs.Style = parsed.(string)
	case KeyMagicPrompt:
		prefs.MagicPrompt = parsed.(bool)
	case KeyResolution:
		prefs.Resolution = Resolution(parsed.(string))
	}
	return prefs
}

func parseResolution(v string) (Resolution, error) {
	switch strings.ToUpper(v) {
	case "STANDARD", "SD":
		return ResolutionStandard, nil
	case "HD":
		return ResolutionHD, nil
	case "4K":
		return Resolution4K, nil
	}
	return "", fmt.Errorf("unsupported resolution %q", v)
}

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
