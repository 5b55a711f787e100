package bot

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var messagesYAML []byte

const fallbackLocale = "en"

// Catalog holds the user-facing strings for one locale.
type Catalog struct {
	locale   string
	messages map[string]string
	fallback map[string]string
}

// LoadCatalog parses the embedded catalog. Unknown locales fall back to English.
func LoadCatalog(locale string) (*Catalog, error) {
	var all map[string]map[string]string
	if err := yaml.Unmarshal(messagesYAML, &all); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}
	msgs, ok := all[locale]
	if !ok {
		locale = fallbackLocale
		msgs = all[fallbackLocale]
	}
	return &Catalog{locale: locale, messages: msgs, fallback: all[fallbackLocale]}, nil
}

func (c *Catalog) Locale() string { return c.locale }

// T returns the message for key, formatted with args when given.
func (c *Catalog) T(key string, args ...any) string {
	msg, ok := c.messages[key]
	if !ok {
		if msg, ok = c.fallback[key]; !ok {
			return key
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}
