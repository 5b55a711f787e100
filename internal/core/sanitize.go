package core

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// MaxCaptionLength is Telegram's limit for photo captions.
const MaxCaptionLength = 1024

var labelPrefix = regexp.MustCompile(`^(?:\*\*|__)([^*_]{1,60}?)(?::(?:\*\*|__)|(?:\*\*|__):)\s*(.*)$`)

// SanitizeDescription cleans model chatter that leaked into an image description:
// JSON-wrapped prompts are unwrapped and markdown scaffolding is reduced to prose.
// Anything it cannot make sense of is returned unchanged.
func SanitizeDescription(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text
	}

	if strings.HasPrefix(trimmed, "{") && (strings.Contains(trimmed, `"prompt"`) || strings.Contains(trimmed, `"action_input"`)) {
		if p, ok := unwrapPrompt(trimmed, 0); ok {
			return p
		}
		return text
	}

	if strings.Contains(trimmed, "**") || strings.Contains(trimmed, "__") {
		if prose := proseOnly(trimmed); prose != "" {
			return prose
		}
		return text
	}
	return trimmed
}

func unwrapPrompt(s string, depth int) (string, bool) {
	if depth > 3 || !gjson.Valid(s) {
		return "", false
	}
	for _, key := range []string{"prompt", "action_input"} {
		r := gjson.Get(s, key)
		if !r.Exists() {
			continue
		}
		switch {
		case r.IsObject():
			if p, ok := unwrapPrompt(r.Raw, depth+1); ok {
				return p, true
			}
		case r.Type == gjson.String:
			v := strings.TrimSpace(r.String())
			if strings.HasPrefix(v, "{") {
				if p, ok := unwrapPrompt(v, depth+1); ok {
					return p, true
				}
				continue
			}
			if v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func proseOnly(text string) string {
	var kept []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || isMarkupNoise(line) {
			continue
		}
		if m := labelPrefix.FindStringSubmatch(line); m != nil {
			line = strings.TrimSpace(m[2])
			if line == "" {
				continue
			}
		}
		line = strings.TrimSpace(strings.NewReplacer("**", "", "__", "").Replace(line))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, " ")
}

func isMarkupNoise(line string) bool {
	for _, prefix := range []string{"#", "```", "---", "***", ">", "- ", "* ", "|"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	bare := strings.Trim(line, "*_ ")
	return bare == "" || strings.HasSuffix(bare, ":")
}

// TruncateCaption shortens text to at most max runes, ending with "..." when cut.
func TruncateCaption(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
