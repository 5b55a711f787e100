package core

import (
	"fmt"
	"strings"

	"github.com/genrelay/tgbot/internal/store"
)

const (
	chatSystemInstruction = "You are a helpful assistant inside a Telegram chat. " +
		"Answer concisely and in the language the user writes in. " +
		"Use plain text; light Markdown is acceptable but avoid tables."

	magicPromptInstruction = "First expand the request below into a rich image description " +
		"(subject, composition, lighting, colour palette, mood), then generate the image from that description."

	literalPromptInstruction = "Generate an image of exactly what is requested below. " +
		"Do not add, remove or embellish any details."

	magicReplyInstruction = "In the text part of your reply give only a plain-text description of the final image " +
		"in one or two sentences. Never output JSON or other structured data and never explain your reasoning."

	literalReplyInstruction = "If you add text to your reply, keep it to one plain sentence describing the image."
)

// QualitySuffix returns the prompt fragment for a resolution tier.
func QualitySuffix(r store.Resolution) string {
	switch r {
	case store.ResolutionHD:
		return "high definition, sharp details"
	case store.Resolution4K:
		return "4k resolution, 8k textures, highly detailed, ultra-sharp focus"
	default:
		return ""
	}
}

func styleDescription(style string) string {
	switch strings.ToLower(strings.TrimSpace(style)) {
	case "", "none":
		return ""
	case "photo":
		return "photorealistic photograph"
	case "art":
		return "digital art illustration"
	case "anime":
		return "anime illustration"
	default:
		return style
	}
}

// BuildImagePrompt assembles the prompt sent to the image model.
func BuildImagePrompt(userPrompt string, prefs store.Preferences) string {
	var b strings.Builder
	if prefs.MagicPrompt {
		b.WriteString(magicPromptInstruction)
	} else {
		b.WriteString(literalPromptInstruction)
	}
	fmt.Fprintf(&b, "\n\nRequest: %s\n", strings.TrimSpace(userPrompt))
	if style := styleDescription(prefs.Style); style != "" {
		fmt.Fprintf(&b, "Style: %s\n", style)
	}
	fmt.Fprintf(&b, "Aspect ratio: %s\n", prefs.AspectRatio)
	if q := QualitySuffix(prefs.Resolution); q != "" {
		fmt.Fprintf(&b, "Quality: %s\n", q)
	}
	b.WriteString("\n")
	if prefs.MagicPrompt {
		b.WriteString(magicReplyInstruction)
	} else {
		b.WriteString(literalReplyInstruction)
	}
	return b.String()
}

// BuildEditPrompt wraps a user's edit instruction for an image-in, image-out call.
func BuildEditPrompt(instruction string) string {
	return fmt.Sprintf("Edit the attached image according to this instruction: %s\n"+
		"Keep everything the instruction does not mention unchanged and return the edited image.",
		strings.TrimSpace(instruction))
}
