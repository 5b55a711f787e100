package core

import (
	"strings"
	"testing"

	"github.com/genrelay/tgbot/internal/store"
)

func TestSanitizeDescription(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain prose untouched",
			in:   "A cat sleeping on a windowsill.",
			want: "A cat sleeping on a windowsill.",
		},
		{
			name: "json prompt",
			in:   `{"prompt": "A neon city at night", "aspect_ratio": "16:9"}`,
			want: "A neon city at night",
		},
		{
			name: "action_input with nested json string",
			in:   `{"action": "image_generation", "action_input": "{\"prompt\": \"A koi pond in autumn\"}"}`,
			want: "A koi pond in autumn",
		},
		{
			name: "action_input object",
			in:   `{"action": "dalle.text2im", "action_input": {"prompt": "Mountains at sunrise", "size": "1024x1024"}}`,
			want: "Mountains at sunrise",
		},
		{
			name: "action_input plain string",
			in:   `{"action": "draw", "action_input": "A paper boat"}`,
			want: "A paper boat",
		},
		{
			name: "broken json falls back to raw",
			in:   `{"prompt": "unterminated`,
			want: `{"prompt": "unterminated`,
		},
		{
			name: "json without usable prompt falls back",
			in:   `{"prompt": 42}`,
			want: `{"prompt": 42}`,
		},
		{
			name: "markdown scaffolding reduced to prose",
			in:   "**Image Prompt:**\n\n# Result\nA golden retriever **running** on the beach.\n- bullet detail\n---",
			want: "A golden retriever running on the beach.",
		},
		{
			name: "inline label kept content",
			in:   "**Description:** A snowy owl on a branch.",
			want: "A snowy owl on a branch.",
		},
		{
			name: "markdown with nothing but noise falls back",
			in:   "**Prompt:**\n# Title",
			want: "**Prompt:**\n# Title",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeDescription(tc.in); got != tc.want {
				t.Errorf("SanitizeDescription(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTruncateCaption(t *testing.T) {
	short := "hello"
	if got := TruncateCaption(short, MaxCaptionLength); got != short {
		t.Errorf("Expected short caption untouched, got %q", got)
	}

	long := strings.Repeat("я", 2000)
	got := TruncateCaption(long, MaxCaptionLength)
	if n := len([]rune(got)); n != MaxCaptionLength {
		t.Errorf("Expected %d runes, got %d", MaxCaptionLength, n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected ellipsis, got suffix %q", got[len(got)-5:])
	}
}

func TestBuildImagePrompt(t *testing.T) {
	prefs := store.DefaultPreferences()
	p := BuildImagePrompt("  a fox  ", prefs)
	for _, want := range []string{"Request: a fox\n", "Aspect ratio: 1:1", "photorealistic", "one or two sentences", "Never output JSON"} {
		if !strings.Contains(p, want) {
			t.Errorf("Expected magic prompt to contain %q:\n%s", want, p)
		}
	}
	if strings.Contains(p, "Quality:") {
		t.Error("Expected no quality suffix for Standard")
	}

	prefs.MagicPrompt = false
	prefs.Style = "none"
	prefs.Resolution = store.Resolution4K
	p = BuildImagePrompt("a fox", prefs)
	if !strings.Contains(p, "exactly what is requested") {
		t.Errorf("Expected literal instruction:\n%s", p)
	}
	if strings.Contains(p, "Style:") {
		t.Error("Expected no style line for none")
	}
	if !strings.Contains(p, "4k resolution, 8k textures, highly detailed, ultra-sharp focus") {
		t.Errorf("Expected 4K quality suffix:\n%s", p)
	}
}
