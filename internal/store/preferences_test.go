package store

import (
	"context"
	"testing"
)

func TestPreferenceStore_DefaultsForUnknownUser(t *testing.T) {
	p := NewPreferenceStore(newFakeDocs())

	got := p.Get(context.Background(), 100)
	want := Preferences{AspectRatio: "1:1", Style: "photo", MagicPrompt: true, Resolution: ResolutionStandard}
	if got != want {
		t.Errorf("Expected defaults %+v, got %+v", want, got)
	}
}

func TestPreferenceStore_SetMergesSingleField(t *testing.T) {
	ctx := context.Background()
	p := NewPreferenceStore(newFakeDocs())

	p.Set(ctx, 1, KeyStyle, "anime")
	p.Set(ctx, 1, KeyAspectRatio, "16:9")

	got := p.Get(ctx, 1)
	if got.AspectRatio != "16:9" {
		t.Errorf("Expected aspect ratio 16:9, got %s", got.AspectRatio)
	}
	if got.Style != "anime" {
		t.Errorf("Expected earlier style to survive, got %s", got.Style)
	}
	if !got.MagicPrompt || got.Resolution != ResolutionStandard {
		t.Errorf("Expected untouched fields to keep defaults, got %+v", got)
	}

	if other := p.Get(ctx, 2); other != DefaultPreferences() {
		t.Errorf("Expected another user to keep defaults, got %+v", other)
	}
}

func TestPreferenceStore_ToggleAndResolution(t *testing.T) {
	ctx := context.Background()
	p := NewPreferenceStore(newFakeDocs())

	p.Set(ctx, 1, KeyMagicPrompt, "off")
	p.Set(ctx, 1, KeyResolution, "4k")

	got := p.Get(ctx, 1)
	if got.MagicPrompt {
		t.Error("Expected magic prompt to be disabled")
	}
	if got.Resolution != Resolution4K {
		t.Errorf("Expected 4K, got %s", got.Resolution)
	}
}

func TestPreferenceStore_InvalidValueIgnored(t *testing.T) {
	ctx := context.Background()
	p := NewPreferenceStore(newFakeDocs())

	p.Set(ctx, 1, KeyAspectRatio, "21:9")
	p.Set(ctx, 1, "colour", "red")

	if got := p.Get(ctx, 1); got != DefaultPreferences() {
		t.Errorf("Expected defaults after invalid updates, got %+v", got)
	}
}

func TestPreferenceStore_BackendDownDegradesToDefaults(t *testing.T) {
	ctx := context.Background()
	docs := newFakeDocs()
	p := NewPreferenceStore(docs)
	p.Set(ctx, 1, KeyAspectRatio, "9:16")

	docs.fail = true
	if got := p.Get(ctx, 1); got != DefaultPreferences() {
		t.Errorf("Expected defaults when backend is down, got %+v", got)
	}
	// Must not panic or surface an error.
	p.Set(ctx, 1, KeyStyle, "art")
}

func TestPreferences_With(t *testing.T) {
	prefs := DefaultPreferences().With(KeyResolution, "HD").With(KeyAspectRatio, "bogus")
	if prefs.Resolution != ResolutionHD {
		t.Errorf("Expected HD, got %s", prefs.Resolution)
	}
	if prefs.AspectRatio != "1:1" {
		t.Errorf("Expected invalid ratio to be ignored, got %s", prefs.AspectRatio)
	}
}
