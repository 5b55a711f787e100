package store

import (
	"context"
	"fmt"
	"testing"
)

func TestHistoryStore_TruncatesAfterEveryAppend(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryStore(newFakeDocs())

	for i := 1; i <= 8; i++ {
		h.Append(ctx, 1,
			HistoryEntry{Role: RoleUser, Text: fmt.Sprintf("q%d", i)},
			HistoryEntry{Role: RoleModel, Text: fmt.Sprintf("a%d", i)},
		)

		stored := h.Load(ctx, 1)
		want := 2 * i
		if want > MaxHistoryEntries {
			want = MaxHistoryEntries
		}
		if len(stored) != want {
			t.Fatalf("After %d exchanges expected %d entries, got %d", i, want, len(stored))
		}
	}

	stored := h.Load(ctx, 1)
	// Exchanges 4..8 remain, oldest first.
	for i, e := range stored {
		exchange := 4 + i/2
		wantText := fmt.Sprintf("q%d", exchange)
		wantRole := RoleUser
		if i%2 == 1 {
			wantText = fmt.Sprintf("a%d", exchange)
			wantRole = RoleModel
		}
		if e.Text != wantText || e.Role != wantRole {
			t.Errorf("Entry %d: expected %s/%s, got %s/%s", i, wantRole, wantText, e.Role, e.Text)
		}
	}
}

func TestHistoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryStore(newFakeDocs())
	h.Append(ctx, 1, HistoryEntry{Role: RoleUser, Text: "hi"})

	h.Clear(ctx, 1)
	if got := h.Load(ctx, 1); len(got) != 0 {
		t.Errorf("Expected empty history after clear, got %v", got)
	}
}

func TestHistoryStore_BackendDownReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	docs := newFakeDocs()
	h := NewHistoryStore(docs)
	docs.fail = true

	got := h.Append(ctx, 1, HistoryEntry{Role: RoleUser, Text: "hi"}, HistoryEntry{Role: RoleModel, Text: "hello"})
	if len(got) != 2 {
		t.Errorf("Expected in-flight history to be returned, got %v", got)
	}
	if loaded := h.Load(ctx, 1); loaded != nil {
		t.Errorf("Expected nil history when backend is down, got %v", loaded)
	}
}

func TestTruncate_DoesNotAliasInput(t *testing.T) {
	in := make([]HistoryEntry, 12)
	for i := range in {
		in[i] = HistoryEntry{Role: RoleUser, Text: fmt.Sprint(i)}
	}
	out := Truncate(in)
	out[0].Text = "changed"
	if in[2].Text != "2" {
		t.Error("Expected Truncate to copy the tail")
	}
}

func TestHistoryStore_FailedReadDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	docs := newFakeDocs()
	h := NewHistoryStore(docs)

	for i := 1; i <= 4; i++ {
		h.Append(ctx, 1,
			HistoryEntry{Role: RoleUser, Text: fmt.Sprintf("q%d", i)},
			HistoryEntry{Role: RoleModel, Text: fmt.Sprintf("a%d", i)},
		)
	}

	docs.failReads = true
	h.Append(ctx, 1, HistoryEntry{Role: RoleUser, Text: "q5"}, HistoryEntry{Role: RoleModel, Text: "a5"})
	docs.failReads = false

	stored := h.Load(ctx, 1)
	if len(stored) != 8 {
		t.Fatalf("Expected the 8 stored entries to survive a failed read, got %d", len(stored))
	}
	if stored[7].Text != "a4" {
		t.Errorf("Expected the last stored entry to be a4, got %q", stored[7].Text)
	}
}
