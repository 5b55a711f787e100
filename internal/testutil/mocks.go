package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/genrelay/tgbot/internal/bot"
	"github.com/genrelay/tgbot/internal/core"
	"github.com/genrelay/tgbot/internal/store"
)

// Sent is one outgoing Telegram call recorded by MockMessenger.
type Sent struct {
	Kind      string // text, photo, document, edit_text, edit_markup, delete, answer
	ChatID    int64
	MessageID int
	Text      string
	Markup    any
	Document  bot.Document
}

// MockMessenger is a bot.Messenger that records every call. Func fields
// override the default successful behavior.
type MockMessenger struct {
	SendTextFunc     func(chatID int64, text string) (int, error)
	SendPhotoFunc    func(chatID int64, image []byte) (bot.SentPhoto, error)
	SendDocumentFunc func(chatID int64, doc bot.Document) error
	EditTextFunc     func(chatID int64, messageID int, text string) error
	FetchFileFunc    func(fileID string) ([]byte, error)

	mu     sync.Mutex
	nextID int
	calls  []Sent
}

func (m *MockMessenger) record(s Sent) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if s.MessageID == 0 {
		s.MessageID = m.nextID
	}
	m.calls = append(m.calls, s)
	return s.MessageID
}

// Calls returns a copy of the recorded calls.
func (m *MockMessenger) Calls() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.calls))
	copy(out, m.calls)
	return out
}

// Kinds returns the recorded calls of kind.
func (m *MockMessenger) Kinds(kind string) []Sent {
	var out []Sent
	for _, c := range m.Calls() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Texts returns the text of every message sent or edited into place.
func (m *MockMessenger) Texts() []string {
	var out []string
	for _, c := range m.Calls() {
		if c.Kind == "text" || c.Kind == "edit_text" {
			out = append(out, c.Text)
		}
	}
	return out
}

func (m *MockMessenger) SendText(_ context.Context, chatID int64, text string, markup any) (int, error) {
	if m.SendTextFunc != nil {
		id, err := m.SendTextFunc(chatID, text)
		if err != nil {
			return 0, err
		}
		return m.record(Sent{Kind: "text", ChatID: chatID, MessageID: id, Text: text, Markup: markup}), nil
	}
	return m.record(Sent{Kind: "text", ChatID: chatID, Text: text, Markup: markup}), nil
}

func (m *MockMessenger) SendPhoto(_ context.Context, chatID int64, image []byte, caption string, markup any) (bot.SentPhoto, error) {
	if m.SendPhotoFunc != nil {
		sent, err := m.SendPhotoFunc(chatID, image)
		if err != nil {
			return bot.SentPhoto{}, err
		}
		m.record(Sent{Kind: "photo", ChatID: chatID, MessageID: sent.MessageID, Text: caption, Markup: markup})
		return sent, nil
	}
	id := m.record(Sent{Kind: "photo", ChatID: chatID, Text: caption, Markup: markup})
	return bot.SentPhoto{MessageID: id, FileID: fmt.Sprintf("file-%d", id)}, nil
}

func (m *MockMessenger) SendDocument(_ context.Context, chatID int64, doc bot.Document) error {
	if m.SendDocumentFunc != nil {
		if err := m.SendDocumentFunc(chatID, doc); err != nil {
			return err
		}
	}
	m.record(Sent{Kind: "document", ChatID: chatID, Document: doc})
	return nil
}

func (m *MockMessenger) EditText(_ context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	if m.EditTextFunc != nil {
		if err := m.EditTextFunc(chatID, messageID, text); err != nil {
			return err
		}
	}
	var kb any
	if markup != nil {
		kb = *markup
	}
	m.record(Sent{Kind: "edit_text", ChatID: chatID, MessageID: messageID, Text: text, Markup: kb})
	return nil
}

func (m *MockMessenger) EditMarkup(_ context.Context, chatID int64, messageID int, markup tgbotapi.InlineKeyboardMarkup) error {
	m.record(Sent{Kind: "edit_markup", ChatID: chatID, MessageID: messageID, Markup: markup})
	return nil
}

func (m *MockMessenger) Delete(_ context.Context, chatID int64, messageID int) error {
	m.record(Sent{Kind: "delete", ChatID: chatID, MessageID: messageID})
	return nil
}

func (m *MockMessenger) AnswerCallback(_ context.Context, callbackID, text string) error {
	m.record(Sent{Kind: "answer", Text: text})
	return nil
}

func (m *MockMessenger) FetchFile(_ context.Context, fileID string) ([]byte, error) {
	if m.FetchFileFunc != nil {
		return m.FetchFileFunc(fileID)
	}
	return nil, errors.New("not implemented")
}

// MockGenerator is a bot.Generator backed by func fields.
type MockGenerator struct {
	GenerateTextFunc  func(prompt string, history []store.HistoryEntry, tier string) (string, error)
	GenerateImageFunc func(prompt string, prefs store.Preferences) (core.GenerationResult, error)
	EditImageFunc     func(base []byte, instruction string) ([]byte, error)
}

func (m *MockGenerator) GenerateText(_ context.Context, prompt string, history []store.HistoryEntry, tier string) (string, error) {
	if m.GenerateTextFunc != nil {
		return m.GenerateTextFunc(prompt, history, tier)
	}
	return "", errors.New("not implemented")
}

func (m *MockGenerator) GenerateImage(_ context.Context, prompt string, prefs store.Preferences) (core.GenerationResult, error) {
	if m.GenerateImageFunc != nil {
		return m.GenerateImageFunc(prompt, prefs)
	}
	return core.GenerationResult{}, errors.New("not implemented")
}

func (m *MockGenerator) EditImage(_ context.Context, base []byte, instruction string) ([]byte, error) {
	if m.EditImageFunc != nil {
		return m.EditImageFunc(base, instruction)
	}
	return nil, errors.New("not implemented")
}

// MockArchive is a bot.Archive backed by func fields. Unset funcs behave
// like a disabled archive.
type MockArchive struct {
	UploadFunc   func(data []byte, contentType string) (string, bool)
	DownloadFunc func(ref string) ([]byte, bool)
}

func (m *MockArchive) Upload(_ context.Context, data []byte, contentType string) (string, bool) {
	if m.UploadFunc != nil {
		return m.UploadFunc(data, contentType)
	}
	return "", false
}

func (m *MockArchive) Download(_ context.Context, ref string) ([]byte, bool) {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ref)
	}
	return nil, false
}

// MemoryDocuments is an in-memory store.DocumentStore.
type MemoryDocuments struct {
	mu   sync.Mutex
	docs map[string]map[string]any
}

func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{docs: make(map[string]map[string]any)}
}

func (m *MemoryDocuments) Get(_ context.Context, collection, key string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection+"/"+key]
	if !ok {
		return nil, nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryDocuments) Set(_ context.Context, collection, key string, doc map[string]any, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := collection + "/" + key
	existing, ok := m.docs[id]
	if !merge || !ok {
		existing = make(map[string]any, len(doc))
	}
	for k, v := range doc {
		existing[k] = v
	}
	m.docs[id] = existing
	return nil
}

func (m *MemoryDocuments) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, collection+"/"+key)
	return nil
}
