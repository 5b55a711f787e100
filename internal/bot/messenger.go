package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SentPhoto identifies a delivered photo. FileID can be reused to resend or
// download the image without keeping the bytes around.
type SentPhoto struct {
	MessageID int
	FileID    string
}

// Document is sent either from bytes or by re-sending an existing file id.
type Document struct {
	Name   string
	Data   []byte
	FileID string
}

// Messenger is the subset of the Telegram Bot API the router uses.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, markup any) (int, error)
	SendPhoto(ctx context.Context, chatID int64, image []byte, caption string, markup any) (SentPhoto, error)
	SendDocument(ctx context.Context, chatID int64, doc Document) error
	EditText(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	EditMarkup(ctx context.Context, chatID int64, messageID int, markup tgbotapi.InlineKeyboardMarkup) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	FetchFile(ctx context.Context, fileID string) ([]byte, error)
}

// TelegramMessenger implements Messenger on the Bot API client.
type TelegramMessenger struct {
	api *tgbotapi.BotAPI
}

func NewTelegramMessenger(api *tgbotapi.BotAPI) *TelegramMessenger {
	return &TelegramMessenger{api: api}
}

// IsNotModified reports Telegram's rejection of an edit that changes nothing.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func (m *TelegramMessenger) SendText(_ context.Context, chatID int64, text string, markup any) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := m.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

func (m *TelegramMessenger) SendPhoto(_ context.Context, chatID int64, image []byte, caption string, markup any) (SentPhoto, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "image", Bytes: image})
	photo.Caption = caption
	if markup != nil {
		photo.ReplyMarkup = markup
	}
	sent, err := m.api.Send(photo)
	if err != nil {
		return SentPhoto{}, fmt.Errorf("send photo: %w", err)
	}
	return SentPhoto{MessageID: sent.MessageID, FileID: largestPhoto(sent.Photo)}, nil
}

func (m *TelegramMessenger) SendDocument(_ context.Context, chatID int64, doc Document) error {
	var file tgbotapi.RequestFileData
	if doc.FileID != "" {
		file = tgbotapi.FileID(doc.FileID)
	} else {
		file = tgbotapi.FileBytes{Name: doc.Name, Bytes: doc.Data}
	}
	if _, err := m.api.Send(tgbotapi.NewDocument(chatID, file)); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

func (m *TelegramMessenger) EditText(_ context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = markup
	if _, err := m.api.Request(edit); err != nil && !IsNotModified(err) {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func (m *TelegramMessenger) EditMarkup(_ context.Context, chatID int64, messageID int, markup tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, markup)
	if _, err := m.api.Request(edit); err != nil && !IsNotModified(err) {
		return fmt.Errorf("edit keyboard: %w", err)
	}
	return nil
}

func (m *TelegramMessenger) Delete(_ context.Context, chatID int64, messageID int) error {
	if _, err := m.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (m *TelegramMessenger) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := m.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// FetchFile downloads a file Telegram stores for the bot.
func (m *TelegramMessenger) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := m.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.api.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file %s: status %d", fileID, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
