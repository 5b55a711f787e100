package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Event is one user action decoded from a Telegram update.
type Event interface {
	UserID() int64
	ChatID() int64
}

// Origin identifies who sent an event and where.
type Origin struct {
	User      int64
	Chat      int64
	MessageID int
}

func (o Origin) UserID() int64 { return o.User }
func (o Origin) ChatID() int64 { return o.Chat }

type TextEvent struct {
	Origin
	Text string
}

// CallbackEvent is an inline button press. MessageID is the message carrying
// the keyboard; PhotoFileID is set when that message is a photo.
type CallbackEvent struct {
	Origin
	CallbackID  string
	Data        string
	PhotoFileID string
}

// MediaEvent is an uploaded image, either as a photo or an image document.
type MediaEvent struct {
	Origin
	FileID  string
	Caption string
}

// EventFromUpdate decodes the parts of an update the bot reacts to.
// Updates without a sender, edits and channel posts are ignored.
func EventFromUpdate(u tgbotapi.Update) (Event, bool) {
	if cq := u.CallbackQuery; cq != nil {
		if cq.From == nil {
			return nil, false
		}
		ev := CallbackEvent{
			Origin:     Origin{User: cq.From.ID, Chat: cq.From.ID},
			CallbackID: cq.ID,
			Data:       cq.Data,
		}
		if cq.Message != nil {
			if cq.Message.Chat != nil {
				ev.Chat = cq.Message.Chat.ID
			}
			ev.MessageID = cq.Message.MessageID
			ev.PhotoFileID = largestPhoto(cq.Message.Photo)
		}
		return ev, true
	}

	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil, false
	}
	origin := Origin{User: msg.From.ID, Chat: msg.Chat.ID, MessageID: msg.MessageID}

	if id := largestPhoto(msg.Photo); id != "" {
		return MediaEvent{Origin: origin, FileID: id, Caption: msg.Caption}, true
	}
	if doc := msg.Document; doc != nil && strings.HasPrefix(doc.MimeType, "image/") {
		return MediaEvent{Origin: origin, FileID: doc.FileID, Caption: msg.Caption}, true
	}
	if msg.Text != "" {
		return TextEvent{Origin: origin, Text: msg.Text}, true
	}
	return nil, false
}

// largestPhoto returns the file id of the biggest size Telegram offers.
func largestPhoto(sizes []tgbotapi.PhotoSize) string {
	best := -1
	for i, s := range sizes {
		if best < 0 || s.Width*s.Height > sizes[best].Width*sizes[best].Height {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return sizes[best].FileID
}
