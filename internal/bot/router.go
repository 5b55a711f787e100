package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/genrelay/tgbot/internal/core"
	"github.com/genrelay/tgbot/internal/logger"
	"github.com/genrelay/tgbot/internal/state"
	"github.com/genrelay/tgbot/internal/store"
)

// MaxMessageLength is Telegram's limit for a text message.
const MaxMessageLength = 4096

type Generator interface {
	GenerateText(ctx context.Context, prompt string, history []store.HistoryEntry, tier string) (string, error)
	GenerateImage(ctx context.Context, prompt string, prefs store.Preferences) (core.GenerationResult, error)
	EditImage(ctx context.Context, base []byte, instruction string) ([]byte, error)
}

type PreferenceStore interface {
	Get(ctx context.Context, userID int64) store.Preferences
	Set(ctx context.Context, userID int64, key, value string)
}

type HistoryStore interface {
	Load(ctx context.Context, userID int64) []store.HistoryEntry
	Append(ctx context.Context, userID int64, entries ...store.HistoryEntry) []store.HistoryEntry
	Save(ctx context.Context, userID int64, history []store.HistoryEntry)
	Clear(ctx context.Context, userID int64)
}

type Archive interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, bool)
	Download(ctx context.Context, ref string) ([]byte, bool)
}

type RouterDeps struct {
	States    *state.Store
	Prefs     PreferenceStore
	History   HistoryStore
	Generator Generator
	Archive   Archive
	Messenger Messenger
	Catalog   *Catalog
	ChatTier  string
}

// Router turns events into state transitions and replies. Calls for one user
// must be serialized by the caller.
type Router struct {
	states   *state.Store
	prefs    PreferenceStore
	history  HistoryStore
	gen      Generator
	archive  Archive
	tg       Messenger
	msgs     *Catalog
	chatTier string
}

func NewRouter(d RouterDeps) *Router {
	tier := d.ChatTier
	if tier != core.TierPro {
		tier = core.TierFlash
	}
	return &Router{
		states:   d.States,
		prefs:    d.Prefs,
		history:  d.History,
		gen:      d.Generator,
		archive:  d.Archive,
		tg:       d.Messenger,
		msgs:     d.Catalog,
		chatTier: tier,
	}
}

func (r *Router) Handle(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case TextEvent:
		r.handleText(ctx, e)
	case CallbackEvent:
		r.handleCallback(ctx, e)
	case MediaEvent:
		r.handleMedia(ctx, e)
	}
}

func (r *Router) handleText(ctx context.Context, e TextEvent) {
	text := strings.TrimSpace(e.Text)
	user := e.UserID()

	switch text {
	case "/start":
		r.states.Set(user, state.Idle, state.Patch{ImageToImage: state.Bool(false)})
		r.send(ctx, e.ChatID(), r.msgs.T("welcome"), MainMenu(r.msgs))
		return
	case "/help", r.msgs.T("btn_help"):
		r.send(ctx, e.ChatID(), r.msgs.T("help"), MainMenu(r.msgs))
		return
	case "/chat", r.msgs.T("btn_chat"):
		r.states.Set(user, state.Idle, state.Patch{ImageToImage: state.Bool(false)})
		r.send(ctx, e.ChatID(), r.msgs.T("chat_mode"), MainMenu(r.msgs))
		return
	case "/imagine", r.msgs.T("btn_text2img"):
		r.states.Set(user, state.AwaitingPrompt, state.Patch{ImageToImage: state.Bool(false)})
		r.send(ctx, e.ChatID(), r.msgs.T("gen_mode_intro"), PreferencesKeyboard(r.msgs, r.prefs.Get(ctx, user)))
		return
	case "/img2img", r.msgs.T("btn_img2img"):
		r.states.Set(user, state.AwaitingImageUpload, state.Patch{ImageToImage: state.Bool(true)})
		r.send(ctx, e.ChatID(), r.msgs.T("img2img_intro"), PreferencesKeyboard(r.msgs, r.prefs.Get(ctx, user)))
		return
	case "/settings", r.msgs.T("btn_settings"):
		r.send(ctx, e.ChatID(), r.msgs.T("settings_title"), PreferencesKeyboard(r.msgs, r.prefs.Get(ctx, user)))
		return
	case "/clear":
		r.history.Clear(ctx, user)
		r.states.Set(user, state.Idle, state.Patch{})
		r.send(ctx, e.ChatID(), r.msgs.T("context_cleared"), nil)
		return
	case "":
		return
	}
	if strings.HasPrefix(text, "/") {
		r.send(ctx, e.ChatID(), r.msgs.T("help"), MainMenu(r.msgs))
		return
	}

	st, c := r.states.Get(user)
	switch st {
	case state.AwaitingPrompt, state.AwaitingImageUpload:
		r.generateAndDeliver(ctx, e.ChatID(), user, text, state.AwaitingPrompt)
	case state.AwaitingEditInstruction:
		r.editLastImage(ctx, e.ChatID(), user, text, c)
	case state.AwaitingImageToImageInstruction:
		r.editUploadedImage(ctx, e.ChatID(), user, text, c)
	default:
		r.chat(ctx, e.ChatID(), user, text)
	}
}

func (r *Router) handleMedia(ctx context.Context, e MediaEvent) {
	user := e.UserID()
	st, c := r.states.Get(user)

	accepts := st == state.AwaitingImageUpload ||
		st == state.AwaitingImageToImageInstruction ||
		(st == state.AwaitingPrompt && c.ImageToImage)
	if !accepts {
		r.send(ctx, e.ChatID(), r.msgs.T("photo_hint"), MainMenu(r.msgs))
		return
	}

	r.states.Set(user, state.AwaitingImageToImageInstruction, state.Patch{PendingBaseImageRef: state.Str(e.FileID)})
	if instruction := strings.TrimSpace(e.Caption); instruction != "" {
		_, c = r.states.Get(user)
		r.editUploadedImage(ctx, e.ChatID(), user, instruction, c)
		return
	}
	r.send(ctx, e.ChatID(), r.msgs.T("img2img_send_instruction"), nil)
}

func (r *Router) handleCallback(ctx context.Context, e CallbackEvent) {
	user := e.UserID()
	log := logger.Log.WithFields(logrus.Fields{"user_id": user, "data": e.Data})

	if key, value, ok := ParsePreferenceCallback(e.Data); ok {
		r.applyPreference(ctx, e, key, value)
		return
	}

	if err := r.tg.AnswerCallback(ctx, e.CallbackID, ""); err != nil {
		log.WithField("error", err).Debug("Failed to answer callback")
	}

	st, c := r.states.Get(user)
	switch e.Data {
	case CallbackImageRegenerate:
		if c.LastPrompt == "" {
			r.states.Set(user, state.AwaitingPrompt, state.Patch{})
			r.send(ctx, e.ChatID(), r.msgs.T("no_last_prompt"), nil)
			return
		}
		r.generateAndDeliver(ctx, e.ChatID(), user, c.LastPrompt, st)

	case CallbackImageEdit:
		ref := c.LastArtifactRef
		patch := state.Patch{}
		if e.PhotoFileID != "" && e.PhotoFileID != c.LastArtifactRef {
			// The button belongs to an older image; the archived copy is of a different one.
			ref = e.PhotoFileID
			patch.LastArtifactRef = state.Str(ref)
			patch.ArchiveRef = state.Clear()
		}
		if ref == "" && c.ArchiveRef == "" {
			r.states.Set(user, state.AwaitingPrompt, state.Patch{})
			r.send(ctx, e.ChatID(), r.msgs.T("no_last_image"), nil)
			return
		}
		r.states.Set(user, state.AwaitingEditInstruction, patch)
		r.send(ctx, e.ChatID(), r.msgs.T("edit_prompt"), nil)

	case CallbackImageDownload:
		r.download(ctx, e, c)

	case CallbackChatRegenerate:
		r.regenerateChat(ctx, e.ChatID(), user)

	case CallbackChatClear:
		r.history.Clear(ctx, user)
		r.states.Set(user, state.Idle, state.Patch{})
		if err := r.tg.EditText(ctx, e.ChatID(), e.MessageID, r.msgs.T("context_cleared"), nil); err != nil {
			r.send(ctx, e.ChatID(), r.msgs.T("context_cleared"), nil)
		}

	default:
		log.Debug("Ignoring unknown callback")
	}
}

// applyPreference stores a keyboard choice and redraws the keyboard. A choice
// equal to the current value changes nothing.
func (r *Router) applyPreference(ctx context.Context, e CallbackEvent, key, value string) {
	user := e.UserID()
	current := r.prefs.Get(ctx, user)
	updated := current.With(key, value)

	if updated == current {
		if err := r.tg.AnswerCallback(ctx, e.CallbackID, ""); err != nil {
			logger.Log.WithField("error", err).Debug("Failed to answer callback")
		}
		return
	}

	r.prefs.Set(ctx, user, key, value)
	if err := r.tg.EditMarkup(ctx, e.ChatID(), e.MessageID, PreferencesKeyboard(r.msgs, updated)); err != nil {
		logger.Log.WithFields(logrus.Fields{"user_id": user, "error": err}).Warn("Failed to redraw settings keyboard")
	}
	if err := r.tg.AnswerCallback(ctx, e.CallbackID, r.msgs.T("setting_changed")); err != nil {
		logger.Log.WithField("error", err).Debug("Failed to answer callback")
	}
}

func (r *Router) send(ctx context.Context, chatID int64, text string, markup any) int {
	id, err := r.tg.SendText(ctx, chatID, text, markup)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"chat_id": chatID, "error": err}).Error("Failed to send message")
		return 0
	}
	return id
}

// replaceStatus turns a progress message into the final reply, or sends a
// new message when there is no status message to edit.
func (r *Router) replaceStatus(ctx context.Context, chatID int64, statusID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	if statusID != 0 {
		if err := r.tg.EditText(ctx, chatID, statusID, text, kb); err == nil {
			return
		}
		r.dropStatus(ctx, chatID, statusID)
	}
	if kb != nil {
		r.send(ctx, chatID, text, *kb)
		return
	}
	r.send(ctx, chatID, text, nil)
}

func (r *Router) dropStatus(ctx context.Context, chatID int64, statusID int) {
	if statusID == 0 {
		return
	}
	if err := r.tg.Delete(ctx, chatID, statusID); err != nil {
		logger.Log.WithFields(logrus.Fields{"chat_id": chatID, "error": err}).Debug("Failed to delete status message")
	}
}

// failureText maps a generation error to the message the user sees.
func (r *Router) failureText(err error) string {
	switch core.KindOf(err) {
	case core.KindRefused:
		detail := core.ErrorDetail(err)
		if detail == "" {
			detail = "-"
		}
		return r.msgs.T("err_refused", core.TruncateCaption(detail, 500))
	case core.KindTimeout:
		return r.msgs.T("err_timeout")
	case core.KindQuotaExhausted:
		return r.msgs.T("err_quota")
	default:
		return r.msgs.T("err_transport")
	}
}

func (r *Router) reportFailure(ctx context.Context, chatID, userID int64, statusID int, op string, err error) {
	logger.Log.WithFields(logrus.Fields{
		"user_id": userID,
		"op":      op,
		"kind":    core.KindOf(err).String(),
		"error":   err,
	}).Error("Generation failed")
	r.replaceStatus(ctx, chatID, statusID, r.failureText(err), nil)
}
