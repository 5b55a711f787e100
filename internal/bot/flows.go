package bot

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/genrelay/tgbot/internal/archive"
	"github.com/genrelay/tgbot/internal/core"
	"github.com/genrelay/tgbot/internal/logger"
	"github.com/genrelay/tgbot/internal/state"
	"github.com/genrelay/tgbot/internal/store"
)

// runGeneration is the single path for text-to-image requests, used by both
// fresh prompts and regeneration so the current preferences always apply.
func (r *Router) runGeneration(ctx context.Context, userID int64, prompt string) (core.GenerationResult, error) {
	prefs := r.prefs.Get(ctx, userID)
	logger.Log.WithFields(logrus.Fields{
		"user_id":      userID,
		"aspect_ratio": prefs.AspectRatio,
		"style":        prefs.Style,
		"magic":        prefs.MagicPrompt,
	}).Info("Generating image")
	return r.gen.GenerateImage(ctx, prompt, prefs)
}

// generateAndDeliver renders prompt, sends the image and records it as the
// user's last artifact. The user ends in next whatever the outcome.
func (r *Router) generateAndDeliver(ctx context.Context, chatID, userID int64, prompt string, next state.State) {
	statusID := r.send(ctx, chatID, r.msgs.T("generating"), nil)

	res, err := r.runGeneration(ctx, userID, prompt)
	if err != nil {
		r.reportFailure(ctx, chatID, userID, statusID, "generate_image", err)
		r.states.Set(userID, next, state.Patch{})
		return
	}
	r.dropStatus(ctx, chatID, statusID)

	caption := res.Description
	if caption == "" {
		caption = prompt
	}
	sent, err := r.tg.SendPhoto(ctx, chatID, res.Image, core.TruncateCaption(caption, core.MaxCaptionLength), ImageKeyboard(r.msgs))
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("Failed to deliver image")
		r.send(ctx, chatID, r.msgs.T("send_failed"), nil)
		r.states.Set(userID, next, state.Patch{LastPrompt: state.Str(prompt)})
		return
	}

	archiveRef, _ := r.archive.Upload(ctx, res.Image, res.MIMEType)
	r.states.Set(userID, next, state.Patch{
		LastPrompt:      state.Str(prompt),
		LastArtifactRef: state.Str(sent.FileID),
		ArchiveRef:      state.Str(archiveRef),
	})
}

// editLastImage applies instruction to the user's last delivered image. The
// archived copy is preferred; Telegram's copy is the fallback.
func (r *Router) editLastImage(ctx context.Context, chatID, userID int64, instruction string, c state.Context) {
	base, ok := r.loadArtifact(ctx, userID, c)
	if !ok {
		r.states.Set(userID, state.AwaitingPrompt, state.Patch{})
		r.send(ctx, chatID, r.msgs.T("no_last_image"), nil)
		return
	}
	patch := r.editAndDeliver(ctx, chatID, userID, base, instruction)
	r.states.Set(userID, state.AwaitingPrompt, patch)
}

// editUploadedImage applies instruction to the image the user sent in
// image-to-image mode.
func (r *Router) editUploadedImage(ctx context.Context, chatID, userID int64, instruction string, c state.Context) {
	if c.PendingBaseImageRef == "" {
		r.states.Set(userID, state.AwaitingPrompt, state.Patch{})
		r.send(ctx, chatID, r.msgs.T("no_base_image"), nil)
		return
	}
	base, err := r.tg.FetchFile(ctx, c.PendingBaseImageRef)
	if err != nil || len(base) == 0 {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("Failed to fetch uploaded image")
		r.states.Set(userID, state.AwaitingPrompt, state.Patch{PendingBaseImageRef: state.Clear()})
		r.send(ctx, chatID, r.msgs.T("no_base_image"), nil)
		return
	}
	patch := r.editAndDeliver(ctx, chatID, userID, base, instruction)
	patch.PendingBaseImageRef = state.Clear()
	r.states.Set(userID, state.AwaitingPrompt, patch)
}

// editAndDeliver runs an edit and sends the result. The returned patch
// records the new image when delivery succeeded and is empty otherwise.
func (r *Router) editAndDeliver(ctx context.Context, chatID, userID int64, base []byte, instruction string) state.Patch {
	statusID := r.send(ctx, chatID, r.msgs.T("editing"), nil)

	image, err := r.gen.EditImage(ctx, base, instruction)
	if err != nil {
		r.reportFailure(ctx, chatID, userID, statusID, "edit_image", err)
		return state.Patch{}
	}
	r.dropStatus(ctx, chatID, statusID)

	sent, err := r.tg.SendPhoto(ctx, chatID, image, core.TruncateCaption("✏️ "+instruction, core.MaxCaptionLength), ImageKeyboard(r.msgs))
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("Failed to deliver edited image")
		r.send(ctx, chatID, r.msgs.T("send_failed"), nil)
		return state.Patch{}
	}

	archiveRef, _ := r.archive.Upload(ctx, image, http.DetectContentType(image))
	return state.Patch{
		LastArtifactRef: state.Str(sent.FileID),
		ArchiveRef:      state.Str(archiveRef),
	}
}

// loadArtifact fetches the last image from the archive, then from Telegram.
func (r *Router) loadArtifact(ctx context.Context, userID int64, c state.Context) ([]byte, bool) {
	if c.ArchiveRef != "" {
		if data, ok := r.archive.Download(ctx, c.ArchiveRef); ok && len(data) > 0 {
			return data, true
		}
	}
	if c.LastArtifactRef == "" {
		return nil, false
	}
	data, err := r.tg.FetchFile(ctx, c.LastArtifactRef)
	if err != nil || len(data) == 0 {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "error": err}).Warn("Failed to fetch last image from Telegram")
		return nil, false
	}
	return data, true
}

// download sends the full-quality file for the image the button belongs to.
func (r *Router) download(ctx context.Context, e CallbackEvent, c state.Context) {
	log := logger.Log.WithField("user_id", e.UserID())

	fileID := c.LastArtifactRef
	if e.PhotoFileID != "" && e.PhotoFileID != c.LastArtifactRef {
		fileID = e.PhotoFileID
	} else if c.ArchiveRef != "" {
		if data, ok := r.archive.Download(ctx, c.ArchiveRef); ok {
			err := r.tg.SendDocument(ctx, e.ChatID(), Document{Name: archive.FileName(c.ArchiveRef), Data: data})
			if err == nil {
				return
			}
			log.WithField("error", err).Warn("Failed to send archived file, falling back to Telegram copy")
		}
	}

	if fileID == "" {
		r.send(ctx, e.ChatID(), r.msgs.T("download_unavailable"), nil)
		return
	}
	if err := r.tg.SendDocument(ctx, e.ChatID(), Document{FileID: fileID}); err != nil {
		log.WithField("error", err).Error("Failed to send file")
		r.send(ctx, e.ChatID(), r.msgs.T("download_unavailable"), nil)
	}
}

// chat answers text with the stored history as context and records the turn.
func (r *Router) chat(ctx context.Context, chatID, userID int64, text string) {
	history := r.history.Load(ctx, userID)
	answer, statusID, ok := r.ask(ctx, chatID, userID, text, history)
	if !ok {
		return
	}
	r.history.Append(ctx, userID, exchange(text, answer)...)
	r.deliverAnswer(ctx, chatID, userID, statusID, answer)
}

// regenerateChat asks the last question again without the last exchange in
// context. The stored exchange is replaced only once a new answer exists.
func (r *Router) regenerateChat(ctx context.Context, chatID, userID int64) {
	history := r.history.Load(ctx, userID)
	n := len(history)
	if n < 2 || history[n-2].Role != store.RoleUser || history[n-1].Role != store.RoleModel {
		r.send(ctx, chatID, r.msgs.T("nothing_to_regenerate"), nil)
		return
	}
	question := history[n-2].Text
	kept := history[:n-2:n-2]

	answer, statusID, ok := r.ask(ctx, chatID, userID, question, kept)
	if !ok {
		return
	}
	r.history.Save(ctx, userID, append(kept, exchange(question, answer)...))
	r.deliverAnswer(ctx, chatID, userID, statusID, answer)
}

// ask shows a progress message and queries the text model. On failure the
// user is told why and ok is false; nothing is written to the history.
func (r *Router) ask(ctx context.Context, chatID, userID int64, text string, history []store.HistoryEntry) (answer string, statusID int, ok bool) {
	statusID = r.send(ctx, chatID, r.msgs.T("thinking"), nil)

	answer, err := r.gen.GenerateText(ctx, text, history, r.chatTier)
	if err != nil {
		r.reportFailure(ctx, chatID, userID, statusID, "generate_text", err)
		r.states.Set(userID, state.Idle, state.Patch{})
		return "", statusID, false
	}
	return answer, statusID, true
}

func (r *Router) deliverAnswer(ctx context.Context, chatID, userID int64, statusID int, answer string) {
	kb := ChatKeyboard(r.msgs)
	r.replaceStatus(ctx, chatID, statusID, core.TruncateCaption(answer, MaxMessageLength), &kb)
	r.states.Set(userID, state.Idle, state.Patch{})
}

func exchange(question, answer string) []store.HistoryEntry {
	return []store.HistoryEntry{
		{Role: store.RoleUser, Text: question},
		{Role: store.RoleModel, Text: answer},
	}
}
