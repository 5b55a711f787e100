package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/genrelay/tgbot/internal/store"
)

// Callback data sent by inline buttons.
const (
	CallbackImageRegenerate = "img_regenerate"
	CallbackImageDownload   = "img_download"
	CallbackImageEdit       = "img_edit"
	CallbackChatRegenerate  = "chat_regenerate"
	CallbackChatClear       = "chat_clear"

	preferencePrefix = "gen_set_"
)

var preferenceCallbackKeys = map[string]string{
	"ar":    store.KeyAspectRatio,
	"style": store.KeyStyle,
	"res":   store.KeyResolution,
	"magic": store.KeyMagicPrompt,
}

var styles = []string{"photo", "art", "none"}

var resolutions = []store.Resolution{store.ResolutionStandard, store.ResolutionHD, store.Resolution4K}

// MainMenu is the persistent reply keyboard with the mode buttons.
func MainMenu(c *Catalog) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(c.T("btn_chat")),
			tgbotapi.NewKeyboardButton(c.T("btn_text2img")),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(c.T("btn_img2img")),
			tgbotapi.NewKeyboardButton(c.T("btn_settings")),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(c.T("btn_help")),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// PreferencesKeyboard renders the settings with the current choice of each marked.
func PreferencesKeyboard(c *Catalog, prefs store.Preferences) tgbotapi.InlineKeyboardMarkup {
	var ratios []tgbotapi.InlineKeyboardButton
	for _, ar := range store.SupportedAspectRatios {
		ratios = append(ratios, tgbotapi.NewInlineKeyboardButtonData(mark(ar, ar == prefs.AspectRatio), preferencePrefix+"ar_"+ar))
	}

	var styleRow []tgbotapi.InlineKeyboardButton
	for _, s := range styles {
		styleRow = append(styleRow, tgbotapi.NewInlineKeyboardButtonData(mark(c.T("btn_style_"+s), s == prefs.Style), preferencePrefix+"style_"+s))
	}

	var resRow []tgbotapi.InlineKeyboardButton
	for _, r := range resolutions {
		resRow = append(resRow, tgbotapi.NewInlineKeyboardButtonData(mark(string(r), r == prefs.Resolution), preferencePrefix+"res_"+string(r)))
	}

	magic := tgbotapi.NewInlineKeyboardButtonData(c.T("btn_magic_off"), preferencePrefix+"magic_on")
	if prefs.MagicPrompt {
		magic = tgbotapi.NewInlineKeyboardButtonData(c.T("btn_magic_on"), preferencePrefix+"magic_off")
	}

	return tgbotapi.NewInlineKeyboardMarkup(ratios, styleRow, resRow, tgbotapi.NewInlineKeyboardRow(magic))
}

// ImageKeyboard is attached to every delivered image.
func ImageKeyboard(c *Catalog) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.T("btn_regenerate"), CallbackImageRegenerate),
			tgbotapi.NewInlineKeyboardButtonData(c.T("btn_download"), CallbackImageDownload),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.T("btn_edit"), CallbackImageEdit),
		),
	)
}

// ChatKeyboard is attached to every chat answer.
func ChatKeyboard(c *Catalog) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.T("btn_chat_regenerate"), CallbackChatRegenerate),
			tgbotapi.NewInlineKeyboardButtonData(c.T("btn_chat_clear"), CallbackChatClear),
		),
	)
}

// ParsePreferenceCallback splits "gen_set_<key>_<value>" into a preference
// key and its raw value.
func ParsePreferenceCallback(data string) (key, value string, ok bool) {
	rest, found := strings.CutPrefix(data, preferencePrefix)
	if !found {
		return "", "", false
	}
	short, value, found := strings.Cut(rest, "_")
	if !found || value == "" {
		return "", "", false
	}
	key, ok = preferenceCallbackKeys[short]
	return key, value, ok
}

func mark(label string, selected bool) string {
	if selected {
		return "✅ " + label
	}
	return label
}
