package core

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/genrelay/tgbot/internal/logger"
	"github.com/genrelay/tgbot/internal/store"
)

const (
	TierFlash = "flash"
	TierPro   = "pro"
)

type Models struct {
	Flash string
	Pro   string
	Image string
}

// Timeouts bound a single attempt; retries get a fresh deadline each.
type Timeouts struct {
	Text  time.Duration
	Image time.Duration
	Edit  time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{Text: 120 * time.Second, Image: 300 * time.Second, Edit: 90 * time.Second}
}

// RetryPolicy applies to quota errors only; everything else fails on the first attempt.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second}
}

type GenerationResult struct {
	Image       []byte
	MIMEType    string
	Description string
}

// Generator wraps the model client with prompt building, deadlines,
// quota backoff and response parsing.
type Generator struct {
	client   ModelClient
	models   Models
	timeouts Timeouts
	retry    RetryPolicy
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewGenerator(client ModelClient, models Models) *Generator {
	return &Generator{
		client:   client,
		models:   models,
		timeouts: DefaultTimeouts(),
		retry:    DefaultRetryPolicy(),
		sleep:    sleepContext,
	}
}

// GenerateText answers prompt in the context of history using the model for tier.
func (g *Generator) GenerateText(ctx context.Context, prompt string, history []store.HistoryEntry, tier string) (string, error) {
	model := g.models.Flash
	if tier == TierPro && g.models.Pro != "" {
		model = g.models.Pro
	}

	var parts []Part
	err := g.withRetry(ctx, "generate_text", g.timeouts.Text, func(ctx context.Context) error {
		var err error
		parts, err = g.client.Generate(ctx, ModelRequest{
			Model:             model,
			SystemInstruction: chatSystemInstruction,
			History:           history,
			Prompt:            prompt,
		})
		return err
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(collectText(parts))
	if text == "" {
		return "", &GenerationError{Kind: KindRefused, Op: "generate_text", Detail: "model returned no text"}
	}
	return text, nil
}

// GenerateImage renders prompt with the user's preferences applied.
func (g *Generator) GenerateImage(ctx context.Context, prompt string, prefs store.Preferences) (GenerationResult, error) {
	effective := BuildImagePrompt(prompt, prefs)

	var result GenerationResult
	err := g.withRetry(ctx, "generate_image", g.timeouts.Image, func(ctx context.Context) error {
		parts, err := g.client.Generate(ctx, ModelRequest{Model: g.models.Image, Prompt: effective})
		if err != nil {
			return err
		}
		result, err = ParseImageResponse("generate_image", parts)
		return err
	})
	if err != nil {
		return GenerationResult{}, err
	}
	result.Description = SanitizeDescription(result.Description)
	return result, nil
}

// EditImage applies instruction to base and returns the new image bytes.
func (g *Generator) EditImage(ctx context.Context, base []byte, instruction string) ([]byte, error) {
	if len(base) == 0 {
		return nil, &GenerationError{Kind: KindRefused, Op: "edit_image", Detail: "empty base image"}
	}
	req := ModelRequest{
		Model:  g.models.Image,
		Prompt: BuildEditPrompt(instruction),
		Image:  &InlineImage{MIMEType: http.DetectContentType(base), Data: base},
	}

	var result GenerationResult
	err := g.withRetry(ctx, "edit_image", g.timeouts.Edit, func(ctx context.Context) error {
		parts, err := g.client.Generate(ctx, req)
		if err != nil {
			return err
		}
		result, err = ParseImageResponse("edit_image", parts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result.Image, nil
}

// Ping probes the model backend.
func (g *Generator) Ping(ctx context.Context) error {
	return g.client.Ping(ctx)
}

// ParseImageResponse joins all text parts and takes the first binary part.
// A reply without any image is a refusal carrying the model's text.
func ParseImageResponse(op string, parts []Part) (GenerationResult, error) {
	var result GenerationResult
	var text strings.Builder
	for _, p := range parts {
		if p.IsBinary() {
			if result.Image == nil {
				result.Image = p.Data
				result.MIMEType = p.MIMEType
			}
			continue
		}
		if p.Text != "" {
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(p.Text)
		}
	}
	result.Description = strings.TrimSpace(text.String())

	if len(result.Image) == 0 {
		detail := result.Description
		if detail == "" {
			detail = "model returned no image"
		}
		return GenerationResult{}, &GenerationError{Kind: KindRefused, Op: op, Detail: detail}
	}
	if result.MIMEType == "" {
		result.MIMEType = http.DetectContentType(result.Image)
	}
	return result, nil
}

func collectText(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if !p.IsBinary() {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// withRetry runs call under a per-attempt deadline. Quota errors are retried
// with delays BaseDelay * 2^attempt; any other failure is returned at once.
func (g *Generator) withRetry(ctx context.Context, op string, timeout time.Duration, call func(ctx context.Context) error) error {
	attempts := g.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err := call(callCtx)
		deadlineHit := callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()

		if err == nil {
			return nil
		}
		if deadlineHit {
			return &GenerationError{Kind: KindTimeout, Op: op, Detail: "no answer within " + timeout.String(), Err: err}
		}

		gerr := classify(op, err)
		if gerr.Kind != KindQuotaExhausted {
			return gerr
		}
		if attempt == attempts-1 {
			gerr.Detail = "quota still exhausted after retries"
			return gerr
		}

		delay := g.retry.BaseDelay * time.Duration(1<<attempt)
		logger.Log.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt + 1,
			"delay":   delay,
			"error":   err,
		}).Warn("Quota exhausted, backing off")
		if err := g.sleep(ctx, delay); err != nil {
			return classify(op, err)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
