package core

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/genrelay/tgbot/internal/logger"
	"github.com/genrelay/tgbot/internal/store"
)

// Part is one piece of a model reply: either text or binary data with a MIME type.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

func (p Part) IsBinary() bool { return len(p.Data) > 0 }

type InlineImage struct {
	MIMEType string
	Data     []byte
}

type ModelRequest struct {
	Model             string
	SystemInstruction string
	History           []store.HistoryEntry
	Prompt            string
	Image             *InlineImage
	Temperature       *float32
}

// ModelClient is a single generate call against the model backend.
type ModelClient interface {
	Generate(ctx context.Context, req ModelRequest) ([]Part, error)
	Ping(ctx context.Context) error
}

// GeminiClient implements ModelClient on the Gemini API.
type GeminiClient struct {
	client     *genai.Client
	probeModel string
}

func NewGeminiClient(ctx context.Context, apiKey, probeModel string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, probeModel: probeModel}, nil
}

func (c *GeminiClient) Close() {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			logger.Log.WithField("error", err).Error("Error closing GenAI client")
		} else {
			logger.Log.Info("GenAI client closed.")
		}
	}
}

func (c *GeminiClient) Generate(ctx context.Context, req ModelRequest) ([]Part, error) {
	model := c.client.GenerativeModel(req.Model)
	if req.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemInstruction)},
		}
	}
	if req.Temperature != nil {
		model.SetTemperature(*req.Temperature)
	}

	var input []genai.Part
	if req.Image != nil {
		input = append(input, genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data})
	}
	input = append(input, genai.Text(req.Prompt))

	var (
		resp *genai.GenerateContentResponse
		err  error
	)
	if len(req.History) > 0 {
		chatSession := model.StartChat()
		chatSession.History = toContents(req.History)
		resp, err = chatSession.SendMessage(ctx, input...)
	} else {
		resp, err = model.GenerateContent(ctx, input...)
	}
	if err != nil {
		return nil, fmt.Errorf("gemini %s request failed: %w", req.Model, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		logger.Log.WithField("model", req.Model).Warn("Gemini response was empty or had no valid candidates.")
		return nil, nil
	}

	parts := make([]Part, 0, len(resp.Candidates[0].Content.Parts))
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			parts = append(parts, Part{Text: string(v)})
		case genai.Blob:
			parts = append(parts, Part{MIMEType: v.MIMEType, Data: v.Data})
		default:
			logger.Log.WithFields(logrus.Fields{"model": req.Model, "part_type": fmt.Sprintf("%T", part)}).Debug("Skipping unsupported Gemini response part")
		}
	}
	return parts, nil
}

// Ping checks that the backend answers for the probe model.
func (c *GeminiClient) Ping(ctx context.Context) error {
	if _, err := c.client.GenerativeModel(c.probeModel).Info(ctx); err != nil {
		return fmt.Errorf("gemini model %s unreachable: %w", c.probeModel, err)
	}
	return nil
}

func toContents(history []store.HistoryEntry) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, e := range history {
		role := e.Role
		if role != store.RoleModel {
			role = store.RoleUser
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(e.Text)},
		})
	}
	return contents
}
