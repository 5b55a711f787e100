package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/genrelay/tgbot/internal/store"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n fake image payload")

type scriptedClient struct {
	mu       sync.Mutex
	calls    []ModelRequest
	respond  func(call int, req ModelRequest) ([]Part, error)
	pingFunc func(ctx context.Context) error
}

func (c *scriptedClient) Generate(ctx context.Context, req ModelRequest) ([]Part, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	n := len(c.calls)
	c.mu.Unlock()
	return c.respond(n, req)
}

func (c *scriptedClient) Ping(ctx context.Context) error {
	if c.pingFunc != nil {
		return c.pingFunc(ctx)
	}
	return nil
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newTestGenerator(client ModelClient) (*Generator, *sleepRecorder) {
	g := NewGenerator(client, Models{Flash: "flash-model", Pro: "pro-model", Image: "image-model"})
	rec := &sleepRecorder{}
	g.sleep = rec.sleep
	return g, rec
}

func quotaErr() error {
	return fmt.Errorf("gemini request failed: %w", &googleapi.Error{Code: http.StatusTooManyRequests, Message: "Resource has been exhausted"})
}

func imageParts(text string) []Part {
	return []Part{{Text: text}, {MIMEType: "image/png", Data: pngBytes}}
}

func TestGenerateImage_RetriesQuotaWithBackoff(t *testing.T) {
	client := &scriptedClient{respond: func(call int, _ ModelRequest) ([]Part, error) {
		if call < 3 {
			return nil, quotaErr()
		}
		return imageParts("A red fox in snow."), nil
	}}
	g, rec := newTestGenerator(client)

	res, err := g.GenerateImage(context.Background(), "fox", store.DefaultPreferences())
	if err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if string(res.Image) != string(pngBytes) {
		t.Error("Expected image bytes from the successful attempt")
	}
	if len(client.calls) != 3 {
		t.Errorf("Expected 3 attempts, got %d", len(client.calls))
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if fmt.Sprint(rec.delays) != fmt.Sprint(want) {
		t.Errorf("Expected delays %v, got %v", want, rec.delays)
	}
}

func TestGenerateImage_NonQuotaErrorFailsImmediately(t *testing.T) {
	client := &scriptedClient{respond: func(int, ModelRequest) ([]Part, error) {
		return nil, errors.New("connection reset by peer")
	}}
	g, rec := newTestGenerator(client)

	_, err := g.GenerateImage(context.Background(), "fox", store.DefaultPreferences())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Expected transport error, got %v", err)
	}
	if len(client.calls) != 1 {
		t.Errorf("Expected a single attempt, got %d", len(client.calls))
	}
	if len(rec.delays) != 0 {
		t.Errorf("Expected no delays, got %v", rec.delays)
	}
}

func TestGenerateImage_QuotaExhaustedAfterThreeAttempts(t *testing.T) {
	client := &scriptedClient{respond: func(int, ModelRequest) ([]Part, error) {
		return nil, quotaErr()
	}}
	g, rec := newTestGenerator(client)

	_, err := g.GenerateImage(context.Background(), "fox", store.DefaultPreferences())
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("Expected quota exhausted, got %v", err)
	}
	if len(client.calls) != 3 {
		t.Errorf("Expected 3 attempts, got %d", len(client.calls))
	}
	if len(rec.delays) != 2 {
		t.Errorf("Expected 2 delays, got %v", rec.delays)
	}
}

func TestGenerateImage_TextOnlyReplyIsRefusal(t *testing.T) {
	client := &scriptedClient{respond: func(int, ModelRequest) ([]Part, error) {
		return []Part{{Text: "I can't create that image."}, {Text: " It violates policy."}}, nil
	}}
	g, _ := newTestGenerator(client)

	res, err := g.GenerateImage(context.Background(), "something", store.DefaultPreferences())
	if !errors.Is(err, ErrRefused) {
		t.Fatalf("Expected refusal, got %v", err)
	}
	var gerr *GenerationError
	if !errors.As(err, &gerr) || !strings.Contains(gerr.Detail, "I can't create that image.") || !strings.Contains(gerr.Detail, "violates policy") {
		t.Errorf("Expected detail to carry model text, got %+v", gerr)
	}
	if len(res.Image) != 0 {
		t.Error("Expected no image bytes on refusal")
	}
	if len(client.calls) != 1 {
		t.Errorf("Expected refusal not to be retried, got %d calls", len(client.calls))
	}
}

func TestGenerateImage_SanitizesDescription(t *testing.T) {
	client := &scriptedClient{respond: func(int, ModelRequest) ([]Part, error) {
		return imageParts(`{"prompt": "A lighthouse at dusk"}`), nil
	}}
	g, _ := newTestGenerator(client)

	res, err := g.GenerateImage(context.Background(), "lighthouse", store.DefaultPreferences())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Description != "A lighthouse at dusk" {
		t.Errorf("Expected unwrapped description, got %q", res.Description)
	}
	if res.MIMEType != "image/png" {
		t.Errorf("Expected image/png, got %s", res.MIMEType)
	}
}

func TestGenerateImage_UsesImageModelAndPreferences(t *testing.T) {
	client := &scriptedClient{respond: func(int, ModelRequest) ([]Part, error) {
		return imageParts(""), nil
	}}
	g, _ := newTestGenerator(client)
	prefs := store.Preferences{AspectRatio: "16:9", Style: "art", MagicPrompt: false, Resolution: store.ResolutionHD}

	if _, err := g.GenerateImage(context.Background(), "castle", prefs); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	req := client.calls[0]
	if req.Model != "image-model" {
		t.Errorf("Expected image model, got %s", req.Model)
	}
	for _, want := range []string{"castle", "16:9", "digital art", "high definition, sharp details", "exactly"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("Expected prompt to contain %q:\n%s", want, req.Prompt)
		}
	}
}

func TestGenerateImage_BlockedIsRefusal(t *testing.T) {
	client := &scriptedClient{respond: func(int, ModelRequest) ([]Part, error) {
		return nil, fmt.Errorf("gemini request failed: %w", &genai.BlockedError{})
	}}
	g, _ := newTestGenerator(client)

	_, err := g.GenerateImage(context.Background(), "x", store.DefaultPreferences())
	if KindOf(err) != KindRefused {
		t.Errorf("Expected refusal kind, got %v (%v)", KindOf(err), err)
	}
}

func TestGenerateImage_DeadlineIsTimeout(t *testing.T) {
	client := &scriptedClient{respond: func(int, ModelRequest) ([]Part, error) {
		return nil, context.DeadlineExceeded
	}}
	g, rec := newTestGenerator(client)

	_, err := g.GenerateImage(context.Background(), "x", store.DefaultPreferences())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected timeout, got %v", err)
	}
	if len(rec.delays) != 0 {
		t.Error("Expected timeouts not to be retried")
	}
}

func TestWithRetry_PerAttemptDeadline(t *testing.T) {
	client := &scriptedClient{respond: func(int, ModelRequest) ([]Part, error) { return nil, nil }}
	g, _ := newTestGenerator(client)

	err := g.withRetry(context.Background(), "slow", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected timeout, got %v", err)
	}
}

func TestEditImage_SendsBaseImage(t *testing.T) {
	edited := []byte("\x89PNG\r\n\x1a\n edited")
	client := &scriptedClient{respond: func(int, ModelRequest) ([]Part, error) {
		return []Part{{MIMEType: "image/png", Data: edited}}, nil
	}}
	g, _ := newTestGenerator(client)

	out, err := g.EditImage(context.Background(), pngBytes, "make it blue")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(out) != string(edited) {
		t.Error("Expected edited bytes")
	}
	req := client.calls[0]
	if req.Image == nil || req.Image.MIMEType != "image/png" {
		t.Errorf("Expected base image with detected MIME type, got %+v", req.Image)
	}
	if !strings.Contains(req.Prompt, "make it blue") {
		t.Errorf("Expected instruction in prompt, got %q", req.Prompt)
	}
}

func TestEditImage_EmptyBaseRefused(t *testing.T) {
	g, _ := newTestGenerator(&scriptedClient{})
	if _, err := g.EditImage(context.Background(), nil, "x"); !errors.Is(err, ErrRefused) {
		t.Errorf("Expected refusal for empty base, got %v", err)
	}
}

func TestGenerateText_PicksTierAndPassesHistory(t *testing.T) {
	client := &scriptedClient{respond: func(int, ModelRequest) ([]Part, error) {
		return []Part{{Text: "Hello "}, {Text: "there"}}, nil
	}}
	g, _ := newTestGenerator(client)
	history := []store.HistoryEntry{{Role: store.RoleUser, Text: "hi"}, {Role: store.RoleModel, Text: "hey"}}

	out, err := g.GenerateText(context.Background(), "how are you", history, TierPro)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out != "Hello there" {
		t.Errorf("Expected concatenated text, got %q", out)
	}
	req := client.calls[0]
	if req.Model != "pro-model" || len(req.History) != 2 || req.Prompt != "how are you" {
		t.Errorf("Unexpected request %+v", req)
	}
}

func TestGenerateText_EmptyReplyIsRefusal(t *testing.T) {
	client := &scriptedClient{respond: func(int, ModelRequest) ([]Part, error) { return nil, nil }}
	g, _ := newTestGenerator(client)

	if _, err := g.GenerateText(context.Background(), "hi", nil, TierFlash); !errors.Is(err, ErrRefused) {
		t.Errorf("Expected refusal, got %v", err)
	}
}

func TestParseImageResponse_FirstBinaryWins(t *testing.T) {
	res, err := ParseImageResponse("op", []Part{
		{Text: "one"},
		{MIMEType: "image/jpeg", Data: []byte("first")},
		{Text: "two"},
		{MIMEType: "image/png", Data: []byte("second")},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(res.Image) != "first" || res.MIMEType != "image/jpeg" {
		t.Errorf("Expected first binary part, got %q %s", res.Image, res.MIMEType)
	}
	if res.Description != "one\ntwo" {
		t.Errorf("Expected all text parts, got %q", res.Description)
	}
}

func TestIsQuotaError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{quotaErr(), true},
		{errors.New("rpc error: code = ResourceExhausted desc = Resource has been exhausted (e.g. check quota)."), true},
		{errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED"), true},
		{&googleapi.Error{Code: http.StatusInternalServerError}, false},
		{errors.New("EOF"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsQuotaError(tc.err); got != tc.want {
			t.Errorf("IsQuotaError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestGenerationError_IsMatchesKindOnly(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &GenerationError{Kind: KindQuotaExhausted, Op: "generate_image", Detail: "d"})
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Error("Expected wrapped error to match its kind sentinel")
	}
	if errors.Is(err, ErrRefused) {
		t.Error("Expected no match against another kind")
	}
}
