package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ErrorKind int

const (
	KindRefused ErrorKind = iota + 1
	KindTimeout
	KindQuotaExhausted
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindRefused:
		return "refused"
	case KindTimeout:
		return "timeout"
	case KindQuotaExhausted:
		return "quota_exhausted"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// GenerationError is the only error type the Generator returns.
type GenerationError struct {
	Kind   ErrorKind
	Op     string
	Detail string
	Err    error
}

// Sentinels for errors.Is; they match any GenerationError of the same kind.
var (
	ErrRefused        = &GenerationError{Kind: KindRefused}
	ErrTimeout        = &GenerationError{Kind: KindTimeout}
	ErrQuotaExhausted = &GenerationError{Kind: KindQuotaExhausted}
	ErrTransport      = &GenerationError{Kind: KindTransport}
)

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation %s", e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool {
	t, ok := target.(*GenerationError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of a generation error, or 0 for anything else.
func KindOf(err error) ErrorKind {
	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return 0
}

// ErrorDetail returns the user-facing detail of a generation error, if any.
func ErrorDetail(err error) string {
	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return gerr.Detail
	}
	return ""
}

// IsQuotaError reports whether err is the backend saying "slow down".
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	if status.Code(err) == codes.ResourceExhausted {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "error 429")
}

// classify turns a raw backend error into a GenerationError.
func classify(op string, err error) *GenerationError {
	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return gerr
	}

	var blocked *genai.BlockedError
	switch {
	case errors.As(err, &blocked):
		return &GenerationError{Kind: KindRefused, Op: op, Detail: "blocked by safety filters", Err: err}
	case errors.Is(err, context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded:
		return &GenerationError{Kind: KindTimeout, Op: op, Err: err}
	case IsQuotaError(err):
		return &GenerationError{Kind: KindQuotaExhausted, Op: op, Err: err}
	default:
		return &GenerationError{Kind: KindTransport, Op: op, Err: err}
	}
}
