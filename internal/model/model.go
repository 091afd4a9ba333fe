// Package model wraps the two model backends used for verification: the
// cloud Gemini API (google.golang.org/genai) and an on-device Ollama runtime.
//
// Failures are decoded at this boundary into a small set of typed errors so
// callers never probe response fields themselves:
//
//   - *APIError            the endpoint answered with a structured error
//   - *EmptyCandidateError the endpoint answered without usable content
//   - ErrLocalUnavailable  no local runtime or model is reachable
//
// Anything else is a transport failure wrapped with %w.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// Inline is an image attached to a request. Data holds raw bytes; the
// clients encode them for the wire.
type Inline struct {
	MimeType string
	Data     []byte
}

// CloudRequest is one cloud generation call.
type CloudRequest struct {
	Prompt          string
	Image           *Inline
	Grounding       bool
	MaxOutputTokens int32
}

// Response is a successful generation: the text of every returned part
// joined with newlines, plus grounding sources deduplicated by URL.
type Response struct {
	Text    string
	Sources []domain.Source
}

// LocalRequest is one on-device generation call.
type LocalRequest struct {
	Prompt          string
	Image           *Inline
	MaxOutputTokens int
}

// Cloud is the cloud model contract.
type Cloud interface {
	Generate(ctx context.Context, apiKey string, req CloudRequest) (Response, error)
}

// Local is the on-device model contract. Available is a capability probe;
// a false result is not an error.
type Local interface {
	Available(ctx context.Context) bool
	Generate(ctx context.Context, req LocalRequest) (string, error)
}

// ErrLocalUnavailable is returned when the on-device runtime cannot serve a
// request.
var ErrLocalUnavailable = errors.New("model: local model unavailable")

// APIError is a structured error returned by the cloud endpoint.
type APIError struct {
	Code    int
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("model: api error %d %s: %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("model: api error %d: %s", e.Code, e.Message)
}

// EmptyCandidateError reports a response without usable candidate content,
// typically because a safety filter blocked the prompt. BlockReason is empty
// when the endpoint gave none.
type EmptyCandidateError struct {
	BlockReason string
}

func (e *EmptyCandidateError) Error() string {
	if e.BlockReason != "" {
		return "model: prompt blocked: " + e.BlockReason
	}
	return "model: empty candidate"
}
