package services

import (
	"context"
	"errors"
	"strings"

	"github.com/tbourn/veritas-backend/internal/model"
	"github.com/tbourn/veritas-backend/internal/prompt"
	"github.com/tbourn/veritas-backend/internal/store"
	"github.com/tbourn/veritas-backend/internal/verdict"

	"go.opentelemetry.io/otel"
)

// MinCredentialLength is the shortest API key accepted for storage.
const MinCredentialLength = 30

// Credential sources reported by CredentialStatus.
const (
	CredentialStored = "stored"
	CredentialEnv    = "env"
	CredentialNone   = "none"
)

// CredentialInfo describes the configured cloud key without revealing it.
type CredentialInfo struct {
	Configured bool   `json:"configured"`
	Source     string `json:"source"`
	Masked     string `json:"masked,omitempty"`
}

// CredentialCheck is the outcome of a key test.
type CredentialCheck struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// Settings manages the stored cloud credential and the onboarding flag. A
// key stored through the surface takes precedence over EnvKey.
type Settings struct {
	Surface *store.Surface
	Cloud   model.Cloud
	EnvKey  string
}

// Credential returns the active API key, or "" when none is configured.
func (s *Settings) Credential(ctx context.Context) (string, error) {
	key, err := s.Surface.Credential(ctx)
	if err != nil {
		return "", err
	}
	if key = strings.TrimSpace(key); key != "" {
		return key, nil
	}
	return strings.TrimSpace(s.EnvKey), nil
}

// CredentialStatus reports whether a key is configured and where it comes
// from.
func (s *Settings) CredentialStatus(ctx context.Context) (CredentialInfo, error) {
	stored, err := s.Surface.Credential(ctx)
	if err != nil {
		return CredentialInfo{}, err
	}
	if stored = strings.TrimSpace(stored); stored != "" {
		return CredentialInfo{Configured: true, Source: CredentialStored, Masked: MaskKey(stored)}, nil
	}
	if env := strings.TrimSpace(s.EnvKey); env != "" {
		return CredentialInfo{Configured: true, Source: CredentialEnv, Masked: MaskKey(env)}, nil
	}
	return CredentialInfo{Source: CredentialNone}, nil
}

// SetCredential stores key after a basic length check.
func (s *Settings) SetCredential(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if len(key) < MinCredentialLength {
		return ErrCredentialFormat
	}
	return s.Surface.SetCredential(ctx, key)
}

// ClearCredential removes the stored key. EnvKey, if any, applies again.
func (s *Settings) ClearCredential(ctx context.Context) error {
	return s.Surface.ClearCredential(ctx)
}

// TestCredential sends a trivial probe with key, or with the active key when
// key is empty. Upstream failures are reported in the result, not as errors.
func (s *Settings) TestCredential(ctx context.Context, key string) (CredentialCheck, error) {
	tr := otel.Tracer("services/Settings")
	ctx, span := tr.Start(ctx, "TestCredential")
	defer span.End()

	key = strings.TrimSpace(key)
	if key == "" {
		active, err := s.Credential(ctx)
		if err != nil {
			return CredentialCheck{}, err
		}
		key = active
	}
	if key == "" {
		return CredentialCheck{}, ErrNoCredential
	}

	resp, err := s.Cloud.Generate(ctx, key, model.CloudRequest{
		Prompt:          prompt.CredentialProbe,
		MaxOutputTokens: prompt.CredentialProbeTokens,
	})
	var empty *model.EmptyCandidateError
	switch {
	case err == nil:
	case errors.As(err, &empty) && empty.BlockReason == "":
		// The key was accepted but the reply was cut off before any text.
		return CredentialCheck{Valid: true, Message: verdict.MsgKeyUnexpected}, nil
	default:
		v := failure(prompt.CredentialProbe, err)
		return CredentialCheck{Message: v.Message}, nil
	}

	if !strings.Contains(strings.ToUpper(resp.Text), "FACT") {
		return CredentialCheck{Valid: true, Message: verdict.MsgKeyUnexpected}, nil
	}
	return CredentialCheck{Valid: true, Message: verdict.MsgKeyOK}, nil
}

// Onboarded reports whether the onboarding screen was dismissed.
func (s *Settings) Onboarded(ctx context.Context) (bool, error) {
	return s.Surface.Onboarded(ctx)
}

// SetOnboarded records the onboarding flag.
func (s *Settings) SetOnboarded(ctx context.Context, seen bool) error {
	return s.Surface.SetOnboarded(ctx, seen)
}

// MaskKey shows the first and last five characters of key.
func MaskKey(key string) string {
	if len(key) <= 10 {
		return strings.Repeat("*", len(key))
	}
	return key[:5] + "..." + key[len(key)-5:]
}
