package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiOptions configures a Gemini client.
type GeminiOptions struct {
	Model      string
	BaseURL    string // override for tests and proxies
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Gemini calls generateContent on the Gemini API. The API key is supplied
// per call because it may change at runtime; one genai client is kept per
// key.
type Gemini struct {
	opts GeminiOptions

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGemini returns a Gemini client.
func NewGemini(opts GeminiOptions) *Gemini {
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Gemini{opts: opts, clients: make(map[string]*genai.Client)}
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.opts.Model }

func (g *Gemini) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.opts.HTTPClient,
	}
	if g.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.opts.BaseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("model: gemini client: %w", err)
	}
	if len(g.clients) >= 4 {
		g.clients = make(map[string]*genai.Client)
	}
	g.clients[apiKey] = c
	return c, nil
}

// Generate sends req with apiKey and decodes the result.
func (g *Gemini) Generate(ctx context.Context, apiKey string, req CloudRequest) (Response, error) {
	if strings.TrimSpace(apiKey) == "" {
		return Response{}, &APIError{Code: http.StatusUnauthorized, Status: "UNAUTHENTICATED", Message: "API key is empty"}
	}
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	c, err := g.client(ctx, apiKey)
	if err != nil {
		return Response{}, err
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Image != nil && len(req.Image.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{}
	if req.Grounding {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = req.MaxOutputTokens
	}

	resp, err := c.Models.GenerateContent(ctx, g.opts.Model, contents, cfg)
	if err != nil {
		return Response{}, decodeError(err)
	}
	return decodeResponse(resp)
}

func decodeError(err error) error {
	var v genai.APIError
	if errors.As(err, &v) {
		return &APIError{Code: v.Code, Status: v.Status, Message: v.Message}
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return &APIError{Code: p.Code, Status: p.Status, Message: p.Message}
	}
	return fmt.Errorf("model: gemini request: %w", err)
}

func decodeResponse(resp *genai.GenerateContentResponse) (Response, error) {
	if resp == nil {
		return Response{}, &EmptyCandidateError{}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		ec := &EmptyCandidateError{}
		if resp.PromptFeedback != nil {
			ec.BlockReason = string(resp.PromptFeedback.BlockReason)
		}
		return Response{}, ec
	}

	cand := resp.Candidates[0]
	var texts []string
	for _, p := range cand.Content.Parts {
		if p != nil && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	if len(texts) == 0 {
		ec := &EmptyCandidateError{}
		if resp.PromptFeedback != nil {
			ec.BlockReason = string(resp.PromptFeedback.BlockReason)
		}
		return Response{}, ec
	}

	out := Response{Text: strings.Join(texts, "\n")}
	if gm := cand.GroundingMetadata; gm != nil {
		seen := make(map[string]struct{})
		for _, ch := range gm.GroundingChunks {
			if ch == nil || ch.Web == nil || ch.Web.URI == "" {
				continue
			}
			if _, dup := seen[ch.Web.URI]; dup {
				continue
			}
			seen[ch.Web.URI] = struct{}{}
			out.Sources = append(out.Sources, domain.Source{Title: ch.Web.Title, URL: ch.Web.URI})
		}
	}
	return out, nil
}
