package model

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// Default Ollama settings.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultLocalModel  = "gemma3:1b"
	defaultProbeWindow = 2 * time.Second
)

// OllamaOptions configures the on-device model client.
type OllamaOptions struct {
	URL          string
	Model        string
	ProbeTimeout time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Ollama generates text with a locally running Ollama server.
type Ollama struct {
	client *api.Client
	opts   OllamaOptions
}

// NewOllama parses opts.URL and returns a client. It does not contact the
// server.
func NewOllama(opts OllamaOptions) (*Ollama, error) {
	if opts.URL == "" {
		opts.URL = DefaultOllamaURL
	}
	if opts.Model == "" {
		opts.Model = DefaultLocalModel
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeWindow
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	base, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("model: ollama url: %w", err)
	}
	return &Ollama{client: api.NewClient(base, opts.HTTPClient), opts: opts}, nil
}

// Model returns the configured model name.
func (o *Ollama) Model() string { return o.opts.Model }

// Available reports whether the server answers and has the model pulled.
func (o *Ollama) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ProbeTimeout)
	defer cancel()

	if err := o.client.Heartbeat(ctx); err != nil {
		return false
	}
	list, err := o.client.List(ctx)
	if err != nil {
		return false
	}
	for _, m := range list.Models {
		if sameModel(m.Name, o.opts.Model) || sameModel(m.Model, o.opts.Model) {
			return true
		}
	}
	return false
}

// sameModel treats "name" and "name:latest" as the same tag.
func sameModel(have, want string) bool {
	if have == want {
		return true
	}
	if !strings.Contains(want, ":") {
		return have == want+":latest"
	}
	return false
}

// Generate runs a single non-streaming generation. Connection failures map to
// ErrLocalUnavailable.
func (o *Ollama) Generate(ctx context.Context, req LocalRequest) (string, error) {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}
	stream := false
	gr := &api.GenerateRequest{
		Model:  o.opts.Model,
		Prompt: req.Prompt,
		Stream: &stream,
	}
	if req.MaxOutputTokens > 0 {
		gr.Options = map[string]any{"num_predict": req.MaxOutputTokens}
	}
	if req.Image != nil && len(req.Image.Data) > 0 {
		gr.Images = []api.ImageData{req.Image.Data}
	}

	var b strings.Builder
	err := o.client.Generate(ctx, gr, func(r api.GenerateResponse) error {
		b.WriteString(r.Response)
		return nil
	})
	if err != nil {
		if ctx.Err() == nil && isConnErr(err) {
			return "", fmt.Errorf("%w: %v", ErrLocalUnavailable, err)
		}
		return "", fmt.Errorf("model: ollama generate: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

func isConnErr(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "not found")
}
