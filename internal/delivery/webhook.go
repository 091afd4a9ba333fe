package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts each message as JSON to a fixed URL. Any non-2xx response
// counts as a failed send.
type Webhook struct {
	URL    string
	Client *http.Client
}

// NewWebhook returns a webhook channel with a short per-request timeout.
func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (w *Webhook) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivery: webhook returned %s", resp.Status)
	}
	return nil
}

// Multi sends to every channel and succeeds when any of them succeeds.
type Multi []Channel

func (m Multi) Send(ctx context.Context, msg Message) error {
	var firstErr error
	ok := false
	for _, ch := range m {
		if err := ch.Send(ctx, msg); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ok = true
	}
	if ok {
		return nil
	}
	if firstErr == nil {
		return ErrNoListener
	}
	return firstErr
}
