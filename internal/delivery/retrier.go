// Package delivery pushes live status updates (loading and final verdicts)
// to UI surfaces over best-effort channels.
//
// Push is never authoritative: the dispatcher always writes the verdict to
// durable storage as well, so a surface that misses every push converges by
// polling. A failed delivery is therefore reported, not escalated.
package delivery

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// Message kinds.
const (
	KindLoading = "loading"
	KindFinal   = "final"
)

// Message is one status update for a surface.
type Message struct {
	Kind       string         `json:"kind"`
	Surface    string         `json:"surface"`
	Verdict    domain.Verdict `json:"verdict"`
	Contextual bool           `json:"contextual,omitempty"`
}

// Channel is a one-shot, possibly unreliable transport to a surface. Send
// returns an error when the surface did not accept the message.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, msg Message) error

func (f ChannelFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Result is the outcome of Deliver.
type Result int

const (
	Failed Result = iota
	Delivered
)

func (r Result) String() string {
	if r == Delivered {
		return "delivered"
	}
	return "failed"
}

// Default retry policy.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 200 * time.Millisecond
)

var deliveryAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "veritas_delivery_attempts_total",
		Help: "Delivery attempts to UI surfaces by outcome (ok, error).",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(deliveryAttempts)
}

// Retrier delivers with a bounded number of attempts and a fixed backoff
// between them.
type Retrier struct {
	Attempts int
	Backoff  time.Duration
}

// NewRetrier returns a Retrier, substituting defaults for non-positive
// values.
func NewRetrier(attempts int, backoff time.Duration) Retrier {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if backoff < 0 {
		backoff = DefaultBackoff
	}
	return Retrier{Attempts: attempts, Backoff: backoff}
}

// Deliver sends msg on ch, retrying after Backoff on failure until Attempts
// sends have been made. Context cancellation stops the loop early.
func (r Retrier) Deliver(ctx context.Context, ch Channel, msg Message) Result {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for i := 1; i <= attempts; i++ {
		err := ch.Send(ctx, msg)
		if err == nil {
			deliveryAttempts.WithLabelValues("ok").Inc()
			return Delivered
		}
		deliveryAttempts.WithLabelValues("error").Inc()
		log.Debug().Err(err).
			Str("surface", msg.Surface).
			Str("kind", msg.Kind).
			Int("attempt", i).
			Msg("delivery attempt failed")

		if i == attempts {
			break
		}
		t := time.NewTimer(r.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return Failed
		case <-t.C:
		}
	}
	return Failed
}
