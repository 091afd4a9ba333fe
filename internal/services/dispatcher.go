package services

import (
	"context"
	"sync"

	"github.com/tbourn/veritas-backend/internal/delivery"
	"github.com/tbourn/veritas-backend/internal/domain"
	"github.com/tbourn/veritas-backend/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// VerifyFunc runs one verification.
type VerifyFunc func(ctx context.Context) (domain.Verdict, error)

// Dispatch describes one verification to run for a UI surface.
type Dispatch struct {
	Surface    string // target of push updates; empty disables push
	Claim      string
	Contextual bool // page-context check
	Run        VerifyFunc

	// DetachPush sends the loading and final pushes in the background, in
	// order, so a caller that already returns the verdict never waits out
	// the retry budget of a surface with no listener.
	DetachPush bool
}

// Dispatcher runs verifications on behalf of a UI surface. It writes the
// Loading placeholder and then the final verdict to the last-verdict slot,
// and pushes both through Channel with bounded retries. Storage is the
// source of truth; a failed push is only logged.
type Dispatcher struct {
	Surface *store.Surface
	Channel delivery.Channel
	Retrier delivery.Retrier

	wg sync.WaitGroup
}

// Outcome is the result of a dispatched verification.
type Outcome struct {
	Verdict domain.Verdict
	Loading delivery.Result
	Final   delivery.Result

	// Detached reports that the pushes were handed to the background;
	// Loading and Final are then not known.
	Detached bool
}

// Run executes d synchronously. A validation error from d.Run becomes an
// Error verdict so the surface is never left showing Loading.
func (p *Dispatcher) Run(ctx context.Context, d Dispatch) Outcome {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(
			attribute.String("surface", d.Surface),
			attribute.Bool("contextual", d.Contextual),
		),
	)
	defer span.End()

	out := Outcome{Detached: d.DetachPush}
	var pushes chan delivery.Message
	if d.DetachPush {
		pushes = make(chan delivery.Message, 2)
		p.drain(ctx, pushes)
		defer close(pushes)
	}

	loading := domain.LoadingVerdict(d.Claim)
	p.store(ctx, loading, d.Contextual)
	if pushes != nil {
		pushes <- message(delivery.KindLoading, d.Surface, loading, d.Contextual)
	} else {
		out.Loading = p.push(ctx, message(delivery.KindLoading, d.Surface, loading, d.Contextual))
	}

	v, err := d.Run(ctx)
	if err != nil {
		v = domain.ErrorVerdict(d.Claim, err.Error(), err.Error())
	}
	contextual := d.Contextual || v.Contextual
	p.store(ctx, v, contextual)
	if pushes != nil {
		pushes <- message(delivery.KindFinal, d.Surface, v, contextual)
	} else {
		out.Final = p.push(ctx, message(delivery.KindFinal, d.Surface, v, contextual))
	}
	out.Verdict = v

	span.SetAttributes(
		attribute.String("verdict.flag", string(v.Flag)),
		attribute.Bool("delivery.detached", out.Detached),
		attribute.String("delivery.final", out.Final.String()),
	)
	return out
}

// Go runs d in the background. The run outlives ctx cancellation so a
// client that disconnects still gets its verdict stored.
func (p *Dispatcher) Go(ctx context.Context, d Dispatch) {
	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Run(ctx, d)
	}()
}

// Wait blocks until every background run and detached push has finished.
func (p *Dispatcher) Wait() { p.wg.Wait() }

func (p *Dispatcher) store(ctx context.Context, v domain.Verdict, contextual bool) {
	if p.Surface == nil {
		return
	}
	if err := p.Surface.SetLastVerdict(ctx, v, contextual); err != nil {
		logFrom(ctx).Warn().Err(err).Str("flag", string(v.Flag)).Msg("last verdict write failed")
	}
}

// drain delivers queued pushes one by one until the queue is closed. It
// outlives ctx cancellation and is tracked by Wait.
func (p *Dispatcher) drain(ctx context.Context, queue <-chan delivery.Message) {
	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for msg := range queue {
			p.push(ctx, msg)
		}
	}()
}

func message(kind, surface string, v domain.Verdict, contextual bool) delivery.Message {
	return delivery.Message{Kind: kind, Surface: surface, Verdict: v, Contextual: contextual}
}

func (p *Dispatcher) push(ctx context.Context, msg delivery.Message) delivery.Result {
	if p.Channel == nil || msg.Surface == "" {
		return delivery.Failed
	}
	res := p.Retrier.Deliver(ctx, p.Channel, msg)
	if res == delivery.Failed {
		logFrom(ctx).Info().Str("surface", msg.Surface).Str("kind", msg.Kind).Msg("push not delivered; surface will read storage")
	}
	return res
}
