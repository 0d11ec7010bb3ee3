package relay

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/tutorbridge-backend/internal/observability"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/platform/openai"
)

type Kind int

const (
	KindChunk Kind = iota
	KindDone
	KindError
)

const (
	OutcomeDone         = "done"
	OutcomeError        = "error"
	OutcomeDisconnected = "disconnected"
)

// Event is one item of a relay run. Chunk carries an increment, Done carries
// the full text, Error carries a human readable reason.
type Event struct {
	Kind Kind
	Text string
}

// Streamer is the part of the text-generation provider the relay consumes.
type Streamer interface {
	StreamComplete(ctx context.Context, msgs []openai.Message, onDelta func(delta string)) (string, error)
}

type Relay struct {
	provider Streamer
	log      *logger.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
}

func New(provider Streamer, log *logger.Logger, metrics *observability.Metrics, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Relay{
		provider: provider,
		log:      log.With("service", "Relay"),
		metrics:  metrics,
		timeout:  timeout,
	}
}

// Run starts one upstream generation and returns its events in upstream order.
// Exactly one Done or Error event ends the sequence and the channel is closed
// on every path. Cancelling ctx aborts the upstream call; the channel is then
// closed without a terminal event if nobody is left to receive it.
func (r *Relay) Run(ctx context.Context, msgs []openai.Message) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)

		runCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		runCtx, span := observability.StartSpan(runCtx, "relay.run", attribute.Int("relay.messages", len(msgs)))
		defer span.End()

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-runCtx.Done():
				return false
			}
		}

		chunks := 0
		full, err := r.provider.StreamComplete(runCtx, msgs, func(delta string) {
			if delta == "" {
				return
			}
			if send(Event{Kind: KindChunk, Text: delta}) {
				chunks++
			}
		})

		if ctx.Err() != nil {
			r.log.Debug("relay client went away", "chunks", chunks)
			span.SetStatus(codes.Error, "client disconnected")
			r.metrics.ObserveRelay(OutcomeDisconnected, chunks)
			return
		}
		if err == nil && runCtx.Err() != nil {
			err = runCtx.Err()
		}
		if err != nil {
			reason := describe(err)
			r.log.Warn("relay upstream failed", "error", err, "chunks", chunks)
			span.RecordError(err)
			span.SetStatus(codes.Error, reason)
			r.metrics.ObserveRelay(OutcomeError, chunks)
			select {
			case out <- Event{Kind: KindError, Text: reason}:
			case <-ctx.Done():
			}
			return
		}

		r.metrics.ObserveRelay(OutcomeDone, chunks)
		select {
		case out <- Event{Kind: KindDone, Text: full}:
		case <-ctx.Done():
		}
	}()
	return out
}

func describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "upstream timed out"
	case errors.Is(err, openai.ErrMissingAPIKey):
		return "text generation is not configured"
	default:
		return err.Error()
	}
}
