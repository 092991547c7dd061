// Package dispatch turns match input into Match Completed events and hands
// them to the analytics client exactly once.
//
// Every failure is converted into a model.Outcome at this boundary; nothing
// the client does, including panicking, reaches the caller.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/rally/internal/domain/gameid"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// ErrTrackPanicked wraps a panic raised inside the client's track call.
var ErrTrackPanicked = errors.New("track panicked")

// Tracker is the part of the analytics client the dispatcher calls.
type Tracker interface {
	Track(ctx context.Context, event string, properties map[string]string) error
}

// IDSource issues game ids together with the instant they were stamped.
type IDSource interface {
	Next(ctx context.Context) (string, time.Time, error)
}

// ReadyChecker reports client readiness. Only used for diagnostics.
type ReadyChecker interface {
	Ready() bool
}

// Dispatcher builds and delivers events.
type Dispatcher struct {
	client Tracker
	ids    IDSource
	ready  ReadyChecker
	logger logger.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithIDSource replaces the game id generator.
func WithIDSource(ids IDSource) Option {
	return func(d *Dispatcher) {
		if ids != nil {
			d.ids = ids
		}
	}
}

// WithReadiness lets the dispatcher note deliveries made before readiness.
func WithReadiness(r ReadyChecker) Option {
	return func(d *Dispatcher) {
		d.ready = r
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New builds a dispatcher. A nil client is allowed: every delivery is then skipped.
func New(client Tracker, opts ...Option) *Dispatcher {
	d := &Dispatcher{client: client}
	for _, opt := range opts {
		opt(d)
	}
	if d.ids == nil {
		d.ids = gameid.New()
	}
	if d.logger == nil {
		d.logger = logger.Get()
	}
	d.logger = d.logger.Named("dispatch")
	return d
}

// Build derives an event from input. Input is echoed as is; validation happens upstream.
func (d *Dispatcher) Build(ctx context.Context, in model.MatchInput) (model.MatchEvent, error) {
	id, at, err := d.ids.Next(ctx)
	if err != nil {
		return model.MatchEvent{}, fmt.Errorf("build event: %w", err)
	}
	return model.NewMatchEvent(id, at, in), nil
}

// Deliver makes the single track call for ev and reports how it ended.
func (d *Dispatcher) Deliver(ctx context.Context, ev model.MatchEvent) (out model.Outcome) {
	start := time.Now()
	defer func() {
		metrics.RecordDispatchOutcome(string(out.Status))
		metrics.RecordDispatchLatency(float64(time.Since(start).Milliseconds()))
	}()

	if d.client == nil {
		d.logger.Info(ctx, "analytics client unavailable, event not sent", eventFields(ev)...)
		return model.Skipped(ev)
	}

	if d.ready != nil && !d.ready.Ready() {
		d.logger.Debug(ctx, "dispatching before client reported ready", logger.String("game_id", ev.GameID))
	}

	if err := d.track(ctx, ev); err != nil {
		d.logger.Error(ctx, "failed to track match", append(eventFields(ev), logger.Error(err))...)
		return model.Failed(ev, err)
	}

	d.logger.Info(ctx, "match tracked", logger.String("game_id", ev.GameID))
	return model.Delivered(ev)
}

// Submit builds an event from in and delivers it synchronously.
func (d *Dispatcher) Submit(ctx context.Context, in model.MatchInput) model.Outcome {
	ev, err := d.Build(ctx, in)
	if err != nil {
		d.logger.Error(ctx, "failed to build match event", logger.Error(err))
		return model.Failed(ev, err)
	}
	return d.Deliver(ctx, ev)
}

func (d *Dispatcher) track(ctx context.Context, ev model.MatchEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTrackPanicked, r)
		}
	}()
	return d.client.Track(ctx, model.EventMatchCompleted, ev.Properties())
}

func eventFields(ev model.MatchEvent) []logger.Field {
	return []logger.Field{
		logger.String("game_id", ev.GameID),
		logger.String("sport_type", string(ev.SportType)),
		logger.String("winner_email", ev.WinnerEmail),
		logger.String("loser_email", ev.LoserEmail),
		logger.String("timestamp", ev.Timestamp),
	}
}
