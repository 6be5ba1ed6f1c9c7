package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/metrics"
)

const (
	outcomeDelivered = "delivered"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// Dispatcher fans a notification out over every channel for every party.
type Dispatcher struct {
	channels []Channel
	renderer *Renderer
	metrics  *metrics.NotifyMetrics
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

var _ booking.Notifier = (*Dispatcher)(nil)

func NewDispatcher(renderer *Renderer, m *metrics.NotifyMetrics, logger zerolog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		renderer: renderer,
		metrics:  m,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// Notify implements booking.Notifier.
func (d *Dispatcher) Notify(ctx context.Context, event booking.Event, b booking.Booking, parties booking.Parties) {
	d.Dispatch(ctx, Notification{Event: event, Booking: b, Parties: parties})
}

// Dispatch delivers n in the background. Cancelling ctx does not abort the
// sends once dispatched.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Deliver(ctx, n)
	}()
}

// Wait blocks until every dispatched notification has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Deliver sends n synchronously and reports what happened. It never fails.
func (d *Dispatcher) Deliver(ctx context.Context, n Notification) Report {
	var report Report

	for _, to := range recipientsOf(n.Parties) {
		msg, ok := d.renderer.Render(n, to.Role)
		if !ok {
			continue
		}

		for _, ch := range d.channels {
			switch d.sendOne(ctx, ch, to, msg, n) {
			case outcomeDelivered:
				report.Attempted++
				report.Delivered++
			case outcomeFailed:
				report.Attempted++
				report.Failed++
			default:
				report.Skipped++
			}
		}
	}

	return report
}

func (d *Dispatcher) sendOne(ctx context.Context, ch Channel, to Recipient, msg Message, n Notification) (outcome string) {
	logger := d.logger.With().
		Str("channel", ch.Name()).
		Str("event", string(n.Event)).
		Str("booking_id", n.Booking.ID.String()).
		Str("role", string(to.Role)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("notification channel panicked")
			outcome = outcomeFailed
		}
		d.metrics.ObserveSend(ch.Name(), string(n.Event), outcome)
	}()

	err := ch.Send(ctx, to, msg)
	switch {
	case err == nil:
		logger.Debug().Msg("notification sent")
		return outcomeDelivered
	case errors.Is(err, ErrNoAddress):
		logger.Debug().Msg("no address for channel, skipping")
		return outcomeSkipped
	default:
		logger.Warn().Err(err).Msg("notification send failed")
		return outcomeFailed
	}
}

// String renders the report for logs.
func (r Report) String() string {
	return fmt.Sprintf("attempted=%d delivered=%d skipped=%d failed=%d", r.Attempted, r.Delivered, r.Skipped, r.Failed)
}
