package events

import (
	"context"
	"log/slog"
	"time"

	contactmetrics "reconcile/internal/contact/metrics"
)

const drainTimeout = 5 * time.Second

// Publisher delivers one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Worker forwards queued events to a Publisher. Delivery is best effort: a
// failed event is logged and counted, never retried.
type Worker struct {
	publisher Publisher
	inbox     <-chan Event
	metrics   *contactmetrics.Metrics
	logger    *slog.Logger
}

func NewWorker(publisher Publisher, inbox <-chan Event, logger *slog.Logger, m *contactmetrics.Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{publisher: publisher, inbox: inbox, metrics: m, logger: logger}
}

// Run publishes until ctx is cancelled, then drains whatever is already
// buffered within drainTimeout.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case evt := <-w.inbox:
			w.publish(ctx, evt)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case evt := <-w.inbox:
			w.publish(ctx, evt)
		default:
			return
		}
	}
}

func (w *Worker) publish(ctx context.Context, evt Event) {
	if err := w.publisher.Publish(ctx, evt); err != nil {
		w.metrics.IncEventsFailed()
		w.logger.ErrorContext(ctx, "failed to publish contact event",
			"event_id", evt.ID,
			"type", string(evt.Type),
			"primary_contact_id", evt.PrimaryContactID,
			"request_id", evt.RequestID,
			"error", err,
		)
		return
	}
	w.metrics.IncEventsPublished()
}
