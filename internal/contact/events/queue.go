package events

import (
	"context"
	"log/slog"

	contactmetrics "reconcile/internal/contact/metrics"
)

const defaultQueueSize = 1024

// Queue is a bounded in-process buffer between committed resolutions and the
// publishing worker. Enqueue never blocks; a full queue drops the event.
type Queue struct {
	ch      chan Event
	metrics *contactmetrics.Metrics
	logger  *slog.Logger
}

// NewQueue returns a queue holding up to size events.
func NewQueue(size int, logger *slog.Logger, m *contactmetrics.Metrics) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{ch: make(chan Event, size), metrics: m, logger: logger}
}

func (q *Queue) Enqueue(ctx context.Context, evt Event) {
	select {
	case q.ch <- evt:
	default:
		q.metrics.IncEventsDropped()
		q.logger.WarnContext(ctx, "event queue full, dropping event",
			"event_id", evt.ID,
			"type", string(evt.Type),
			"primary_contact_id", evt.PrimaryContactID,
		)
	}
}

// Events is the worker side of the queue.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

func (q *Queue) Len() int {
	return len(q.ch)
}
