package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contactmetrics "reconcile/internal/contact/metrics"
	"reconcile/internal/contact/models"
)

var occurred = time.Date(2023, 4, 1, 9, 0, 0, 0, time.UTC)

func TestFromOutcome(t *testing.T) {
	tests := []struct {
		name    string
		outcome models.Outcome
		want    Type
		ok      bool
	}{
		{"created", models.Outcome{Kind: models.OutcomeCreated, PrimaryID: 1, CreatedID: 1}, TypeCreated, true},
		{"attached", models.Outcome{Kind: models.OutcomeAttached, PrimaryID: 1, CreatedID: 2}, TypeAttached, true},
		{"merged", models.Outcome{Kind: models.OutcomeMerged, PrimaryID: 1, DemotedIDs: []int64{3}, Relinked: []int64{4}}, TypeMerged, true},
		{"matched publishes nothing", models.Outcome{Kind: models.OutcomeMatched, PrimaryID: 1}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, ok := FromOutcome(tt.outcome, occurred)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.want, evt.Type)
			assert.NotEmpty(t, evt.ID)
			assert.Equal(t, tt.outcome.PrimaryID, evt.PrimaryContactID)
			assert.Equal(t, tt.outcome.CreatedID, evt.ContactID)
			assert.Equal(t, tt.outcome.DemotedIDs, evt.DemotedPrimaryIDs)
			assert.Equal(t, tt.outcome.Relinked, evt.RelinkedIDs)
			assert.Equal(t, occurred, evt.OccurredAt)
		})
	}
}

func TestNewRecord(t *testing.T) {
	evt, _ := FromOutcome(models.Outcome{Kind: models.OutcomeMerged, PrimaryID: 12, DemotedIDs: []int64{15}}, occurred)

	record, err := NewRecord("contact-events", evt)
	require.NoError(t, err)

	assert.Equal(t, "contact-events", record.Topic)
	assert.Equal(t, "12", string(record.Key))
	assert.Equal(t, occurred, record.Timestamp)
	require.Len(t, record.Headers, 2)
	assert.Equal(t, "contact.merged", string(record.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(record.Value, &decoded))
	assert.Equal(t, evt, decoded)
}

func TestQueueDropsWhenFull(t *testing.T) {
	m := contactmetrics.New(prometheus.NewRegistry())
	q := NewQueue(1, nil, m)
	ctx := context.Background()

	q.Enqueue(ctx, Event{ID: "first"})
	q.Enqueue(ctx, Event{ID: "second"})

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1.0, promtest.ToFloat64(m.EventsDropped))
	assert.Equal(t, "first", (<-q.Events()).ID)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	fail   map[string]bool
}

func (p *recordingPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[evt.ID] {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.ID)
	}
	return out
}

func TestWorkerPublishesAndCountsFailures(t *testing.T) {
	m := contactmetrics.New(prometheus.NewRegistry())
	q := NewQueue(8, nil, m)
	pub := &recordingPublisher{fail: map[string]bool{"bad": true}}
	w := NewWorker(pub, q.Events(), nil, m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, id := range []string{"a", "bad", "b"} {
		q.Enqueue(ctx, Event{ID: id})
	}
	require.Eventually(t, func() bool {
		return promtest.ToFloat64(m.EventsPublished)+promtest.ToFloat64(m.EventsFailed) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"a", "b"}, pub.ids())
	assert.Equal(t, 2.0, promtest.ToFloat64(m.EventsPublished))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.EventsFailed))
}

func TestWorkerDrainsOnShutdown(t *testing.T) {
	q := NewQueue(8, nil, nil)
	pub := &recordingPublisher{}
	for _, id := range []string{"a", "b", "c"} {
		q.Enqueue(context.Background(), Event{ID: id})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, NewWorker(pub, q.Events(), nil, nil).Run(ctx))

	// Run may publish some events before it observes the cancellation; the
	// drain must cover the rest.
	assert.Equal(t, []string{"a", "b", "c"}, pub.ids())
	assert.Zero(t, q.Len())
}
