package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessorsDefaultWhenUnset(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, UserAgent(ctx))
	assert.WithinDuration(t, time.Now().UTC(), Now(ctx), time.Second)
}

func TestAccessorsRoundTrip(t *testing.T) {
	fixed := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	ctx := WithTime(WithUserAgent(WithRequestID(context.Background(), "req-9"), "curl/8.0"), fixed)

	assert.Equal(t, "req-9", RequestID(ctx))
	assert.Equal(t, "curl/8.0", UserAgent(ctx))
	assert.Equal(t, fixed, Now(ctx))
}
