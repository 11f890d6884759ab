package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/example/storefront-sync/internal/logging"
	"github.com/stretchr/testify/assert"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventOrderPlaced, "order-1", "user-1", OrderPlaced{OrderID: "order-1"})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventOrderPlaced, e.Type)
	assert.Equal(t, "order-1", e.Key)
	assert.False(t, e.OccurredAt.IsZero())
}

func TestEmit_SwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}

	assert.NotPanics(t, func() {
		Emit(context.Background(), pub, logging.Discard(), NewEvent(EventOrderPlaced, "k", "u", nil))
	})
	assert.Len(t, pub.events, 1)
}

func TestEmit_NilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, logging.Discard(), NewEvent(EventOrderPlaced, "k", "u", nil))
	})
}
