package kasync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcast[int]()
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(42)

	v1, err := s1.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v1)

	v2, err := s2.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v2)
}

func TestBroadcastUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcast[int]()
	s := b.Subscribe()
	s.Unsubscribe()
	assert.Equal(t, 0, b.SubscriberCount())

	b.Publish(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroadcastFullSubscriberBufferDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcast[int]()
	s := b.Subscribe()
	for i := 0; i < 10; i++ {
		b.Publish(i)
	}
	// must not have blocked/deadlocked to reach here
	v, err := s.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}
