package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPushPopFIFO(t *testing.T) {
	ctx := context.Background()
	b := NewLocal()

	require.NoError(t, b.Push(ctx, "q", []byte("a"), []byte("b")))
	first, err := b.Pop(ctx, "q", time.Second)
	require.NoError(t, err)
	second, err := b.Pop(ctx, "q", time.Second)
	require.NoError(t, err)

	assert.Equal(t, "a", string(first))
	assert.Equal(t, "b", string(second))

	_, err = b.Pop(ctx, "q", 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLocalPopWakesOnPush(t *testing.T) {
	ctx := context.Background()
	b := NewLocal()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.Push(ctx, "q", []byte("late"))
	}()

	got, err := b.Pop(ctx, "q", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", string(got))
}

func TestLocalPubSub(t *testing.T) {
	ctx := context.Background()
	b := NewLocal()

	ch, unsubscribe := b.Subscribe(ctx, "test:1:monitor")
	require.NoError(t, b.Publish(ctx, "test:1:monitor", []byte(`{"type":"submitted"}`)))
	require.NoError(t, b.Publish(ctx, "test:2:monitor", []byte(`{"type":"other"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"type":"submitted"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message")
	}

	require.NoError(t, unsubscribe())
	_, open := <-ch
	assert.False(t, open)
}

func TestLocalTTL(t *testing.T) {
	ctx := context.Background()
	b := NewLocal()
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	now = now.Add(2 * time.Minute)
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, b.Set(ctx, "k2", []byte("v"), 0))
	require.NoError(t, b.Del(ctx, "k2"))
	_, err = b.Get(ctx, "k2")
	assert.ErrorIs(t, err, ErrMiss)
}
