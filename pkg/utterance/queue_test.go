package utterance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/gpsr/pkg/bus"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	q.Push("first")
	q.Push("  ")
	q.Push("second")

	assert.Equal(t, 2, q.Len())

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "first", got)

	got, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "second", got)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestQueue_TakeAndClearDropsLaterUtterances(t *testing.T) {
	q := NewQueue()
	q.Push("bring the snack to the kitchen")
	q.Push("yes")
	q.Push("no")

	got, ok := q.TakeAndClear()
	require.True(t, ok)
	assert.Equal(t, "bring the snack to the kitchen", got)
	assert.Equal(t, 0, q.Len())

	_, ok = q.TakeAndClear()
	assert.False(t, ok)
}

func TestQueue_WaitTimesOutWhenEmpty(t *testing.T) {
	q := NewQueue()

	start := time.Now()
	assert.False(t, q.Wait(context.Background(), 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestQueue_WaitWakesOnPush(t *testing.T) {
	q := NewQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push("hello")
	}()

	start := time.Now()
	assert.True(t, q.Wait(context.Background(), time.Hour))
	assert.Less(t, time.Since(start), time.Second)
}

func TestQueue_WaitReturnsImmediatelyWhenNonEmpty(t *testing.T) {
	q := NewQueue()
	q.Push("ready")
	assert.True(t, q.Wait(context.Background(), time.Hour))
}

func TestQueue_WaitHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, q.Wait(ctx, time.Hour))
}

func TestQueue_SubscribeFromBus(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	q := NewQueue()
	sub, err := q.Subscribe(ctx, b, bus.RecognizedSpeech)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(ctx, bus.RecognizedSpeech, []byte("what time is it")))

	require.True(t, q.Wait(ctx, time.Second))
	got, _ := q.TryDequeue()
	assert.Equal(t, "what time is it", got)
}
