package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.QueueItem, 1)
	go func() {
		item, err := q.Dequeue(context.Background())
		if err == nil {
			result <- item
		}
	}()

	require.NoError(t, q.Enqueue(context.Background(), crawler.QueueItem{Unit: "Deniz", Index: 3}))
	select {
	case got := <-result:
		require.Equal(t, crawler.SearchUnit("Deniz"), got.Unit)
		require.Equal(t, 3, got.Index)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return unit")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQueue(1).Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	full := NewQueue(1)
	require.NoError(t, full.Enqueue(context.Background(), crawler.QueueItem{Unit: "primed"}))
	require.EqualError(t, full.Enqueue(ctx, crawler.QueueItem{Unit: "late"}), "enqueue canceled: context canceled")
}

func TestQueueCloseDrainsThenReportsClosed(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), crawler.QueueItem{Unit: "Ali"}))
	q.Close()
	q.Close()
	require.Equal(t, 1, q.Len())

	require.ErrorIs(t, q.Enqueue(context.Background(), crawler.QueueItem{Unit: "Can"}), crawler.ErrQueueClosed)

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.SearchUnit("Ali"), item.Unit)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, crawler.ErrQueueClosed)
}
