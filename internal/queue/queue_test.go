package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutGetOrder(t *testing.T) {
	q := New(4)
	require.NoError(t, q.Put([]byte("a"), time.Millisecond))
	require.NoError(t, q.Put([]byte("b"), time.Millisecond))

	got, err := q.Get()
	require.NoError(t, err)
	require.Equal(t, []byte("a"), got)
	got, err = q.Get()
	require.NoError(t, err)
	require.Equal(t, []byte("b"), got)
}

func TestPutTimesOutWhenFull(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Put([]byte("a"), time.Millisecond))

	err := q.Put([]byte("b"), 5*time.Millisecond)
	require.ErrorIs(t, err, ErrFull)
}

func TestGetTimeoutWhenEmpty(t *testing.T) {
	q := New(1)
	_, err := q.GetTimeout(5 * time.Millisecond)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestCapacityNeverExceeded(t *testing.T) {
	const capacity = 3
	q := New(capacity)

	var stop atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				_ = q.Put([]byte("x"), time.Millisecond)
			}
		}()
	}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				_, _ = q.GetTimeout(time.Millisecond)
			}
		}()
	}

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		require.LessOrEqual(t, q.Len(), capacity)
	}
	stop.Store(true)
	wg.Wait()
}

func TestCloseReleasesBlockedCalls(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Put([]byte("a"), time.Millisecond))

	errs := make(chan error, 2)
	go func() {
		errs <- q.Put([]byte("b"), 0)
	}()
	go func() {
		_, err := q.Get()
		errs <- err
	}()

	// The Get consumes the queued frame; the blocking Put may then either
	// complete into the freed slot or observe the close.
	time.Sleep(10 * time.Millisecond)
	q.Close()
	q.Close() // idempotent

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if err != nil {
				require.ErrorIs(t, err, ErrClosed)
			}
		case <-time.After(time.Second):
			t.Fatal("blocked call not released by Close")
		}
	}
}

func TestGetDeliversQueuedFramesAfterClose(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Put([]byte("a"), time.Millisecond))
	q.Close()

	got, err := q.Get()
	require.NoError(t, err)
	require.Equal(t, []byte("a"), got)

	_, err = q.Get()
	require.ErrorIs(t, err, ErrClosed)
}

func TestDrain(t *testing.T) {
	q := New(4)
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Put([]byte{byte(i)}, time.Millisecond))
	}
	q.Drain()
	require.Equal(t, 0, q.Len())
}
