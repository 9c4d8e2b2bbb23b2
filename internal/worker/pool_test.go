package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_ReturnsValue(t *testing.T) {
	p := NewPool(2)

	got, err := Submit(context.Background(), p, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestSubmit_PropagatesError(t *testing.T) {
	p := NewPool(1)
	boom := errors.New("boom")

	_, err := Submit(context.Background(), p, func() (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
}

func TestSubmit_PanicBecomesTaskFailed(t *testing.T) {
	p := NewPool(1)

	_, err := Submit(context.Background(), p, func() (bool, error) { panic("kaboom") })
	require.ErrorIs(t, err, ErrTaskFailed)
	assert.Contains(t, err.Error(), "kaboom")

	// The slot is released after a panic.
	got, err := Submit(context.Background(), p, func() (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.True(t, got)
}

func TestSubmit_BoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	var running, peak int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Submit(context.Background(), p, func() (struct{}, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestSubmit_ContextCancelledWhileWaitingForSlot(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _ = Submit(context.Background(), p, func() (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Submit(ctx, p, func() (int, error) { return 1, nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestNewPool_ClampsSize(t *testing.T) {
	assert.Equal(t, 1, NewPool(0).Size())
	assert.Equal(t, 4, NewPool(4).Size())
}
