package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct {
	calls atomic.Int64
	err   error
}

func (c *countingCleaner) Cleanup(context.Context) (int64, error) {
	c.calls.Add(1)
	if c.err != nil {
		return 0, c.err
	}
	return 3, nil
}

func TestSweeper_RunsPeriodically(t *testing.T) {
	c := &countingCleaner{}
	var removed atomic.Int64

	s := startSweeper(discardLogger(), c, 5*time.Millisecond, func(n int64, err error) {
		if err == nil {
			removed.Add(n)
		}
	})

	require.Eventually(t, func() bool { return c.calls.Load() >= 3 }, time.Second, 2*time.Millisecond)
	s.Stop()

	after := c.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, c.calls.Load(), "no sweeps after Stop")
	assert.Equal(t, 3*after, removed.Load())

	s.Stop() // idempotent
}

func TestSweeper_ReportsErrors(t *testing.T) {
	c := &countingCleaner{err: errors.New("storage unavailable")}
	errs := make(chan error, 16)

	s := startSweeper(discardLogger(), c, 5*time.Millisecond, func(_ int64, err error) {
		select {
		case errs <- err:
		default:
		}
	})
	defer s.Stop()

	select {
	case err := <-errs:
		assert.EqualError(t, err, "storage unavailable")
	case <-time.After(time.Second):
		t.Fatal("sweep did not report")
	}
}

type blockingCleaner struct{ started chan struct{} }

func (b blockingCleaner) Cleanup(ctx context.Context) (int64, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestSweeper_StopCancelsInFlight(t *testing.T) {
	b := blockingCleaner{started: make(chan struct{}, 1)}
	s := startSweeper(discardLogger(), b, time.Millisecond, nil)

	<-b.started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on in-flight sweep")
	}
}
