package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_GoDoesNotBlock(t *testing.T) {
	p := newWorkerPool(1)
	release := make(chan struct{})

	start := time.Now()
	for i := 0; i < 3; i++ {
		p.Go(context.Background(), func(context.Context) { <-release })
	}
	assert.Less(t, time.Since(start), time.Second, "Go returns while every slot is busy")

	close(release)
	n, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	p := newWorkerPool(2)
	var running, peak atomic.Int32

	for i := 0; i < 10; i++ {
		p.Go(context.Background(), func(context.Context) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		})
	}

	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestWorkerPool_CanceledTaskIsSkipped(t *testing.T) {
	p := newWorkerPool(1)
	release := make(chan struct{})
	p.Go(context.Background(), func(context.Context) { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	p.Go(ctx, func(context.Context) { ran.Store(true) })
	cancel()

	time.Sleep(20 * time.Millisecond)
	close(release)
	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, ran.Load())
}

func TestWorkerPool_WaitHonorsContext(t *testing.T) {
	p := newWorkerPool(1)
	release := make(chan struct{})
	defer close(release)
	p.Go(context.Background(), func(context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPool_IdleWhenEmpty(t *testing.T) {
	p := newWorkerPool(0)
	n, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
