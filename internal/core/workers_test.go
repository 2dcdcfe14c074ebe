package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundPoolRunsTasks(t *testing.T) {
	pool := NewBackgroundPool(PoolConfig{WorkerCount: 2, QueueSize: 8})
	pool.Start()

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit("task", func(context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}))
	}
	wg.Wait()
	pool.Stop()

	assert.EqualValues(t, 5, ran.Load())
}

func TestBackgroundPoolSurvivesFailures(t *testing.T) {
	pool := NewBackgroundPool(PoolConfig{WorkerCount: 1, QueueSize: 4})
	pool.Start()
	defer pool.Stop()

	done := make(chan struct{})
	require.NoError(t, pool.Submit("panics", func(context.Context) error { panic("boom") }))
	require.NoError(t, pool.Submit("fails", func(context.Context) error { return errors.New("jammed") }))
	require.NoError(t, pool.Submit("ok", func(context.Context) error { close(done); return nil }))
	<-done
}

func TestBackgroundPoolRejects(t *testing.T) {
	pool := NewBackgroundPool(PoolConfig{WorkerCount: 1, QueueSize: 1})
	assert.ErrorIs(t, pool.Submit("early", func(context.Context) error { return nil }), ErrPoolStopped)

	pool.Start()
	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit("busy", func(context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, pool.Submit("queued", func(context.Context) error { return nil }))
	assert.ErrorIs(t, pool.Submit("overflow", func(context.Context) error { return nil }), ErrPoolFull)

	close(block)
	pool.Stop()
	assert.ErrorIs(t, pool.Submit("late", func(context.Context) error { return nil }), ErrPoolStopped)
}

func TestBackgroundPoolStopDrainsQueue(t *testing.T) {
	pool := NewBackgroundPool(PoolConfig{WorkerCount: 1, QueueSize: 4})
	pool.Start()

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit("drain", func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	pool.Stop()
	assert.EqualValues(t, 3, ran.Load())
}
