package conc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

func TestPoolSubmit(t *testing.T) {
	pool, err := NewPool(4)
	require.NoError(t, err)
	defer pool.Release()
	assert.Equal(t, 4, pool.Cap())

	var (
		mu  sync.Mutex
		sum int
		wg  sync.WaitGroup
	)
	for i := 1; i <= 10; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			mu.Lock()
			sum += i
			mu.Unlock()
		}))
	}
	wg.Wait()
	assert.Equal(t, 55, sum)
}

func TestPoolPreHandler(t *testing.T) {
	calls := make(chan struct{}, 1)
	pool, err := NewPool(1, WithPreHandler(func() { calls <- struct{}{} }))
	require.NoError(t, err)
	defer pool.Release()

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(done) }))
	<-done
	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("pre handler not invoked")
	}
}

func TestPoolOverload(t *testing.T) {
	pool, err := NewPool(1, WithNonBlocking(true))
	require.NoError(t, err)
	defer pool.Release()

	block := make(chan struct{})
	require.NoError(t, pool.Submit(func() { <-block }))
	err = pool.Submit(func() {})
	assert.ErrorIs(t, err, merr.ErrServiceTooManyRequests)
	close(block)
}

func TestPoolClosed(t *testing.T) {
	pool, err := NewPool(1)
	require.NoError(t, err)
	pool.Release()
	assert.ErrorIs(t, pool.Submit(func() {}), merr.ErrServiceUnavailable)
}

func TestPoolConcealPanic(t *testing.T) {
	recovered := make(chan any, 1)
	pool, err := NewPool(1, WithConcealPanic(true), WithPanicHandler(func(v any) { recovered <- v }))
	require.NoError(t, err)
	defer pool.Release()

	require.NoError(t, pool.Submit(func() { panic("boom") }))
	select {
	case v := <-recovered:
		assert.Equal(t, "boom", v)
	case <-time.After(time.Second):
		t.Fatal("panic handler not invoked")
	}
}
