package refresh_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizvista/review-engine/refresh"
)

func TestKeyedLocker_OneHolderPerKey(t *testing.T) {
	l := refresh.NewKeyedLocker[string]()

	release, ok := l.TryLock("a")
	require.True(t, ok)

	_, ok = l.TryLock("a")
	assert.False(t, ok)

	releaseB, ok := l.TryLock("b")
	require.True(t, ok, "other keys are independent")
	releaseB()

	release()
	release() // idempotent
	assert.False(t, l.Held("a"))

	again, ok := l.TryLock("a")
	require.True(t, ok)
	again()
}

func TestKeyedLocker_ConcurrentTryLock(t *testing.T) {
	l := refresh.NewKeyedLocker[string]()
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := l.TryLock("k"); ok {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
