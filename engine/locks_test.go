package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceLocks_SerializesSameInstance(t *testing.T) {
	locks := newInstanceLocks()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.lock("i-1")
			defer release()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestInstanceLocks_IndependentInstances(t *testing.T) {
	locks := newInstanceLocks()

	releaseA := locks.lock("i-a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := locks.lock("i-b")
		release()
		close(done)
	}()

	// Holding i-a must not block i-b
	<-done
}

func TestInstanceLocks_EntryRemovedAfterRelease(t *testing.T) {
	locks := newInstanceLocks()

	release := locks.lock("i-1")
	release()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	require.Empty(t, locks.locks)
}
