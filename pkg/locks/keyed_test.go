package locks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	k := NewKeyed()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("doc-1")
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
			k.Unlock("doc-1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestKeyed_IndependentKeys(t *testing.T) {
	k := NewKeyed()

	k.Lock("a")
	done := make(chan struct{})
	go func() {
		k.Lock("b")
		k.Unlock("b")
		close(done)
	}()
	<-done
	k.Unlock("a")
}

func TestKeyed_EntriesDroppedAfterUse(t *testing.T) {
	k := NewKeyed()

	k.Lock("a")
	k.Unlock("a")

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.entries)
}

func TestKeyed_WithLock(t *testing.T) {
	k := NewKeyed()

	called := false
	err := k.WithLock("a", func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestKeyed_UnlockUnheldPanics(t *testing.T) {
	k := NewKeyed()
	assert.Panics(t, func() { k.Unlock("nope") })
}
