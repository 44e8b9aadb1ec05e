package reconcile

import (
	"sync"
	"testing"
)

func TestKeyLockSerialisesSameKey(t *testing.T) {
	locks := newKeyLock()
	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("ticket")
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
	if len(locks.locks) != 0 {
		t.Errorf("expected entries to be released, got %d", len(locks.locks))
	}
}

func TestKeyLockIndependentKeys(t *testing.T) {
	locks := newKeyLock()
	unlockA := locks.Lock("a")
	// Would deadlock if keys shared a mutex.
	unlockB := locks.Lock("b")
	unlockB()
	unlockA()
}
