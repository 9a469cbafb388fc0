package keyed

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	t.Parallel()

	m := NewMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("key")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Fatalf("expected 100 increments, got %d", counter)
	}
}

func TestLockDoesNotBlockOtherKeys(t *testing.T) {
	t.Parallel()

	m := NewMutex()
	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
}

func TestEntriesAreReleased(t *testing.T) {
	t.Parallel()

	m := NewMutex()
	unlock := m.Lock("x")
	unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) != 0 {
		t.Fatalf("expected entry map to be empty, got %d entries", len(m.entries))
	}
}
