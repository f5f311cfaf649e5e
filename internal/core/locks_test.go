package core

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()

	unlock := k.Lock("job-1")
	acquired := make(chan struct{})
	go func() {
		u := k.Lock("job-1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same key did not block")
	case <-time.After(30 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired after unlock")
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("job-1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		k.Lock("job-2")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock on a different key blocked")
	}
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("job-1")()
		}()
	}
	wg.Wait()

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.locks) != 0 {
		t.Errorf("locks map has %d entries, want 0", len(k.locks))
	}
}
