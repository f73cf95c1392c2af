package locking

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestSpinLockMutualExclusion(t *testing.T) {
	var (
		lock    SpinLock
		counter int
		wg      sync.WaitGroup
	)
	workers := runtime.GOMAXPROCS(0) * 2
	const iterations = 2000
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != workers*iterations {
		t.Fatalf("lost updates: got %d want %d", counter, workers*iterations)
	}
}

func TestSpinLockTryLock(t *testing.T) {
	var lock SpinLock
	if !lock.TryLock() {
		t.Fatal("expected TryLock on free lock to succeed")
	}
	if lock.TryLock() {
		t.Fatal("expected TryLock on held lock to fail")
	}
	lock.Unlock()
	if !lock.TryLock() {
		t.Fatal("expected TryLock after Unlock to succeed")
	}
	lock.Unlock()
}

func TestSpinLockUnlockOfUnlockedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	var lock SpinLock
	lock.Unlock()
}

func TestSpinLockCountsContention(t *testing.T) {
	var lock SpinLock
	lock.Lock()
	acquired := make(chan struct{})
	go func() {
		lock.Lock()
		close(acquired)
		lock.Unlock()
	}()
	time.Sleep(10 * time.Millisecond)
	lock.Unlock()
	<-acquired
	if lock.Spins() == 0 {
		t.Fatal("expected recorded spins")
	}
}
