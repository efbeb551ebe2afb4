package service

import (
	"sync"
	"testing"
)

func TestCustomerLocksSerializeSameCustomer(t *testing.T) {
	locks := newCustomerLocks()

	var mu sync.Mutex
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire(42)
			defer release()
			mu.Lock()
			counter++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected 50 acquisitions, got %d", counter)
	}
	locks.mu.Lock()
	remaining := len(locks.locks)
	locks.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected lock map to drain, %d entries left", remaining)
	}
}

func TestCustomerLocksIndependentCustomers(t *testing.T) {
	locks := newCustomerLocks()

	releaseA := locks.Acquire(1)
	defer releaseA()

	// A different customer must not block behind customer 1.
	done := make(chan struct{})
	go func() {
		release := locks.Acquire(2)
		release()
		close(done)
	}()
	<-done
}
