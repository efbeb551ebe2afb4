package service

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// customerLocks serializes ledger writes per customer so two concurrent
// redemptions cannot both read the same starting balance and both
// succeed. Operations on different customers never block each other.
type customerLocks struct {
	mu    sync.Mutex
	locks map[snowflake.ID]*customerLock
}

type customerLock struct {
	mu   sync.Mutex
	refs int
}

func newCustomerLocks() *customerLocks {
	return &customerLocks{locks: make(map[snowflake.ID]*customerLock)}
}

// Acquire blocks until the customer's lock is held and returns the
// release function. Lock entries are reference-counted and removed when
// the last holder releases, so the map does not grow with the customer
// base.
func (c *customerLocks) Acquire(customerID snowflake.ID) func() {
	c.mu.Lock()
	entry := c.locks[customerID]
	if entry == nil {
		entry = &customerLock{}
		c.locks[customerID] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		c.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(c.locks, customerID)
		}
		c.mu.Unlock()
	}
}
