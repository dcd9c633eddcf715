package stripe

import (
	"sync"
)

// LockManager manages per-customer locks so operations mutating the
// same customer mirror are serialized while different customers are
// processed in parallel.
type LockManager struct {
	locks sync.Map // map[string]*sync.Mutex
}

// NewLockManager creates a new lock manager.
func NewLockManager() *LockManager {
	return &LockManager{}
}

// LockCustomer acquires the lock for the given remote customer id and
// returns the function that releases it.
func (lm *LockManager) LockCustomer(customerID string) func() {
	lockInterface, _ := lm.locks.LoadOrStore(customerID, &sync.Mutex{})
	lock, ok := lockInterface.(*sync.Mutex)
	if !ok {
		// only *sync.Mutex values are ever stored
		panic("unexpected type in lock manager")
	}

	lock.Lock()
	return func() {
		lock.Unlock()
	}
}

// CleanupLocks removes locks that are not currently held. It can be
// called periodically to keep the map from growing with inactive
// customers.
func (lm *LockManager) CleanupLocks() {
	lm.locks.Range(func(key, value any) bool {
		lock, ok := value.(*sync.Mutex)
		if !ok {
			return true
		}
		if lock.TryLock() {
			lock.Unlock()
			lm.locks.Delete(key)
		}
		return true
	})
}
