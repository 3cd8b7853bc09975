package installer

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

// keyLocks serialises work per script identity. Entries are dropped once
// no goroutine holds or waits for them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[types.Key]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[types.Key]*keyLock)}
}

// lock acquires the lock for key and returns its release func
func (k *keyLocks) lock(key types.Key) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
