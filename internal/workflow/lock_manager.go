// internal/workflow/lock_manager.go
package workflow

import (
	"sync"
	"time"
)

// LockManager hands out one mutex per project and forgets idle ones.
type LockManager struct {
	locks      map[string]*lockInfo
	globalLock sync.Mutex
	idleTTL    time.Duration
	maxLocks   int

	stopOnce sync.Once
	stop     chan struct{}
}

type lockInfo struct {
	mu       sync.Mutex
	lastUsed time.Time
	refs     int
}

// NewLockManager starts a manager that sweeps every interval.
func NewLockManager(interval, idleTTL time.Duration) *LockManager {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	lm := &LockManager{
		locks:    make(map[string]*lockInfo),
		idleTTL:  idleTTL,
		maxLocks: 200,
		stop:     make(chan struct{}),
	}
	go lm.cleanupLoop(interval)
	return lm
}

func (lm *LockManager) acquire(id string) *lockInfo {
	lm.globalLock.Lock()
	info, ok := lm.locks[id]
	if !ok {
		info = &lockInfo{}
		lm.locks[id] = info
	}
	info.refs++
	info.lastUsed = time.Now()
	lm.globalLock.Unlock()
	return info
}

func (lm *LockManager) release(info *lockInfo) {
	lm.globalLock.Lock()
	info.refs--
	info.lastUsed = time.Now()
	lm.globalLock.Unlock()
}

// ExecuteWithProjectLock runs fn while holding the project's mutex.
func (lm *LockManager) ExecuteWithProjectLock(projectID string, fn func() error) error {
	info := lm.acquire(projectID)
	defer lm.release(info)

	info.mu.Lock()
	defer info.mu.Unlock()
	return fn()
}

// Len is the number of tracked locks.
func (lm *LockManager) Len() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.locks)
}

// Close stops the sweeper.
func (lm *LockManager) Close() {
	lm.stopOnce.Do(func() { close(lm.stop) })
}

func (lm *LockManager) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			lm.cleanupUnusedLocks(false)
		case <-lm.stop:
			return
		}
	}
}

// cleanupUnusedLocks drops unreferenced locks idle longer than the TTL. Below
// maxLocks it does nothing unless force is set.
func (lm *LockManager) cleanupUnusedLocks(force bool) int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	if !force && len(lm.locks) <= lm.maxLocks {
		return 0
	}
	removed := 0
	now := time.Now()
	for id, info := range lm.locks {
		if info.refs == 0 && now.Sub(info.lastUsed) > lm.idleTTL {
			delete(lm.locks, id)
			removed++
		}
	}
	return removed
}
