package handler

import "sync"

// userLocks serializes all handling for one user while letting distinct
// users proceed concurrently. Lock entries are created on first use and
// kept for the process lifetime; the population is bounded by the
// access allow-list.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*sync.Mutex)}
}

// acquire locks the user's mutex, creating it if needed. The caller
// must call the returned unlock exactly once.
func (u *userLocks) acquire(userID int64) (unlock func()) {
	u.mu.Lock()
	l, ok := u.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		u.locks[userID] = l
	}
	u.mu.Unlock()

	l.Lock()
	return l.Unlock
}
