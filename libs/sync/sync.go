package sync

import "sync"

// A Mutex is a mutual exclusion lock. This definition exists so that a
// deadlock-detecting implementation can be substituted behind a build tag
// without touching call sites.
type Mutex struct {
	sync.Mutex
}

// An RWMutex is a reader/writer mutual exclusion lock.
type RWMutex struct {
	sync.RWMutex
}
