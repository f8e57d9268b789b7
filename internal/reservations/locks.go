// Package reservations implements spec §4.4: file path reservations and
// build slots, both expressed as self-locking primitives layered above the
// Store's single global write mutex. Ground: internal/project/locks.go's
// per-key sync.Map of *sync.RWMutex, adapted from a string project-id key
// to the same key, now guarding the check-then-write sequence a
// reservation conflict check requires (the Store's write mutex alone only
// serializes individual statements, not the read-then-decide-then-write
// spanning file_reservation_paths).
package reservations

import "sync"

// ProjectLocks hands out one RWMutex per project slug, created lazily.
type ProjectLocks struct {
	locks sync.Map // project slug -> *sync.RWMutex
}

func (m *ProjectLocks) getOrCreate(projectSlug string) *sync.RWMutex {
	lock, _ := m.locks.LoadOrStore(projectSlug, &sync.RWMutex{})
	return lock.(*sync.RWMutex)
}

func (m *ProjectLocks) Lock(projectSlug string)    { m.getOrCreate(projectSlug).Lock() }
func (m *ProjectLocks) Unlock(projectSlug string)  { m.getOrCreate(projectSlug).Unlock() }
func (m *ProjectLocks) RLock(projectSlug string)   { m.getOrCreate(projectSlug).RLock() }
func (m *ProjectLocks) RUnlock(projectSlug string) { m.getOrCreate(projectSlug).RUnlock() }

// global is shared process-wide: every caller into this package
// serializes on the same per-project keyspace regardless of which Store
// handle it was given (there is exactly one Store per process).
var global ProjectLocks
