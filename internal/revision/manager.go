// Package revision implements the monotonic revision counter and
// long-poll wait that let DAAP clients ask "what changed since revision
// R". It is the core's only use of a condition variable: the library's
// change callback (arbitrary goroutine, non-reentrant) must wake every
// blocked /update request without either side knowing about the other,
// the decoupling spec.md calls for explicitly.
package revision

import "sync"

// Manager holds the global revision counter and the bounded per-revision
// record of which root track ids were deleted at each step.
type Manager struct {
	mu       sync.Mutex
	cond     *sync.Cond
	current  uint32
	stopped  bool
	deletions map[uint32][]uint32
	maxKept  int
}

// New returns a Manager with the initial revision set to 1, as spec.md
// requires ("first answer to /update returns 2 on first change").
func New() *Manager {
	m := &Manager{current: 1, deletions: make(map[uint32][]uint32), maxKept: 128}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Current returns the current revision.
func (m *Manager) Current() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Bump atomically advances the revision, records the set of ids deleted at
// the new revision, and wakes every waiter blocked in WaitForUpdate.
func (m *Manager) Bump(deletedIDs []uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current++
	if len(deletedIDs) > 0 {
		cp := make([]uint32, len(deletedIDs))
		copy(cp, deletedIDs)
		m.deletions[m.current] = cp
	}
	m.pruneLocked()
	m.cond.Broadcast()
	return m.current
}

// WaitForUpdate blocks until the current revision exceeds clientRev or the
// manager is stopped, then returns the current revision. Callers observe
// stop via Stopped() to decide whether to answer with a 404 instead of a
// normal update response.
func (m *Manager) WaitForUpdate(clientRev uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.current <= clientRev && !m.stopped {
		m.cond.Wait()
	}
	return m.current
}

// Stopped reports whether Stop has been called. The router checks this
// immediately after WaitForUpdate returns to distinguish "revision
// advanced" from "server is shutting down".
func (m *Manager) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Stop marks the manager stopped and wakes every blocked WaitForUpdate
// call so in-flight long polls can return promptly during shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

// DeletedSince returns the union of ids deleted at any revision in
// (from, current]. Unknown or pruned revisions contribute nothing, so
// callers fall back to a full listing when the set turns out empty but a
// delta was expected.
func (m *Manager) DeletedSince(from uint32) []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uint32]struct{})
	var out []uint32
	for rev, ids := range m.deletions {
		if rev <= from {
			continue
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// pruneLocked bounds how many revisions of deletion history are retained.
// Must be called with m.mu held.
func (m *Manager) pruneLocked() {
	for len(m.deletions) > m.maxKept {
		var oldest uint32
		first := true
		for rev := range m.deletions {
			if first || rev < oldest {
				oldest = rev
				first = false
			}
		}
		delete(m.deletions, oldest)
	}
}
