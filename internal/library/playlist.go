package library

import "sync"

// PlaylistState tracks one playlist's snapshot across refreshes: the
// entries last reported to clients, and the never-reused, strictly
// increasing container id counter. Each /databases/{db}/containers/{pl}/items
// request (router.handleContainerItems) refreshes exactly one
// PlaylistState against the adapter's current truth.
//
// Mutations are serialized per playlist: concurrent refresh requests for
// the same playlist id must not interleave, the same way the teacher
// guards its counters (logHub.nextID, statsHub.idx) behind a single mutex
// rather than atomics, because refresh does more than bump a counter.
type PlaylistState struct {
	mu           sync.Mutex
	entries      []PlaylistEntry
	nextContID   uint32
	deletions    map[uint32][]uint32 // revision -> item ids removed at that revision
	maxDeletions int
}

// NewPlaylistState returns a fresh, empty playlist state. nextContID starts
// at 1 so the first-ever entry gets container id 1.
func NewPlaylistState() *PlaylistState {
	return &PlaylistState{nextContID: 1, deletions: make(map[uint32][]uint32), maxDeletions: 64}
}

// Entries returns a snapshot of the playlist's current entries.
func (p *PlaylistState) Entries() []PlaylistEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlaylistEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Refresh walks the adapter's authoritative ordered track-id sequence
// against the playlist's last-seen snapshot and reconciles them:
//
//  1. ids[i] == entries[j].ItemID: both are in sync, advance both.
//  2. They differ: entries[j] is no longer at this position (deleted or
//     reordered away); drop it and record its item id as removed, then
//     advance j only so the next comparison re-checks the same incoming
//     id against the next surviving entry.
//  3. Once one side is exhausted, any remaining ids become new entries
//     with freshly assigned, ever-increasing container ids.
//
// The source this is modeled on instead appended ids[i] (the incoming id)
// to removed on mismatch, which records an id that was never a member of
// entries. That reads as a bug: "removed" should mean "ids no longer
// present", so this implementation appends the dropped entry's item id,
// not the incoming one. See DESIGN.md for the recorded decision.
func (p *PlaylistState) Refresh(ids []uint32, revision uint32) (removed []uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var fresh []PlaylistEntry
	i, j := 0, 0
	for i < len(ids) && j < len(p.entries) {
		if ids[i] == p.entries[j].ItemID {
			fresh = append(fresh, p.entries[j])
			i++
			j++
			continue
		}
		removed = append(removed, p.entries[j].ItemID)
		j++
	}
	for ; j < len(p.entries); j++ {
		removed = append(removed, p.entries[j].ItemID)
	}
	for ; i < len(ids); i++ {
		fresh = append(fresh, PlaylistEntry{ItemID: ids[i], ContainerID: p.nextContID})
		p.nextContID++
	}

	p.entries = fresh
	if len(removed) > 0 {
		p.deletions[revision] = append(p.deletions[revision], removed...)
		p.pruneLocked()
	}
	return removed
}

// DeletedSince returns the union of item ids removed at any revision in
// (from, current]. Unknown or pruned revisions simply contribute nothing,
// which is the documented fallback: the caller reissues a full listing.
func (p *PlaylistState) DeletedSince(from uint32) []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[uint32]struct{})
	var out []uint32
	for rev, ids := range p.deletions {
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

// pruneLocked bounds how many distinct revisions of deletion history are
// kept, discarding the oldest first. Must be called with p.mu held.
func (p *PlaylistState) pruneLocked() {
	for len(p.deletions) > p.maxDeletions {
		var oldest uint32
		first := true
		for rev := range p.deletions {
			if first || rev < oldest {
				oldest = rev
				first = false
			}
		}
		delete(p.deletions, oldest)
	}
}
