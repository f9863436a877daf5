package admission

import (
	"sync"

	"gatekeeper/model"
)

type memberKey struct {
	chat   string
	member string
}

// Registry is the table of members awaiting challenge resolution, one entry
// per (chat, member), plus their join artifacts. All access goes through the
// coarse table lock; cardinality is bounded by concurrently pending joins.
type Registry struct {
	mu      sync.Mutex
	entries map[memberKey]*model.PendingMember
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[memberKey]*model.PendingMember)}
}

// Admit inserts the entry, replacing any live entry for the same (chat,
// member). The previous entry's retry count is carried forward and its
// artifacts are returned so the caller can delete the stale messages.
func (r *Registry) Admit(entry model.PendingMember) (superseded model.JoinArtifacts, hadPrev bool) {
	if entry.Retries == 0 {
		entry.Retries = 1
	}
	k := memberKey{entry.ChatID, entry.MemberID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[k]; ok {
		entry.Retries = prev.Retries
		superseded = prev.Artifacts
		hadPrev = true
	}
	r.entries[k] = &entry
	return superseded, hadPrev
}

// Lookup returns a copy of the entry for (chat, member), if pending.
func (r *Registry) Lookup(chatID, memberID string) (model.PendingMember, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[memberKey{chatID, memberID}]; ok {
		return *e, true
	}
	return model.PendingMember{}, false
}

// Resolve removes the entry and returns what was removed.
func (r *Registry) Resolve(chatID, memberID string) (model.PendingMember, bool) {
	k := memberKey{chatID, memberID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[k]; ok {
		delete(r.entries, k)
		return *e, true
	}
	return model.PendingMember{}, false
}

// Update applies fn to the live entry, if any.
func (r *Registry) Update(chatID, memberID string, fn func(*model.PendingMember)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[memberKey{chatID, memberID}]
	if !ok {
		return false
	}
	fn(e)
	return true
}

// Snapshot returns copies of all entries; the sweep iterates over the
// snapshot and applies changes through Update/Resolve, never while scanning.
func (r *Registry) Snapshot() []model.PendingMember {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.PendingMember, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

// Len reports the number of pending entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
