package reminder

import (
	"sort"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Registry indexes pending occurrences by ID and by prompt message. An
// occurrence is present iff its status is pending; Resolve applies the
// terminal transition and removes the entry under one lock, so the first
// resolver wins and every later one sees absence.
type Registry struct {
	mu        sync.Mutex
	pending   map[OccurrenceID]*Occurrence
	byMessage map[string]OccurrenceID
	// seq tracks the highest Seq issued per slot and day.
	seq map[slotDay]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pending:   make(map[OccurrenceID]*Occurrence),
		byMessage: make(map[string]OccurrenceID),
		seq:       make(map[slotDay]int),
	}
}

// Insert stores occ as pending, assigning the next Seq for its slot and day.
// The stored copy is returned.
func (r *Registry) Insert(occ Occurrence) Occurrence {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneSeqLocked(occ.ID.Date)
	key := occ.ID.day()
	r.seq[key]++
	occ.ID.Seq = r.seq[key]
	occ.Status = StatusPending
	occ.ResolvedAt = time.Time{}

	stored := occ
	r.pending[occ.ID] = &stored
	if occ.Prompt.MessageID != "" {
		r.byMessage[occ.Prompt.MessageID] = occ.ID
	}
	return stored
}

// HasPending reports whether any occurrence of slot on date is pending.
func (r *Registry) HasPending(slot Slot, date string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.pending {
		if id.Slot == slot && id.Date == date {
			return true
		}
	}
	return false
}

// Lookup returns the pending occurrence with id.
func (r *Registry) Lookup(id OccurrenceID) fn.Option[Occurrence] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if occ, ok := r.pending[id]; ok {
		return fn.Some(*occ)
	}
	return fn.None[Occurrence]()
}

// LookupByMessage returns the pending occurrence whose prompt is messageID.
func (r *Registry) LookupByMessage(messageID string) fn.Option[Occurrence] {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byMessage[messageID]
	if !ok {
		return fn.None[Occurrence]()
	}
	if occ, ok := r.pending[id]; ok {
		return fn.Some(*occ)
	}
	return fn.None[Occurrence]()
}

// Resolve transitions the pending occurrence id by ev and removes it. The
// bool is false when id is no longer pending; nothing changes in that case.
func (r *Registry) Resolve(id OccurrenceID, ev Event, at time.Time) (Occurrence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(id, ev, at)
}

// ResolveByMessage is Resolve keyed by the prompt message id.
func (r *Registry) ResolveByMessage(messageID string, ev Event, at time.Time) (Occurrence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byMessage[messageID]
	if !ok {
		return Occurrence{}, false
	}
	return r.resolveLocked(id, ev, at)
}

func (r *Registry) resolveLocked(id OccurrenceID, ev Event, at time.Time) (Occurrence, bool) {
	occ, ok := r.pending[id]
	if !ok {
		return Occurrence{}, false
	}
	next, err := Transition(occ.Status, ev)
	if err != nil {
		return Occurrence{}, false
	}
	resolved := *occ
	resolved.Status = next
	resolved.ResolvedAt = at

	delete(r.pending, id)
	if resolved.Prompt.MessageID != "" {
		delete(r.byMessage, resolved.Prompt.MessageID)
	}
	return resolved, true
}

// Pending returns every pending occurrence, oldest first.
func (r *Registry) Pending() []Occurrence {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Occurrence, 0, len(r.pending))
	for _, occ := range r.pending {
		out = append(out, *occ)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len counts pending occurrences.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// pruneSeqLocked drops sequence counters of days older than date that no
// longer have a pending occurrence.
func (r *Registry) pruneSeqLocked(date string) {
	for key := range r.seq {
		if key.date >= date {
			continue
		}
		stillPending := false
		for id := range r.pending {
			if id.day() == key {
				stillPending = true
				break
			}
		}
		if !stillPending {
			delete(r.seq, key)
		}
	}
}
