package reminder

import (
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// dispatchGate covers the window between sending a prompt and registering
// its occurrence. An answer to a message the registry does not know yet is
// parked while a dispatch is in flight and handed back to the dispatcher
// once the occurrence is inserted.
type dispatchGate struct {
	mu       sync.Mutex
	inflight int
	parked   map[string][]Interaction
}

func newDispatchGate() *dispatchGate {
	return &dispatchGate{parked: make(map[string][]Interaction)}
}

func (g *dispatchGate) begin() {
	g.mu.Lock()
	g.inflight++
	g.mu.Unlock()
}

// lookupOrPark returns the pending occurrence behind in.Prompt. When there is
// none and a dispatch is in flight, in is parked and parked is true.
func (g *dispatchGate) lookupOrPark(registry *Registry, in Interaction) (occ fn.Option[Occurrence], parked bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	occ = registry.LookupByMessage(in.Prompt.MessageID)
	if occ.IsSome() || g.inflight == 0 || in.Prompt.MessageID == "" {
		return occ, false
	}
	g.parked[in.Prompt.MessageID] = append(g.parked[in.Prompt.MessageID], in)
	return occ, true
}

// finish ends one dispatch. insert, when set, runs under the gate so a
// concurrent lookupOrPark sees either the occurrence or an in-flight
// dispatch. It returns the answers parked for messageID and, once no
// dispatch is left, every other parked answer as stale.
func (g *dispatchGate) finish(messageID string, insert func()) (matched, stale []Interaction) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if insert != nil {
		insert()
	}
	g.inflight--
	if messageID != "" {
		matched = g.parked[messageID]
		delete(g.parked, messageID)
	}
	if g.inflight == 0 {
		for id, answers := range g.parked {
			stale = append(stale, answers...)
			delete(g.parked, id)
		}
	}
	return matched, stale
}
