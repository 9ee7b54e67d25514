// Package runtime handles event propagation and worker supervision for the
// single staff room. It orchestrates the system without containing business
// logic or domain rules.
package runtime

import (
	"sort"
	"sync"

	"staffroom/contract"
)

type session struct {
	participantID string
	sink          contract.EventSink
}

// Registry tracks the room membership. Sessions are keyed by connection id,
// not participant id: one staff member reading from a laptop and a phone
// holds two sessions and both receive every event.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]session)}
}

// Subscribe registers an active connection in the room.
func (r *Registry) Subscribe(connectionID, participantID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connectionID] = session{participantID: participantID, sink: sink}
}

// Unsubscribe removes a connection from the room.
func (r *Registry) Unsubscribe(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connectionID)
}

// Sinks returns all active connections, in no particular order.
func (r *Registry) Sinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sinks := make([]contract.EventSink, 0, len(r.sessions))
	for _, s := range r.sessions {
		sinks = append(sinks, s.sink)
	}
	return sinks
}

// Members returns the distinct ids of the currently subscribed participants.
func (r *Registry) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.sessions))
	for _, s := range r.sessions {
		seen[s.participantID] = struct{}{}
	}
	members := make([]string, 0, len(seen))
	for id := range seen {
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}
