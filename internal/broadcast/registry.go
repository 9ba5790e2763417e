// ABOUTME: Observer registry for live audio fan-out
// ABOUTME: Tracks observer connections and delivers frames without blocking
package broadcast

import (
	"sort"
	"sync"
)

// Kind distinguishes binary audio frames from text notifications
type Kind int

const (
	Binary Kind = iota
	Text
)

func (k Kind) String() string {
	if k == Text {
		return "text"
	}
	return "binary"
}

// Frame is one outbound transport message
type Frame struct {
	Kind Kind
	Data []byte
}

// Peer is an observer's send side. Send must not block: it queues the frame
// and reports false when the peer is closed or backed up.
type Peer interface {
	ID() string
	Send(Frame) bool
}

// Stats summarizes one Broadcast call
type Stats struct {
	Delivered int
	Dropped   int
}

// Registry is the set of observers currently receiving live frames
type Registry struct {
	mu    sync.RWMutex
	peers map[string]Peer

	// OnDrop is called for every frame a peer did not accept
	OnDrop func(peerID string, kind Kind)
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]Peer),
	}
}

// Register adds a peer. Registering the same id again keeps the first peer.
func (r *Registry) Register(p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[p.ID()]; exists {
		return false
	}
	r.peers[p.ID()] = p
	return true
}

// Unregister removes a peer; unknown ids are ignored
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[id]; !exists {
		return false
	}
	delete(r.peers, id)
	return true
}

// Broadcast offers the frame to every registered peer. Delivery runs on a
// snapshot taken under the lock, so peers may register or leave while a
// broadcast is in flight without affecting delivery to the others.
func (r *Registry) Broadcast(f Frame) Stats {
	r.mu.RLock()
	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	onDrop := r.OnDrop
	r.mu.RUnlock()

	var stats Stats
	for _, p := range peers {
		if p.Send(f) {
			stats.Delivered++
			continue
		}
		stats.Dropped++
		if onDrop != nil {
			onDrop(p.ID(), f.Kind)
		}
	}
	return stats
}

// Len returns the number of registered peers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// IDs returns the registered peer ids in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
