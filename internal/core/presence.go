package core

import (
	"slices"
	"sync"
)

// Presence tracks which users are online and through which connections.
// A user is online while at least one of its connections is registered.
type Presence struct {
	mu    sync.RWMutex
	conns map[int64]map[*Client]struct{}
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{conns: make(map[int64]map[*Client]struct{})}
}

// Register adds a connection handle for userID. Returns false if it was already registered.
func (p *Presence) Register(userID int64, c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[userID]
	if !ok {
		set = make(map[*Client]struct{})
		p.conns[userID] = set
	}
	if _, exists := set[c]; exists {
		return false
	}
	set[c] = struct{}{}
	return true
}

// Unregister removes a connection handle. Unknown handles are ignored and return false.
// The user goes offline when its last handle is removed.
func (p *Presence) Unregister(userID int64, c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[userID]
	if !ok {
		return false
	}
	if _, exists := set[c]; !exists {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(p.conns, userID)
	}
	return true
}

// IsOnline reports whether userID has at least one live connection.
func (p *Presence) IsOnline(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns[userID]) > 0
}

// OnlineUserIDs returns the online user ids in ascending order.
func (p *Presence) OnlineUserIDs() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]int64, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Connections returns the live connections of userID.
func (p *Presence) Connections(userID int64) []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	set := p.conns[userID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}

// All returns every registered connection.
func (p *Presence) All() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var clients []*Client
	for _, set := range p.conns {
		for c := range set {
			clients = append(clients, c)
		}
	}
	return clients
}
