// Package peer maintains the peer related information such as the set
// of known peers and their connection status.
package peer

import (
	"sort"
	"sync"
)

// Peer represents information about a Node in the network.
type Peer struct {
	Host string `json:"host"`
}

// New contructs a new info value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerStatus represents information about the connection status
// of any given peer.
type PeerStatus struct {
	Host         string `json:"host"`
	Connected    bool   `json:"connected"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]string
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]string),
	}
}

// Add adds a new node to the set.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = ""
		return true
	}

	return false
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Copy returns a list of the known peers, sorted by host, excluding the
// specified host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].Host < peers[j].Host })

	return peers
}

// Connected records the connection serving the peer. The peer is added to
// the set if it is not known.
func (ps *PeerSet) Connected(peer Peer, connectionID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.set[peer] = connectionID
}

// Disconnected clears the connection for any peer it was serving and
// returns those peers.
func (ps *PeerSet) Disconnected(connectionID string) []Peer {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var peers []Peer
	for peer, id := range ps.set {
		if id == connectionID {
			ps.set[peer] = ""
			peers = append(peers, peer)
		}
	}

	return peers
}

// Unconnected returns the known peers that don't have a connection.
func (ps *PeerSet) Unconnected() []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer, id := range ps.set {
		if id == "" {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].Host < peers[j].Host })

	return peers
}

// Status returns the connection status of every known peer sorted by host.
func (ps *PeerSet) Status() []PeerStatus {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	status := make([]PeerStatus, 0, len(ps.set))
	for peer, id := range ps.set {
		status = append(status, PeerStatus{
			Host:         peer.Host,
			Connected:    id != "",
			ConnectionID: id,
		})
	}

	sort.Slice(status, func(i, j int) bool { return status[i].Host < status[j].Host })

	return status
}
