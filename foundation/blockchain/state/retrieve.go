package state

import (
	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/genesis"
	"github.com/ardanlabs/mycoin/foundation/blockchain/peer"
	"github.com/ardanlabs/mycoin/foundation/events"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveAddress returns the address of the node's wallet.
func (s *State) RetrieveAddress() string {
	return s.address
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveChain returns a copy of the entire chain.
func (s *State) RetrieveChain() []database.Block {
	return s.db.Copy()
}

// RetrieveLatestBlock returns a copy the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	return s.db.LatestBlock()
}

// RetrieveMempool returns a copy of the mempool.
func (s *State) RetrieveMempool() []database.Tx {
	return s.mempool.Snapshot()
}

// RetrieveUTXOs returns the current set of unspent outputs.
func (s *State) RetrieveUTXOs() database.UTXOSet {
	return s.db.UTXOs()
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrievePeerStatus retrieves the connection status of the known peers.
func (s *State) RetrievePeerStatus() []peer.PeerStatus {
	return s.knownPeers.Status()
}

// RetrieveUnconnectedPeers retrieves the known peers without a connection.
func (s *State) RetrieveUnconnectedPeers() []peer.Peer {
	var peers []peer.Peer
	for _, p := range s.knownPeers.Unconnected() {
		if !p.Match(s.host) {
			peers = append(peers, p)
		}
	}

	return peers
}

// AddKnownPeer provides the ability to add a new peer to the known peer list.
func (s *State) AddKnownPeer(peer peer.Peer) bool {
	return s.knownPeers.Add(peer)
}

// PeerConnected records the connection serving a known peer.
func (s *State) PeerConnected(peer peer.Peer, connectionID string) {
	s.knownPeers.Connected(peer, connectionID)
	s.viewerEvent(events.KindPeer, peerPayload{Host: peer.Host, Connected: true})
}

// PeerDisconnected clears a connection from the known peers.
func (s *State) PeerDisconnected(connectionID string) {
	for _, peer := range s.knownPeers.Disconnected(connectionID) {
		s.viewerEvent(events.KindPeer, peerPayload{Host: peer.Host})
	}
}
