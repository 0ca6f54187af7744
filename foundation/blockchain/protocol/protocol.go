// Package protocol implements the peer sync protocol. It turns messages
// received from peers into calls on the state and pushes new blocks and the
// mempool out to every connected peer.
package protocol

import (
	"sort"
	"sync"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/state"
)

// SendFunc delivers the raw bytes of a message to one peer.
type SendFunc = func(msg []byte) error

// Protocol tracks the connected peers and dispatches their messages. Messages
// from the same peer must be handed over sequentially, messages from
// different peers may be handled concurrently.
type Protocol struct {
	state     *state.State
	evHandler state.EventHandler

	mu    sync.RWMutex
	peers map[string]SendFunc
}

// New constructs a protocol driving the specified state.
func New(st *state.State, evHandler state.EventHandler) *Protocol {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	return &Protocol{
		state:     st,
		evHandler: ev,
		peers:     make(map[string]SendFunc),
	}
}

// OnPeerConnected registers a new peer connection and asks the peer for its
// latest block and its transaction pool.
func (p *Protocol) OnPeerConnected(peerID string, send SendFunc) {
	p.mu.Lock()
	p.peers[peerID] = send
	p.mu.Unlock()

	p.evHandler("protocol: OnPeerConnected: peer[%s]", peerID)

	p.send(peerID, send, GetLatestBlock, nil)
	p.send(peerID, send, GetTransactionPool, nil)
}

// OnPeerDisconnected forgets a peer connection.
func (p *Protocol) OnPeerDisconnected(peerID string) {
	p.mu.Lock()
	delete(p.peers, peerID)
	p.mu.Unlock()

	p.evHandler("protocol: OnPeerDisconnected: peer[%s]", peerID)
}

// Peers returns the ids of the connected peers.
func (p *Protocol) Peers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.peers))
	for id := range p.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// OnPeerMessage handles one message received from a peer. Malformed and
// unknown messages are logged and dropped.
func (p *Protocol) OnPeerMessage(peerID string, raw []byte) {
	msg, err := Decode(raw)
	if err != nil {
		p.evHandler("protocol: OnPeerMessage: peer[%s]: DROPPED: %s", peerID, err)
		return
	}

	p.evHandler("protocol: OnPeerMessage: peer[%s]: type[%s]", peerID, msg.Type)

	switch msg.Type {
	case GetLatestBlock:
		p.reply(peerID, ReceiveChain, []database.Block{p.state.RetrieveLatestBlock()})

	case GetEntireChain:
		p.reply(peerID, ReceiveChain, p.state.RetrieveChain())

	case ReceiveChain:
		chain, err := DecodeChain(msg.Data)
		if err != nil {
			p.evHandler("protocol: OnPeerMessage: peer[%s]: DROPPED: %s", peerID, err)
			return
		}
		p.handleReceiveChain(peerID, chain)

	case GetTransactionPool:
		p.reply(peerID, ReceiveTransactionPool, p.state.RetrieveMempool())

	case ReceiveTransactionPool:
		trans, dropped, err := DecodePool(msg.Data)
		if err != nil {
			p.evHandler("protocol: OnPeerMessage: peer[%s]: DROPPED: %s", peerID, err)
			return
		}
		for _, err := range dropped {
			p.evHandler("protocol: OnPeerMessage: peer[%s]: DROPPED: %s", peerID, err)
		}

		// Accepted transactions cause the mempool to be shared again.
		p.state.UpsertMempool(trans)
	}
}

// handleReceiveChain decides what to do with a chain or block sent by a peer.
func (p *Protocol) handleReceiveChain(peerID string, chain []database.Block) {
	if len(chain) == 0 {
		p.evHandler("protocol: handleReceiveChain: peer[%s]: empty chain", peerID)
		return
	}

	latest := p.state.RetrieveLatestBlock()
	received := chain[len(chain)-1]

	switch {
	case received.Index <= latest.Index:
		p.evHandler("protocol: handleReceiveChain: peer[%s]: not newer: received[%d]: latest[%d]", peerID, received.Index, latest.Index)

	case received.PreviousHash == latest.Hash:
		p.evHandler("protocol: handleReceiveChain: peer[%s]: next block: blk[%d]", peerID, received.Index)
		p.state.AddBlock(received)

	case len(chain) == 1:
		p.evHandler("protocol: handleReceiveChain: peer[%s]: behind by more than one block: requesting chain", peerID)
		p.broadcast(GetEntireChain, nil)

	default:
		p.evHandler("protocol: handleReceiveChain: peer[%s]: candidate chain: blocks[%d]", peerID, len(chain))
		p.state.ReplaceChain(chain)
	}
}

// =============================================================================
// These methods implement the worker.Broadcaster interface.

// BroadcastBlock announces a newly accepted block to every peer.
func (p *Protocol) BroadcastBlock(block database.Block) {
	p.broadcast(ReceiveChain, []database.Block{block})
}

// BroadcastMempool sends the transaction pool to every peer.
func (p *Protocol) BroadcastMempool(trans []database.Tx) {
	p.broadcast(ReceiveTransactionPool, trans)
}

// =============================================================================

// reply sends a message to a single peer.
func (p *Protocol) reply(peerID string, mt MessageType, payload any) {
	p.mu.RLock()
	send, exists := p.peers[peerID]
	p.mu.RUnlock()

	if !exists {
		p.evHandler("protocol: reply: peer[%s]: not connected", peerID)
		return
	}

	p.send(peerID, send, mt, payload)
}

// broadcast sends a message to every connected peer. The send functions are
// called outside the lock.
func (p *Protocol) broadcast(mt MessageType, payload any) {
	raw, err := Encode(mt, payload)
	if err != nil {
		p.evHandler("protocol: broadcast: ERROR: %s", err)
		return
	}

	p.mu.RLock()
	peers := make(map[string]SendFunc, len(p.peers))
	for id, send := range p.peers {
		peers[id] = send
	}
	p.mu.RUnlock()

	for id, send := range peers {
		if err := send(raw); err != nil {
			p.evHandler("protocol: broadcast: peer[%s]: type[%s]: WARNING: %s", id, mt, err)
		}
	}
}

// send encodes and delivers a message to one peer.
func (p *Protocol) send(peerID string, send SendFunc, mt MessageType, payload any) {
	raw, err := Encode(mt, payload)
	if err != nil {
		p.evHandler("protocol: send: ERROR: %s", err)
		return
	}

	if err := send(raw); err != nil {
		p.evHandler("protocol: send: peer[%s]: type[%s]: WARNING: %s", peerID, mt, err)
	}
}
