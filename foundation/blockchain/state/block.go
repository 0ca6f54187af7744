package state

import (
	"encoding/json"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/events"
)

// AddBlock takes a block received from a peer and, if it is valid on top of
// the current tip, appends it to the chain. Any mining operation in flight is
// cancelled since it is now mining on a stale tip.
func (s *State) AddBlock(block database.Block) bool {
	s.evHandler("state: AddBlock: started: prevBlk[%.16s]: newBlk[%.16s]: numTrans[%d]", block.PreviousHash, block.Hash, len(block.Transactions))
	defer s.evHandler("state: AddBlock: completed: newBlk[%.16s]", block.Hash)

	if err := s.validateUpdateDatabase(block); err != nil {
		s.evHandler("state: AddBlock: REJECTED: blk[%d]: %s", block.Index, err)
		return false
	}

	s.evHandler("state: AddBlock: signal mining to terminate")
	s.Worker.SignalCancelMining()

	return true
}

// ReplaceChain replaces the local chain with the candidate chain if the
// candidate is valid and has a strictly greater cumulative difficulty. Ties
// keep the local chain.
func (s *State) ReplaceChain(chain []database.Block) bool {
	s.evHandler("state: ReplaceChain: started: blocks[%d]", len(chain))
	defer s.evHandler("state: ReplaceChain: completed")

	// The replay doesn't depend on local state so it runs outside the lock.
	utxos, err := database.ReplayChain(chain, s.genesis, s.evHandler)
	if err != nil {
		s.evHandler("state: ReplaceChain: REJECTED: invalid chain: %s", err)
		return false
	}

	candidate := database.CumulativeDifficulty(chain)

	s.mu.Lock()
	{
		local := s.db.CumulativeDifficulty()
		if candidate.Cmp(local) <= 0 {
			s.mu.Unlock()
			s.evHandler("state: ReplaceChain: REJECTED: cumulative difficulty not greater: local[%s]: candidate[%s]", local, candidate)
			return false
		}

		if err := s.db.Replace(chain, utxos); err != nil {
			s.mu.Unlock()
			s.evHandler("state: ReplaceChain: ERROR: %s", err)
			return false
		}

		for _, tx := range s.mempool.Reconcile(utxos) {
			s.evHandler("state: ReplaceChain: tx[%s] removed from mempool", tx)
		}
	}
	s.mu.Unlock()

	tip := chain[len(chain)-1]
	s.evHandler("state: ReplaceChain: REPLACED: height[%d]: tip[%.16s]: cumulative[%s]", tip.Index, tip.Hash, candidate)

	s.Worker.SignalCancelMining()
	s.Worker.SignalShareBlock(tip)
	s.blockEvent(tip)

	return true
}

// =============================================================================

// validateUpdateDatabase takes the block and validates the block against the
// consensus rules. If the block passes, then the state of the node is updated
// including adding the block to storage and pruning the mempool.
func (s *State) validateUpdateDatabase(block database.Block) error {
	s.mu.Lock()
	{
		s.evHandler("state: validateUpdateDatabase: validate and write block")

		utxos, err := s.db.AddBlock(block)
		if err != nil {
			s.mu.Unlock()
			return err
		}

		s.evHandler("state: validateUpdateDatabase: remove spent transactions from mempool")

		for _, tx := range s.mempool.Reconcile(utxos) {
			s.evHandler("state: validateUpdateDatabase: tx[%s] removed from mempool", tx)
		}
	}
	s.mu.Unlock()

	// Share the block with the network and send an event about this new block.
	s.Worker.SignalShareBlock(block)
	s.blockEvent(block)

	return nil
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	s.viewerEvent(events.KindBlock, blockPayload{Index: block.Index, Hash: block.Hash, Block: block})
}

// viewerEvent marshals the value into an event for the viewers.
func (s *State) viewerEvent(kind string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.evHandler("state: viewerEvent: ERROR: %s: %s", kind, err)
		return
	}

	s.evHandler("%s %s: %s", events.Prefix, kind, string(data))
}

// blockPayload is the payload of a block event.
type blockPayload struct {
	Index uint64         `json:"index"`
	Hash  string         `json:"hash"`
	Block database.Block `json:"block"`
}

// peerPayload is the payload of a peer event.
type peerPayload struct {
	Host      string `json:"host"`
	Connected bool   `json:"connected"`
}
