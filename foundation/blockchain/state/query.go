package state

import (
	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
)

// Status represents a summary of the node's view of the chain.
type Status struct {
	Address              string `json:"address"`
	Height               uint64 `json:"height"`
	LatestBlockHash      string `json:"latest_block_hash"`
	CumulativeDifficulty string `json:"cumulative_difficulty"`
	NextDifficulty       uint   `json:"next_difficulty"`
	MempoolCount         int    `json:"mempool_count"`
	UTXOCount            int    `json:"utxo_count"`
}

// QueryStatus returns a summary of the node's view of the chain.
func (s *State) QueryStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.db.LatestBlock()

	return Status{
		Address:              s.address,
		Height:               latest.Index,
		LatestBlockHash:      latest.Hash,
		CumulativeDifficulty: s.db.CumulativeDifficulty().String(),
		NextDifficulty:       s.db.NextDifficulty(),
		MempoolCount:         s.mempool.Count(),
		UTXOCount:            s.db.UTXOs().Len(),
	}
}

// QueryAccountBalance returns the balance of the node's wallet.
func (s *State) QueryAccountBalance() uint64 {
	return s.db.UTXOs().Balance(s.address)
}

// QueryBalance returns the balance of the specified address.
func (s *State) QueryBalance(address string) uint64 {
	return s.db.UTXOs().Balance(address)
}

// QueryUTXOs returns the unspent outputs owned by the address. If the address
// is empty, all unspent outputs are returned.
func (s *State) QueryUTXOs(address string) []database.UnspentOutput {
	utxos := s.db.UTXOs()

	if address == "" {
		return utxos.Values()
	}

	return utxos.ForAddress(address)
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}
