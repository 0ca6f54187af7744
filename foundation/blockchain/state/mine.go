package state

import (
	"context"
	"fmt"
	"time"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
)

// GenerateNextBlock mines a block holding the coinbase and the transactions in
// the mempool. The proof of work runs on the worker's mining goroutine and
// this call waits for the result.
func (s *State) GenerateNextBlock(ctx context.Context) (database.Block, error) {
	result := <-s.Worker.SignalStartMining(ctx, MiningJob{Mempool: true})
	return result.Block, result.Err
}

// GenerateNextBlockWithTransaction builds and signs a transaction paying the
// amount to the address from the node's wallet, and mines a block holding
// the coinbase and that transaction. The transaction is not added to the
// mempool.
func (s *State) GenerateNextBlockWithTransaction(ctx context.Context, address string, amount uint64) (database.Block, error) {
	tx, err := s.createTransaction(address, amount)
	if err != nil {
		return database.Block{}, err
	}

	result := <-s.Worker.SignalStartMining(ctx, MiningJob{Trans: []database.Tx{tx}})
	return result.Block, result.Err
}

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain. This is called by the worker's mining
// goroutine and can be cancelled through the context.
func (s *State) MineNewBlock(ctx context.Context, job MiningJob) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: prepare candidate")

	var prevBlock database.Block
	var difficulty uint
	var trans []database.Tx

	// The tip and difficulty must come from the same version of the chain.
	s.mu.Lock()
	{
		prevBlock = s.db.LatestBlock()
		difficulty = s.db.NextDifficulty()

		switch job.Mempool {
		case true:
			trans = s.mempool.Snapshot()
		default:
			trans = job.Trans
		}
	}
	s.mu.Unlock()

	coinbase := database.NewCoinbaseTx(s.address, prevBlock.Index+1, s.genesis.CoinbaseAmount)
	trans = append([]database.Tx{coinbase}, trans...)

	s.evHandler("state: MineNewBlock: MINING: perform POW: blk[%d]: numTrans[%d]", prevBlock.Index+1, len(trans))

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err := database.POW(ctx, prevBlock, trans, difficulty, uint64(time.Now().UnixMilli()), s.evHandler)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	// A peer's block may have been accepted first, in which case the mined
	// block is discarded.
	if err := s.validateUpdateDatabase(block); err != nil {
		return database.Block{}, fmt.Errorf("%w: %s", ErrBlockRejected, err)
	}

	return block, nil
}
