package database

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/mycoin/foundation/blockchain/genesis"
)

// ValidateBlockTransactions checks the transactions of a block at the
// specified height against the set of unspent outputs as it was before the
// block. The first transaction must be the coinbase, no output may be spent
// twice inside the block, and every other transaction must be valid on its own.
func ValidateBlockTransactions(trans []Tx, utxos UTXOSet, height uint64, coinbaseAmount uint64) error {
	if len(trans) == 0 {
		return errors.New("block has no coinbase transaction")
	}

	if err := trans[0].ValidateCoinbase(height, coinbaseAmount); err != nil {
		return fmt.Errorf("invalid coinbase transaction: %w", err)
	}

	spent := make(map[Outpoint]struct{})
	for _, tx := range trans {
		for _, in := range tx.Inputs {
			op := in.Outpoint()
			if _, exists := spent[op]; exists {
				return fmt.Errorf("tx[%s]: output %s is spent more than once in the block", tx, op)
			}
			spent[op] = struct{}{}
		}
	}

	for _, tx := range trans[1:] {
		if err := tx.Validate(utxos); err != nil {
			return err
		}
	}

	return nil
}

// ValidateChain checks an externally supplied chain is well linked. The chain
// must start with the genesis block, every block must point to the hash of
// the block before it and recompute to its own hash, and timestamps after
// the first mined block must not decrease or jump further than the maximum
// gap. The transactions are not validated, see ReplayChain.
func ValidateChain(chain []Block, gen genesis.Genesis) error {
	if len(chain) == 0 {
		return errors.New("chain is empty")
	}

	if !chain[0].IsGenesis() {
		return errors.New("chain doesn't start with the genesis block")
	}

	maxGap := uint64(gen.MaxBlockTimeGap.Std().Milliseconds())

	for i := 1; i < len(chain); i++ {
		prev := chain[i-1]
		block := chain[i]

		if block.PreviousHash != prev.Hash {
			return fmt.Errorf("blk[%d]: previous hash doesn't match, got %s, exp %s", block.Index, block.PreviousHash, prev.Hash)
		}

		if err := block.validateHash(); err != nil {
			return fmt.Errorf("blk[%d]: %w", block.Index, err)
		}

		if prev.Index == 0 {
			continue
		}

		if prev.TimeStamp == 0 || block.TimeStamp == 0 {
			return fmt.Errorf("blk[%d]: missing timestamp", block.Index)
		}

		if block.TimeStamp < prev.TimeStamp {
			return fmt.Errorf("blk[%d]: timestamp is before the previous block, prev %d, blk %d", block.Index, prev.TimeStamp, block.TimeStamp)
		}

		if maxGap > 0 && block.TimeStamp-prev.TimeStamp > maxGap {
			return fmt.Errorf("blk[%d]: timestamp is too far from the previous block, gap %dms, max %dms", block.Index, block.TimeStamp-prev.TimeStamp, maxGap)
		}
	}

	return nil
}

// ReplayChain validates the chain and every block's transactions from
// genesis forward and returns the resulting set of unspent outputs.
func ReplayChain(chain []Block, gen genesis.Genesis, evHandler func(v string, args ...any)) (UTXOSet, error) {
	if err := ValidateChain(chain, gen); err != nil {
		return UTXOSet{}, err
	}

	utxos := NewUTXOSet(nil)
	for i := 1; i < len(chain); i++ {
		block := chain[i]

		if err := block.ValidateBlock(chain[i-1], NextDifficulty(chain[:i], gen), evHandler); err != nil {
			return UTXOSet{}, err
		}

		if err := ValidateBlockTransactions(block.Transactions, utxos, block.Index, gen.CoinbaseAmount); err != nil {
			return UTXOSet{}, fmt.Errorf("blk[%d]: %w", block.Index, err)
		}

		utxos = utxos.Apply(block.Transactions)
	}

	return utxos, nil
}

// CumulativeDifficulty returns the sum of 2^difficulty over all the blocks,
// which is the weight used to choose between competing chains.
func CumulativeDifficulty(chain []Block) *big.Int {
	total := new(big.Int)
	for _, block := range chain {
		total.Add(total, new(big.Int).Lsh(big.NewInt(1), block.Difficulty))
	}

	return total
}

// NextDifficulty returns the difficulty the next block on top of the chain
// must be mined with. Every adjustment interval the time it took to mine
// the last interval of blocks is compared against the expected time and the
// difficulty moves by one in the needed direction. Difficulty never goes
// below zero.
func NextDifficulty(chain []Block, gen genesis.Genesis) uint {
	if len(chain) == 0 {
		return 0
	}

	tip := chain[len(chain)-1]
	interval := gen.DifficultyAdjustmentInterval

	if interval == 0 || tip.Index == 0 || tip.Index%interval != 0 || uint64(len(chain)) < interval {
		return tip.Difficulty
	}

	adjusted := chain[uint64(len(chain))-interval]

	expected := gen.BlockGenerationInterval.Std().Milliseconds() * int64(interval)
	actual := int64(tip.TimeStamp) - int64(adjusted.TimeStamp)

	switch {
	case actual > expected*2:
		if adjusted.Difficulty == 0 {
			return 0
		}
		return adjusted.Difficulty - 1

	case actual < expected/2:
		return adjusted.Difficulty + 1
	}

	return adjusted.Difficulty
}
