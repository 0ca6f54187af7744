package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ardanlabs/mycoin/foundation/blockchain/signature"
)

// GenesisHash is the hash of the genesis block. Every chain must start with
// the block this hash represents.
const GenesisHash = "7cf6c6bdac6c5ae3711b26ed2834adf61f4e56bfb1033ebd50ea91fc30075e29"

// maxDifficulty is the number of hex characters in a hash.
const maxDifficulty = 64

// =============================================================================

// Block represents a group of transactions batched together and linked to
// the block before it.
type Block struct {
	Index        uint64 `json:"index"`                                                           // Bitcoin: Block height in the chain.
	Hash         string `json:"hash" validate:"required,len=64,hexadecimal,lowercase"`           // Bitcoin: Hash of this block's fields.
	PreviousHash string `json:"previous_hash" validate:"omitempty,len=64,hexadecimal,lowercase"` // Bitcoin: Hash of the previous block in the chain.
	Transactions []Tx   `json:"transactions" validate:"dive"`                                    // Bitcoin: Coinbase first, then the mined transactions.
	TimeStamp    uint64 `json:"timestamp"`                                                       // Bitcoin: Time the block was mined in milliseconds, zero for genesis.
	Difficulty   uint   `json:"difficulty"`                                                      // Bitcoin: Number of leading 0's needed to solve the hash.
	Nonce        uint64 `json:"nonce"`                                                           // Bitcoin: Value identified to solve the hash.
}

// Genesis returns the first block of every chain.
func Genesis() Block {
	return Block{
		Index:        0,
		Hash:         GenesisHash,
		PreviousHash: "",
		Transactions: nil,
		TimeStamp:    0,
		Difficulty:   0,
		Nonce:        0,
	}
}

// IsGenesis reports if the block matches the genesis block exactly.
func (b Block) IsGenesis() bool {
	return b.Index == 0 &&
		b.Hash == GenesisHash &&
		b.PreviousHash == "" &&
		b.Transactions == nil &&
		b.TimeStamp == 0 &&
		b.Difficulty == 0 &&
		b.Nonce == 0
}

// POW constructs a new Block on top of the previous block and performs the
// work to find a nonce that solves the proof of work puzzle.
func POW(ctx context.Context, prevBlock Block, trans []Tx, difficulty uint, timeStamp uint64, evHandler func(v string, args ...any)) (Block, error) {
	if difficulty > maxDifficulty {
		return Block{}, fmt.Errorf("difficulty %d is not attainable", difficulty)
	}

	nb := Block{
		Index:        prevBlock.Index + 1,
		PreviousHash: prevBlock.Hash,
		Transactions: cloneTxs(trans),
		TimeStamp:    timeStamp,
		Difficulty:   difficulty,
		Nonce:        0, // Will be identified by the POW algorithm.
	}

	if err := nb.performPOW(ctx, evHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started: blk[%d]: difficulty[%d]", b.Index, b.Difficulty)
	defer ev("database: PerformPOW: MINING: completed: blk[%d]", b.Index)

	for _, tx := range b.Transactions {
		ev("database: PerformPOW: MINING: tx[%s]", tx)
	}

	// Everything except the nonce is fixed for the duration of the search.
	prefix, err := b.hashPrefix()
	if err != nil {
		return err
	}
	suffix := strconv.FormatUint(uint64(b.Difficulty), 10)

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		hash := signature.Hash(prefix + suffix + strconv.FormatUint(b.Nonce, 10))
		if !isHashSolved(b.Difficulty, hash) {
			b.Nonce++
			continue
		}

		b.Hash = hash

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.PreviousHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// CalculateHash recomputes the hash of the block from its fields. The hash
// field itself is not part of the calculation.
func (b Block) CalculateHash() (string, error) {
	prefix, err := b.hashPrefix()
	if err != nil {
		return "", err
	}

	content := prefix + strconv.FormatUint(uint64(b.Difficulty), 10) + strconv.FormatUint(b.Nonce, 10)

	return signature.Hash(content), nil
}

// hashPrefix returns the index, previous hash, timestamp and serialized
// transactions concatenated for hashing.
func (b Block) hashPrefix() (string, error) {
	trans, err := json.Marshal(b.Transactions)
	if err != nil {
		return "", err
	}

	var ts string
	if b.TimeStamp > 0 {
		ts = strconv.FormatUint(b.TimeStamp, 10)
	}

	return strconv.FormatUint(b.Index, 10) + b.PreviousHash + ts + string(trans), nil
}

// IsWellFormed checks field presence and formats for the block and all of
// its transactions.
func (b Block) IsWellFormed() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("block is not well formed: %w", err)
	}

	return nil
}

// ValidateBlock takes a block and validates it can be placed on top of the
// previous block. The transactions are not validated.
func (b Block) ValidateBlock(previousBlock Block, difficulty uint, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: block is well formed", b.Index)

	if err := b.IsWellFormed(); err != nil {
		return err
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block index is the next index", b.Index)

	nextIndex := previousBlock.Index + 1
	if b.Index != nextIndex {
		return fmt.Errorf("this block is not the next index, got %d, exp %d", b.Index, nextIndex)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: previous hash does match previous block", b.Index)

	if b.PreviousHash != previousBlock.Hash {
		return fmt.Errorf("previous block hash doesn't match our known tip, got %s, exp %s", b.PreviousHash, previousBlock.Hash)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash matches the block fields", b.Index)

	if err := b.validateHash(); err != nil {
		return err
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block difficulty is the expected difficulty", b.Index)

	if b.Difficulty != difficulty {
		return fmt.Errorf("block difficulty is not the expected difficulty, got %d, exp %d", b.Difficulty, difficulty)
	}

	return nil
}

// validateHash checks the hash recomputes from the block fields and solves
// the block's difficulty.
func (b Block) validateHash() error {
	hash, err := b.CalculateHash()
	if err != nil {
		return err
	}

	if hash != b.Hash {
		return fmt.Errorf("block hash doesn't match its content, got %s, exp %s", b.Hash, hash)
	}

	if !isHashSolved(b.Difficulty, hash) {
		return fmt.Errorf("%s invalid block hash for difficulty %d", hash, b.Difficulty)
	}

	return nil
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	b.Transactions = cloneTxs(b.Transactions)
	return b
}

// =============================================================================

// isHashSolved checks the hash to make sure it complies with the POW rules.
// We need to match a difficulty number of 0's.
func isHashSolved(difficulty uint, hash string) bool {
	if len(hash) != 64 || difficulty > maxDifficulty {
		return false
	}

	return strings.Count(hash[:difficulty], "0") == int(difficulty)
}

// cloneTxs copies the transactions keeping a nil slice nil, since nil and
// empty serialize differently.
func cloneTxs(trans []Tx) []Tx {
	if trans == nil {
		return nil
	}

	cpy := make([]Tx, len(trans))
	for i, tx := range trans {
		cpy[i] = tx.Clone()
	}

	return cpy
}
