// Package database handles all the lower level support for maintaining the
// blockchain: the transaction model, the set of unspent outputs, blocks and
// their proof of work, chain validation and block persistence.
package database

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ardanlabs/mycoin/foundation/blockchain/genesis"
	"github.com/go-playground/validator/v10"
)

// validate holds the settings and caches for validating structs.
var validate = validator.New()

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain. The
// genesis block is never stored.
type Storage interface {
	Write(block Block) error
	GetBlock(index uint64) (Block, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (Block, error)
	Done() bool
}

// =============================================================================

// Database manages the chain of blocks and the set of unspent outputs derived
// from it.
type Database struct {
	mu sync.RWMutex

	genesis genesis.Genesis
	chain   []Block
	utxos   UTXOSet

	storage   Storage
	evHandler func(v string, args ...any)
}

// New constructs a new database and replays the blocks found in storage
// through the same validation a new block goes through.
func New(gen genesis.Genesis, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	db := Database{
		genesis:   gen,
		chain:     []Block{Genesis()},
		utxos:     NewUTXOSet(nil),
		storage:   storage,
		evHandler: ev,
	}

	iter := db.storage.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		utxos, err := db.validateNext(block)
		if err != nil {
			return nil, fmt.Errorf("replaying stored blk[%d]: %w", block.Index, err)
		}

		db.chain = append(db.chain, block)
		db.utxos = utxos
	}

	ev("database: New: loaded chain: height[%d]", len(db.chain)-1)

	return &db, nil
}

// Close closes the open blocks database.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Genesis returns the chain parameters.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// LatestBlock returns the tip of the chain.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.chain[len(db.chain)-1].Clone()
}

// Height returns the index of the tip of the chain.
func (db *Database) Height() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.chain[len(db.chain)-1].Index
}

// Copy returns a deep copy of the chain.
func (db *Database) Copy() []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	chain := make([]Block, len(db.chain))
	for i, block := range db.chain {
		chain[i] = block.Clone()
	}

	return chain
}

// UTXOs returns the current set of unspent outputs.
func (db *Database) UTXOs() UTXOSet {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.utxos
}

// NextDifficulty returns the difficulty the next block must be mined with.
func (db *Database) NextDifficulty() uint {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return NextDifficulty(db.chain, db.genesis)
}

// CumulativeDifficulty returns the fork choice weight of the chain.
func (db *Database) CumulativeDifficulty() *big.Int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return CumulativeDifficulty(db.chain)
}

// AddBlock validates the block against the tip of the chain and the current
// set of unspent outputs. On success the block is written to storage and
// appended, and the new set of unspent outputs is returned.
func (db *Database) AddBlock(block Block) (UTXOSet, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	utxos, err := db.validateNext(block)
	if err != nil {
		return UTXOSet{}, err
	}

	if err := db.storage.Write(block); err != nil {
		return UTXOSet{}, fmt.Errorf("writing blk[%d]: %w", block.Index, err)
	}

	db.chain = append(db.chain, block.Clone())
	db.utxos = utxos

	return utxos, nil
}

// Replace swaps the chain for the specified chain. The chain must already
// be validated and utxos must be the result of replaying it. When storage
// fails the previous chain is written back and the database is unchanged.
func (db *Database) Replace(chain []Block, utxos UTXOSet) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.store(chain); err != nil {
		if rerr := db.store(db.chain); rerr != nil {
			return fmt.Errorf("restoring blk[%d]: %w: %w", db.chain[len(db.chain)-1].Index, rerr, err)
		}
		return err
	}

	cpy := make([]Block, len(chain))
	for i, block := range chain {
		cpy[i] = block.Clone()
	}

	db.chain = cpy
	db.utxos = utxos

	return nil
}

// store replaces the contents of storage with the chain.
func (db *Database) store(chain []Block) error {
	if err := db.storage.Reset(); err != nil {
		return fmt.Errorf("resetting storage: %w", err)
	}

	for _, block := range chain[1:] {
		if err := db.storage.Write(block); err != nil {
			return fmt.Errorf("writing blk[%d]: %w", block.Index, err)
		}
	}

	return nil
}

// validateNext checks the block can be placed on top of the tip and returns
// the set of unspent outputs after the block. The caller must hold the lock.
func (db *Database) validateNext(block Block) (UTXOSet, error) {
	tip := db.chain[len(db.chain)-1]

	if err := block.ValidateBlock(tip, NextDifficulty(db.chain, db.genesis), db.evHandler); err != nil {
		return UTXOSet{}, err
	}

	if err := ValidateBlockTransactions(block.Transactions, db.utxos, block.Index, db.genesis.CoinbaseAmount); err != nil {
		return UTXOSet{}, err
	}

	return db.utxos.Apply(block.Transactions), nil
}
