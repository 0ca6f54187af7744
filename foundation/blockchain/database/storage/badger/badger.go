// Package badger implements the ability to read and write blocks to a
// badger key/value store keyed by block index.
package badger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/dgraph-io/badger/v3"
)

// blockPrefix namespaces the block keys in the store.
var blockPrefix = []byte("blk:")

// Badger represents the storage implementation for reading and storing
// blocks in a badger store. This implements the database.Storage interface.
type Badger struct {
	store *badger.DB
}

// New opens the badger store in the specified directory. An empty directory
// opens an in memory store.
func New(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithLoggingLevel(badger.ERROR)

	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	s, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}

	return &Badger{store: s}, nil
}

// Close closes the badger store.
func (b *Badger) Close() error {
	return b.store.Close()
}

// Write takes the specified block and stores it under its index.
func (b *Badger) Write(block database.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}

	if err := b.store.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(block.Index), data)
	}); err != nil {
		return fmt.Errorf("failed to set blk[%d]: %w", block.Index, err)
	}

	return nil
}

// GetBlock locates and returns the contents of the specified block by index.
func (b *Badger) GetBlock(index uint64) (database.Block, error) {
	var data []byte
	err := b.store.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(index))
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return database.Block{}, err
	}

	var block database.Block
	if err := json.Unmarshal(data, &block); err != nil {
		return database.Block{}, fmt.Errorf("decoding blk[%d]: %w", index, err)
	}

	return block, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block 1.
func (b *Badger) ForEach() database.Iterator {
	return &badgerIterator{storage: b}
}

// Reset will clear out the blockchain in the store.
func (b *Badger) Reset() error {
	return b.store.DropPrefix(blockPrefix)
}

// blockKey forms the key for the specified block. Big endian keeps the keys
// sorted by index.
func blockKey(index uint64) []byte {
	key := make([]byte, len(blockPrefix)+8)
	copy(key, blockPrefix)
	binary.BigEndian.PutUint64(key[len(blockPrefix):], index)

	return key
}

// =============================================================================

// badgerIterator represents the iteration implementation for walking
// through and reading blocks in the store. This implements the database
// Iterator interface.
type badgerIterator struct {
	storage *Badger // Access to the badger storage API.
	current uint64  // Current block index being iterated over.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from the store.
func (bi *badgerIterator) Next() (database.Block, error) {
	if bi.eoc {
		return database.Block{}, errors.New("end of chain")
	}

	bi.current++
	block, err := bi.storage.GetBlock(bi.current)
	if errors.Is(err, badger.ErrKeyNotFound) {
		bi.eoc = true
	}

	return block, err
}

// Done returns the end of chain value.
func (bi *badgerIterator) Done() bool {
	return bi.eoc
}
