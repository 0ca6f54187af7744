// Package mempool maintains the pool of transactions waiting to be mined.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
)

// Set of error variables for adding transactions to the pool.
var (
	ErrInvalidTransaction     = errors.New("invalid transaction")
	ErrConflictingTransaction = errors.New("transaction spends an output already spent in the pool")
)

// Mempool represents a cache of individually valid transactions kept in the
// order they were added, with a second index on the outputs they spend.
type Mempool struct {
	mu    sync.RWMutex
	pool  []database.Tx
	spent map[database.Outpoint]string
}

// New constructs a new, empty mempool.
func New() *Mempool {
	return &Mempool{
		spent: make(map[database.Outpoint]string),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Add validates the transaction against the set of unspent outputs and the
// outputs already spent by the pool before adding it.
func (mp *Mempool) Add(tx database.Tx, utxos database.UTXOSet) error {
	if err := tx.IsWellFormed(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
	}

	if err := tx.Validate(utxos); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, in := range tx.Inputs {
		if id, exists := mp.spent[in.Outpoint()]; exists {
			return fmt.Errorf("%w: output %s spent by tx[%.16s]", ErrConflictingTransaction, in.Outpoint(), id)
		}
	}

	for _, in := range tx.Inputs {
		mp.spent[in.Outpoint()] = tx.ID
	}
	mp.pool = append(mp.pool, tx.Clone())

	return nil
}

// Reconcile removes every transaction that spends an output which is no
// longer in the set of unspent outputs. The removed transactions are
// returned.
func (mp *Mempool) Reconcile(utxos database.UTXOSet) []database.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var removed []database.Tx
	kept := make([]database.Tx, 0, len(mp.pool))

	for _, tx := range mp.pool {
		valid := true
		for _, in := range tx.Inputs {
			if !utxos.Has(in.Outpoint()) {
				valid = false
				break
			}
		}

		if !valid {
			removed = append(removed, tx)
			for _, in := range tx.Inputs {
				delete(mp.spent, in.Outpoint())
			}
			continue
		}

		kept = append(kept, tx)
	}

	mp.pool = kept

	return removed
}

// EffectiveUTXOs returns the specified set without the outputs already spent
// by transactions in the pool.
func (mp *Mempool) EffectiveUTXOs(utxos database.UTXOSet) database.UTXOSet {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	spent := make(map[database.Outpoint]struct{}, len(mp.spent))
	for op := range mp.spent {
		spent[op] = struct{}{}
	}

	return utxos.Without(spent)
}

// Snapshot returns a copy of the transactions in the pool in the order they
// were added.
func (mp *Mempool) Snapshot() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	trans := make([]database.Tx, len(mp.pool))
	for i, tx := range mp.pool {
		trans[i] = tx.Clone()
	}

	return trans
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = nil
	mp.spent = make(map[database.Outpoint]string)
}
