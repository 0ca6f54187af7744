package state

import (
	"fmt"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/signature"
	"github.com/ardanlabs/mycoin/foundation/blockchain/wallet"
	"github.com/ardanlabs/mycoin/foundation/events"
)

// SendTransaction builds and signs a transaction paying the amount to the
// address from the node's wallet and adds it to the mempool. Outputs already
// spent by the mempool are not selected. The mempool is then shared with
// the network.
func (s *State) SendTransaction(address string, amount uint64) (database.Tx, error) {
	if err := validateRequest(address, amount); err != nil {
		return database.Tx{}, err
	}

	tx, err := s.addWalletTransaction(address, amount)
	if err != nil {
		return database.Tx{}, err
	}

	s.evHandler("state: SendTransaction: tx[%s]: to[%.16s]: amount[%d]", tx, address, amount)
	s.viewerEvent(events.KindTx, tx)
	s.Worker.SignalShareMempool()

	return tx, nil
}

// SubmitTransaction adds a transaction signed elsewhere to the mempool and
// shares the mempool with the network.
func (s *State) SubmitTransaction(tx database.Tx) error {
	s.mu.Lock()
	err := s.mempool.Add(tx, s.db.UTXOs())
	s.mu.Unlock()

	if err != nil {
		s.evHandler("state: SubmitTransaction: REJECTED: tx[%s]: %s", tx, err)
		return err
	}

	s.evHandler("state: SubmitTransaction: tx[%s] added", tx)
	s.viewerEvent(events.KindTx, tx)
	s.Worker.SignalShareMempool()

	return nil
}

// UpsertMempool adds the transactions received from a peer to the mempool.
// A transaction that fails is dropped without stopping the rest. If any
// transaction was added, the mempool is shared with the network. The number
// of transactions added is returned.
func (s *State) UpsertMempool(trans []database.Tx) int {
	var added int

	for _, tx := range trans {
		s.mu.Lock()
		err := s.mempool.Add(tx, s.db.UTXOs())
		s.mu.Unlock()

		if err != nil {
			s.evHandler("state: UpsertMempool: DROPPED: tx[%s]: %s", tx, err)
			continue
		}

		s.evHandler("state: UpsertMempool: tx[%s] added", tx)
		s.viewerEvent(events.KindTx, tx)
		added++
	}

	if added > 0 {
		s.Worker.SignalShareMempool()
	}

	return added
}

// =============================================================================

// addWalletTransaction builds a signed transaction from the node's wallet
// and adds it to the mempool.
func (s *State) addWalletTransaction(address string, amount uint64) (database.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	utxos := s.db.UTXOs()

	tx, err := wallet.CreateTransaction(address, amount, s.privateKey, s.mempool.EffectiveUTXOs(utxos))
	if err != nil {
		return database.Tx{}, err
	}

	if err := s.mempool.Add(tx, utxos); err != nil {
		return database.Tx{}, err
	}

	return tx, nil
}

// createTransaction builds a signed transaction from the node's wallet
// without adding it to the mempool.
func (s *State) createTransaction(address string, amount uint64) (database.Tx, error) {
	if err := validateRequest(address, amount); err != nil {
		return database.Tx{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	utxos := s.mempool.EffectiveUTXOs(s.db.UTXOs())

	return wallet.CreateTransaction(address, amount, s.privateKey, utxos)
}

// validateRequest checks the address and amount of a payment.
func validateRequest(address string, amount uint64) error {
	if !signature.IsValidAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	if amount == 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}

	return nil
}
