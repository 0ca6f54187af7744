// Package wallet builds and signs transactions that spend the outputs owned
// by a private key.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/signature"
)

// ErrInsufficientFunds is returned when the owned outputs don't add up to
// the amount being sent.
var ErrInsufficientFunds = errors.New("insufficient funds")

// SelectOutputs walks the outputs in order and picks them until the amount
// is covered. The amount left over after covering the amount is returned as
// change.
func SelectOutputs(outputs []database.UnspentOutput, amount uint64) ([]database.UnspentOutput, uint64, error) {
	var selected []database.UnspentOutput
	var total uint64

	for _, uo := range outputs {
		selected = append(selected, uo)
		total += uo.Amount

		if total >= amount {
			return selected, total - amount, nil
		}
	}

	return nil, 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, amount)
}

// CreateTransaction builds a transaction paying amount to the address from
// the outputs owned by the private key, returning any change back to the
// owner, and signs every input. The set of unspent outputs should already
// exclude outputs spent by pending transactions.
func CreateTransaction(to string, amount uint64, privateKey *ecdsa.PrivateKey, utxos database.UTXOSet) (database.Tx, error) {
	owner := signature.PublicKeyToAddress(privateKey.PublicKey)

	selected, change, err := SelectOutputs(utxos.ForAddress(owner), amount)
	if err != nil {
		return database.Tx{}, err
	}

	inputs := make([]database.TxIn, len(selected))
	for i, uo := range selected {
		inputs[i] = database.TxIn{OutputID: uo.OutputID, OutputIndex: uo.OutputIndex}
	}

	outputs := []database.TxOut{{Address: to, Amount: amount}}
	if change > 0 {
		outputs = append(outputs, database.TxOut{Address: owner, Amount: change})
	}

	tx := database.NewTx(inputs, outputs)

	for i := range tx.Inputs {
		sig, err := tx.Sign(i, privateKey, utxos)
		if err != nil {
			return database.Tx{}, fmt.Errorf("signing input[%d]: %w", i, err)
		}
		tx = tx.WithSignature(i, sig)
	}

	return tx, nil
}

// Balance returns the sum of the outputs owned by the address.
func Balance(address string, utxos database.UTXOSet) uint64 {
	return utxos.Balance(address)
}
