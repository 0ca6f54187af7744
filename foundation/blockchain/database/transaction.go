package database

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ardanlabs/mycoin/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Set of error variables for transaction signing.
var (
	ErrReferenceNotFound = errors.New("referenced output not found")
	ErrKeyMismatch       = errors.New("private key does not match the referenced output address")
)

// =============================================================================

// TxIn references a previously created output that is being spent, plus a
// signature over the owning transaction's id.
type TxIn struct {
	OutputID    string        `json:"source_output_id" validate:"omitempty,len=64,hexadecimal,lowercase"` // Bitcoin: Id of the transaction holding the output.
	OutputIndex uint64        `json:"source_output_index"`                                                // Bitcoin: Index of the output in that transaction.
	Signature   hexutil.Bytes `json:"signature"`                                                          // Bitcoin: Empty until the input is signed.
}

// Outpoint returns the output this input spends.
func (in TxIn) Outpoint() Outpoint {
	return Outpoint{ID: in.OutputID, Index: in.OutputIndex}
}

// TxOut is an amount payable to an address.
type TxOut struct {
	Address string `json:"address" validate:"required,len=130,startswith=04,hexadecimal,lowercase"` // Uncompressed public key of the receiver.
	Amount  uint64 `json:"amount"`                                                                  // Value paid to the address.
}

// =============================================================================

// Tx represents a transaction moving value from spent outputs into new outputs.
// A Tx is never modified once constructed. Use the With methods to
// derive a changed copy.
type Tx struct {
	ID      string  `json:"id" validate:"required,len=64,hexadecimal,lowercase"`
	Inputs  []TxIn  `json:"inputs" validate:"min=1,dive"`
	Outputs []TxOut `json:"outputs" validate:"min=1,dive"`
}

// NewTx constructs a transaction and computes its id.
func NewTx(inputs []TxIn, outputs []TxOut) Tx {
	tx := Tx{
		Inputs:  append([]TxIn(nil), inputs...),
		Outputs: append([]TxOut(nil), outputs...),
	}
	tx.ID = tx.CalculateID()

	return tx
}

// NewCoinbaseTx constructs the transaction that rewards the miner of the block
// at the specified height. The input index carries the block height so
// every coinbase transaction has a unique id.
func NewCoinbaseTx(address string, height uint64, amount uint64) Tx {
	return NewTx(
		[]TxIn{{OutputID: "", OutputIndex: height}},
		[]TxOut{{Address: address, Amount: amount}},
	)
}

// CalculateID produces the deterministic id for the transaction based on the
// referenced outputs and the new outputs. Signatures are not part of the id.
func (tx Tx) CalculateID() string {
	var b strings.Builder

	for _, in := range tx.Inputs {
		b.WriteString(in.OutputID)
		b.WriteString(strconv.FormatUint(in.OutputIndex, 10))
	}

	for _, out := range tx.Outputs {
		b.WriteString(out.Address)
		b.WriteString(strconv.FormatUint(out.Amount, 10))
	}

	return signature.Hash(b.String())
}

// IsWellFormed checks field presence and formats. This is a cheap check that
// must pass before any signature is verified.
func (tx Tx) IsWellFormed() error {
	if err := validate.Struct(tx); err != nil {
		return fmt.Errorf("transaction is not well formed: %w", err)
	}

	return nil
}

// Validate checks the transaction against the set of unspent outputs. The id
// must match the content, every input must reference an unspent output and
// carry a valid signature from that output's owner, no output may be spent
// twice, and the sum of the inputs must equal the sum of the outputs.
func (tx Tx) Validate(utxos UTXOSet) error {
	if id := tx.CalculateID(); id != tx.ID {
		return fmt.Errorf("invalid transaction id, got %s, exp %s", tx.ID, id)
	}

	var totalIn uint64
	seen := make(map[Outpoint]struct{}, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if _, exists := seen[in.Outpoint()]; exists {
			return fmt.Errorf("tx[%s]: input[%d]: output %s is spent twice", tx, i, in.Outpoint())
		}
		seen[in.Outpoint()] = struct{}{}

		uo, exists := utxos.Find(in.Outpoint())
		if !exists {
			return fmt.Errorf("tx[%s]: input[%d]: %w: %s", tx, i, ErrReferenceNotFound, in.Outpoint())
		}

		if !signature.Verify(tx.ID, in.Signature, uo.Address) {
			return fmt.Errorf("tx[%s]: input[%d]: invalid signature", tx, i)
		}

		sum, ok := add(totalIn, uo.Amount)
		if !ok {
			return fmt.Errorf("tx[%s]: input amounts overflow", tx)
		}
		totalIn = sum
	}

	totalOut, err := tx.TotalOut()
	if err != nil {
		return err
	}

	if totalIn != totalOut {
		return fmt.Errorf("tx[%s]: inputs and outputs don't balance, in %d, out %d", tx, totalIn, totalOut)
	}

	return nil
}

// ValidateCoinbase checks the transaction is a proper coinbase transaction for
// the block at the specified height.
func (tx Tx) ValidateCoinbase(height uint64, amount uint64) error {
	if id := tx.CalculateID(); id != tx.ID {
		return fmt.Errorf("invalid coinbase transaction id, got %s, exp %s", tx.ID, id)
	}

	if len(tx.Inputs) != 1 {
		return fmt.Errorf("coinbase must have one input, got %d", len(tx.Inputs))
	}

	if tx.Inputs[0].OutputID != "" {
		return fmt.Errorf("coinbase input can't reference an output, got %s", tx.Inputs[0].OutputID)
	}

	if len(tx.Inputs[0].Signature) != 0 {
		return errors.New("coinbase input can't carry a signature")
	}

	if tx.Inputs[0].OutputIndex != height {
		return fmt.Errorf("coinbase input index must be the block height, got %d, exp %d", tx.Inputs[0].OutputIndex, height)
	}

	if len(tx.Outputs) != 1 {
		return fmt.Errorf("coinbase must have one output, got %d", len(tx.Outputs))
	}

	if tx.Outputs[0].Amount != amount {
		return fmt.Errorf("invalid coinbase amount, got %d, exp %d", tx.Outputs[0].Amount, amount)
	}

	return nil
}

// Sign produces the signature for the input at the specified index. The
// private key must belong to the address of the referenced output.
func (tx Tx) Sign(index int, privateKey *ecdsa.PrivateKey, utxos UTXOSet) (hexutil.Bytes, error) {
	if index < 0 || index >= len(tx.Inputs) {
		return nil, fmt.Errorf("input index %d out of range", index)
	}

	in := tx.Inputs[index]

	uo, exists := utxos.Find(in.Outpoint())
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrReferenceNotFound, in.Outpoint())
	}

	if signature.PublicKeyToAddress(privateKey.PublicKey) != uo.Address {
		return nil, ErrKeyMismatch
	}

	return signature.Sign(tx.ID, privateKey)
}

// WithSignature returns a copy of the transaction where the input at the
// specified index carries the signature.
func (tx Tx) WithSignature(index int, sig hexutil.Bytes) Tx {
	cpy := tx.Clone()
	cpy.Inputs[index].Signature = append(hexutil.Bytes(nil), sig...)

	return cpy
}

// TotalOut returns the sum of all the output amounts.
func (tx Tx) TotalOut() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		sum, ok := add(total, out.Amount)
		if !ok {
			return 0, fmt.Errorf("tx[%s]: output amounts overflow", tx)
		}
		total = sum
	}

	return total, nil
}

// Clone returns a deep copy of the transaction.
func (tx Tx) Clone() Tx {
	cpy := Tx{
		ID:      tx.ID,
		Inputs:  make([]TxIn, len(tx.Inputs)),
		Outputs: append([]TxOut(nil), tx.Outputs...),
	}

	for i, in := range tx.Inputs {
		cpy.Inputs[i] = TxIn{
			OutputID:    in.OutputID,
			OutputIndex: in.OutputIndex,
			Signature:   append(hexutil.Bytes(nil), in.Signature...),
		}
	}

	return cpy
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	if len(tx.ID) < 16 {
		return tx.ID
	}

	return tx.ID[:16]
}

// =============================================================================

// add returns the sum of a and b and false if the sum overflows.
func add(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}
