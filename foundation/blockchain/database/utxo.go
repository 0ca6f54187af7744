package database

import (
	"strconv"
)

// Outpoint identifies a single output of a transaction.
type Outpoint struct {
	ID    string `json:"source_output_id"`
	Index uint64 `json:"source_output_index"`
}

// String implements the fmt.Stringer interface for logging.
func (op Outpoint) String() string {
	return op.ID + ":" + strconv.FormatUint(op.Index, 10)
}

// UnspentOutput represents an output that exists and is currently spendable.
type UnspentOutput struct {
	OutputID    string `json:"source_output_id"`
	OutputIndex uint64 `json:"source_output_index"`
	Address     string `json:"address"`
	Amount      uint64 `json:"amount"`
}

// Outpoint returns the output's location.
func (uo UnspentOutput) Outpoint() Outpoint {
	return Outpoint{ID: uo.OutputID, Index: uo.OutputIndex}
}

// =============================================================================

// UTXOSet is the set of currently spendable outputs. The set is immutable,
// every operation that changes the set returns a new value, so a set can be
// handed to any goroutine without copying.
type UTXOSet struct {
	outputs []UnspentOutput
	index   map[Outpoint]int
}

// NewUTXOSet constructs a set from the specified outputs. The order of the
// outputs is kept and is the order used for coin selection. Duplicate
// outpoints keep the first occurrence.
func NewUTXOSet(outputs []UnspentOutput) UTXOSet {
	set := UTXOSet{
		outputs: make([]UnspentOutput, 0, len(outputs)),
		index:   make(map[Outpoint]int, len(outputs)),
	}

	for _, uo := range outputs {
		op := uo.Outpoint()
		if _, exists := set.index[op]; exists {
			continue
		}
		set.index[op] = len(set.outputs)
		set.outputs = append(set.outputs, uo)
	}

	return set
}

// Len returns the number of unspent outputs.
func (s UTXOSet) Len() int {
	return len(s.outputs)
}

// Find locates the unspent output for the outpoint.
func (s UTXOSet) Find(op Outpoint) (UnspentOutput, bool) {
	i, exists := s.index[op]
	if !exists {
		return UnspentOutput{}, false
	}

	return s.outputs[i], true
}

// Has reports if the outpoint is unspent.
func (s UTXOSet) Has(op Outpoint) bool {
	_, exists := s.index[op]
	return exists
}

// Values returns a copy of the unspent outputs in set order.
func (s UTXOSet) Values() []UnspentOutput {
	return append([]UnspentOutput{}, s.outputs...)
}

// ForAddress returns the unspent outputs owned by the address in set order.
func (s UTXOSet) ForAddress(address string) []UnspentOutput {
	var outputs []UnspentOutput
	for _, uo := range s.outputs {
		if uo.Address == address {
			outputs = append(outputs, uo)
		}
	}

	return outputs
}

// Balance returns the sum of the unspent outputs owned by the address.
func (s UTXOSet) Balance(address string) uint64 {
	var balance uint64
	for _, uo := range s.outputs {
		if uo.Address == address {
			balance += uo.Amount
		}
	}

	return balance
}

// Without returns a new set without the specified outpoints.
func (s UTXOSet) Without(spent map[Outpoint]struct{}) UTXOSet {
	if len(spent) == 0 {
		return s
	}

	outputs := make([]UnspentOutput, 0, len(s.outputs))
	for _, uo := range s.outputs {
		if _, exists := spent[uo.Outpoint()]; !exists {
			outputs = append(outputs, uo)
		}
	}

	return NewUTXOSet(outputs)
}

// Apply returns the set that results from processing the transactions. The
// outputs consumed by the transactions are removed and the outputs created
// by the transactions are appended in transaction order. Coinbase inputs
// reference no output and remove nothing. The transactions are not validated.
func (s UTXOSet) Apply(txs []Tx) UTXOSet {
	spent := make(map[Outpoint]struct{})
	var created []UnspentOutput

	for _, tx := range txs {
		for _, in := range tx.Inputs {
			if in.OutputID == "" {
				continue
			}
			spent[in.Outpoint()] = struct{}{}
		}

		for i, out := range tx.Outputs {
			created = append(created, UnspentOutput{
				OutputID:    tx.ID,
				OutputIndex: uint64(i),
				Address:     out.Address,
				Amount:      out.Amount,
			})
		}
	}

	outputs := make([]UnspentOutput, 0, len(s.outputs)+len(created))
	for _, uo := range s.outputs {
		if _, exists := spent[uo.Outpoint()]; !exists {
			outputs = append(outputs, uo)
		}
	}
	outputs = append(outputs, created...)

	return NewUTXOSet(outputs)
}
