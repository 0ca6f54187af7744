package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
)

// MessageType identifies what a peer message carries.
type MessageType int

// Set of message types understood by the protocol.
const (
	GetLatestBlock MessageType = iota
	GetEntireChain
	ReceiveChain
	GetTransactionPool
	ReceiveTransactionPool
)

// String implements the fmt.Stringer interface for logging.
func (mt MessageType) String() string {
	switch mt {
	case GetLatestBlock:
		return "GET_LATEST_BLOCK"
	case GetEntireChain:
		return "GET_ENTIRE_CHAIN"
	case ReceiveChain:
		return "RECEIVE_CHAIN"
	case GetTransactionPool:
		return "GET_TRANSACTION_POOL"
	case ReceiveTransactionPool:
		return "RECEIVE_TRANSACTION_POOL"
	}

	return fmt.Sprintf("UNKNOWN(%d)", int(mt))
}

// ErrUnknownMessage is returned when a message has a type the protocol
// doesn't understand.
var ErrUnknownMessage = errors.New("unknown message type")

// =============================================================================

// Message is what is sent between peers. Data holds the JSON encoding of the
// payload for the message type.
type Message struct {
	Type MessageType `json:"type"`
	Data string      `json:"data"`
}

// Encode builds the wire form of a message with the specified payload. A nil
// payload produces a message without data.
func Encode(mt MessageType, payload any) ([]byte, error) {
	msg := Message{Type: mt}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", mt, err)
		}
		msg.Data = string(data)
	}

	return json.Marshal(msg)
}

// Decode parses the wire form of a message and checks the type is known.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}

	if msg.Type < GetLatestBlock || msg.Type > ReceiveTransactionPool {
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownMessage, msg.Type)
	}

	return msg, nil
}

// DecodeChain parses the payload of a RECEIVE_CHAIN message. Every block
// must be well formed.
func DecodeChain(data string) ([]database.Block, error) {
	var chain []database.Block
	if err := json.Unmarshal([]byte(data), &chain); err != nil {
		return nil, fmt.Errorf("decoding chain: %w", err)
	}

	for _, block := range chain {
		if err := block.IsWellFormed(); err != nil {
			return nil, fmt.Errorf("blk[%d]: %w", block.Index, err)
		}
	}

	return chain, nil
}

// DecodePool parses the payload of a RECEIVE_TRANSACTION_POOL message. A
// transaction that can't be parsed or isn't well formed is dropped without
// rejecting the others, and reported in the returned errors.
func DecodePool(data string) ([]database.Tx, []error, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(data), &raws); err != nil {
		return nil, nil, fmt.Errorf("decoding pool: %w", err)
	}

	var trans []database.Tx
	var dropped []error

	for i, raw := range raws {
		var tx database.Tx
		if err := json.Unmarshal(raw, &tx); err != nil {
			dropped = append(dropped, fmt.Errorf("tx[%d]: %w", i, err))
			continue
		}

		if err := tx.IsWellFormed(); err != nil {
			dropped = append(dropped, fmt.Errorf("tx[%d]: %w", i, err))
			continue
		}

		trans = append(trans, tx)
	}

	return trans, dropped, nil
}
