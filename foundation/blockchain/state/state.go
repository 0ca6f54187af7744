// Package state is the core API for the blockchain and implements all the
// consensus rules and processing.
package state

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/genesis"
	"github.com/ardanlabs/mycoin/foundation/blockchain/mempool"
	"github.com/ardanlabs/mycoin/foundation/blockchain/peer"
	"github.com/ardanlabs/mycoin/foundation/blockchain/signature"
)

// Set of error variables for user facing operations.
var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrBlockRejected  = errors.New("block rejected")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of blocks and transactions.
type EventHandler func(v string, args ...any)

// MiningJob describes the block a caller wants mined. The coinbase is always
// added as the first transaction.
type MiningJob struct {
	Trans   []database.Tx // Transactions to mine after the coinbase.
	Mempool bool          // Mine the transactions in the mempool instead.
}

// MiningResult is the outcome of a mining job.
type MiningResult struct {
	Block database.Block
	Err   error
}

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, block sharing, and pool sharing.
type Worker interface {
	Shutdown()
	SignalStartMining(ctx context.Context, job MiningJob) <-chan MiningResult
	SignalCancelMining()
	SignalShareBlock(block database.Block)
	SignalShareMempool()
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	PrivateKey *ecdsa.PrivateKey
	Host       string
	Genesis    genesis.Genesis
	Storage    database.Storage
	KnownPeers *peer.PeerSet
	EvHandler  EventHandler
}

// State manages the blockchain database and the mempool. Every operation
// that changes the chain or the mempool is serialized by the state mutex.
type State struct {
	privateKey *ecdsa.PrivateKey
	address    string
	host       string
	evHandler  EventHandler
	mu         sync.Mutex

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	db         *database.Database

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.PrivateKey == nil {
		return nil, errors.New("private key is required")
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	// Access the storage for the blockchain and replay the stored blocks.
	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	state := State{
		privateKey: cfg.PrivateKey,
		address:    signature.PublicKeyToAddress(cfg.PrivateKey.PublicKey),
		host:       cfg.Host,
		evHandler:  ev,

		knownPeers: knownPeers,
		genesis:    cfg.Genesis,
		mempool:    mempool.New(),
		db:         db,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()

	// Make sure the database is properly closed.
	return s.db.Close()
}
