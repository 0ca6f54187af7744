// Package worker implements mining, block and mempool sharing, and peer
// reconnection for the blockchain.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/state"
)

// ErrMiningCancelled is returned when a mining job is stopped before a
// solution is found, because another block was accepted or the node is
// shutting down.
var ErrMiningCancelled = errors.New("mining cancelled")

// peerUpdateInterval represents the interval of reconnecting to known
// peers that don't have a connection.
const peerUpdateInterval = 10 * time.Second

// =============================================================================

// Broadcaster interface represents the behavior required to push data to
// every connected peer.
type Broadcaster interface {
	BroadcastBlock(block database.Block)
	BroadcastMempool(trans []database.Tx)
}

// Dialer connects to the peer at the specified host. The connection is
// served in the background once established.
type Dialer func(ctx context.Context, host string) error

// =============================================================================

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	state        *state.State
	broadcaster  Broadcaster
	dial         Dialer
	wg           sync.WaitGroup
	ticker       *time.Ticker
	shut         chan struct{}
	startMining  chan miningRequest
	cancelMining chan struct{}
	blockSharing chan database.Block
	poolSharing  chan struct{}
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes. A nil dialer turns off peer
// reconnection.
func Run(st *state.State, broadcaster Broadcaster, dial Dialer, evHandler state.EventHandler) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	w := Worker{
		state:        st,
		broadcaster:  broadcaster,
		dial:         dial,
		ticker:       time.NewTicker(peerUpdateInterval),
		shut:         make(chan struct{}),
		startMining:  make(chan miningRequest),
		cancelMining: make(chan struct{}, 1),
		blockSharing: make(chan database.Block, maxBlockShareRequests),
		poolSharing:  make(chan struct{}, 1),
		evHandler:    ev,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.miningOperations,
		w.shareOperations,
	}

	if dial != nil {
		operations = append(operations, w.peerOperations)
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining queues a mining job for the mining goroutine. The result
// of the job is delivered on the returned channel. If the context ends before
// the job is picked up, the context error is delivered instead.
func (w *Worker) SignalStartMining(ctx context.Context, job state.MiningJob) <-chan state.MiningResult {
	result := make(chan state.MiningResult, 1)

	select {
	case w.startMining <- miningRequest{ctx: ctx, job: job, result: result}:
		w.evHandler("worker: SignalStartMining: mining signaled")

	case <-ctx.Done():
		result <- state.MiningResult{Err: ctx.Err()}

	case <-w.shut:
		result <- state.MiningResult{Err: ErrMiningCancelled}
	}

	return result
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- struct{}{}:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// SignalShareBlock signals a share block operation. If
// maxBlockShareRequests signals exist in the channel, we won't send these.
func (w *Worker) SignalShareBlock(block database.Block) {
	select {
	case w.blockSharing <- block:
		w.evHandler("worker: SignalShareBlock: share blk[%d] signaled", block.Index)
	default:
		w.evHandler("worker: SignalShareBlock: queue full, blk[%d] won't be shared", block.Index)
	}
}

// SignalShareMempool signals a share mempool operation. If there is already
// a signal pending in the channel, just return since the latest mempool will
// be shared.
func (w *Worker) SignalShareMempool() {
	select {
	case w.poolSharing <- struct{}{}:
		w.evHandler("worker: SignalShareMempool: share mempool signaled")
	default:
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
