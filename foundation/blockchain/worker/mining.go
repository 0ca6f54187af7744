package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/mycoin/foundation/blockchain/state"
)

// miningRequest is a mining job waiting for the mining G.
type miningRequest struct {
	ctx    context.Context
	job    state.MiningJob
	result chan state.MiningResult
}

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case req := <-w.startMining:
			if w.isShutdown() {
				req.result <- state.MiningResult{Err: ErrMiningCancelled}
				continue
			}
			w.runMiningOperation(req)

		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation mines the requested block and delivers the result. The
// operation is cancelled when the requester's context ends, when a block from
// a peer is accepted, or when the node shuts down.
func (w *Worker) runMiningOperation(req miningRequest) {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	// Create a context so mining can be cancelled.
	ctx, cancel := context.WithCancel(req.ctx)
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the mining operation.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		case <-w.shut:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: shutdown")
		case <-ctx.Done():
		}
	}()

	// This G is performing the mining.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		block, err := w.state.MineNewBlock(ctx, req.job)
		duration := time.Since(t)

		w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

		if err != nil {
			switch {
			case req.ctx.Err() != nil:
				w.evHandler("worker: runMiningOperation: MINING: CANCEL: requester gone")
				err = req.ctx.Err()
			case ctx.Err() != nil:
				w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
				err = ErrMiningCancelled
			default:
				w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
			}

			req.result <- state.MiningResult{Err: err}
			return
		}

		req.result <- state.MiningResult{Block: block}
	}()

	// Wait for both G's to terminate.
	wg.Wait()
}
