package worker

import (
	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
)

// maxBlockShareRequests represents the max number of pending block share
// requests that can be outstanding before share requests are dropped.
const maxBlockShareRequests = 100

// shareOperations handles sharing new blocks and the mempool with peers.
func (w *Worker) shareOperations() {
	w.evHandler("worker: shareOperations: G started")
	defer w.evHandler("worker: shareOperations: G completed")

	for {
		select {
		case block := <-w.blockSharing:
			if !w.isShutdown() {
				w.runShareBlockOperation(block)
			}

		case <-w.poolSharing:
			if !w.isShutdown() {
				w.runShareMempoolOperation()
			}

		case <-w.shut:
			w.evHandler("worker: shareOperations: received shut signal")
			return
		}
	}
}

// runShareBlockOperation announces a newly accepted block to the peers.
func (w *Worker) runShareBlockOperation(block database.Block) {
	w.evHandler("worker: runShareBlockOperation: started: blk[%d]", block.Index)
	defer w.evHandler("worker: runShareBlockOperation: completed")

	if w.broadcaster == nil {
		return
	}

	w.broadcaster.BroadcastBlock(block)
}

// runShareMempoolOperation sends the current mempool to the peers.
func (w *Worker) runShareMempoolOperation() {
	w.evHandler("worker: runShareMempoolOperation: started")
	defer w.evHandler("worker: runShareMempoolOperation: completed")

	if w.broadcaster == nil {
		return
	}

	trans := w.state.RetrieveMempool()
	if len(trans) == 0 {
		return
	}

	w.broadcaster.BroadcastMempool(trans)
}
