package worker

import (
	"context"
	"time"
)

// dialTimeout bounds a single connection attempt to a peer.
const dialTimeout = 5 * time.Second

// peerOperations handles reconnecting to known peers on a timer.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	// On startup connect to the known peers right away.
	w.runPeerOperation()

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeerOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeerOperation dials every known peer without a connection.
func (w *Worker) runPeerOperation() {
	w.evHandler("worker: runPeerOperation: started")
	defer w.evHandler("worker: runPeerOperation: completed")

	for _, peer := range w.state.RetrieveUnconnectedPeers() {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		err := w.dial(ctx, peer.Host)
		cancel()

		if err != nil {
			w.evHandler("worker: runPeerOperation: WARNING: %s: %s", peer.Host, err)
			continue
		}

		w.evHandler("worker: runPeerOperation: connected: %s", peer.Host)
	}
}
