// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	v1 "github.com/ardanlabs/mycoin/business/web/v1"
	"github.com/ardanlabs/mycoin/foundation/blockchain/mempool"
	"github.com/ardanlabs/mycoin/foundation/blockchain/state"
	"github.com/ardanlabs/mycoin/foundation/blockchain/wallet"
	"github.com/ardanlabs/mycoin/foundation/blockchain/worker"
	"github.com/ardanlabs/mycoin/foundation/events"
	"github.com/ardanlabs/mycoin/foundation/nameservice"
	"github.com/ardanlabs/mycoin/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of wallet facing endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide node events to a viewer. The kinds
// query parameter, a comma separated list, limits the events sent.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	var kinds []string
	if q := r.URL.Query().Get("kinds"); q != "" {
		kinds = strings.Split(q, ",")
	}

	ch := h.Evts.Acquire(v.TraceID, kinds...)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteJSON(evt); err != nil {
				h.Log.Infow("events", "traceid", v.TraceID, "status", "client gone", "ERROR", err)
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the chain parameters.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveGenesis(), http.StatusOK)
}

// Address returns the address of the node's wallet.
func (h Handlers) Address(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr := h.State.RetrieveAddress()

	resp := address{
		Address: addr,
		Name:    h.NS.Lookup(addr),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Balance returns the balance of the specified address or the node's wallet.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr := web.Param(r, "address")
	if addr == "" {
		addr = h.State.RetrieveAddress()
	}

	resp := balance{
		Address: addr,
		Name:    h.NS.Lookup(addr),
		Balance: h.State.QueryBalance(addr),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// UTXOs returns the unspent outputs of the specified address or all of them.
func (h Handlers) UTXOs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	utxos := h.State.QueryUTXOs(web.Param(r, "address"))
	return web.Respond(ctx, w, utxos, http.StatusOK)
}

// Blocks returns the entire chain.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveChain(), http.StatusOK)
}

// MineBlock mines a block holding the transactions in the mempool.
func (h Handlers) MineBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.GenerateNextBlock(ctx)
	if err != nil {
		return miningError(err)
	}

	return web.Respond(ctx, w, block, http.StatusCreated)
}

// MineTransaction mines a block holding a payment from the node's wallet.
func (h Handlers) MineTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var pay payment
	if err := web.Decode(r, &pay); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	block, err := h.State.GenerateNextBlockWithTransaction(ctx, pay.Address, pay.Amount)
	if err != nil {
		return miningError(err)
	}

	return web.Respond(ctx, w, block, http.StatusCreated)
}

// Mempool returns the set of transactions waiting to be mined.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveMempool(), http.StatusOK)
}

// SendTransaction pays an address from the node's wallet through the mempool.
func (h Handlers) SendTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var pay payment
	if err := web.Decode(r, &pay); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	h.Log.Infow("send tran", "traceid", v.TraceID, "to", pay.Address, "amount", pay.Amount)

	tx, err := h.State.SendTransaction(pay.Address, pay.Amount)
	if err != nil {
		return requestError(err)
	}

	return web.Respond(ctx, w, tx, http.StatusCreated)
}

// SubmitTransaction adds a transaction signed by a wallet to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var sub submitTx
	if err := web.Decode(r, &sub); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "tx", sub.Tx)

	if err := h.State.SubmitTransaction(sub.Tx); err != nil {
		return requestError(err)
	}

	return web.Respond(ctx, w, sub.Tx, http.StatusCreated)
}

// =============================================================================

// requestError maps the errors a client can cause to a bad request.
func requestError(err error) error {
	switch {
	case errors.Is(err, state.ErrInvalidAddress),
		errors.Is(err, state.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, mempool.ErrInvalidTransaction),
		errors.Is(err, mempool.ErrConflictingTransaction):
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	return err
}

// miningError maps mining failures to a response. A mining job that lost
// the race to a peer's block is a conflict.
func miningError(err error) error {
	switch {
	case errors.Is(err, worker.ErrMiningCancelled),
		errors.Is(err, state.ErrBlockRejected):
		return v1.NewRequestError(err, http.StatusConflict)
	}

	return requestError(err)
}
