// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"net/http"

	v1 "github.com/ardanlabs/mycoin/business/web/v1"
	"github.com/ardanlabs/mycoin/foundation/blockchain/peer"
	"github.com/ardanlabs/mycoin/foundation/blockchain/state"
	"github.com/ardanlabs/mycoin/foundation/p2p"
	"github.com/ardanlabs/mycoin/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log       *zap.SugaredLogger
	State     *state.State
	Transport *p2p.Transport
}

type status struct {
	state.Status
	Host        string            `json:"host"`
	Connections int               `json:"connections"`
	KnownPeers  []peer.PeerStatus `json:"known_peers"`
}

type connect struct {
	Host string `json:"host" validate:"required,hostname_port"`
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := status{
		Status:      h.State.QueryStatus(),
		Host:        h.State.RetrieveHost(),
		Connections: h.Transport.Connections(),
		KnownPeers:  h.State.RetrievePeerStatus(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Peers returns the known peers and their connection status.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrievePeerStatus(), http.StatusOK)
}

// Connect adds a peer to the known peers and opens a connection to it.
func (h Handlers) Connect(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req connect
	if err := web.Decode(r, &req); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	p := peer.New(req.Host)
	h.State.AddKnownPeer(p)

	h.Log.Infow("connect peer", "traceid", v.TraceID, "host", p.Host)

	if err := h.Transport.Dial(ctx, p.Host); err != nil {
		return v1.NewRequestError(err, http.StatusBadGateway)
	}

	return web.Respond(ctx, w, h.State.RetrievePeerStatus(), http.StatusOK)
}

// P2P accepts a websocket connection from a peer node.
func (h Handlers) P2P(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.Transport.Accept(w, r); err != nil {
		h.Log.Infow("p2p", "traceid", web.GetTraceID(ctx), "status", "upgrade failed", "ERROR", err)
	}

	return nil
}
