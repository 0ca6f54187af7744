package private

import (
	"net/http"

	"github.com/ardanlabs/mycoin/foundation/blockchain/state"
	"github.com/ardanlabs/mycoin/foundation/p2p"
	"github.com/ardanlabs/mycoin/foundation/web"
	"go.uber.org/zap"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log       *zap.SugaredLogger
	State     *state.State
	Transport *p2p.Transport
}

// Routes binds all the private routes.
func Routes(app *web.App, cfg Config) {
	prv := Handlers{
		Log:       cfg.Log,
		State:     cfg.State,
		Transport: cfg.Transport,
	}

	const version = "v1"

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/peers", prv.Peers)
	app.Handle(http.MethodPost, version, "/node/peers/connect", prv.Connect)
	app.Handle(http.MethodGet, "", p2p.Path, prv.P2P)
}
