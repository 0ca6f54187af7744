// Package handlers manages the different versions of the API.
package handlers

import (
	"context"
	"expvar"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/ardanlabs/mycoin/app/services/node/handlers/debug/checkgrp"
	"github.com/ardanlabs/mycoin/app/services/node/handlers/private"
	"github.com/ardanlabs/mycoin/app/services/node/handlers/public"
	"github.com/ardanlabs/mycoin/business/web/v1/mid"
	"github.com/ardanlabs/mycoin/foundation/blockchain/state"
	"github.com/ardanlabs/mycoin/foundation/events"
	"github.com/ardanlabs/mycoin/foundation/nameservice"
	"github.com/ardanlabs/mycoin/foundation/p2p"
	"github.com/ardanlabs/mycoin/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Shutdown  chan os.Signal
	Log       *zap.SugaredLogger
	State     *state.State
	NS        *nameservice.NameService
	Evts      *events.Events
	Transport *p2p.Transport
}

// PublicMux constructs a http.Handler with all application routes defined.
func PublicMux(cfg MuxConfig) http.Handler {

	// Construct the web.App which holds all routes as well as common Middleware.
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Metrics(),
		mid.Cors("*"),
		mid.Panics(),
	)

	// Accept CORS 'OPTIONS' preflight requests.
	h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return nil
	}
	app.Handle(http.MethodOptions, "", "/*", h, mid.Cors("*"))

	public.Routes(app, public.Config{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	})

	return app
}

// PrivateMux constructs a http.Handler with all application routes defined.
func PrivateMux(cfg MuxConfig) http.Handler {

	// Construct the web.App which holds all routes as well as common Middleware.
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Metrics(),
		mid.Panics(),
	)

	private.Routes(app, private.Config{
		Log:       cfg.Log,
		State:     cfg.State,
		Transport: cfg.Transport,
	})

	return app
}

// DebugStandardLibraryMux registers all the debug routes from the standard library
// into a new mux bypassing the use of the DefaultServerMux. Using the
// DefaultServerMux would be a security risk since a dependency could inject a
// handler into our service without us knowing it.
func DebugStandardLibraryMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Register all the standard library debug endpoints.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	return mux
}

// DebugMux registers all the debug standard library routes and then custom
// debug application routes for the service. This bypassing the use of the
// DefaultServerMux. Using the DefaultServerMux would be a security risk since
// a dependency could inject a handler into our service without us knowing it.
func DebugMux(build string, log *zap.SugaredLogger, st *state.State) http.Handler {
	mux := DebugStandardLibraryMux()

	// Register debug check endpoints.
	cgh := checkgrp.Handlers{
		Build: build,
		Log:   log,
		State: st,
	}
	mux.HandleFunc("/debug/readiness", cgh.Readiness)
	mux.HandleFunc("/debug/liveness", cgh.Liveness)

	// The chain gauges live in their own registry next to the process and
	// request metrics of the default one.
	reg := prometheus.NewRegistry()
	reg.MustRegister(chainCollectors(st)...)

	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, reg}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))

	return mux
}

// chainCollectors reports the node's view of the chain at scrape time.
func chainCollectors(st *state.State) []prometheus.Collector {
	gauge := func(name string, help string, f func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, f)
	}

	return []prometheus.Collector{
		gauge("mycoin_chain_height", "Index of the latest block.", func() float64 {
			return float64(st.RetrieveLatestBlock().Index)
		}),
		gauge("mycoin_mempool_transactions", "Number of transactions in the mempool.", func() float64 {
			return float64(st.QueryMempoolLength())
		}),
		gauge("mycoin_utxo_count", "Number of unspent outputs.", func() float64 {
			return float64(st.RetrieveUTXOs().Len())
		}),
		gauge("mycoin_next_difficulty", "Difficulty required of the next block.", func() float64 {
			return float64(st.QueryStatus().NextDifficulty)
		}),
		gauge("mycoin_connected_peers", "Number of known peers with a connection.", func() float64 {
			var n int
			for _, ps := range st.RetrievePeerStatus() {
				if ps.Connected {
					n++
				}
			}
			return float64(n)
		}),
	}
}
