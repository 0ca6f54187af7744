package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/mycoin/app/services/node/handlers"
	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/mycoin/foundation/blockchain/genesis"
	"github.com/ardanlabs/mycoin/foundation/blockchain/protocol"
	"github.com/ardanlabs/mycoin/foundation/blockchain/signature"
	"github.com/ardanlabs/mycoin/foundation/blockchain/state"
	"github.com/ardanlabs/mycoin/foundation/blockchain/worker"
	"github.com/ardanlabs/mycoin/foundation/events"
	"github.com/ardanlabs/mycoin/foundation/nameservice"
	"github.com/ardanlabs/mycoin/foundation/p2p"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type node struct {
	state   *state.State
	evts    *events.Events
	public  http.Handler
	private http.Handler
	debug   http.Handler
}

func newNode(t *testing.T) node {
	t.Helper()

	pk, err := crypto.GenerateKey()
	require.NoError(t, err)

	evts := events.New()
	ev := func(v string, args ...any) {
		evts.SendMessage(fmt.Sprintf(v, args...))
	}

	st, err := state.New(state.Config{
		PrivateKey: pk,
		Host:       "localhost:9080",
		Genesis:    genesis.Default(),
		Storage:    memory.New(),
		EvHandler:  ev,
	})
	require.NoError(t, err)

	proto := protocol.New(st, nil)
	transport := p2p.New(p2p.Config{Host: "localhost:9080", Handler: proto, Tracker: st})
	worker.Run(st, proto, nil, nil)
	t.Cleanup(func() {
		transport.Shutdown()
		st.Shutdown()
	})

	ns, err := nameservice.New(t.TempDir())
	require.NoError(t, err)

	cfg := handlers.MuxConfig{
		Shutdown:  make(chan os.Signal, 1),
		Log:       zap.NewNop().Sugar(),
		State:     st,
		NS:        ns,
		Evts:      evts,
		Transport: transport,
	}

	return node{
		state:   st,
		evts:    evts,
		public:  handlers.PublicMux(cfg),
		private: handlers.PrivateMux(cfg),
		debug:   handlers.DebugMux("test", cfg.Log, st),
	}
}

func call(t *testing.T, h http.Handler, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	return w
}

func TestPublicRoutes(t *testing.T) {
	n := newNode(t)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := signature.PublicKeyToAddress(other.PublicKey)

	w := call(t, n.public, http.MethodPost, "/v1/blocks/mine", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var block database.Block
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &block))
	require.Equal(t, uint64(1), block.Index)

	w = call(t, n.public, http.MethodGet, "/v1/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var bal struct {
		Address string `json:"address"`
		Balance uint64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bal))
	require.Equal(t, n.state.RetrieveAddress(), bal.Address)
	require.Equal(t, uint64(50), bal.Balance)

	w = call(t, n.public, http.MethodPost, "/v1/tx/send", map[string]any{"address": to, "amount": 20})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(t, n.public, http.MethodGet, "/v1/tx/pool", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var pool []database.Tx
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pool))
	require.Len(t, pool, 1)

	w = call(t, n.public, http.MethodGet, "/v1/utxo/list/"+n.state.RetrieveAddress(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var utxos []database.UnspentOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &utxos))
	require.Len(t, utxos, 1)

	w = call(t, n.public, http.MethodGet, "/v1/blocks/list", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var chain []database.Block
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &chain))
	require.Len(t, chain, 2)
	require.Equal(t, database.GenesisHash, chain[0].Hash)
}

func TestPublicErrors(t *testing.T) {
	n := newNode(t)

	type table struct {
		name   string
		method string
		path   string
		body   any
		status int
	}

	tt := []table{
		{name: "badaddress", method: http.MethodPost, path: "/v1/tx/send", body: map[string]any{"address": "04ab", "amount": 1}, status: http.StatusBadRequest},
		{name: "noaddress", method: http.MethodPost, path: "/v1/tx/send", body: map[string]any{"amount": 1}, status: http.StatusBadRequest},
		{name: "unknownfield", method: http.MethodPost, path: "/v1/tx/send", body: map[string]any{"to": "04ab"}, status: http.StatusBadRequest},
		{name: "insufficient", method: http.MethodPost, path: "/v1/blocks/mine/tx", body: map[string]any{"address": n.state.RetrieveAddress(), "amount": 10}, status: http.StatusBadRequest},
		{name: "badtx", method: http.MethodPost, path: "/v1/tx/submit", body: map[string]any{"tx": map[string]any{"id": "abc"}}, status: http.StatusBadRequest},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			w := call(t, n.public, tst.method, tst.path, tst.body)
			require.Equal(t, tst.status, w.Code, w.Body.String())

			var er struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &er))
			require.NotEmpty(t, er.Error)
		})
	}
}

func TestPrivateAndDebugRoutes(t *testing.T) {
	n := newNode(t)

	w := call(t, n.private, http.MethodGet, "/v1/node/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		Height          uint64 `json:"height"`
		LatestBlockHash string `json:"latest_block_hash"`
		Host            string `json:"host"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, uint64(0), status.Height)
	require.Equal(t, database.GenesisHash, status.LatestBlockHash)
	require.Equal(t, "localhost:9080", status.Host)

	w = call(t, n.private, http.MethodPost, "/v1/node/peers/connect", map[string]any{"host": "not a host"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, n.debug, http.MethodGet, "/debug/readiness", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = call(t, n.debug, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "mycoin_chain_height 0")
}

func TestEventsFeed(t *testing.T) {
	n := newNode(t)

	srv := httptest.NewServer(n.public)
	defer srv.Close()

	url := "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/v1/events?kinds=" + events.KindTx
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer ws.Close()

	require.Eventually(t, func() bool { return n.evts.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	// The mined block is not a tx event so the viewer doesn't see it.
	w := call(t, n.public, http.MethodPost, "/v1/blocks/mine", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	w = call(t, n.public, http.MethodPost, "/v1/tx/send", map[string]any{"address": signature.PublicKeyToAddress(other.PublicKey), "amount": 20})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var tx database.Tx
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var evt struct {
		Kind string      `json:"kind"`
		Data database.Tx `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&evt))
	require.Equal(t, events.KindTx, evt.Kind)
	require.Equal(t, tx.ID, evt.Data.ID)
}
