package protocol_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/mycoin/foundation/blockchain/genesis"
	"github.com/ardanlabs/mycoin/foundation/blockchain/protocol"
	"github.com/ardanlabs/mycoin/foundation/blockchain/signature"
	"github.com/ardanlabs/mycoin/foundation/blockchain/state"
	"github.com/ardanlabs/mycoin/foundation/blockchain/worker"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	keyA = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	keyB = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
)

func Test_Codec(t *testing.T) {
	t.Log("Given the need to encode and decode peer messages.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling a message without data.", testID)
		{
			raw, err := protocol.Encode(protocol.GetLatestBlock, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to encode the message: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to encode the message.", success, testID)

			if string(raw) != `{"type":0,"data":""}` {
				t.Fatalf("\t%s\tTest %d:\tShould get the expected wire form: %s", failed, testID, raw)
			}
			t.Logf("\t%s\tTest %d:\tShould get the expected wire form.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen handling a chain message.", testID)
		{
			raw, err := protocol.Encode(protocol.ReceiveChain, []database.Block{database.Genesis()})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to encode the message: %v", failed, testID, err)
			}

			msg, err := protocol.Decode(raw)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to decode the message: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to decode the message.", success, testID)

			if msg.Type != protocol.ReceiveChain {
				t.Fatalf("\t%s\tTest %d:\tShould get back the message type: %s", failed, testID, msg.Type)
			}
			t.Logf("\t%s\tTest %d:\tShould get back the message type.", success, testID)

			chain, err := protocol.DecodeChain(msg.Data)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to decode the chain: %v", failed, testID, err)
			}

			if len(chain) != 1 || chain[0].Hash != database.GenesisHash {
				t.Fatalf("\t%s\tTest %d:\tShould get back the genesis block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould get back the genesis block.", success, testID)
		}
	}
}

func Test_DecodeErrors(t *testing.T) {
	type table struct {
		name string
		raw  string
		err  error
	}

	tt := []table{
		{name: "garbage", raw: "not json"},
		{name: "unknown", raw: `{"type":9,"data":""}`, err: protocol.ErrUnknownMessage},
		{name: "negative", raw: `{"type":-1,"data":""}`, err: protocol.ErrUnknownMessage},
	}

	t.Log("Given the need to reject malformed messages.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling a %s message.", testID, tst.name)
				{
					_, err := protocol.Decode([]byte(tst.raw))
					if err == nil {
						t.Fatalf("\t%s\tTest %d:\tShould get an error.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get an error.", success, testID)

					if tst.err != nil {
						require.ErrorIs(t, err, tst.err)
					}
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_DecodePayloads(t *testing.T) {
	_, err := protocol.DecodeChain(`[{"index":1,"hash":"abc"}]`)
	require.Error(t, err)

	_, err = protocol.DecodeChain(`{}`)
	require.Error(t, err)

	pk, err := crypto.HexToECDSA(keyA)
	require.NoError(t, err)

	tx := database.NewCoinbaseTx(signature.PublicKeyToAddress(pk.PublicKey), 1, 50)
	good, err := json.Marshal(tx)
	require.NoError(t, err)

	data := "[" + string(good) + `,{"id":"xyz"},7]`
	trans, dropped, err := protocol.DecodePool(data)
	require.NoError(t, err)
	require.Len(t, trans, 1)
	require.Len(t, dropped, 2)
	require.Equal(t, tx.ID, trans[0].ID)

	_, _, err = protocol.DecodePool(`"pool"`)
	require.Error(t, err)
}

// =============================================================================

type node struct {
	state    *state.State
	protocol *protocol.Protocol
}

func newNode(t *testing.T, hexKey string) node {
	t.Helper()

	pk, err := crypto.HexToECDSA(hexKey)
	require.NoError(t, err)

	st, err := state.New(state.Config{
		PrivateKey: pk,
		Genesis:    genesis.Default(),
		Storage:    memory.New(),
	})
	require.NoError(t, err)

	p := protocol.New(st, nil)
	worker.Run(st, p, nil, nil)
	t.Cleanup(func() { st.Shutdown() })

	return node{state: st, protocol: p}
}

// connect links two nodes with a pair of in-memory pipes. Messages over each
// pipe are delivered in order by a single goroutine.
func connect(t *testing.T, a, b node, idA, idB string) {
	t.Helper()

	toA := make(chan []byte, 1000)
	toB := make(chan []byte, 1000)
	done := make(chan struct{})

	a.protocol.OnPeerConnected(idB, func(msg []byte) error {
		select {
		case toB <- msg:
		case <-done:
		}
		return nil
	})
	b.protocol.OnPeerConnected(idA, func(msg []byte) error {
		select {
		case toA <- msg:
		case <-done:
		}
		return nil
	})

	pipe := func(dst node, from string, ch chan []byte) {
		for {
			select {
			case msg := <-ch:
				dst.protocol.OnPeerMessage(from, msg)
			case <-done:
				return
			}
		}
	}
	go pipe(a, idB, toA)
	go pipe(b, idA, toB)

	t.Cleanup(func() {
		a.protocol.OnPeerDisconnected(idB)
		b.protocol.OnPeerDisconnected(idA)
		close(done)
	})
}

func TestSync(t *testing.T) {
	const wait = 10 * time.Second
	const tick = 10 * time.Millisecond

	ctx := context.Background()
	a := newNode(t, keyA)
	b := newNode(t, keyB)

	// Each node mines its own first block before they meet.
	a1, err := a.state.GenerateNextBlock(ctx)
	require.NoError(t, err)

	b1, err := b.state.GenerateNextBlock(ctx)
	require.NoError(t, err)
	require.NotEqual(t, a1.Hash, b1.Hash)

	connect(t, a, b, "a", "b")
	require.Equal(t, []string{"b"}, a.protocol.Peers())
	require.Equal(t, []string{"a"}, b.protocol.Peers())

	// The handshake finds both tips at the same height so nothing changes.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, a1.Hash, a.state.RetrieveLatestBlock().Hash)
	require.Equal(t, b1.Hash, b.state.RetrieveLatestBlock().Hash)

	// A pulls ahead. B can't connect the new block to its tip, asks for the
	// entire chain and switches over to the heavier chain.
	a2, err := a.state.GenerateNextBlock(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return b.state.RetrieveLatestBlock().Hash == a2.Hash
	}, wait, tick)
	require.Equal(t, uint64(0), b.state.QueryAccountBalance())
	require.Equal(t, uint64(100), b.state.QueryBalance(a.state.RetrieveAddress()))

	// A transaction created at A reaches B's pool.
	tx, err := a.state.SendTransaction(b.state.RetrieveAddress(), 30)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return b.state.QueryMempoolLength() == 1
	}, wait, tick)
	require.Equal(t, tx.ID, b.state.RetrieveMempool()[0].ID)
	require.Equal(t, 1, a.state.QueryMempoolLength())

	// B mines the pooled transaction and A adds the block to its tip.
	b3, err := b.state.GenerateNextBlock(ctx)
	require.NoError(t, err)
	require.Len(t, b3.Transactions, 2)

	require.Eventually(t, func() bool {
		return a.state.RetrieveLatestBlock().Hash == b3.Hash
	}, wait, tick)
	require.Equal(t, 0, a.state.QueryMempoolLength())
	require.Equal(t, 0, b.state.QueryMempoolLength())
	require.Equal(t, uint64(80), b.state.QueryAccountBalance())
	require.Equal(t, uint64(70), a.state.QueryAccountBalance())

	// Garbage is dropped without touching the chain.
	a.protocol.OnPeerMessage("b", []byte("garbage"))
	a.protocol.OnPeerMessage("b", []byte(`{"type":42,"data":""}`))
	a.protocol.OnPeerMessage("b", []byte(`{"type":2,"data":"[{\"index\":9}]"}`))
	a.protocol.OnPeerMessage("b", []byte(`{"type":2,"data":"[]"}`))
	require.Equal(t, b3.Hash, a.state.RetrieveLatestBlock().Hash)
}
