package state_test

import (
	"context"
	"testing"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/mycoin/foundation/blockchain/genesis"
	"github.com/ardanlabs/mycoin/foundation/blockchain/signature"
	"github.com/ardanlabs/mycoin/foundation/blockchain/state"
	"github.com/ardanlabs/mycoin/foundation/blockchain/wallet"
	"github.com/ardanlabs/mycoin/foundation/blockchain/worker"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const (
	minerPK = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	otherPK = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
)

// otherAddress is the address of otherPK.
var otherAddress = func() string {
	pk, err := crypto.HexToECDSA(otherPK)
	if err != nil {
		panic(err)
	}
	return signature.PublicKeyToAddress(pk.PublicKey)
}()

func newState(t *testing.T, hexKey string) *state.State {
	t.Helper()

	pk, err := crypto.HexToECDSA(hexKey)
	require.NoError(t, err)

	st, err := state.New(state.Config{
		PrivateKey: pk,
		Host:       "localhost:9080",
		Genesis:    genesis.Default(),
		Storage:    memory.New(),
	})
	require.NoError(t, err)

	worker.Run(st, nil, nil, nil)
	t.Cleanup(func() { st.Shutdown() })

	return st
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := newState(t, minerPK)
	miner := st.RetrieveAddress()

	// Start from genesis.
	require.Equal(t, uint64(0), st.RetrieveLatestBlock().Index)
	require.Equal(t, database.GenesisHash, st.RetrieveLatestBlock().Hash)

	// Mine a coinbase only block.
	b1, err := st.GenerateNextBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), b1.Index)
	require.Len(t, b1.Transactions, 1)

	utxos := st.QueryUTXOs("")
	require.Len(t, utxos, 1)
	require.Equal(t, miner, utxos[0].Address)
	require.Equal(t, uint64(50), utxos[0].Amount)

	// Send 30 to the other address.
	tx, err := st.SendTransaction(otherAddress, 30)
	require.NoError(t, err)
	require.Len(t, tx.Outputs, 2)
	require.Equal(t, database.TxOut{Address: otherAddress, Amount: 30}, tx.Outputs[0])
	require.Equal(t, database.TxOut{Address: miner, Amount: 20}, tx.Outputs[1])
	require.Equal(t, 1, st.QueryMempoolLength())

	// The only output is spent by the pool, so nothing is left to send.
	_, err = st.SendTransaction(otherAddress, 30)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	// Mine the pool.
	b2, err := st.GenerateNextBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), b2.Index)
	require.Len(t, b2.Transactions, 2)
	require.Equal(t, tx.ID, b2.Transactions[1].ID)
	require.Equal(t, 0, st.QueryMempoolLength())

	exp := []database.UnspentOutput{
		{OutputID: b2.Transactions[0].ID, OutputIndex: 0, Address: miner, Amount: 50},
		{OutputID: tx.ID, OutputIndex: 0, Address: otherAddress, Amount: 30},
		{OutputID: tx.ID, OutputIndex: 1, Address: miner, Amount: 20},
	}
	require.Equal(t, exp, st.QueryUTXOs(""))
	require.Equal(t, uint64(70), st.QueryAccountBalance())
	require.Equal(t, uint64(30), st.QueryBalance(otherAddress))

	// The second coinbase is spent by the pool, leaving only the change.
	pending, err := st.SendTransaction(otherAddress, 30)
	require.NoError(t, err)
	require.Equal(t, b2.Transactions[0].ID, pending.Inputs[0].OutputID)

	_, err = st.SendTransaction(otherAddress, 30)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	change, err := st.SendTransaction(otherAddress, 20)
	require.NoError(t, err)
	require.Equal(t, tx.ID, change.Inputs[0].OutputID)
	require.Equal(t, uint64(1), change.Inputs[0].OutputIndex)
	require.Len(t, change.Outputs, 1)
	require.Equal(t, 2, st.QueryMempoolLength())
}

func TestSendTransactionErrors(t *testing.T) {
	st := newState(t, minerPK)

	_, err := st.SendTransaction("04abc", 10)
	require.ErrorIs(t, err, state.ErrInvalidAddress)

	_, err = st.SendTransaction(otherAddress, 0)
	require.ErrorIs(t, err, state.ErrInvalidAmount)

	_, err = st.SendTransaction(otherAddress, 10)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	_, err = st.GenerateNextBlockWithTransaction(context.Background(), otherAddress, 10)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)
}

func TestGenerateNextBlockWithTransaction(t *testing.T) {
	ctx := context.Background()
	st := newState(t, minerPK)

	_, err := st.GenerateNextBlock(ctx)
	require.NoError(t, err)

	block, err := st.GenerateNextBlockWithTransaction(ctx, otherAddress, 45)
	require.NoError(t, err)
	require.Equal(t, uint64(2), block.Index)
	require.Len(t, block.Transactions, 2)

	require.Equal(t, uint64(45), st.QueryBalance(otherAddress))
	require.Equal(t, uint64(55), st.QueryAccountBalance())
	require.Equal(t, 0, st.QueryMempoolLength())
}

func TestMiningCancelled(t *testing.T) {
	st := newState(t, minerPK)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.GenerateNextBlock(ctx)
	require.Error(t, err)
	require.Equal(t, uint64(0), st.RetrieveLatestBlock().Index)
}

func TestAddAndReplace(t *testing.T) {
	ctx := context.Background()
	a := newState(t, minerPK)
	b := newState(t, otherPK)

	a1, err := a.GenerateNextBlock(ctx)
	require.NoError(t, err)

	b1, err := b.GenerateNextBlock(ctx)
	require.NoError(t, err)
	require.NotEqual(t, a1.Hash, b1.Hash)

	// Equal cumulative difficulty never replaces.
	require.False(t, a.ReplaceChain(b.RetrieveChain()))
	require.False(t, b.ReplaceChain(a.RetrieveChain()))

	// A block that doesn't extend the tip is rejected.
	require.False(t, b.AddBlock(a1))
	require.Equal(t, b1.Hash, b.RetrieveLatestBlock().Hash)

	// A heavier chain replaces.
	_, err = a.GenerateNextBlock(ctx)
	require.NoError(t, err)

	require.True(t, b.ReplaceChain(a.RetrieveChain()))
	require.Equal(t, a.RetrieveLatestBlock().Hash, b.RetrieveLatestBlock().Hash)
	require.Equal(t, uint64(100), b.QueryBalance(a.RetrieveAddress()))
	require.Equal(t, uint64(0), b.QueryAccountBalance())

	// The next block from the same chain is added directly.
	a3, err := a.GenerateNextBlock(ctx)
	require.NoError(t, err)
	require.True(t, b.AddBlock(a3))
	require.Equal(t, uint64(3), b.QueryStatus().Height)
}
