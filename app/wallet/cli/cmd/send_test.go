package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := signature.PublicKeyToAddress(pk.PublicKey)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := signature.PublicKeyToAddress(other.PublicKey)

	cb1 := database.NewCoinbaseTx(from, 1, 50)
	cb2 := database.NewCoinbaseTx(from, 2, 50)

	outputs := []database.UnspentOutput{
		{OutputID: cb1.ID, OutputIndex: 0, Address: from, Amount: 50},
		{OutputID: cb2.ID, OutputIndex: 0, Address: from, Amount: 50},
	}

	// The first coinbase is already spent by a pending transaction.
	pending := database.NewTx(
		[]database.TxIn{{OutputID: cb1.ID, OutputIndex: 0}},
		[]database.TxOut{{Address: to, Amount: 50}},
	)

	var submitted database.Tx
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/utxo/list/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, from, strings.TrimPrefix(r.URL.Path, "/v1/utxo/list/"))
		json.NewEncoder(w).Encode(outputs)
	})
	mux.HandleFunc("/v1/tx/pool", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]database.Tx{pending})
	})
	mux.HandleFunc("/v1/tx/submit", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tx database.Tx `json:"tx"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		submitted = req.Tx

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(req.Tx)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tx, err := send(srv.URL, pk, to, 20)
	require.NoError(t, err)
	require.Equal(t, submitted.ID, tx.ID)

	require.Len(t, tx.Inputs, 1)
	require.Equal(t, cb2.ID, tx.Inputs[0].OutputID)
	require.Equal(t, []database.TxOut{{Address: to, Amount: 20}, {Address: from, Amount: 30}}, tx.Outputs)

	utxos := database.NewUTXOSet(outputs)
	require.NoError(t, tx.Validate(utxos))

	// Only one unspent output is left to the wallet.
	_, err = send(srv.URL, pk, to, 60)
	require.Error(t, err)
}

func TestSendRejected(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := signature.PublicKeyToAddress(pk.PublicKey)
	cb := database.NewCoinbaseTx(from, 1, 50)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/utxo/list/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]database.UnspentOutput{{OutputID: cb.ID, Address: from, Amount: 50}})
	})
	mux.HandleFunc("/v1/tx/pool", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})
	mux.HandleFunc("/v1/tx/submit", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"conflicting transaction"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err = send(srv.URL, pk, from, 10)
	require.ErrorContains(t, err, "conflicting transaction")
}
