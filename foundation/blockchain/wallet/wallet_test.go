package wallet_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/signature"
	"github.com/ardanlabs/mycoin/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_CreateTransaction(t *testing.T) {
	pk, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the private key: %v", failed, err)
	}
	owner := signature.PublicKeyToAddress(pk.PublicKey)
	to := "0440ee457d69843e6d5a569684861731422623d0bb04cfcec2e0b6ba23843c1dd1a72e9397751351a4b0f8f335c50d31e27f949de1a9603a1d258422545f0cad0e"

	// Three coinbase outputs of 50 owned by the key and one owned by the receiver.
	utxos := database.NewUTXOSet(nil).Apply([]database.Tx{
		database.NewCoinbaseTx(owner, 1, 50),
		database.NewCoinbaseTx(to, 2, 50),
		database.NewCoinbaseTx(owner, 3, 50),
		database.NewCoinbaseTx(owner, 4, 50),
	})

	type table struct {
		name    string
		amount  uint64
		inputs  int
		outputs []uint64
		err     error
	}

	tt := []table{
		{name: "change", amount: 30, inputs: 1, outputs: []uint64{30, 20}},
		{name: "exact", amount: 50, inputs: 1, outputs: []uint64{50}},
		{name: "multiple", amount: 120, inputs: 3, outputs: []uint64{120, 30}},
		{name: "all", amount: 150, inputs: 3, outputs: []uint64{150}},
		{name: "insufficient", amount: 151, err: wallet.ErrInsufficientFunds},
	}

	t.Log("Given the need to build transactions from owned outputs.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen sending %d.", testID, tst.amount)
			{
				f := func(t *testing.T) {
					tx, err := wallet.CreateTransaction(to, tst.amount, pk, utxos)

					if tst.err != nil {
						if !errors.Is(err, tst.err) {
							t.Fatalf("\t%s\tTest %d:\tShould get back %q: %v", failed, testID, tst.err, err)
						}
						t.Logf("\t%s\tTest %d:\tShould get back %q.", success, testID, tst.err)
						return
					}

					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to create the transaction: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to create the transaction.", success, testID)

					if len(tx.Inputs) != tst.inputs {
						t.Fatalf("\t%s\tTest %d:\tShould spend %d outputs, got %d.", failed, testID, tst.inputs, len(tx.Inputs))
					}
					t.Logf("\t%s\tTest %d:\tShould spend %d outputs.", success, testID, tst.inputs)

					if len(tx.Outputs) != len(tst.outputs) {
						t.Fatalf("\t%s\tTest %d:\tShould create %d outputs, got %d.", failed, testID, len(tst.outputs), len(tx.Outputs))
					}
					for i, amount := range tst.outputs {
						if tx.Outputs[i].Amount != amount {
							t.Fatalf("\t%s\tTest %d:\tShould pay %d in output %d, got %d.", failed, testID, amount, i, tx.Outputs[i].Amount)
						}
					}
					if len(tx.Outputs) == 2 && tx.Outputs[1].Address != owner {
						t.Fatalf("\t%s\tTest %d:\tShould return the change to the owner.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould create the expected outputs.", success, testID)

					if err := tx.Validate(utxos); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould create a valid transaction: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould create a valid transaction.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}
