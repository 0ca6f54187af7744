package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"log"

	"github.com/ardanlabs/mycoin/foundation/blockchain/database"
	"github.com/ardanlabs/mycoin/foundation/blockchain/signature"
	"github.com/ardanlabs/mycoin/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	to     string
	amount uint64
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		tx, err := send(url, privateKey, to, amount)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(tx.ID)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address to pay.")
	sendCmd.Flags().Uint64VarP(&amount, "amount", "v", 0, "Amount to send.")
}

// send builds and signs a transaction from the wallet's unspent outputs and
// submits it to the node. Outputs already spent by the node's mempool are
// not selected.
func send(url string, privateKey *ecdsa.PrivateKey, to string, amount uint64) (database.Tx, error) {
	from := signature.PublicKeyToAddress(privateKey.PublicKey)

	var outputs []database.UnspentOutput
	if err := get(fmt.Sprintf("%s/v1/utxo/list/%s", url, from), &outputs); err != nil {
		return database.Tx{}, fmt.Errorf("listing unspent outputs: %w", err)
	}

	var pool []database.Tx
	if err := get(fmt.Sprintf("%s/v1/tx/pool", url), &pool); err != nil {
		return database.Tx{}, fmt.Errorf("listing mempool: %w", err)
	}

	spent := make(map[database.Outpoint]struct{})
	for _, tx := range pool {
		for _, in := range tx.Inputs {
			spent[in.Outpoint()] = struct{}{}
		}
	}

	utxos := database.NewUTXOSet(outputs).Without(spent)

	tx, err := wallet.CreateTransaction(to, amount, privateKey, utxos)
	if err != nil {
		return database.Tx{}, err
	}

	req := struct {
		Tx database.Tx `json:"tx"`
	}{
		Tx: tx,
	}

	var submitted database.Tx
	if err := post(fmt.Sprintf("%s/v1/tx/submit", url), req, &submitted); err != nil {
		return database.Tx{}, fmt.Errorf("submitting transaction: %w", err)
	}

	return submitted, nil
}
