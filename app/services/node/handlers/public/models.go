package public

import "github.com/ardanlabs/mycoin/foundation/blockchain/database"

// payment is the payload for the calls that pay an address from the node's
// wallet.
type payment struct {
	Address string `json:"address" validate:"required"`
	Amount  uint64 `json:"amount"`
}

// submitTx is the payload for submitting a transaction signed by a wallet.
type submitTx struct {
	Tx database.Tx `json:"tx"`
}

type balance struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
}

type address struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}
