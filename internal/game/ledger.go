package game

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transfer moves Amount from one account to another.
type Transfer struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Ledger is the value-transfer primitive the engine settles through.
// Transfer must apply every transfer in the batch or none of them, and report
// failure with an error.
type Ledger interface {
	Transfer(ctx context.Context, transfers ...Transfer) error
}
