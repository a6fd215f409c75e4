// =============================================
// File: internal/transaction/types.go
// =============================================
package transaction

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Status is the terminal classification of a submitted transaction.
type Status int

const (
	StatusConfirmed Status = iota
	StatusReverted
	StatusNotFound
	StatusTimedOut
	StatusSubmitError
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusReverted:
		return "reverted"
	case StatusNotFound:
		return "not_found"
	case StatusTimedOut:
		return "timed_out"
	case StatusSubmitError:
		return "submit_error"
	default:
		return "unknown"
	}
}

// Outcome is produced exactly once per Submit call.
type Outcome struct {
	Status   Status
	Hash     common.Hash
	Nonce    uint64
	Receipt  *types.Receipt
	Err      error
	Duration time.Duration
}

// OK reports whether the transaction was mined successfully.
func (o Outcome) OK() bool { return o.Status == StatusConfirmed }

// Params are the values read from the chain right before building a call.
type Params struct {
	From     common.Address
	Nonce    uint64
	GasPrice *big.Int
}

// Call is what a Builder produces. Value may be nil.
type Call struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// Builder materializes a contract call once nonce and gas price are known.
type Builder func(ctx context.Context, p Params) (Call, error)

// Config controls receipt polling.
type Config struct {
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}
