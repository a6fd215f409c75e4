// Package approval makes sure a spender can move an account's tokens before
// an action needs it, approving only when the current allowance is short.
package approval

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pharos-bot/internal/blockchain/evm"
	"github.com/rovshanmuradov/pharos-bot/internal/logger"
	"github.com/rovshanmuradov/pharos-bot/internal/transaction"
	"github.com/rovshanmuradov/pharos-bot/internal/wallet"
)

var (
	ErrAllowanceRead = errors.New("failed to read allowance")
	ErrApproveFailed = errors.New("approve transaction failed")
)

// AllowanceReader reads the current allowance of owner towards spender.
type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Submitter sends a transaction and waits for its outcome.
type Submitter interface {
	Submit(ctx context.Context, acct *wallet.Account, label string, build transaction.Builder) transaction.Outcome
}

// Guard issues approve transactions only when needed.
type Guard struct {
	reader   AllowanceReader
	executor Submitter
	gasLimit uint64
	logger   *zap.Logger
}

func NewGuard(reader AllowanceReader, executor Submitter, gasLimit uint64, log *zap.Logger) *Guard {
	return &Guard{
		reader:   reader,
		executor: executor,
		gasLimit: gasLimit,
		logger:   log.Named("approval"),
	}
}

// EnsureAllowance returns true without transacting when the allowance already
// covers required. Otherwise it approves exactly required and returns true
// only if that transaction is confirmed.
func (g *Guard) EnsureAllowance(ctx context.Context, acct *wallet.Account, token, spender common.Address, required *big.Int) (bool, error) {
	log := logger.WithAccount(g.logger, acct.Address.Hex()).With(
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()))

	current, err := g.reader.Allowance(ctx, token, acct.Address, spender)
	if err != nil {
		log.Warn("Allowance read failed, skipping approve", zap.Error(err))
		return false, fmt.Errorf("%w: %v", ErrAllowanceRead, err)
	}
	if current.Cmp(required) >= 0 {
		log.Debug("Allowance sufficient", zap.String("allowance", current.String()))
		return true, nil
	}

	log.Info("Approving spender",
		zap.String("allowance", current.String()),
		zap.String("required", required.String()))

	amount := new(big.Int).Set(required)
	outcome := g.executor.Submit(ctx, acct, "approve", func(_ context.Context, _ transaction.Params) (transaction.Call, error) {
		data, err := evm.PackApprove(spender, amount)
		if err != nil {
			return transaction.Call{}, err
		}
		return transaction.Call{To: token, Data: data, GasLimit: g.gasLimit}, nil
	})
	if !outcome.OK() {
		return false, fmt.Errorf("%w: %s: %v", ErrApproveFailed, outcome.Status, outcome.Err)
	}
	return true, nil
}

// TokenAllowances adapts the chain client's ERC-20 reads to AllowanceReader.
type TokenAllowances struct {
	Caller evm.Caller
}

func (t TokenAllowances) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return evm.NewToken(t.Caller, token).Allowance(ctx, owner, spender)
}
