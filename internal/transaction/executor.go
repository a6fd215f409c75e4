package transaction

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pharos-bot/internal/logger"
	"github.com/rovshanmuradov/pharos-bot/internal/wallet"
)

// Chain is everything the executor reads from or sends to the node.
type Chain interface {
	ReceiptReader
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Executor builds, signs, submits and confirms single transactions. One
// Executor is shared by all workers; callers keep submissions for the same
// account sequential.
type Executor struct {
	chain   Chain
	monitor *Monitor
	metrics *Metrics
	logger  *zap.Logger
}

func NewExecutor(chain Chain, log *zap.Logger, config Config, metrics *Metrics) *Executor {
	return &Executor{
		chain:   chain,
		monitor: NewMonitor(chain, log, config),
		metrics: metrics,
		logger:  log.Named("executor"),
	}
}

// Submit reads a fresh nonce and gas price, lets build produce the call,
// signs it with acct and waits for the outcome.
func (e *Executor) Submit(ctx context.Context, acct *wallet.Account, label string, build Builder) Outcome {
	start := time.Now()
	outcome := e.submit(ctx, acct, label, build)
	outcome.Duration = time.Since(start)
	e.metrics.Observe(outcome)

	log := logger.WithTransaction(logger.WithAccount(e.logger, acct.Address.Hex()), outcome.Hash.Hex())
	if outcome.OK() {
		log.Info("Transaction confirmed",
			zap.String("action", label),
			zap.Uint64("nonce", outcome.Nonce),
			zap.Duration("took", outcome.Duration))
	} else {
		log.Warn("Transaction failed",
			zap.String("action", label),
			zap.Stringer("status", outcome.Status),
			zap.Uint64("nonce", outcome.Nonce),
			zap.Error(outcome.Err))
	}
	return outcome
}

func (e *Executor) submit(ctx context.Context, acct *wallet.Account, label string, build Builder) Outcome {
	chainID, err := e.chain.ChainID(ctx)
	if err != nil {
		return submitError(err)
	}
	nonce, err := e.chain.PendingNonceAt(ctx, acct.Address)
	if err != nil {
		return submitError(err)
	}
	gasPrice, err := e.chain.SuggestGasPrice(ctx)
	if err != nil {
		return submitError(err)
	}

	call, err := build(ctx, Params{From: acct.Address, Nonce: nonce, GasPrice: gasPrice})
	if err != nil {
		return Outcome{Status: StatusSubmitError, Nonce: nonce, Err: fmt.Errorf("failed to build %s: %w", label, err)}
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	to := call.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      call.GasLimit,
		To:       &to,
		Value:    value,
		Data:     call.Data,
	})

	signed, err := acct.SignTx(tx, types.LatestSignerForChainID(chainID))
	if err != nil {
		return Outcome{Status: StatusSubmitError, Nonce: nonce, Err: fmt.Errorf("failed to sign %s: %w", label, err)}
	}

	if err := e.chain.SendTransaction(ctx, signed); err != nil {
		return Outcome{Status: StatusSubmitError, Hash: signed.Hash(), Nonce: nonce, Err: fmt.Errorf("failed to send %s: %w", label, err)}
	}

	e.logger.Debug("Transaction sent",
		zap.String("action", label),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.String("gas_price", gasPrice.String()))

	outcome := e.monitor.Await(ctx, signed.Hash())
	outcome.Nonce = nonce
	return outcome
}

func submitError(err error) Outcome {
	return Outcome{Status: StatusSubmitError, Err: err}
}
