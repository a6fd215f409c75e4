package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ReceiptReader is the part of the chain client the monitor needs.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// Monitor polls for a receipt until a deadline and classifies the result.
type Monitor struct {
	client ReceiptReader
	logger *zap.Logger
	config Config
}

func NewMonitor(client ReceiptReader, logger *zap.Logger, config Config) *Monitor {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.ReceiptTimeout <= 0 {
		config.ReceiptTimeout = 300 * time.Second
	}
	return &Monitor{
		client: client,
		logger: logger.Named("tx-monitor"),
		config: config,
	}
}

// Await returns Confirmed or Reverted as soon as a receipt shows up. When the
// deadline passes it asks the node about the transaction: unknown gives
// NotFound, still pending gives TimedOut. Cancelling ctx gives TimedOut.
func (m *Monitor) Await(ctx context.Context, hash common.Hash) Outcome {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(m.config.ReceiptTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{Status: StatusTimedOut, Hash: hash, Err: ctx.Err()}
		case <-deadline.C:
			return m.classify(ctx, hash)
		case <-ticker.C:
			receipt, err := m.client.TransactionReceipt(ctx, hash)
			if err == nil && receipt != nil {
				return fromReceipt(hash, receipt)
			}
			if err != nil && !errors.Is(err, ethereum.NotFound) {
				m.logger.Debug("Receipt check failed", zap.String("tx_hash", hash.Hex()), zap.Error(err))
			}
		}
	}
}

func (m *Monitor) classify(ctx context.Context, hash common.Hash) Outcome {
	_, pending, err := m.client.TransactionByHash(ctx, hash)
	switch {
	case errors.Is(err, ethereum.NotFound):
		return Outcome{Status: StatusNotFound, Hash: hash, Err: fmt.Errorf("transaction %s not found", hash.Hex())}
	case err != nil:
		return Outcome{Status: StatusTimedOut, Hash: hash, Err: fmt.Errorf("transaction lookup failed: %w", err)}
	case pending:
		return Outcome{Status: StatusTimedOut, Hash: hash, Err: fmt.Errorf("transaction %s still pending after %s", hash.Hex(), m.config.ReceiptTimeout)}
	}

	// Mined between the last poll and the deadline.
	receipt, err := m.client.TransactionReceipt(ctx, hash)
	if err != nil || receipt == nil {
		return Outcome{Status: StatusTimedOut, Hash: hash, Err: fmt.Errorf("transaction mined but receipt unavailable: %w", err)}
	}
	return fromReceipt(hash, receipt)
}

func fromReceipt(hash common.Hash, receipt *types.Receipt) Outcome {
	if receipt.Status == types.ReceiptStatusSuccessful {
		return Outcome{Status: StatusConfirmed, Hash: hash, Receipt: receipt}
	}
	return Outcome{
		Status:  StatusReverted,
		Hash:    hash,
		Receipt: receipt,
		Err:     fmt.Errorf("transaction %s reverted in block %v", hash.Hex(), receipt.BlockNumber),
	}
}
