package transaction

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/pharos-bot/internal/blockchain/evm"
	"github.com/rovshanmuradov/pharos-bot/internal/wallet"
)

type mockChain struct {
	mock.Mock
}

func (m *mockChain) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	id, _ := args.Get(0).(*big.Int)
	return id, args.Error(1)
}

func (m *mockChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	price, _ := args.Get(0).(*big.Int)
	return price, args.Error(1)
}

func (m *mockChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *mockChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, hash)
	receipt, _ := args.Get(0).(*types.Receipt)
	return receipt, args.Error(1)
}

func (m *mockChain) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	args := m.Called(ctx, hash)
	tx, _ := args.Get(0).(*types.Transaction)
	return tx, args.Bool(1), args.Error(2)
}

var fastConfig = Config{ReceiptTimeout: 60 * time.Millisecond, PollInterval: 5 * time.Millisecond}

func testAccount(t *testing.T) *wallet.Account {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	acct, err := wallet.NewAccount(hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)
	return acct
}

func transfer(to common.Address) Builder {
	return func(_ context.Context, _ Params) (Call, error) {
		return Call{To: to, Value: big.NewInt(1), GasLimit: 21000}, nil
	}
}

func TestMonitorConfirmedAndReverted(t *testing.T) {
	hash := common.HexToHash("0xaa")

	chain := new(mockChain)
	chain.On("TransactionReceipt", mock.Anything, hash).
		Return(&types.Receipt{Status: types.ReceiptStatusSuccessful}, nil).Once()
	m := NewMonitor(chain, zaptest.NewLogger(t), fastConfig)
	assert.Equal(t, StatusConfirmed, m.Await(context.Background(), hash).Status)

	chain = new(mockChain)
	chain.On("TransactionReceipt", mock.Anything, hash).
		Return(&types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(3)}, nil).Once()
	m = NewMonitor(chain, zaptest.NewLogger(t), fastConfig)
	out := m.Await(context.Background(), hash)
	assert.Equal(t, StatusReverted, out.Status)
	assert.Error(t, out.Err)
}

func TestMonitorPendingAfterDeadlineIsTimedOut(t *testing.T) {
	hash := common.HexToHash("0xbb")
	chain := new(mockChain)
	chain.On("TransactionReceipt", mock.Anything, hash).Return(nil, ethereum.NotFound)
	chain.On("TransactionByHash", mock.Anything, hash).Return(nil, true, nil).Once()

	m := NewMonitor(chain, zaptest.NewLogger(t), fastConfig)
	start := time.Now()
	out := m.Await(context.Background(), hash)

	assert.Equal(t, StatusTimedOut, out.Status)
	assert.GreaterOrEqual(t, time.Since(start), fastConfig.ReceiptTimeout)
	chain.AssertExpectations(t)
}

func TestMonitorUnknownAfterDeadlineIsNotFound(t *testing.T) {
	hash := common.HexToHash("0xcc")
	chain := new(mockChain)
	chain.On("TransactionReceipt", mock.Anything, hash).Return(nil, ethereum.NotFound)
	chain.On("TransactionByHash", mock.Anything, hash).Return(nil, false, ethereum.NotFound).Once()

	out := NewMonitor(chain, zaptest.NewLogger(t), fastConfig).Await(context.Background(), hash)
	assert.Equal(t, StatusNotFound, out.Status)
}

func TestMonitorMinedAtDeadlineReadsReceiptOnce(t *testing.T) {
	hash := common.HexToHash("0xdd")
	chain := new(mockChain)
	cfg := Config{ReceiptTimeout: 20 * time.Millisecond, PollInterval: time.Hour}
	chain.On("TransactionByHash", mock.Anything, hash).Return(nil, false, nil).Once()
	chain.On("TransactionReceipt", mock.Anything, hash).
		Return(&types.Receipt{Status: types.ReceiptStatusSuccessful}, nil).Once()

	out := NewMonitor(chain, zaptest.NewLogger(t), cfg).Await(context.Background(), hash)
	assert.Equal(t, StatusConfirmed, out.Status)
	chain.AssertExpectations(t)
}

func TestMonitorCancelledIsTimedOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain := new(mockChain)
	out := NewMonitor(chain, zaptest.NewLogger(t), Config{ReceiptTimeout: time.Hour, PollInterval: time.Hour}).
		Await(ctx, common.HexToHash("0xee"))
	assert.Equal(t, StatusTimedOut, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestExecutorSendFailureIsSubmitError(t *testing.T) {
	acct := testAccount(t)
	chain := new(mockChain)
	chain.On("ChainID", mock.Anything).Return(big.NewInt(688688), nil)
	chain.On("PendingNonceAt", mock.Anything, acct.Address).Return(uint64(7), nil)
	chain.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	chain.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *types.Transaction) bool {
		return tx.Nonce() == 7 && tx.Gas() == 21000
	})).Return(errors.New("insufficient funds"))

	metrics := NewMetrics(nil)
	exec := NewExecutor(chain, zaptest.NewLogger(t), fastConfig, metrics)
	out := exec.Submit(context.Background(), acct, "transfer", transfer(common.HexToAddress("0x01")))

	assert.Equal(t, StatusSubmitError, out.Status)
	assert.Equal(t, uint64(7), out.Nonce)
	assert.ErrorContains(t, out.Err, "insufficient funds")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.outcomes.WithLabelValues("submit_error")))
	chain.AssertExpectations(t)
}

func TestExecutorBuilderFailureSendsNothing(t *testing.T) {
	acct := testAccount(t)
	chain := new(mockChain)
	chain.On("ChainID", mock.Anything).Return(big.NewInt(1), nil)
	chain.On("PendingNonceAt", mock.Anything, acct.Address).Return(uint64(0), nil)
	chain.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1), nil)

	exec := NewExecutor(chain, zaptest.NewLogger(t), fastConfig, nil)
	out := exec.Submit(context.Background(), acct, "swap", func(context.Context, Params) (Call, error) {
		return Call{}, errors.New("no route")
	})

	assert.Equal(t, StatusSubmitError, out.Status)
	chain.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestExecutorNonceStrictlyIncreases(t *testing.T) {
	acct := testAccount(t)
	funds := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	sim := simulated.NewBackend(types.GenesisAlloc{acct.Address: {Balance: funds}})
	stop := make(chan struct{})
	done := make(chan struct{})
	t.Cleanup(func() {
		close(stop)
		<-done
		_ = sim.Close()
	})
	go func() {
		defer close(done)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sim.Commit()
			}
		}
	}()

	client := evm.NewClient(sim.Client(), 0, zaptest.NewLogger(t))
	exec := NewExecutor(client, zaptest.NewLogger(t),
		Config{ReceiptTimeout: 10 * time.Second, PollInterval: 10 * time.Millisecond}, NewMetrics(nil))

	recipient := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	first := exec.Submit(context.Background(), acct, "transfer", transfer(recipient))
	second := exec.Submit(context.Background(), acct, "transfer", transfer(recipient))

	require.Equal(t, StatusConfirmed, first.Status, "first: %v", first.Err)
	require.Equal(t, StatusConfirmed, second.Status, "second: %v", second.Err)
	assert.Greater(t, second.Nonce, first.Nonce)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestStatusString(t *testing.T) {
	for s, want := range map[Status]string{
		StatusConfirmed:   "confirmed",
		StatusReverted:    "reverted",
		StatusNotFound:    "not_found",
		StatusTimedOut:    "timed_out",
		StatusSubmitError: "submit_error",
		Status(42):        "unknown",
	} {
		assert.Equal(t, want, s.String())
	}
}
