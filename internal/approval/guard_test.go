package approval

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/pharos-bot/internal/transaction"
	"github.com/rovshanmuradov/pharos-bot/internal/wallet"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	tokenAddr = common.HexToAddress("0xD4071393f8716661958F766DF660033b3d35fD29")
	router    = common.HexToAddress("0x3541423f25A1Ca5C98fdBCf478405d3f0aaD1164")
)

// fakeToken keeps an allowance table and applies confirmed approves to it.
type fakeToken struct {
	mu        sync.Mutex
	allowance map[common.Address]*big.Int
	readErr   error
}

func (f *fakeToken) Allowance(_ context.Context, _, _, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	if v, ok := f.allowance[spender]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

type fakeExecutor struct {
	token   *fakeToken
	status  transaction.Status
	calls   []transaction.Call
	spender common.Address
	amount  *big.Int
}

func (f *fakeExecutor) Submit(ctx context.Context, _ *wallet.Account, _ string, build transaction.Builder) transaction.Outcome {
	call, err := build(ctx, transaction.Params{Nonce: uint64(len(f.calls))})
	if err != nil {
		return transaction.Outcome{Status: transaction.StatusSubmitError, Err: err}
	}
	f.calls = append(f.calls, call)
	if f.status == transaction.StatusConfirmed {
		f.token.mu.Lock()
		f.token.allowance[f.spender] = new(big.Int).Set(f.amount)
		f.token.mu.Unlock()
	}
	return transaction.Outcome{Status: f.status}
}

func newGuard(t *testing.T, allowance int64, status transaction.Status, required int64) (*Guard, *fakeExecutor, *fakeToken) {
	t.Helper()
	token := &fakeToken{allowance: map[common.Address]*big.Int{router: big.NewInt(allowance)}}
	exec := &fakeExecutor{token: token, status: status, spender: router, amount: big.NewInt(required)}
	return NewGuard(token, exec, 100000, zaptest.NewLogger(t)), exec, token
}

func account(t *testing.T) *wallet.Account {
	t.Helper()
	acct, err := wallet.NewAccount(testKey)
	require.NoError(t, err)
	return acct
}

func TestEnsureAllowanceApprovesWhenShort(t *testing.T) {
	guard, exec, _ := newGuard(t, 0, transaction.StatusConfirmed, 10)

	ok, err := guard.EnsureAllowance(context.Background(), account(t), tokenAddr, router, big.NewInt(10))
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, tokenAddr, exec.calls[0].To)
	assert.Equal(t, uint64(100000), exec.calls[0].GasLimit)
	assert.Equal(t, big.NewInt(10).Bytes(), new(big.Int).SetBytes(exec.calls[0].Data[4+32:]).Bytes())
}

func TestEnsureAllowanceSkipsWhenSufficient(t *testing.T) {
	guard, exec, _ := newGuard(t, 100, transaction.StatusConfirmed, 10)

	ok, err := guard.EnsureAllowance(context.Background(), account(t), tokenAddr, router, big.NewInt(10))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, exec.calls)
}

func TestEnsureAllowanceIsIdempotent(t *testing.T) {
	guard, exec, _ := newGuard(t, 0, transaction.StatusConfirmed, 10)
	acct := account(t)

	for i := 0; i < 3; i++ {
		ok, err := guard.EnsureAllowance(context.Background(), acct, tokenAddr, router, big.NewInt(10))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Len(t, exec.calls, 1)
}

func TestEnsureAllowanceFailedApprove(t *testing.T) {
	guard, exec, _ := newGuard(t, 0, transaction.StatusReverted, 10)

	ok, err := guard.EnsureAllowance(context.Background(), account(t), tokenAddr, router, big.NewInt(10))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrApproveFailed)
	assert.Len(t, exec.calls, 1)
}

func TestEnsureAllowanceReadFailureDoesNotTransact(t *testing.T) {
	guard, exec, token := newGuard(t, 0, transaction.StatusConfirmed, 10)
	token.readErr = errors.New("rpc down")

	ok, err := guard.EnsureAllowance(context.Background(), account(t), tokenAddr, router, big.NewInt(10))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrAllowanceRead)
	assert.Empty(t, exec.calls)
}
