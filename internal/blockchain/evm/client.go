// =============================================
// File: internal/blockchain/evm/client.go
// =============================================
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// Backend is the subset of node RPC methods the bot relies on. Both
// *ethclient.Client and the simulated backend client satisfy it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config describes how to reach the node.
type Config struct {
	RPCURL     string
	RateLimit  int // requests per second, 0 disables limiting
	HTTPClient *http.Client
	// DialAttempts bounds the startup connectivity probe.
	DialAttempts int
	DialDelay    time.Duration
}

// Client wraps a Backend with a shared request limiter. It holds no
// per-account state and is safe for concurrent use by all workers.
type Client struct {
	backend Backend
	limiter ratelimit.Limiter
	logger  *zap.Logger
	closer  func()

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, rateLimit int, logger *zap.Logger) *Client {
	limiter := ratelimit.NewUnlimited()
	if rateLimit > 0 {
		limiter = ratelimit.New(rateLimit)
	}
	return &Client{
		backend: backend,
		limiter: limiter,
		logger:  logger.Named("evm"),
	}
}

// Dial connects to cfg.RPCURL and verifies the endpoint by reading the chain
// id, retrying a bounded number of times.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	url := strings.TrimSpace(cfg.RPCURL)
	if url == "" {
		return nil, errors.New("rpc url is not configured")
	}

	var opts []gethrpc.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, gethrpc.WithHTTPClient(cfg.HTTPClient))
	}
	rpcClient, err := gethrpc.DialOptions(ctx, url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	c := NewClient(eth, cfg.RateLimit, logger)
	c.closer = eth.Close

	attempts := cfg.DialAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := cfg.DialDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = delay
	policy.MaxInterval = delay * 10

	_, err = backoff.Retry(ctx, func() (*big.Int, error) {
		return c.ChainID(ctx)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.logger.Warn("RPC not reachable yet, retrying", zap.Error(err), zap.Duration("backoff", d))
		}))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("rpc connectivity check failed: %w", err)
	}
	return c, nil
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	if c.closer != nil {
		c.closer()
	}
	return nil
}

// ChainID returns the chain id, cached after the first successful read.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	c.limiter.Take()
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// BalanceAt returns the latest native balance of account.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	c.limiter.Take()
	bal, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return bal, nil
}

// PendingNonceAt returns the next nonce including transactions still in the pool.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.limiter.Take()
	nonce, err := c.backend.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce: %w", err)
	}
	return nonce, nil
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	c.limiter.Take()
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.limiter.Take()
	return c.backend.SendTransaction(ctx, tx)
}

// TransactionReceipt returns ethereum.NotFound while the transaction is unmined.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.limiter.Take()
	return c.backend.TransactionReceipt(ctx, hash)
}

func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	c.limiter.Take()
	return c.backend.TransactionByHash(ctx, hash)
}

func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
	c.limiter.Take()
	return c.backend.CallContract(ctx, call, nil)
}
