// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override file settings.
const EnvPrefix = "PHAROS_BOT"

// Config holds application settings. It is built once by Load and then only
// read; components receive the sub-struct they need.
type Config struct {
	RPCURL        string `mapstructure:"rpc_url"`
	RPCRateLimit  int    `mapstructure:"rpc_rate_limit"`
	KeysFile      string `mapstructure:"keys_file"`
	ProxyFile     string `mapstructure:"proxy_file"`
	Workers       int    `mapstructure:"workers"`
	LoopCount     int    `mapstructure:"loop_count"`
	DebugLogging  bool   `mapstructure:"debug_logging"`
	LogFile       string `mapstructure:"log_file"`
	LiveCountdown bool   `mapstructure:"live_countdown"`
	MetricsAddr   string `mapstructure:"metrics_addr"`

	CycleInterval    time.Duration `mapstructure:"-"`
	CycleIntervalSec int           `mapstructure:"cycle_interval"`

	Transaction TransactionConfig `mapstructure:"transaction"`
	API         APIConfig         `mapstructure:"api"`
	FaroSwap    FaroSwapConfig    `mapstructure:"faroswap"`
	Liquidity   LiquidityConfig   `mapstructure:"liquidity"`
	Delays      DelayConfig       `mapstructure:"delays"`
	Report      ReportConfig      `mapstructure:"report"`
}

// TransactionConfig controls receipt polling and gas limits.
type TransactionConfig struct {
	ReceiptTimeout    time.Duration `mapstructure:"-"`
	ReceiptTimeoutSec int           `mapstructure:"receipt_timeout"`
	PollInterval      time.Duration `mapstructure:"-"`
	PollIntervalMS    int           `mapstructure:"receipt_poll_interval"`
	Gas               GasLimits     `mapstructure:"gas"`
}

// GasLimits are fixed gas limits per call kind.
type GasLimits struct {
	Approve   uint64 `mapstructure:"approve"`
	Swap      uint64 `mapstructure:"swap"`
	Wrap      uint64 `mapstructure:"wrap"`
	Liquidity uint64 `mapstructure:"liquidity"`
}

// APIConfig describes the partner REST API.
type APIConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	InviteCode         string        `mapstructure:"invite_code"`
	LoginMessage       string        `mapstructure:"login_message"`
	UserAgent          string        `mapstructure:"user_agent"`
	Referer            string        `mapstructure:"referer"`
	LoginAttempts      int           `mapstructure:"login_attempts"`
	LoginDelay         time.Duration `mapstructure:"-"`
	LoginDelaySec      int           `mapstructure:"login_delay"`
	RequestTimeout     time.Duration `mapstructure:"-"`
	RequestTimeoutSec  int           `mapstructure:"request_timeout"`
	RateLimitMarkers   []string      `mapstructure:"rate_limit_markers"`
	AlreadyDoneMarkers []string      `mapstructure:"already_done_markers"`
	SignInEnabled      bool          `mapstructure:"sign_in_enabled"`
	FaucetEnabled      bool          `mapstructure:"faucet_enabled"`
}

// FaroSwapConfig describes the swap feature group executed every iteration.
type FaroSwapConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Router         string   `mapstructure:"router"`
	WrappedNative  string   `mapstructure:"wrapped_native"`
	TargetToken    string   `mapstructure:"target_token"`
	FeeTier        uint32   `mapstructure:"fee_tier"`
	DeadlineSec    int      `mapstructure:"deadline"`
	Amount         string   `mapstructure:"amount"`
	SwapBackAmount string   `mapstructure:"swap_back_amount"`
	WrapAmount     string   `mapstructure:"wrap_amount"`
	Actions        []string `mapstructure:"actions"`
}

// LiquidityConfig describes the optional liquidity phase.
type LiquidityConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	PositionManager string `mapstructure:"position_manager"`
	TokenID         string `mapstructure:"token_id"`
	Amount0         string `mapstructure:"amount0"`
	Amount1         string `mapstructure:"amount1"`
}

// DelayConfig groups randomized pauses, all in seconds.
type DelayConfig struct {
	BetweenSwaps      Range `mapstructure:"between_swaps"`
	BetweenIterations Range `mapstructure:"between_iterations"`
	AfterFaroSwap     Range `mapstructure:"after_faroswap"`
}

// Range is an inclusive [Min, Max] pause in seconds.
type Range struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

// Bounds returns the range as durations.
func (r Range) Bounds() (time.Duration, time.Duration) {
	return time.Duration(r.Min) * time.Second, time.Duration(r.Max) * time.Second
}

// ReportConfig controls per-sweep report export. Empty Dir disables it.
// Journal, when set, is a CSV file that every step is appended to live.
type ReportConfig struct {
	Dir     string `mapstructure:"dir"`
	Format  string `mapstructure:"format"`
	Journal string `mapstructure:"journal"`
}

// Supported iteration actions.
const (
	ActionWrap     = "wrap"
	ActionUnwrap   = "unwrap"
	ActionSwap     = "swap"
	ActionSwapBack = "swap_back"
)

const (
	DefaultRPCURL         = "https://testnet.dplabs-internal.com/"
	DefaultWorkers        = 5
	DefaultLoopCount      = 1
	DefaultCycleInterval  = 24 * 60 * 60
	DefaultReceiptTimeout = 300
	DefaultPollInterval   = 1000
	DefaultLoginAttempts  = 10
	DefaultLoginDelay     = 10
)

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"rpc_url":        DefaultRPCURL,
		"rpc_rate_limit": 0,
		"keys_file":      "privatekey.txt",
		"proxy_file":     "",
		"workers":        DefaultWorkers,
		"loop_count":     DefaultLoopCount,
		"debug_logging":  false,
		"log_file":       "logs/bot.log",
		"live_countdown": false,
		"metrics_addr":   "",
		"cycle_interval": DefaultCycleInterval,

		"transaction.receipt_timeout":       DefaultReceiptTimeout,
		"transaction.receipt_poll_interval": DefaultPollInterval,
		"transaction.gas.approve":           100000,
		"transaction.gas.swap":              400000,
		"transaction.gas.wrap":              100000,
		"transaction.gas.liquidity":         600000,

		"api.base_url":             "https://api.pharosnetwork.xyz",
		"api.invite_code":          "",
		"api.login_message":        "pharos",
		"api.user_agent":           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36",
		"api.referer":              "https://testnet.pharosnetwork.xyz/",
		"api.login_attempts":       DefaultLoginAttempts,
		"api.login_delay":          DefaultLoginDelay,
		"api.request_timeout":      30,
		"api.rate_limit_markers":   []string{"too many requests", "rate limit", "try again later"},
		"api.already_done_markers": []string{"already", "today"},
		"api.sign_in_enabled":      true,
		"api.faucet_enabled":       true,

		"faroswap.enabled":          true,
		"faroswap.router":           "0x3541423f25A1Ca5C98fdBCf478405d3f0aaD1164",
		"faroswap.wrapped_native":   "0x76aaada469d23216be5f7c596fa25f282ff9b364",
		"faroswap.target_token":     "0xD4071393f8716661958F766DF660033b3d35fD29",
		"faroswap.fee_tier":         3000,
		"faroswap.deadline":         20 * 60,
		"faroswap.amount":           "0.005",
		"faroswap.swap_back_amount": "0.01",
		"faroswap.wrap_amount":      "0.001",
		"faroswap.actions":          []string{ActionSwap},

		"liquidity.enabled":          false,
		"liquidity.position_manager": "",
		"liquidity.token_id":         "",
		"liquidity.amount0":          "0.001",
		"liquidity.amount1":          "0.01",

		"delays.between_swaps.min":      10,
		"delays.between_swaps.max":      25,
		"delays.between_iterations.min": 45,
		"delays.between_iterations.max": 90,
		"delays.after_faroswap.min":     10,
		"delays.after_faroswap.max":     20,

		"report.dir":     "",
		"report.format":  "csv",
		"report.journal": "",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads configuration from path. Optional env files are loaded first so
// that PHAROS_BOT_* variables defined there take part in the override.
// An empty path means defaults plus environment only.
func Load(path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	cfg.resolveDurations()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolveDurations() {
	c.CycleInterval = time.Duration(c.CycleIntervalSec) * time.Second
	c.Transaction.ReceiptTimeout = time.Duration(c.Transaction.ReceiptTimeoutSec) * time.Second
	c.Transaction.PollInterval = time.Duration(c.Transaction.PollIntervalMS) * time.Millisecond
	c.API.LoginDelay = time.Duration(c.API.LoginDelaySec) * time.Second
	c.API.RequestTimeout = time.Duration(c.API.RequestTimeoutSec) * time.Second
}

func (c *Config) validate() error {
	if err := validateURL(c.RPCURL, "http"); err != nil {
		return fmt.Errorf("invalid rpc_url: %w", err)
	}
	if err := validateURL(c.API.BaseURL, "http"); err != nil {
		return fmt.Errorf("invalid api.base_url: %w", err)
	}
	if c.KeysFile == "" {
		return errors.New("keys_file is required")
	}
	if c.Workers <= 0 {
		return errors.New("invalid workers count")
	}
	if c.LoopCount <= 0 {
		return errors.New("loop_count must be greater than 0")
	}
	if c.RPCRateLimit < 0 {
		return errors.New("invalid rpc_rate_limit")
	}
	if c.CycleInterval <= 0 {
		return errors.New("invalid cycle_interval")
	}
	if c.Transaction.ReceiptTimeout <= 0 {
		return errors.New("invalid transaction.receipt_timeout")
	}
	if c.Transaction.PollInterval <= 0 {
		return errors.New("invalid transaction.receipt_poll_interval")
	}
	if c.API.LoginAttempts <= 0 {
		return errors.New("invalid api.login_attempts")
	}
	if c.API.LoginDelay < 0 {
		return errors.New("invalid api.login_delay")
	}
	if err := c.validateDelays(); err != nil {
		return err
	}
	if c.FaroSwap.Enabled {
		if err := c.FaroSwap.validate(); err != nil {
			return fmt.Errorf("faroswap: %w", err)
		}
	}
	if c.Liquidity.Enabled {
		if err := c.Liquidity.validate(); err != nil {
			return fmt.Errorf("liquidity: %w", err)
		}
		// token pair of the position comes from the faroswap section
		if !common.IsHexAddress(c.FaroSwap.WrappedNative) || !common.IsHexAddress(c.FaroSwap.TargetToken) {
			return errors.New("liquidity requires faroswap.wrapped_native and faroswap.target_token")
		}
	}
	switch c.Report.Format {
	case "csv", "json", "yaml":
	default:
		return fmt.Errorf("unsupported report.format %q", c.Report.Format)
	}
	return nil
}

func (c *Config) validateDelays() error {
	ranges := map[string]Range{
		"between_swaps":      c.Delays.BetweenSwaps,
		"between_iterations": c.Delays.BetweenIterations,
		"after_faroswap":     c.Delays.AfterFaroSwap,
	}
	for name, r := range ranges {
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("invalid delays.%s range [%d, %d]", name, r.Min, r.Max)
		}
	}
	return nil
}

func (f FaroSwapConfig) validate() error {
	for name, addr := range map[string]string{
		"router":         f.Router,
		"wrapped_native": f.WrappedNative,
		"target_token":   f.TargetToken,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s address %q", name, addr)
		}
	}
	for name, amount := range map[string]string{
		"amount":           f.Amount,
		"swap_back_amount": f.SwapBackAmount,
		"wrap_amount":      f.WrapAmount,
	} {
		if err := validateAmount(amount); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if len(f.Actions) == 0 {
		return errors.New("actions must not be empty")
	}
	for _, a := range f.Actions {
		switch a {
		case ActionWrap, ActionUnwrap, ActionSwap, ActionSwapBack:
		default:
			return fmt.Errorf("unsupported action %q", a)
		}
	}
	if f.DeadlineSec <= 0 {
		return errors.New("deadline must be positive")
	}
	return nil
}

func (l LiquidityConfig) validate() error {
	if !common.IsHexAddress(l.PositionManager) {
		return fmt.Errorf("invalid position_manager address %q", l.PositionManager)
	}
	if _, ok := new(big.Int).SetString(l.TokenID, 10); !ok {
		return fmt.Errorf("invalid token_id %q", l.TokenID)
	}
	if err := validateAmount(l.Amount0); err != nil {
		return fmt.Errorf("invalid amount0: %w", err)
	}
	if err := validateAmount(l.Amount1); err != nil {
		return fmt.Errorf("invalid amount1: %w", err)
	}
	return nil
}

// PositionID returns the liquidity position id as an integer.
func (l LiquidityConfig) PositionID() *big.Int {
	id, ok := new(big.Int).SetString(l.TokenID, 10)
	if !ok {
		return new(big.Int)
	}
	return id
}

func validateAmount(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	if !d.IsPositive() {
		return errors.New("amount must be positive")
	}
	return nil
}

func validateURL(rawURL, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}
