package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, 24*time.Hour, cfg.CycleInterval)
	assert.Equal(t, 300*time.Second, cfg.Transaction.ReceiptTimeout)
	assert.Equal(t, time.Second, cfg.Transaction.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.API.LoginDelay)
	assert.Equal(t, 10, cfg.API.LoginAttempts)
	assert.Equal(t, []string{ActionSwap}, cfg.FaroSwap.Actions)
	assert.False(t, cfg.Liquidity.Enabled)

	lo, hi := cfg.Delays.BetweenSwaps.Bounds()
	assert.Equal(t, 10*time.Second, lo)
	assert.Equal(t, 25*time.Second, hi)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
workers: 2
loop_count: 3
cycle_interval: 60
faroswap:
  actions: [wrap, swap, swap_back, unwrap]
  amount: "0.02"
liquidity:
  enabled: true
  position_manager: "0xF8a1D4FF0f9b9Af7CE58E1fc1833688F3BFd6115"
  token_id: "1234"
report:
  dir: out
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 3, cfg.LoopCount)
	assert.Equal(t, time.Minute, cfg.CycleInterval)
	assert.Equal(t, []string{ActionWrap, ActionSwap, ActionSwapBack, ActionUnwrap}, cfg.FaroSwap.Actions)
	assert.Equal(t, "0.02", cfg.FaroSwap.Amount)
	assert.Equal(t, "1234", cfg.Liquidity.PositionID().String())
	assert.Equal(t, "json", cfg.Report.Format)
}

func TestLoadEnvFileOverrides(t *testing.T) {
	env := writeFile(t, ".env", "PHAROS_BOT_WORKERS=7\nPHAROS_BOT_API_INVITE_CODE=abc\n")
	t.Cleanup(func() {
		os.Unsetenv("PHAROS_BOT_WORKERS")
		os.Unsetenv("PHAROS_BOT_API_INVITE_CODE")
	})

	cfg, err := Load("", env, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)
	assert.Equal(t, "abc", cfg.API.InviteCode)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad rpc", "rpc_url: ftp://node", "invalid rpc_url"},
		{"zero workers", "workers: 0", "invalid workers count"},
		{"zero loops", "loop_count: 0", "loop_count"},
		{"inverted delay", "delays:\n  between_swaps: {min: 30, max: 10}", "between_swaps"},
		{"unknown action", "faroswap:\n  actions: [bridge]", "unsupported action"},
		{"bad amount", "faroswap:\n  amount: \"-1\"", "invalid amount"},
		{"bad router", "faroswap:\n  router: nope", "invalid router"},
		{"liquidity without id", "liquidity:\n  enabled: true\n  position_manager: \"0xF8a1D4FF0f9b9Af7CE58E1fc1833688F3BFd6115\"", "invalid token_id"},
		{"bad report format", "report:\n  format: xml", "unsupported report.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
