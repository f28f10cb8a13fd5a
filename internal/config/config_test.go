package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultProgramID, cfg.ProgramID)
	assert.Equal(t, "confirmed", cfg.Commitment)
	assert.Equal(t, 1440, cfg.PoolAccountSize)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 2, cfg.RateLimitFactor)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMaxDelay)
	assert.Equal(t, "legacy", cfg.PriceMode)
	assert.Equal(t, "pool-updates", cfg.RedisChannel)
	assert.Equal(t, 5, cfg.Limit)
	assert.Equal(t, "query", cfg.Order)
	assert.Empty(t, cfg.RPCURL)
	assert.Empty(t, cfg.WSURL)
}

func TestLoadLegacyEnvNames(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MAINNET_RPC_URL", "https://rpc.example.org")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example.org", cfg.RPCURL)
	assert.Equal(t, "wss://rpc.example.org", cfg.WSURL)

	t.Setenv("MAINNET_WS_URL", "wss://ws.example.org")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "wss://ws.example.org", cfg.WSURL)
}

func TestLoadPrefixedEnvAndFlags(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MONITOR_RPC", "http://localhost:8899")
	t.Setenv("MONITOR_MAX_RETRIES", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("timeout", 30*time.Second, "")
	require.NoError(t, flags.Parse([]string{"--timeout=5s"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8899", cfg.RPCURL)
	assert.Equal(t, "ws://localhost:8899", cfg.WSURL)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoadConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "monitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rpc: https://rpc.example.org\npool-account-size: 2208\nprice-mode: precise\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2208, cfg.PoolAccountSize)
	assert.Equal(t, "precise", cfg.PriceMode)

	_, err = Load(filepath.Join(dir, "missing.yaml"), nil)
	require.Error(t, err)
}

func TestDeriveWSURL(t *testing.T) {
	ws, err := DeriveWSURL("https://api.mainnet-beta.solana.com")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.mainnet-beta.solana.com", ws)

	_, err = DeriveWSURL("ftp://example.org")
	require.Error(t, err)
}

func TestParseProgramID(t *testing.T) {
	key, err := ParseProgramID(" " + DefaultProgramID + " ")
	require.NoError(t, err)
	assert.Equal(t, DefaultProgramID, key.String())

	_, err = ParseProgramID("")
	require.Error(t, err)
	_, err = ParseProgramID("not-base58!")
	require.Error(t, err)
}
