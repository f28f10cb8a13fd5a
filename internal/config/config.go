package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultProgramID is the AMM program whose pool accounts are monitored.
const DefaultProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL            string
	WSURL             string
	ProgramID         string
	Commitment        string
	PoolAccountSize   int
	Discriminator     string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RateLimitFactor   int
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	HealthInterval    time.Duration
	QueueSize         int
	MaxPools          int
	PriceMode         string
	Limit             int
	Order             string
	Tokens            []string
	Out               string
	RedisAddr         string
	RedisChannel      string
	StatusInterval    time.Duration
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
// MAINNET_RPC_URL and MAINNET_WS_URL are accepted next to the MONITOR_ names.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("rpc", "MONITOR_RPC", "MAINNET_RPC_URL"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("ws", "MONITOR_WS", "MAINNET_WS_URL"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	v.SetDefault("program-id", DefaultProgramID)
	v.SetDefault("commitment", "confirmed")
	v.SetDefault("pool-account-size", 1440)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-delay", time.Second)
	v.SetDefault("rate-limit-factor", 2)
	v.SetDefault("reconnect-delay", time.Second)
	v.SetDefault("reconnect-max-delay", 30*time.Second)
	v.SetDefault("health-interval", 15*time.Second)
	v.SetDefault("queue-size", 256)
	v.SetDefault("max-pools", 0)
	v.SetDefault("price-mode", "legacy")
	v.SetDefault("limit", 5)
	v.SetDefault("order", "query")
	v.SetDefault("redis-channel", "pool-updates")
	v.SetDefault("status-interval", time.Minute)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:            strings.TrimSpace(v.GetString("rpc")),
		WSURL:             strings.TrimSpace(v.GetString("ws")),
		ProgramID:         strings.TrimSpace(v.GetString("program-id")),
		Commitment:        v.GetString("commitment"),
		PoolAccountSize:   v.GetInt("pool-account-size"),
		Discriminator:     v.GetString("discriminator"),
		Timeout:           v.GetDuration("timeout"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryDelay:        v.GetDuration("retry-delay"),
		RateLimitFactor:   v.GetInt("rate-limit-factor"),
		ReconnectDelay:    v.GetDuration("reconnect-delay"),
		ReconnectMaxDelay: v.GetDuration("reconnect-max-delay"),
		HealthInterval:    v.GetDuration("health-interval"),
		QueueSize:         v.GetInt("queue-size"),
		MaxPools:          v.GetInt("max-pools"),
		PriceMode:         v.GetString("price-mode"),
		Limit:             v.GetInt("limit"),
		Order:             v.GetString("order"),
		Tokens:            v.GetStringSlice("token"),
		Out:               v.GetString("out"),
		RedisAddr:         v.GetString("redis-addr"),
		RedisChannel:      v.GetString("redis-channel"),
		StatusInterval:    v.GetDuration("status-interval"),
		LogLevel:          v.GetString("log-level"),
	}

	if cfg.WSURL == "" && cfg.RPCURL != "" {
		ws, err := DeriveWSURL(cfg.RPCURL)
		if err != nil {
			return Config{}, err
		}
		cfg.WSURL = ws
	}

	return cfg, nil
}

// DeriveWSURL maps an http(s) RPC endpoint to its ws(s) counterpart.
func DeriveWSURL(rpcURL string) (string, error) {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return "", fmt.Errorf("invalid rpc url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported rpc url scheme: %q", u.Scheme)
	}
	return u.String(), nil
}

// ParseProgramID converts a base58 program id into a public key.
func ParseProgramID(input string) (solana.PublicKey, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return solana.PublicKey{}, fmt.Errorf("program id is required")
	}
	key, err := solana.PublicKeyFromBase58(input)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid program id %s: %w", input, err)
	}
	return key, nil
}
