package model

// PoolSummary is the printable view of a decoded pool.
type PoolSummary struct {
	Discriminator string `json:"discriminator"`
	TokenMintA    string `json:"token_mint_a"`
	TokenMintB    string `json:"token_mint_b"`
	TokenVaultA   string `json:"token_vault_a"`
	TokenVaultB   string `json:"token_vault_b"`
	TickSpacing   uint16 `json:"tick_spacing"`
	Liquidity     string `json:"liquidity"`
	SqrtPriceX64  string `json:"sqrt_price_x64"`
	TickCurrent   int32  `json:"tick_current"`
	Price         string `json:"price"`
	PriceMode     string `json:"price_mode"`
}

// PoolUpdate is emitted to sinks whenever the registry accepts an observation.
type PoolUpdate struct {
	Address     string       `json:"address"`
	AddressHex  string       `json:"address_hex"`
	Owner       string       `json:"owner"`
	Slot        uint64       `json:"slot"`
	DataLength  int          `json:"data_len"`
	FirstSeenAt string       `json:"first_seen_at"`
	LastSeenAt  string       `json:"last_seen_at"`
	Updates     uint64       `json:"updates"`
	Source      string       `json:"source"`
	Pool        *PoolSummary `json:"pool,omitempty"`
	DecodeError string       `json:"decode_error,omitempty"`
}

const (
	SourceBootstrap = "bootstrap"
	SourceLive      = "live"
)
