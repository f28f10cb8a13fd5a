package monitor

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"poolMonitor/internal/model"
)

// ConnectionStatus is the last known health of the network client.
type ConnectionStatus string

const (
	Connected    ConnectionStatus = "Connected"
	Disconnected ConnectionStatus = "Disconnected"
)

// AccountFilter restricts a bulk program account query.
type AccountFilter struct {
	DataSize uint64
}

// SubscriptionHandle identifies a live push subscription.
type SubscriptionHandle interface {
	ID() string
	// Done is closed when the subscription stops delivering, either after
	// Unsubscribe or because the transport dropped.
	Done() <-chan struct{}
	// Err reports why delivery stopped; nil after a clean Unsubscribe.
	Err() error
}

// NetworkClient is the chain access the monitor depends on.
type NetworkClient interface {
	QueryProgramAccounts(ctx context.Context, programID solana.PublicKey, filter *AccountFilter) ([]model.AccountNotification, error)
	// SubscribeProgramAccounts delivers account changes into out until the
	// handle is unsubscribed or the transport drops. ctx bounds the setup
	// call only.
	SubscribeProgramAccounts(ctx context.Context, programID solana.PublicKey, out chan<- model.AccountNotification) (SubscriptionHandle, error)
	Unsubscribe(ctx context.Context, handle SubscriptionHandle) error
	ConnectionHealth(ctx context.Context) ConnectionStatus
}

// UpdateSink receives every pool update the registry accepts.
type UpdateSink interface {
	Put(ctx context.Context, update model.PoolUpdate) error
}
