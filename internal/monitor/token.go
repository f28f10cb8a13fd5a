package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"poolMonitor/internal/dex"
	"poolMonitor/internal/model"
)

var ErrTokenNotWatched = errors.New("token is not watched")

// TokenClient is the chain access the token watcher depends on.
type TokenClient interface {
	AccountInfo(ctx context.Context, address solana.PublicKey) (model.AccountNotification, error)
	SubscribeAccount(ctx context.Context, address solana.PublicKey, out chan<- model.AccountNotification) (SubscriptionHandle, error)
	Unsubscribe(ctx context.Context, handle SubscriptionHandle) error
}

// WatchedToken is the last known state of a watched mint.
type WatchedToken struct {
	Address        solana.PublicKey
	Supply         uint64
	Decimals       uint8
	Slot           uint64
	LastUpdate     time.Time
	Updates        uint64
	SubscriptionID string
	// Active is false once the subscription dropped; Err says why.
	Active bool
	Err    string
}

type tokenWatch struct {
	handle SubscriptionHandle
	stop   chan struct{}
	done   chan struct{}
}

// TokenWatcher follows supply changes of individual token mints, one
// account subscription per mint.
type TokenWatcher struct {
	client TokenClient
	logger *zap.Logger
	now    func() time.Time

	// mu serializes Watch and Unwatch.
	mu      sync.Mutex
	watches map[solana.PublicKey]*tokenWatch
	tokens  *xsync.Map[solana.PublicKey, WatchedToken]
}

func NewTokenWatcher(client TokenClient, logger *zap.Logger) (*TokenWatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("token client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenWatcher{
		client:  client,
		logger:  logger,
		now:     time.Now,
		watches: make(map[solana.PublicKey]*tokenWatch),
		tokens:  xsync.NewMap[solana.PublicKey, WatchedToken](),
	}, nil
}

// Watch checks that address is an existing mint and subscribes to it.
// Watching a token twice returns the current state; a token whose
// subscription dropped is subscribed again.
func (w *TokenWatcher) Watch(ctx context.Context, address solana.PublicKey) (WatchedToken, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.watches[address]; ok {
		select {
		case <-existing.handle.Done():
			<-existing.done
			delete(w.watches, address)
		default:
			token, _ := w.tokens.Load(address)
			return token, nil
		}
	}

	account, err := w.client.AccountInfo(ctx, address)
	if err != nil {
		return WatchedToken{}, fmt.Errorf("token %s not found: %w", address, err)
	}
	mint, err := dex.DecodeMint(account.Owner, account.Data)
	if err != nil {
		return WatchedToken{}, fmt.Errorf("token %s: %w", address, err)
	}

	notifications := make(chan model.AccountNotification, 16)
	handle, err := w.client.SubscribeAccount(ctx, address, notifications)
	if err != nil {
		return WatchedToken{}, &SubscriptionError{Kind: ErrSetupFailed, Err: err}
	}

	token := WatchedToken{
		Address:        address,
		Supply:         mint.Supply,
		Decimals:       mint.Decimals,
		Slot:           account.Slot,
		LastUpdate:     w.now(),
		SubscriptionID: handle.ID(),
		Active:         true,
	}
	w.tokens.Store(address, token)

	watch := &tokenWatch{handle: handle, stop: make(chan struct{}), done: make(chan struct{})}
	w.watches[address] = watch
	go w.run(address, watch, notifications)

	w.logger.Info("watching token",
		zap.Stringer("token", address),
		zap.String("subscription_id", handle.ID()),
		zap.Uint64("supply", mint.Supply),
		zap.Uint8("decimals", mint.Decimals),
	)
	return token, nil
}

func (w *TokenWatcher) run(address solana.PublicKey, watch *tokenWatch, notifications <-chan model.AccountNotification) {
	defer close(watch.done)
	for {
		select {
		case n := <-notifications:
			w.handleUpdate(address, n)
		case <-watch.handle.Done():
			select {
			case <-watch.stop:
				return
			default:
			}
			err := watch.handle.Err()
			w.tokens.Compute(address, func(old WatchedToken, loaded bool) (WatchedToken, xsync.ComputeOp) {
				if !loaded {
					return old, xsync.CancelOp
				}
				old.Active = false
				if err != nil {
					old.Err = err.Error()
				}
				return old, xsync.UpdateOp
			})
			w.logger.Warn("token subscription dropped", zap.Stringer("token", address), zap.Error(err))
			return
		case <-watch.stop:
			return
		}
	}
}

// handleUpdate applies a pushed mint change. Older slots and payloads that
// are no longer a mint are ignored.
func (w *TokenWatcher) handleUpdate(address solana.PublicKey, n model.AccountNotification) {
	mint, err := dex.DecodeMint(n.Owner, n.Data)
	if err != nil {
		w.logger.Debug("ignore token update", zap.Stringer("token", address), zap.Error(err))
		return
	}

	applied := false
	token, _ := w.tokens.Compute(address, func(old WatchedToken, loaded bool) (WatchedToken, xsync.ComputeOp) {
		if !loaded || n.Slot < old.Slot {
			return old, xsync.CancelOp
		}
		old.Supply = mint.Supply
		old.Decimals = mint.Decimals
		old.Slot = n.Slot
		old.LastUpdate = w.now()
		old.Updates++
		applied = true
		return old, xsync.UpdateOp
	})
	if !applied {
		return
	}
	w.logger.Info("token updated",
		zap.Stringer("token", address),
		zap.Uint64("slot", n.Slot),
		zap.Uint64("supply", token.Supply),
	)
}

// Unwatch removes the subscription for address and forgets the token.
func (w *TokenWatcher) Unwatch(ctx context.Context, address solana.PublicKey) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	watch, ok := w.watches[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTokenNotWatched, address)
	}
	delete(w.watches, address)
	close(watch.stop)

	err := w.client.Unsubscribe(ctx, watch.handle)
	select {
	case <-watch.done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	w.tokens.Delete(address)

	w.logger.Info("stopped watching token", zap.Stringer("token", address), zap.String("subscription_id", watch.handle.ID()))
	if err != nil {
		return fmt.Errorf("unsubscribe token %s: %w", address, err)
	}
	return nil
}

// StopAll unwatches every token.
func (w *TokenWatcher) StopAll(ctx context.Context) error {
	w.mu.Lock()
	addresses := make([]solana.PublicKey, 0, len(w.watches))
	for address := range w.watches {
		addresses = append(addresses, address)
	}
	w.mu.Unlock()

	var errs []error
	for _, address := range addresses {
		if err := w.Unwatch(ctx, address); err != nil && !errors.Is(err, ErrTokenNotWatched) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *TokenWatcher) Get(address solana.PublicKey) (WatchedToken, bool) {
	return w.tokens.Load(address)
}

// Tokens returns the watched tokens ordered by address.
func (w *TokenWatcher) Tokens() []WatchedToken {
	out := make([]WatchedToken, 0, w.tokens.Size())
	w.tokens.Range(func(_ solana.PublicKey, token WatchedToken) bool {
		out = append(out, token)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}
