package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"poolMonitor/internal/dex"
	"poolMonitor/internal/model"
)

type fakeTokenClient struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]model.AccountNotification
	handles  map[solana.PublicKey]*fakeHandle
	outs     map[solana.PublicKey]chan<- model.AccountNotification
	unsubs   []string
	subs     int
}

func newFakeTokenClient() *fakeTokenClient {
	return &fakeTokenClient{
		accounts: make(map[solana.PublicKey]model.AccountNotification),
		handles:  make(map[solana.PublicKey]*fakeHandle),
		outs:     make(map[solana.PublicKey]chan<- model.AccountNotification),
	}
}

func (c *fakeTokenClient) AccountInfo(ctx context.Context, address solana.PublicKey) (model.AccountNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	account, ok := c.accounts[address]
	if !ok {
		return model.AccountNotification{}, fmt.Errorf("account %s has no data", address)
	}
	return account, nil
}

func (c *fakeTokenClient) SubscribeAccount(ctx context.Context, address solana.PublicKey, out chan<- model.AccountNotification) (SubscriptionHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs++
	handle := newFakeHandle(fmt.Sprintf("account-%d", c.subs))
	c.handles[address] = handle
	c.outs[address] = out
	return handle, nil
}

func (c *fakeTokenClient) Unsubscribe(ctx context.Context, handle SubscriptionHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubs = append(c.unsubs, handle.ID())
	handle.(*fakeHandle).stop(nil)
	return nil
}

func (c *fakeTokenClient) handle(address solana.PublicKey) *fakeHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[address]
}

func (c *fakeTokenClient) push(n model.AccountNotification) {
	c.mu.Lock()
	out := c.outs[n.Address]
	c.mu.Unlock()
	out <- n
}

func mintNotification(t *testing.T, address solana.PublicKey, slot, supply uint64) model.AccountNotification {
	t.Helper()
	data, err := dex.EncodeMint(token.Mint{Supply: supply, Decimals: 6, IsInitialized: true})
	require.NoError(t, err)
	return model.AccountNotification{Address: address, Owner: solana.TokenProgramID, Data: data, Slot: slot}
}

func newTestWatcher(t *testing.T, client *fakeTokenClient, logger *zap.Logger) *TokenWatcher {
	t.Helper()
	w, err := NewTokenWatcher(client, logger)
	require.NoError(t, err)
	t.Cleanup(func() { w.StopAll(context.Background()) })
	return w
}

func TestWatchTokenFollowsSupply(t *testing.T) {
	client := newFakeTokenClient()
	mint := testKey(0x31)
	client.accounts[mint] = mintNotification(t, mint, 100, 1000)
	w := newTestWatcher(t, client, zaptest.NewLogger(t))

	watched, err := w.Watch(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), watched.Supply)
	assert.Equal(t, uint8(6), watched.Decimals)
	assert.Equal(t, "account-1", watched.SubscriptionID)
	assert.True(t, watched.Active)

	again, err := w.Watch(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, watched.SubscriptionID, again.SubscriptionID)

	client.push(mintNotification(t, mint, 90, 1))
	client.push(mintNotification(t, mint, 110, 2500))
	require.Eventually(t, func() bool {
		got, _ := w.Get(mint)
		return got.Slot == 110
	}, time.Second, 5*time.Millisecond)

	got, ok := w.Get(mint)
	require.True(t, ok)
	assert.Equal(t, uint64(2500), got.Supply)
	assert.Equal(t, uint64(1), got.Updates)
	assert.Len(t, w.Tokens(), 1)
}

func TestWatchRejectsMissingOrNonMintAccount(t *testing.T) {
	client := newFakeTokenClient()
	pool := testKey(0x32)
	client.accounts[pool] = model.AccountNotification{Address: pool, Owner: testProgramID, Data: make([]byte, 1440)}
	w := newTestWatcher(t, client, zaptest.NewLogger(t))

	_, err := w.Watch(context.Background(), testKey(0x33))
	require.Error(t, err)

	_, err = w.Watch(context.Background(), pool)
	assert.ErrorIs(t, err, dex.ErrNotMint)
	assert.Empty(t, w.Tokens())
}

func TestUnwatchStopsSubscription(t *testing.T) {
	client := newFakeTokenClient()
	mint := testKey(0x34)
	client.accounts[mint] = mintNotification(t, mint, 100, 1)
	w := newTestWatcher(t, client, zaptest.NewLogger(t))

	_, err := w.Watch(context.Background(), mint)
	require.NoError(t, err)
	require.NoError(t, w.Unwatch(context.Background(), mint))

	_, ok := w.Get(mint)
	assert.False(t, ok)
	assert.Equal(t, []string{"account-1"}, client.unsubs)
	assert.ErrorIs(t, w.Unwatch(context.Background(), mint), ErrTokenNotWatched)
}

func TestTokenDropMarksInactiveAndRewatch(t *testing.T) {
	client := newFakeTokenClient()
	mint := testKey(0x35)
	client.accounts[mint] = mintNotification(t, mint, 100, 1)
	core, logs := observer.New(zap.WarnLevel)
	w := newTestWatcher(t, client, zap.New(core))

	_, err := w.Watch(context.Background(), mint)
	require.NoError(t, err)
	client.handle(mint).stop(errTransport)

	require.Eventually(t, func() bool {
		got, _ := w.Get(mint)
		return !got.Active
	}, time.Second, 5*time.Millisecond)
	got, _ := w.Get(mint)
	assert.Equal(t, errTransport.Error(), got.Err)
	assert.Equal(t, 1, logs.FilterMessage("token subscription dropped").Len())

	rewatched, err := w.Watch(context.Background(), mint)
	require.NoError(t, err)
	assert.True(t, rewatched.Active)
	assert.Equal(t, "account-2", rewatched.SubscriptionID)
}
