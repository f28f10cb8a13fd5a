package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"poolMonitor/internal/dex"
	"poolMonitor/internal/model"
)

var testProgramID = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")

type fakeHandle struct {
	id   string
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

func newFakeHandle(id string) *fakeHandle {
	return &fakeHandle{id: id, done: make(chan struct{})}
}

func (h *fakeHandle) ID() string            { return h.id }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *fakeHandle) stop(err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}

type fakeClient struct {
	mu sync.Mutex

	filtered   []model.AccountNotification
	unfiltered []model.AccountNotification
	queryErr   error
	queries    []*AccountFilter
	// block, when set, holds every query until it is closed or ctx ends.
	block chan struct{}

	subscribeErr error
	handles      []*fakeHandle
	out          chan<- model.AccountNotification
	unsubscribed []string

	health ConnectionStatus
}

func (c *fakeClient) QueryProgramAccounts(ctx context.Context, programID solana.PublicKey, filter *AccountFilter) ([]model.AccountNotification, error) {
	c.mu.Lock()
	c.queries = append(c.queries, filter)
	block, queryErr, filtered, unfiltered := c.block, c.queryErr, c.filtered, c.unfiltered
	c.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if queryErr != nil {
		return nil, queryErr
	}
	if filter != nil {
		return filtered, nil
	}
	return unfiltered, nil
}

func (c *fakeClient) queryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

func (c *fakeClient) SubscribeProgramAccounts(ctx context.Context, programID solana.PublicKey, out chan<- model.AccountNotification) (SubscriptionHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	handle := newFakeHandle(fmt.Sprintf("sub-%d", len(c.handles)+1))
	c.handles = append(c.handles, handle)
	c.out = out
	return handle, nil
}

func (c *fakeClient) Unsubscribe(ctx context.Context, handle SubscriptionHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, handle.ID())
	handle.(*fakeHandle).stop(nil)
	return nil
}

func (c *fakeClient) ConnectionHealth(ctx context.Context) ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.health == "" {
		return Connected
	}
	return c.health
}

func (c *fakeClient) setSubscribeErr(err error) {
	c.mu.Lock()
	c.subscribeErr = err
	c.mu.Unlock()
}

func (c *fakeClient) subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func (c *fakeClient) lastHandle() *fakeHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.handles) == 0 {
		return nil
	}
	return c.handles[len(c.handles)-1]
}

func (c *fakeClient) unsubscribeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unsubscribed)
}

func (c *fakeClient) push(n model.AccountNotification) {
	c.mu.Lock()
	out := c.out
	c.mu.Unlock()
	out <- n
}

type captureSink struct {
	mu      sync.Mutex
	updates []model.PoolUpdate
	err     error
}

func (s *captureSink) Put(ctx context.Context, update model.PoolUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
	return s.err
}

func (s *captureSink) all() []model.PoolUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PoolUpdate(nil), s.updates...)
}

var errTransport = errors.New("connection reset")

func testKey(seed byte) solana.PublicKey {
	var key solana.PublicKey
	for i := range key {
		key[i] = seed
	}
	return key
}

func testPool(tick int32) *model.DecodedPool {
	return &model.DecodedPool{
		Discriminator: [8]byte{0xf7, 0xed, 0xe3, 0xf5, 0xd7, 0xc3, 0xde, 0x46},
		TokenMintA:    testKey(0x11),
		TokenMintB:    testKey(0x22),
		TickSpacing:   60,
		Liquidity:     bin.Uint128{Lo: 1000},
		SqrtPriceX64:  bin.Uint128{Hi: 1},
		TickCurrent:   tick,
	}
}

func poolNotification(t *testing.T, seed byte, slot uint64, tick int32) model.AccountNotification {
	t.Helper()
	data, err := dex.EncodePool(testPool(tick), dex.DefaultPoolAccountSize)
	require.NoError(t, err)
	return model.AccountNotification{Address: testKey(seed), Owner: testProgramID, Data: data, Slot: slot}
}
