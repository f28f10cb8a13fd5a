package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	"poolMonitor/internal/model"
	"poolMonitor/internal/monitor"
)

// Client wraps the Solana RPC and websocket clients. The websocket
// connection is dialled on first subscription and redialled after a drop.
type Client struct {
	rpcClient  *rpc.Client
	wsURL      string
	commitment rpc.CommitmentType
	logger     *zap.Logger

	mu     sync.Mutex
	wsConn *ws.Client
	nextID atomic.Uint64
}

// NewClient creates a chain client. An empty commitment defaults to confirmed.
func NewClient(rpcURL, wsURL string, commitment rpc.CommitmentType, logger *zap.Logger) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if wsURL == "" {
		return nil, fmt.Errorf("ws url is required")
	}
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		rpcClient:  rpc.New(rpcURL),
		wsURL:      wsURL,
		commitment: commitment,
		logger:     logger,
	}, nil
}

// Close closes the websocket connection and the RPC client.
func (c *Client) Close() {
	c.mu.Lock()
	if c.wsConn != nil {
		c.wsConn.Close()
		c.wsConn = nil
	}
	c.mu.Unlock()
	if err := c.rpcClient.Close(); err != nil {
		c.logger.Debug("close rpc client", zap.Error(err))
	}
}

// QueryProgramAccounts returns the program's accounts, optionally filtered
// by data size. Every result is stamped with the slot read just before the
// query, so later push updates always supersede it.
func (c *Client) QueryProgramAccounts(ctx context.Context, programID solana.PublicKey, filter *monitor.AccountFilter) ([]model.AccountNotification, error) {
	slot, err := c.rpcClient.GetSlot(ctx, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}

	opts := &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	}
	if filter != nil && filter.DataSize > 0 {
		opts.Filters = []rpc.RPCFilter{{DataSize: filter.DataSize}}
	}

	accounts, err := c.rpcClient.GetProgramAccountsWithOpts(ctx, programID, opts)
	if err != nil {
		return nil, fmt.Errorf("get program accounts: %w", err)
	}

	out := make([]model.AccountNotification, 0, len(accounts))
	for _, keyed := range accounts {
		if keyed == nil {
			continue
		}
		n, ok := notificationFromAccount(keyed.Pubkey, keyed.Account, slot)
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// AccountInfo fetches a single account.
func (c *Client) AccountInfo(ctx context.Context, address solana.PublicKey) (model.AccountNotification, error) {
	result, err := c.rpcClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return model.AccountNotification{}, fmt.Errorf("get account info %s: %w", address, err)
	}
	n, ok := notificationFromAccount(address, result.Value, result.Context.Slot)
	if !ok {
		return model.AccountNotification{}, fmt.Errorf("account %s has no data", address)
	}
	return n, nil
}

// ConnectionHealth reports Connected when the RPC node answers healthy.
func (c *Client) ConnectionHealth(ctx context.Context) monitor.ConnectionStatus {
	health, err := c.rpcClient.GetHealth(ctx)
	if err != nil || health != rpc.HealthOk {
		c.logger.Debug("rpc health check failed", zap.String("health", health), zap.Error(err))
		return monitor.Disconnected
	}
	return monitor.Connected
}

// SubscribeProgramAccounts opens a program subscription and delivers every
// change into out from a reader goroutine. ctx bounds the dial and the
// subscribe request only.
func (c *Client) SubscribeProgramAccounts(ctx context.Context, programID solana.PublicKey, out chan<- model.AccountNotification) (monitor.SubscriptionHandle, error) {
	return c.open(ctx, "program-"+programID.String(), out, func(conn *ws.Client) (receiver, func(), error) {
		sub, err := conn.ProgramSubscribeWithOpts(programID, c.commitment, solana.EncodingBase64, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("program subscribe: %w", err)
		}
		recv := func(ctx context.Context) (model.AccountNotification, bool, error) {
			result, err := sub.Recv(ctx)
			if err != nil || result == nil {
				return model.AccountNotification{}, false, err
			}
			n, ok := notificationFromAccount(result.Value.Pubkey, result.Value.Account, result.Context.Slot)
			return n, ok, nil
		}
		return recv, sub.Unsubscribe, nil
	})
}

// SubscribeAccount opens a subscription on a single account, with the same
// delivery and drop semantics as SubscribeProgramAccounts.
func (c *Client) SubscribeAccount(ctx context.Context, address solana.PublicKey, out chan<- model.AccountNotification) (monitor.SubscriptionHandle, error) {
	return c.open(ctx, "account-"+address.String(), out, func(conn *ws.Client) (receiver, func(), error) {
		sub, err := conn.AccountSubscribeWithOpts(address, c.commitment, solana.EncodingBase64)
		if err != nil {
			return nil, nil, fmt.Errorf("account subscribe: %w", err)
		}
		recv := func(ctx context.Context) (model.AccountNotification, bool, error) {
			result, err := sub.Recv(ctx)
			if err != nil || result == nil {
				return model.AccountNotification{}, false, err
			}
			n, ok := notificationFromAccount(address, &result.Value.Account, result.Context.Slot)
			return n, ok, nil
		}
		return recv, sub.Unsubscribe, nil
	})
}

// Unsubscribe stops a subscription and waits for its reader to exit.
func (c *Client) Unsubscribe(ctx context.Context, handle monitor.SubscriptionHandle) error {
	s, ok := handle.(*subscription)
	if !ok {
		return fmt.Errorf("unknown subscription handle %T", handle)
	}

	s.stop()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// receiver returns the next notification of a subscription; ok is false
// for messages that carry no account data.
type receiver func(ctx context.Context) (n model.AccountNotification, ok bool, err error)

type subscribeFunc func(conn *ws.Client) (receiver, func(), error)

func (c *Client) open(ctx context.Context, name string, out chan<- model.AccountNotification, subscribe subscribeFunc) (monitor.SubscriptionHandle, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	type result struct {
		recv        receiver
		unsubscribe func()
		err         error
	}
	done := make(chan result, 1)
	go func() {
		recv, unsubscribe, err := subscribe(conn)
		done <- result{recv: recv, unsubscribe: unsubscribe, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		c.discard(conn)
		return nil, ctx.Err()
	case res = <-done:
		if res.err != nil {
			c.discard(conn)
			return nil, res.err
		}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		id:          name + "-" + strconv.FormatUint(c.nextID.Add(1), 10),
		unsubscribe: res.unsubscribe,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go c.read(readCtx, conn, s, res.recv, out)

	c.logger.Info("subscription opened", zap.String("subscription_id", s.id), zap.String("commitment", string(c.commitment)))
	return s, nil
}

func (c *Client) read(ctx context.Context, conn *ws.Client, s *subscription, recv receiver, out chan<- model.AccountNotification) {
	for {
		n, ok, err := recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.finish(nil)
				return
			}
			c.logger.Warn("subscription dropped", zap.String("subscription_id", s.id), zap.Error(err))
			c.discard(conn)
			s.finish(err)
			return
		}
		if !ok {
			// closed streams yield empty messages after Unsubscribe
			if ctx.Err() != nil {
				s.finish(nil)
				return
			}
			continue
		}
		select {
		case out <- n:
		case <-ctx.Done():
			s.finish(nil)
			return
		}
	}
}

func (c *Client) connect(ctx context.Context) (*ws.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn != nil {
		return c.wsConn, nil
	}
	conn, err := ws.Connect(ctx, c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	c.wsConn = conn
	return conn, nil
}

// discard closes conn and forgets it so the next subscription redials.
func (c *Client) discard(conn *ws.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn == conn {
		c.wsConn = nil
		conn.Close()
	}
}

// subscription implements monitor.SubscriptionHandle.
type subscription struct {
	id          string
	unsubscribe func()
	cancel      context.CancelFunc

	stopOnce   sync.Once
	finishOnce sync.Once
	done       chan struct{}
	mu         sync.Mutex
	err        error
}

func (s *subscription) ID() string            { return s.id }
func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.unsubscribe()
	})
}

func (s *subscription) finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func notificationFromAccount(address solana.PublicKey, account *rpc.Account, slot uint64) (model.AccountNotification, bool) {
	if account == nil || account.Data == nil {
		return model.AccountNotification{}, false
	}
	return model.AccountNotification{
		Address: address,
		Owner:   account.Owner,
		Data:    account.Data.GetBinary(),
		Slot:    slot,
	}, true
}

// IsRateLimited reports whether err is an HTTP 429 from the RPC node.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code == 429
	}
	return strings.Contains(err.Error(), "429")
}
