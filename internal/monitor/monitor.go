package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"poolMonitor/internal/dex"
	"poolMonitor/internal/model"
)

// State is the lifecycle state of a Monitor.
type State int32

const (
	Idle State = iota
	Starting
	Active
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds runtime settings for the monitor.
type Config struct {
	ProgramID       solana.PublicKey
	PoolAccountSize int
	// Discriminator, when set, must match the first 8 bytes of every pool.
	Discriminator []byte
	PriceMode     dex.PriceMode

	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	RateLimitFactor int
	IsRateLimited   func(error) bool

	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	// ReconnectWarnEvery logs every Nth consecutive reconnect failure at
	// warn level; the others go to debug.
	ReconnectWarnEvery int
	HealthInterval     time.Duration

	QueueSize int
	MaxPools  int
}

func (c Config) withDefaults() Config {
	if c.PoolAccountSize <= 0 {
		c.PoolAccountSize = dex.DefaultPoolAccountSize
	}
	if c.PriceMode == "" {
		c.PriceMode = dex.PriceLegacy
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.RateLimitFactor < 1 {
		c.RateLimitFactor = 1
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.ReconnectMaxDelay < c.ReconnectDelay {
		c.ReconnectMaxDelay = c.ReconnectDelay
	}
	if c.ReconnectWarnEvery <= 0 {
		c.ReconnectWarnEvery = 10
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 15 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

// Status is a point-in-time view of the monitor. Reading it never blocks
// on network or lifecycle work.
type Status struct {
	IsMonitoring      bool
	HasSubscription   bool
	State             State
	ConnectionStatus  ConnectionStatus
	KnownPoolsCount   int
	BootstrapRetries  int64
	ReconnectFailures int64
	Processed         int64
	Ignored           int64
	DecodeFailures    int64
	StaleUpdates      int64
	LastError         string
}

// Monitor watches a program's pool accounts: it bootstraps the registry
// with a bulk query, then keeps it current from a push subscription.
type Monitor struct {
	cfg        Config
	client     NetworkClient
	sink       UpdateSink
	logger     *zap.Logger
	classifier dex.Classifier
	decoder    *dex.PoolDecoder
	registry   *Registry
	now        func() time.Time

	// lifecycle serializes StartMonitoring and StopMonitoring.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// startMu guards cancelStart, which aborts a StartMonitoring in progress.
	startMu     sync.Mutex
	cancelStart context.CancelFunc

	handleMu sync.Mutex
	handle   SubscriptionHandle

	state        atomic.Int32
	connection   atomic.Value
	reconnecting atomic.Bool
	lastErr      atomic.Value

	bootstrapRetries  atomic.Int64
	reconnectFailures atomic.Int64
	processed         atomic.Int64
	ignored           atomic.Int64
	decodeFailures    atomic.Int64
	staleUpdates      atomic.Int64
}

// New builds a Monitor. sink may be nil.
func New(cfg Config, client NetworkClient, sink UpdateSink, logger *zap.Logger) (*Monitor, error) {
	if client == nil {
		return nil, fmt.Errorf("network client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	decoder, err := dex.NewPoolDecoder(cfg.Discriminator)
	if err != nil {
		return nil, err
	}
	registry, err := NewRegistry(cfg.MaxPools)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:        cfg,
		client:     client,
		sink:       sink,
		logger:     logger,
		classifier: dex.NewClassifier(cfg.PoolAccountSize),
		decoder:    decoder,
		registry:   registry,
		now:        time.Now,
	}
	m.connection.Store(Disconnected)
	m.lastErr.Store("")
	return m, nil
}

// Registry exposes the known-pool registry for reads.
func (m *Monitor) Registry() *Registry {
	return m.registry
}

// StartMonitoring bootstraps the registry and opens the push subscription.
// It returns true once monitoring is active, including when it already was.
// On failure the monitor is left idle and the error is kept in Status.
func (m *Monitor) StartMonitoring(ctx context.Context) bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.State() == Active {
		m.logger.Info("monitoring already active", zap.String("program_id", m.cfg.ProgramID.String()))
		return true
	}
	m.setState(Starting)
	m.logger.Info("start monitoring", zap.String("program_id", m.cfg.ProgramID.String()), zap.Int("pool_account_size", m.cfg.PoolAccountSize))

	startCtx, cancelStart := context.WithCancel(ctx)
	m.startMu.Lock()
	m.cancelStart = cancelStart
	m.startMu.Unlock()
	defer func() {
		m.startMu.Lock()
		m.cancelStart = nil
		m.startMu.Unlock()
		cancelStart()
	}()

	m.GetRecentPools(startCtx, 0)

	runCtx, cancel := context.WithCancel(context.Background())
	notifications := make(chan model.AccountNotification, m.cfg.QueueSize)

	m.wg.Add(1)
	go m.consume(runCtx, notifications)

	handle, err := m.openInitial(startCtx, notifications)
	if err != nil {
		cancel()
		m.wg.Wait()
		subErr := &SubscriptionError{Kind: ErrSetupFailed, Err: err}
		m.setLastError(subErr)
		m.setState(Idle)
		m.logger.Error("start monitoring failed", zap.Error(subErr))
		return false
	}

	m.setHandle(handle)
	m.cancel = cancel
	m.refreshHealth(startCtx)
	m.setState(Active)

	m.wg.Add(2)
	go m.supervise(runCtx, notifications)
	go m.pollHealth(runCtx)

	m.logger.Info("monitoring active", zap.String("subscription_id", handle.ID()), zap.Int("known_pools", m.registry.Size()))
	return true
}

// StopMonitoring cancels the reconnect and health loops, releases the
// subscription and returns the monitor to idle. It is a no-op when idle
// and safe to call concurrently.
func (m *Monitor) StopMonitoring(ctx context.Context) {
	m.startMu.Lock()
	if m.cancelStart != nil {
		m.cancelStart()
	}
	m.startMu.Unlock()

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.State() == Idle {
		return
	}
	m.setState(Stopping)

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.wg.Wait()

	if handle := m.takeHandle(); handle != nil {
		if err := m.client.Unsubscribe(ctx, handle); err != nil {
			m.logger.Warn("unsubscribe failed", zap.String("subscription_id", handle.ID()), zap.Error(err))
		}
	}
	m.reconnecting.Store(false)
	m.setState(Idle)
	m.logger.Info("monitoring stopped", zap.Int("known_pools", m.registry.Size()))
}

func (m *Monitor) State() State {
	return State(m.state.Load())
}

func (m *Monitor) Status() Status {
	state := m.State()
	return Status{
		IsMonitoring:      state == Active,
		HasSubscription:   state == Active,
		State:             state,
		ConnectionStatus:  m.connection.Load().(ConnectionStatus),
		KnownPoolsCount:   m.registry.Size(),
		BootstrapRetries:  m.bootstrapRetries.Load(),
		ReconnectFailures: m.reconnectFailures.Load(),
		Processed:         m.processed.Load(),
		Ignored:           m.ignored.Load(),
		DecodeFailures:    m.decodeFailures.Load(),
		StaleUpdates:      m.staleUpdates.Load(),
		LastError:         m.lastErr.Load().(string),
	}
}

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
}

func (m *Monitor) setLastError(err error) {
	m.lastErr.Store(err.Error())
}

func (m *Monitor) setConnection(status ConnectionStatus) {
	m.connection.Store(status)
}

func (m *Monitor) setHandle(handle SubscriptionHandle) {
	m.handleMu.Lock()
	m.handle = handle
	m.handleMu.Unlock()
}

func (m *Monitor) currentHandle() SubscriptionHandle {
	m.handleMu.Lock()
	defer m.handleMu.Unlock()
	return m.handle
}

func (m *Monitor) takeHandle() SubscriptionHandle {
	m.handleMu.Lock()
	defer m.handleMu.Unlock()
	handle := m.handle
	m.handle = nil
	return handle
}

func (m *Monitor) subscribe(ctx context.Context, notifications chan<- model.AccountNotification) (SubscriptionHandle, error) {
	subCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	return m.client.SubscribeProgramAccounts(subCtx, m.cfg.ProgramID, notifications)
}

// openInitial subscribes unless the start was cancelled, and releases a
// subscription that completed after the cancellation.
func (m *Monitor) openInitial(ctx context.Context, notifications chan<- model.AccountNotification) (SubscriptionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("start cancelled: %w", err)
	}
	handle, err := m.subscribe(ctx, notifications)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		m.release(handle)
		return nil, fmt.Errorf("start cancelled: %w", err)
	}
	return handle, nil
}

// consume is the only reader of notifications.
func (m *Monitor) consume(ctx context.Context, notifications <-chan model.AccountNotification) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notifications:
			m.process(ctx, n, model.SourceLive)
		}
	}
}

// process classifies, decodes and records one notification. It returns the
// stored record when the notification was a pool candidate.
func (m *Monitor) process(ctx context.Context, n model.AccountNotification, source string) (model.PoolRecord, bool) {
	if m.classifier.Classify(n) != dex.PoolCandidate {
		m.ignored.Add(1)
		m.logger.Debug("ignore account", zap.String("address", n.Address.String()), zap.Int("data_len", n.DataLength()))
		return model.PoolRecord{}, false
	}

	decoded, decodeErr := m.decoder.Decode(n.Data)
	if decodeErr != nil {
		m.decodeFailures.Add(1)
		m.logger.Warn("decode pool account", zap.String("address", n.Address.String()), zap.Uint64("slot", n.Slot), zap.Error(decodeErr))
	}

	record, applied := m.registry.Upsert(Observation{
		Address:    n.Address,
		Owner:      n.Owner,
		Slot:       n.Slot,
		DataLength: n.DataLength(),
		Decoded:    decoded,
		DecodeErr:  decodeErr,
		SeenAt:     m.now().UTC(),
	})
	if !applied {
		m.staleUpdates.Add(1)
		m.logger.Debug("skip stale update", zap.String("address", n.Address.String()), zap.Uint64("slot", n.Slot), zap.Uint64("known_slot", record.Slot))
		return record, true
	}
	m.processed.Add(1)

	update := dex.BuildUpdate(record, source, m.cfg.PriceMode)
	m.logger.Debug("pool update", zap.String("address", update.Address), zap.Uint64("slot", update.Slot), zap.String("source", source))
	if m.sink != nil {
		if err := m.sink.Put(ctx, update); err != nil {
			m.logger.Warn("publish pool update", zap.String("address", update.Address), zap.Error(err))
		}
	}
	return record, true
}

// supervise waits for the live subscription to drop and replaces it. The
// monitor stays Active while it reconnects.
func (m *Monitor) supervise(ctx context.Context, notifications chan<- model.AccountNotification) {
	defer m.wg.Done()
	for {
		handle := m.currentHandle()
		if handle == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-handle.Done():
		}
		if ctx.Err() != nil {
			return
		}

		dropErr := &SubscriptionError{Kind: ErrTransportDropped, Err: handle.Err()}
		m.setLastError(dropErr)
		m.setConnection(Disconnected)
		m.reconnecting.Store(true)
		m.logger.Warn("subscription dropped", zap.String("subscription_id", handle.ID()), zap.Error(dropErr))
		m.setHandle(nil)
		m.release(handle)

		next, ok := m.reconnect(ctx, notifications)
		if !ok {
			return
		}
		m.setHandle(next)
		m.reconnecting.Store(false)
		m.setConnection(Connected)
	}
}

// reconnect retries the subscription with a doubling delay capped at
// ReconnectMaxDelay until it succeeds or ctx is cancelled.
func (m *Monitor) reconnect(ctx context.Context, notifications chan<- model.AccountNotification) (SubscriptionHandle, bool) {
	delay := m.cfg.ReconnectDelay
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		handle, err := m.subscribe(ctx, notifications)
		if err == nil {
			m.logger.Info("subscription restored", zap.String("subscription_id", handle.ID()), zap.Int("attempt", attempt))
			return handle, true
		}
		if ctx.Err() != nil {
			return nil, false
		}

		failures := m.reconnectFailures.Add(1)
		m.setLastError(&SubscriptionError{Kind: ErrSetupFailed, Err: err})
		fields := []zap.Field{zap.Int("attempt", attempt), zap.Int64("failures", failures), zap.Duration("retry_in", delay), zap.Error(err)}
		if attempt == 1 || attempt%m.cfg.ReconnectWarnEvery == 0 {
			m.logger.Warn("reconnect failed", fields...)
		} else {
			m.logger.Debug("reconnect failed", fields...)
		}

		delay *= 2
		if delay > m.cfg.ReconnectMaxDelay {
			delay = m.cfg.ReconnectMaxDelay
		}
	}
}

// release frees a handle that is no longer wanted, on a best-effort basis.
func (m *Monitor) release(handle SubscriptionHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()
	if err := m.client.Unsubscribe(ctx, handle); err != nil {
		m.logger.Debug("release subscription", zap.String("subscription_id", handle.ID()), zap.Error(err))
	}
}

func (m *Monitor) pollHealth(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refreshHealth(ctx)
		}
	}
}

func (m *Monitor) refreshHealth(ctx context.Context) {
	healthCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	status := m.client.ConnectionHealth(healthCtx)
	if m.reconnecting.Load() {
		status = Disconnected
	}
	if previous := m.connection.Load().(ConnectionStatus); previous != status {
		m.logger.Info("connection status changed", zap.String("from", string(previous)), zap.String("to", string(status)))
	}
	m.setConnection(status)
}
