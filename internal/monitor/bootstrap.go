package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"poolMonitor/internal/model"
	"poolMonitor/internal/retry"
)

// GetRecentPools queries the program's accounts, records every pool
// candidate and returns the last limit of them in query order. A
// non-positive limit returns all. Each round tries a data-size filtered
// query and falls back to an unfiltered one; failed rounds are retried.
// When retries run out it returns an empty slice.
func (m *Monitor) GetRecentPools(ctx context.Context, limit int) []model.PoolRecord {
	accounts, err := retry.WithRetry(ctx, m.bootstrapRetryConfig(), m.queryRound)
	if err != nil {
		m.setLastError(err)
		m.logger.Warn("bootstrap failed, continuing without known pools", zap.Error(err))
		return []model.PoolRecord{}
	}
	m.setConnection(Connected)

	records := make([]model.PoolRecord, 0, len(accounts))
	for _, account := range accounts {
		record, ok := m.process(ctx, account, model.SourceBootstrap)
		if ok {
			records = append(records, record)
		}
	}
	m.logger.Info("bootstrap complete", zap.Int("accounts", len(accounts)), zap.Int("pools", len(records)), zap.Int("known_pools", m.registry.Size()))

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records
}

func (m *Monitor) bootstrapRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:     m.cfg.MaxRetries + 1,
		BaseDelay:       m.cfg.RetryDelay,
		RateLimitFactor: m.cfg.RateLimitFactor,
		IsRateLimited:   m.cfg.IsRateLimited,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			m.bootstrapRetries.Add(1)
			m.logger.Warn("bootstrap query failed, retrying", zap.Int("attempt", attempt), zap.Int("max_retries", m.cfg.MaxRetries), zap.Duration("retry_in", delay), zap.Error(err))
		},
	}
}

// queryRound runs one filtered query and, if it fails or finds nothing,
// one unfiltered query. Each query has its own deadline.
func (m *Monitor) queryRound(ctx context.Context) ([]model.AccountNotification, error) {
	filter := &AccountFilter{DataSize: uint64(m.cfg.PoolAccountSize)}
	accounts, err := retry.WithTimeout(ctx, m.cfg.Timeout, func(ctx context.Context) ([]model.AccountNotification, error) {
		return m.client.QueryProgramAccounts(ctx, m.cfg.ProgramID, filter)
	})
	if err == nil && len(accounts) > 0 {
		return accounts, nil
	}
	if err != nil {
		m.logger.Warn("filtered account query failed, trying unfiltered", zap.Uint64("data_size", filter.DataSize), zap.Error(err))
	} else {
		m.logger.Info("filtered account query returned nothing, trying unfiltered", zap.Uint64("data_size", filter.DataSize))
	}

	return retry.WithTimeout(ctx, m.cfg.Timeout, func(ctx context.Context) ([]model.AccountNotification, error) {
		return m.client.QueryProgramAccounts(ctx, m.cfg.ProgramID, nil)
	})
}
