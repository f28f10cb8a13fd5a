package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"poolMonitor/internal/model"
)

// Publisher is the part of the Redis client the sink uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes each pool update as JSON on a pub/sub channel.
type Redis struct {
	client  Publisher
	channel string
	logger  *zap.Logger
}

func NewRedis(client Publisher, channel string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, channel: channel, logger: logger}
}

// DialRedis connects to addr and checks the connection with a ping.
func DialRedis(ctx context.Context, addr string, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	if logger != nil {
		logger.Info("connected to redis", zap.String("addr", addr))
	}
	return rdb, nil
}

func (s *Redis) Put(ctx context.Context, update model.PoolUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal pool update: %w", err)
	}
	receivers, err := s.client.Publish(ctx, s.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", s.channel, err)
	}
	s.logger.Debug("published pool update", zap.String("channel", s.channel), zap.String("address", update.Address), zap.Int64("receivers", receivers))
	return nil
}
