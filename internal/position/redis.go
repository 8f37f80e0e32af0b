/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package position

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisKeyPrefix = "signbeam:position:"

// RedisConfig contains the Redis position backend configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// If true, stop talking to Redis after the first error instead of
	// stalling playback on every cursor write.
	DisableOnError bool
}

// DefaultRedisConfig returns the default Redis backend configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           "localhost:6379",
		DisableOnError: true,
	}
}

// RedisStore keeps the rotation cursor in Redis so several processes on the
// same kiosk (player plus watchdog) can observe it. Falls back to a no-op
// when Redis is unreachable; losing the cursor only costs a restart from the
// top of the playlist.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
	config RedisConfig

	mu       sync.RWMutex
	disabled bool
}

// NewRedisStore connects to Redis and returns the store. An unreachable
// Redis is not fatal; the store starts disabled and every call becomes a
// miss or a no-op.
func NewRedisStore(cfg RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, position persistence disabled")
		return &RedisStore{
			logger:   logger.With().Str("component", "position").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.Addr).Msg("Redis position store initialized")

	return &RedisStore{
		client: client,
		logger: logger.With().Str("component", "position").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// IsAvailable returns true if the store is operational.
func (s *RedisStore) IsAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.disabled && s.client != nil
}

func (s *RedisStore) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	s.logger.Debug().Err(err).Str("operation", operation).Msg("position store operation failed")

	if s.config.DisableOnError {
		s.mu.Lock()
		s.disabled = true
		s.mu.Unlock()
		s.logger.Warn().Msg("disabling Redis position store due to error")
	}
}

// Get returns the stored value for key, reporting ok=false for a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if !s.IsAvailable() {
		return "", false, nil
	}

	val, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		s.handleError(err, "get")
		return "", false, err
	}
	return val, true, nil
}

// Set stores the value for key. Entries never expire; a stale cursor is
// validated against the playlist before use anyway.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if !s.IsAvailable() {
		return nil
	}

	if err := s.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		s.handleError(err, "set")
		return err
	}
	return nil
}

// Delete removes the stored value for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if !s.IsAvailable() {
		return nil
	}

	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		s.handleError(err, "delete")
		return err
	}
	return nil
}
