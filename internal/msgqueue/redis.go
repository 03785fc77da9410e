// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package msgqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Capacity  int
	TTL       time.Duration
}

// RedisQueue stores each player's queue as a redis list so several server
// processes can share delivery state.
type RedisQueue struct {
	client   *redis.Client
	prefix   string
	capacity int
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewRedisQueue connects and pings the server.
func NewRedisQueue(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis message queue")
	return newRedisQueue(client, cfg, logger), nil
}

func newRedisQueue(client *redis.Client, cfg RedisConfig, logger zerolog.Logger) *RedisQueue {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "mudcore:mq:"
	}
	return &RedisQueue{client: client, prefix: cfg.KeyPrefix, capacity: cfg.Capacity, ttl: cfg.TTL, logger: logger}
}

func (q *RedisQueue) key(playerID string) string { return q.prefix + playerID }

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	buf, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := q.key(msg.PlayerID)
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, buf)
		if q.capacity > 0 {
			p.LTrim(ctx, key, int64(-q.capacity), -1)
		}
		if q.ttl > 0 {
			p.Expire(ctx, key, q.ttl)
		}
		return nil
	})
	return err
}

func (q *RedisQueue) Drain(ctx context.Context, playerID string, limit int) ([]Message, error) {
	key := q.key(playerID)
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	var rng *redis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		rng = p.LRange(ctx, key, 0, stop)
		if limit > 0 {
			p.LTrim(ctx, key, int64(limit), -1)
		} else {
			p.Del(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	raw := rng.Val()
	out := make([]Message, 0, len(raw))
	for _, s := range raw {
		var m Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			q.logger.Warn().Err(err).Str("player_id", playerID).Msg("dropping undecodable queued message")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (q *RedisQueue) Len(ctx context.Context, playerID string) (int, error) {
	n, err := q.client.LLen(ctx, q.key(playerID)).Result()
	return int(n), err
}

func (q *RedisQueue) RemovePlayerMessages(ctx context.Context, playerID string) error {
	return q.client.Del(ctx, q.key(playerID)).Err()
}

// HealthCheck pings the server.
func (q *RedisQueue) HealthCheck(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error { return q.client.Close() }

var _ Queue = (*RedisQueue)(nil)
