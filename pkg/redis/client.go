package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightfields/schoolbank-backend/pkg/config"
	"github.com/brightfields/schoolbank-backend/pkg/logger"
)

const (
	keyNamespace  = "sb"
	summaryPrefix = "summary"
)

// Client wraps the redis helpers the ledger needs: a short-TTL cache for
// account summaries, invalidated on every balance-affecting mutation.
type Client struct {
	raw        *redis.Client
	summaryTTL time.Duration
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// SummaryCache is the surface consumed by the accounts service.
type SummaryCache interface {
	GetSummary(ctx context.Context, pupilID string, dest any) (bool, error)
	SetSummary(ctx context.Context, pupilID string, value any) error
	InvalidateSummary(ctx context.Context, pupilID string) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	ttl := cfg.SummaryTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Client{raw: raw, summaryTTL: ttl}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.raw.Ping(ctx).Err()
}

// Close shuts down the connection pool.
func (c *Client) Close() error {
	return c.raw.Close()
}

// SummaryKey builds the cache key for a pupil's account summary.
func (c *Client) SummaryKey(pupilID string) string {
	return strings.Join([]string{keyNamespace, summaryPrefix, pupilID}, ":")
}

// GetSummary loads a cached summary into dest. The bool result reports a hit.
func (c *Client) GetSummary(ctx context.Context, pupilID string, dest any) (bool, error) {
	raw, err := c.raw.Get(ctx, c.SummaryKey(pupilID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get summary: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode cached summary: %w", err)
	}
	return true, nil
}

// SetSummary caches a summary under the configured TTL.
func (c *Client) SetSummary(ctx context.Context, pupilID string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return c.raw.Set(ctx, c.SummaryKey(pupilID), payload, c.summaryTTL).Err()
}

// InvalidateSummary drops the cached summary after a mutation.
func (c *Client) InvalidateSummary(ctx context.Context, pupilID string) error {
	return c.raw.Del(ctx, c.SummaryKey(pupilID)).Err()
}

// FlushSummaries removes every cached summary; used by maintenance operations
// that rewrite balances wholesale.
func (c *Client) FlushSummaries(ctx context.Context) error {
	pattern := strings.Join([]string{keyNamespace, summaryPrefix, "*"}, ":")
	iter := c.raw.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.raw.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
