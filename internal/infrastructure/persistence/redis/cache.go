// Package redis implements Redis caching for Soyle Hub read paths.
//
// The only hot read is the mentor dashboard listing; it is cached with a short
// TTL and invalidated lazily by expiry. A cache failure is always recoverable:
// callers fall back to PostgreSQL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewClient creates a go-redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to ping: %w", err)
	}
	return client, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MENTOR SESSION CACHE
// ══════════════════════════════════════════════════════════════════════════════

// TTLMentorSessions is the freshness window for mentor dashboard listings.
const TTLMentorSessions = 2 * time.Minute

// prefixMentorSessions namespaces the listing keys.
const prefixMentorSessions = "mentor:sessions:"

// MentorSessionCache caches mentor session listings with a TTL. It implements
// the query layer's SummaryCache contract.
type MentorSessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMentorSessionCache creates a MentorSessionCache with the default TTL.
func NewMentorSessionCache(client *redis.Client) *MentorSessionCache {
	return &MentorSessionCache{client: client, ttl: TTLMentorSessions}
}

// GetMentorSessions returns the cached listing for a mentor. The second
// return value reports a hit; a miss is not an error.
func (c *MentorSessionCache) GetMentorSessions(ctx context.Context, mentorID string) ([]session.Summary, bool, error) {
	raw, err := c.client.Get(ctx, prefixMentorSessions+mentorID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var summaries []session.Summary
	if err := json.Unmarshal(raw, &summaries); err != nil {
		// A corrupt entry behaves like a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return summaries, true, nil
}

// SetMentorSessions stores the listing for a mentor.
func (c *MentorSessionCache) SetMentorSessions(ctx context.Context, mentorID string, summaries []session.Summary) error {
	raw, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}

	if err := c.client.Set(ctx, prefixMentorSessions+mentorID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// InvalidateMentor drops a mentor's cached listing.
func (c *MentorSessionCache) InvalidateMentor(ctx context.Context, mentorID string) error {
	return c.client.Del(ctx, prefixMentorSessions+mentorID).Err()
}
