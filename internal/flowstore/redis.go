package flowstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"webauth/internal/authflow"
	"webauth/pkg/logging"
)

const (
	// DefaultKeyPrefix namespaces flow keys in Redis.
	DefaultKeyPrefix = "webauth:flow:"

	// DefaultRedisTTL bounds how long an abandoned flow stays in Redis.
	DefaultRedisTTL = 15 * time.Minute
)

// RedisStore is a Redis-backed authflow.FlowStore for hosts running several
// instances that must hand flows to each other.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL overrides DefaultRedisTTL.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisStore constructs a store on an existing client. The client's
// lifecycle is managed by the caller.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultKeyPrefix,
		ttl:    DefaultRedisTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewRedisClient builds a client from a redis:// URL and checks the
// connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + hex.EncodeToString(sum[:])
}

// Put implements authflow.FlowStore.
func (s *RedisStore) Put(ctx context.Context, token string, flow *authflow.Flow) error {
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store flow: %w", err)
	}

	logging.Audit(subsystem, "flow_stored",
		slog.String("backend", "redis"),
		slog.String("flow_id", flow.ID.String()),
	)
	return nil
}

// Take implements authflow.FlowStore using GETDEL, so the read and the
// removal are one atomic step.
func (s *RedisStore) Take(ctx context.Context, token string) (*authflow.Flow, error) {
	data, err := s.client.GetDel(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, authflow.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take flow: %w", err)
	}

	var flow authflow.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to decode flow: %w", err)
	}

	logging.Audit(subsystem, "flow_taken",
		slog.String("backend", "redis"),
		slog.String("flow_id", flow.ID.String()),
	)
	return &flow, nil
}
