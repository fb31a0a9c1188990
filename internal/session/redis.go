package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
)

const defaultRedisPrefix = "fraudflow:session:"

// RedisStore is the distributed Store for multi-node deployments.
// Expiry is delegated to Redis key TTLs, refreshed on every access.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	maxTurns int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// RedisConfig holds connection settings for a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces all keys (default "fraudflow:session:").
	Prefix string
	// TTL is the idle expiry (default DefaultTTL).
	TTL time.Duration
	// MaxTurns caps retained history per session.
	MaxTurns int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisStore(client, cfg), nil
}

// NewRedisStoreFromClient wraps an existing client. Useful for testing
// with miniredis.
func NewRedisStoreFromClient(client *redis.Client, cfg RedisConfig) *RedisStore {
	return newRedisStore(client, cfg)
}

func newRedisStore(client *redis.Client, cfg RedisConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &RedisStore{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		maxTurns: maxTurns,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) infoKey(id string) string  { return s.prefix + "info:" + id }
func (s *RedisStore) turnsKey(id string) string { return s.prefix + "turns:" + id }
func (s *RedisStore) usageKey(id string) string { return s.prefix + "usage:" + id }

// touch refreshes expiry on every key of the session.
func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, id string) {
	pipe.Expire(ctx, s.infoKey(id), s.ttl)
	pipe.Expire(ctx, s.turnsKey(id), s.ttl)
	pipe.Expire(ctx, s.usageKey(id), s.ttl)
}

// GetOrCreate implements Store.
func (s *RedisStore) GetOrCreate(ctx context.Context, id string) (Info, error) {
	now := time.Now().UTC()

	data, err := s.client.Get(ctx, s.infoKey(id)).Bytes()
	var info Info
	switch {
	case errors.Is(err, redis.Nil):
		info = Info{ID: id, CreatedAt: now, LastSeen: now}
	case err != nil:
		return Info{}, fmt.Errorf("get session: %w", err)
	default:
		if err := json.Unmarshal(data, &info); err != nil {
			return Info{}, fmt.Errorf("unmarshal session: %w", err)
		}
		info.LastSeen = now
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return Info{}, fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.infoKey(id), payload, s.ttl)
	s.touch(ctx, pipe, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return Info{}, fmt.Errorf("save session: %w", err)
	}
	return info, nil
}

// AppendTurn implements Store.
func (s *RedisStore) AppendTurn(ctx context.Context, id string, turn Turn) error {
	info, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.turnsKey(id), payload)
	pipe.LTrim(ctx, s.turnsKey(id), int64(-s.maxTurns), -1)
	count := pipe.LLen(ctx, s.turnsKey(id))
	s.touch(ctx, pipe, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	info.TurnCount = int(count.Val())
	metaPayload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.infoKey(id), metaPayload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// RecordTokens implements Store.
func (s *RedisStore) RecordTokens(ctx context.Context, id string, usage chat.Usage) error {
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.usageKey(id), "prompt_tokens", int64(usage.PromptTokens))
	pipe.HIncrBy(ctx, s.usageKey(id), "completion_tokens", int64(usage.CompletionTokens))
	pipe.HIncrBy(ctx, s.usageKey(id), "total_tokens", int64(usage.TotalTokens))
	pipe.HIncrBy(ctx, s.usageKey(id), "turns", 1)
	s.touch(ctx, pipe, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record tokens: %w", err)
	}
	return nil
}

// History implements Store.
func (s *RedisStore) History(ctx context.Context, id string) ([]Turn, error) {
	raw, err := s.client.LRange(ctx, s.turnsKey(id), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Usage implements Store.
func (s *RedisStore) Usage(ctx context.Context, id string) (Usage, error) {
	fields, err := s.client.HGetAll(ctx, s.usageKey(id)).Result()
	if err != nil {
		return Usage{}, fmt.Errorf("load usage: %w", err)
	}

	var usage Usage
	usage.PromptTokens = atoiField(fields, "prompt_tokens")
	usage.CompletionTokens = atoiField(fields, "completion_tokens")
	usage.TotalTokens = atoiField(fields, "total_tokens")
	usage.Turns = atoiField(fields, "turns")
	return usage, nil
}

// Acquire implements Store with a per-session mutex local to this
// node. Cross-node serialization is out of scope; a session is
// expected to be served by one node at a time.
func (s *RedisStore) Acquire(id string) func() {
	s.mu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Sweep implements Store. Redis expires keys natively, so there is
// nothing to evict here.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

func atoiField(fields map[string]string, key string) int {
	n, _ := strconv.Atoi(fields[key])
	return n
}
