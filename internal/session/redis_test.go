package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
)

func setupRedisStore(t *testing.T, cfg RedisConfig) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, cfg)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return mr, store
}

func TestRedisStore_TurnRoundTrip(t *testing.T) {
	_, store := setupRedisStore(t, RedisConfig{})
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", Turn{Question: "q", Answer: "a"}))
	require.NoError(t, store.AppendTurn(ctx, "s1", Turn{Question: "q2", Answer: "a2"}))

	h, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "q", h[0].Question)
	assert.Equal(t, "a2", h[1].Answer)

	info, err := store.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, info.TurnCount)
}

func TestRedisStore_SessionsAreIsolated(t *testing.T) {
	_, store := setupRedisStore(t, RedisConfig{})
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", Turn{Question: "one"}))
	require.NoError(t, store.AppendTurn(ctx, "s2", Turn{Question: "two"}))

	h1, err := store.History(ctx, "s1")
	require.NoError(t, err)
	h2, err := store.History(ctx, "s2")
	require.NoError(t, err)

	require.Len(t, h1, 1)
	require.Len(t, h2, 1)
	assert.NotEqual(t, h1[0].Question, h2[0].Question)
}

func TestRedisStore_ExpiryEvicts(t *testing.T) {
	mr, store := setupRedisStore(t, RedisConfig{TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", Turn{Question: "q"}))

	mr.FastForward(2 * time.Minute)

	h, err := store.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, h)

	u, err := store.Usage(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, u.TotalTokens)
}

func TestRedisStore_MaxTurnsTrims(t *testing.T) {
	_, store := setupRedisStore(t, RedisConfig{MaxTurns: 2})
	ctx := context.Background()

	for _, q := range []string{"q1", "q2", "q3"} {
		require.NoError(t, store.AppendTurn(ctx, "s1", Turn{Question: q}))
	}

	h, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "q2", h[0].Question)
	assert.Equal(t, "q3", h[1].Question)
}

func TestRedisStore_UsageAccumulates(t *testing.T) {
	_, store := setupRedisStore(t, RedisConfig{})
	ctx := context.Background()

	require.NoError(t, store.RecordTokens(ctx, "s1", chat.Usage{PromptTokens: 4, CompletionTokens: 6, TotalTokens: 10}))
	require.NoError(t, store.RecordTokens(ctx, "s1", chat.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}))

	u, err := store.Usage(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, u.PromptTokens)
	assert.Equal(t, 8, u.CompletionTokens)
	assert.Equal(t, 13, u.TotalTokens)
	assert.Equal(t, 2, u.Turns)
}
