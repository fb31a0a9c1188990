package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
)

func TestMemoryStore_Isolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "a", Turn{Question: "q1", Answer: "a1"}))
	require.NoError(t, s.AppendTurn(ctx, "b", Turn{Question: "q2", Answer: "a2"}))

	ha, err := s.History(ctx, "a")
	require.NoError(t, err)
	hb, err := s.History(ctx, "b")
	require.NoError(t, err)

	require.Len(t, ha, 1)
	require.Len(t, hb, 1)
	assert.Equal(t, "q1", ha[0].Question)
	assert.Equal(t, "q2", hb[0].Question)
}

func TestMemoryStore_HistoryIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "a", Turn{Question: "q", Answer: "ans"}))

	first, err := s.History(ctx, "a")
	require.NoError(t, err)
	second, err := s.History(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Mutating the returned slice does not corrupt the store.
	first[0].Answer = "tampered"
	third, err := s.History(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "ans", third[0].Answer)
}

func TestMemoryStore_UnknownSessionHasEmptyHistory(t *testing.T) {
	s := NewMemoryStore()
	h, err := s.History(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, h)

	u, err := s.Usage(context.Background(), "nope")
	require.NoError(t, err)
	assert.Zero(t, u.TotalTokens)
}

func TestMemoryStore_TTLEviction(t *testing.T) {
	s := NewMemoryStore(WithTTL(30 * time.Minute))
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	require.NoError(t, s.AppendTurn(ctx, "old", Turn{Question: "q", Answer: "a"}))

	// Just inside the TTL: still there.
	clock = clock.Add(29 * time.Minute)
	h, err := s.History(ctx, "old")
	require.NoError(t, err)
	assert.Len(t, h, 1)

	// Idle past the TTL: gone.
	clock = clock.Add(2 * time.Minute)
	evicted, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	h, err = s.History(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestMemoryStore_AccessRefreshesExpiry(t *testing.T) {
	s := NewMemoryStore(WithTTL(30 * time.Minute))
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_, err := s.GetOrCreate(ctx, "live")
	require.NoError(t, err)

	// Touch the session every 20 minutes; it must survive well past
	// the bare TTL.
	for i := 0; i < 4; i++ {
		clock = clock.Add(20 * time.Minute)
		_, err := s.GetOrCreate(ctx, "live")
		require.NoError(t, err)
	}

	evicted, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, evicted)
}

func TestMemoryStore_MaxTurnsKeepsMostRecent(t *testing.T) {
	s := NewMemoryStore(WithMaxTurns(3))
	ctx := context.Background()

	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		require.NoError(t, s.AppendTurn(ctx, "a", Turn{Question: q}))
	}

	h, err := s.History(ctx, "a")
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, "q3", h[0].Question)
	assert.Equal(t, "q5", h[2].Question)
}

func TestMemoryStore_RecordTokensAccumulates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, s.RecordTokens(ctx, "a", chat.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}))
	require.NoError(t, s.RecordTokens(ctx, "a", chat.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}))

	u, err := s.Usage(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 17, u.PromptTokens)
	assert.Equal(t, 8, u.CompletionTokens)
	assert.Equal(t, 25, u.TotalTokens)
	assert.Equal(t, 2, u.Turns)
}

func TestMemoryStore_AcquireSerializesSameSession(t *testing.T) {
	s := NewMemoryStore()

	var order []int
	var wg sync.WaitGroup

	release := s.Acquire("a")

	wg.Add(1)
	go func() {
		defer wg.Done()
		r := s.Acquire("a")
		order = append(order, 2)
		r()
	}()

	// A different session is not blocked.
	r := s.Acquire("b")
	r()

	order = append(order, 1)
	release()
	wg.Wait()

	assert.Equal(t, []int{1, 2}, order)
}
