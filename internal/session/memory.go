package session

import (
	"context"
	"sync"
	"time"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
	"github.com/fraudflow-dev/fraudflow/internal/observability"
)

type memorySession struct {
	info  Info
	turns []Turn
	usage Usage
	lock  sync.Mutex
}

// MemoryStore is the in-process Store. Expired sessions are swept
// lazily: any access first evicts sessions idle longer than the TTL,
// at most once per sweep interval.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession

	ttl           time.Duration
	maxTurns      int
	sweepInterval time.Duration
	lastSweep     time.Time

	now func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL sets the idle expiry.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxTurns caps retained history per session.
func WithMaxTurns(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions:      make(map[string]*memorySession),
		ttl:           DefaultTTL,
		maxTurns:      DefaultMaxTurns,
		sweepInterval: time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sweepLocked evicts idle sessions. Caller holds s.mu.
func (s *MemoryStore) sweepLocked(force bool) int {
	now := s.now()
	if !force && now.Sub(s.lastSweep) < s.sweepInterval {
		return 0
	}
	s.lastSweep = now

	var evicted int
	for id, sess := range s.sessions {
		if now.Sub(sess.info.LastSeen) > s.ttl {
			delete(s.sessions, id)
			evicted++
		}
	}
	observability.RecordSessionsEvicted(evicted)
	observability.SetActiveSessions(len(s.sessions))
	return evicted
}

// get returns the live session, nil if absent or expired.
func (s *MemoryStore) get(id string) *memorySession {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if s.now().Sub(sess.info.LastSeen) > s.ttl {
		delete(s.sessions, id)
		return nil
	}
	return sess
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(ctx context.Context, id string) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(false)

	sess := s.get(id)
	if sess == nil {
		now := s.now()
		sess = &memorySession{info: Info{ID: id, CreatedAt: now, LastSeen: now}}
		s.sessions[id] = sess
		observability.SetActiveSessions(len(s.sessions))
	} else {
		sess.info.LastSeen = s.now()
	}
	return sess.info, nil
}

// AppendTurn implements Store.
func (s *MemoryStore) AppendTurn(ctx context.Context, id string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(false)

	sess := s.get(id)
	if sess == nil {
		now := s.now()
		sess = &memorySession{info: Info{ID: id, CreatedAt: now, LastSeen: now}}
		s.sessions[id] = sess
	}

	sess.turns = append(sess.turns, turn)
	if len(sess.turns) > s.maxTurns {
		sess.turns = sess.turns[len(sess.turns)-s.maxTurns:]
	}
	sess.info.TurnCount = len(sess.turns)
	sess.info.LastSeen = s.now()
	return nil
}

// RecordTokens implements Store.
func (s *MemoryStore) RecordTokens(ctx context.Context, id string, usage chat.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	if sess == nil {
		return nil
	}
	sess.usage.PromptTokens += usage.PromptTokens
	sess.usage.CompletionTokens += usage.CompletionTokens
	sess.usage.TotalTokens += usage.TotalTokens
	sess.usage.Turns++
	sess.info.LastSeen = s.now()
	return nil
}

// History implements Store. The returned slice is a copy.
func (s *MemoryStore) History(ctx context.Context, id string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(false)

	sess := s.get(id)
	if sess == nil {
		return nil, nil
	}
	return append([]Turn(nil), sess.turns...), nil
}

// Usage implements Store.
func (s *MemoryStore) Usage(ctx context.Context, id string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	if sess == nil {
		return Usage{}, nil
	}
	return sess.usage, nil
}

// Acquire implements Store with one mutex per session, so concurrent
// turns on the same session run one at a time while distinct sessions
// proceed in parallel.
func (s *MemoryStore) Acquire(id string) func() {
	s.mu.Lock()
	sess := s.get(id)
	if sess == nil {
		now := s.now()
		sess = &memorySession{info: Info{ID: id, CreatedAt: now, LastSeen: now}}
		s.sessions[id] = sess
	}
	s.mu.Unlock()

	sess.lock.Lock()
	return sess.lock.Unlock
}

// Sweep implements Store, forcing a full eviction pass.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(true), nil
}
