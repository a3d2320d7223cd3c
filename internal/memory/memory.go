// Package memory implements conversation memory: a process-local,
// thread-addressed log of turns with bounded TTL and LRU eviction.
// Threads deliberately do not survive a process restart; continuation ids
// are only meaningful within one server lifetime.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zenmcp/server-core/internal/agenterrors"
	"github.com/zenmcp/server-core/internal/provider"
	"github.com/zenmcp/server-core/internal/zlog"
)

// Turn is a single conversation entry.
type Turn struct {
	Role      string // "user", "assistant", or "system"
	Content   string
	ToolName  string
	ModelUsed string
	Files     []string
	Timestamp time.Time
}

// Thread is the append-only, mutex-guarded conversation log addressed by
// an opaque thread_id. Exported fields are safe to read under the
// thread's own mutex; callers outside this package should not hold a *Thread
// across calls and should use the Store methods instead.
type Thread struct {
	mu sync.Mutex

	ID            string
	ToolName      string
	ParentID      string
	CreatedAt     time.Time
	LastTouchedAt time.Time
	Turns         []Turn
	Files         []string
}

// snapshot copies the fields a reader needs without holding the lock
// across the caller's own work, so readers never block writers.
func (t *Thread) snapshot() (turns []Turn, lastTouched time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	turns = append([]Turn(nil), t.Turns...)
	return turns, t.LastTouchedAt
}

// Store is the process-lifetime conversation memory singleton: a
// map-level lock guards insert/delete/LRU-eviction, and each Thread
// carries its own mutex so appends on different threads never contend.
type Store struct {
	logger   zlog.Logger
	ttl      time.Duration
	maxTurns int

	mapMu sync.Mutex
	lru   *lru.Cache[string, *Thread]
}

// New builds a Store. cap is the LRU eviction cap (default 1000); ttl and
// maxTurns come from CONVERSATION_TIMEOUT_HOURS and
// MAX_CONVERSATION_TURNS respectively.
func New(ttl time.Duration, maxTurns, cap int, logger zlog.Logger) *Store {
	if cap <= 0 {
		cap = 1000
	}
	if logger == nil {
		logger = zlog.Noop{}
	}
	c, _ := lru.New[string, *Thread](cap) // error only on cap<=0, already guarded
	return &Store{logger: logger, ttl: ttl, maxTurns: maxTurns, lru: c}
}

// CreateThread starts a new thread seeded with initial, optionally forked
// from parentID.
func (s *Store) CreateThread(toolName string, initial Turn, parentID string) string {
	now := time.Now()
	t := &Thread{
		ID:            uuid.NewString(),
		ToolName:      toolName,
		ParentID:      parentID,
		CreatedAt:     now,
		LastTouchedAt: now,
		Turns:         []Turn{initial},
		Files:         dedupeFiles(nil, initial.Files),
	}

	s.mapMu.Lock()
	s.lru.Add(t.ID, t)
	s.mapMu.Unlock()
	return t.ID
}

// lookup finds a thread by id. Both reconstruct and append count as
// "use", so ordinary LRU touch-on-access semantics apply to both.
func (s *Store) lookup(threadID string) (*Thread, bool) {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	return s.lru.Get(threadID)
}

func (s *Store) expired(t *Thread, lastTouched time.Time) bool {
	return s.ttl > 0 && time.Since(lastTouched) > s.ttl
}

// AppendTurn appends one turn, serialized per thread_id via the thread's
// own mutex, failing with THREAD_UNKNOWN, THREAD_EXPIRED, or THREAD_FULL.
func (s *Store) AppendTurn(threadID string, turn Turn) (int, error) {
	t, ok := s.lookup(threadID)
	if !ok {
		return 0, agenterrors.ThreadErr(agenterrors.ThreadUnknown, threadID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if s.expired(t, t.LastTouchedAt) {
		return 0, agenterrors.ThreadErr(agenterrors.ThreadExpired, threadID)
	}
	if s.maxTurns > 0 && len(t.Turns) >= s.maxTurns {
		return 0, agenterrors.ThreadErr(agenterrors.ThreadFull, threadID)
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	t.Turns = append(t.Turns, turn)
	t.LastTouchedAt = turn.Timestamp
	t.Files = dedupeFiles(t.Files, turn.Files)

	return len(t.Turns), nil
}

// Reconstruct returns the most recent turns that fit within budgetTokens,
// always preserving the first user turn to anchor context.
func (s *Store) Reconstruct(threadID string, budgetTokens int) ([]Turn, error) {
	t, ok := s.lookup(threadID)
	if !ok {
		return nil, agenterrors.ThreadErr(agenterrors.ThreadUnknown, threadID)
	}

	turns, lastTouched := t.snapshot()
	if s.expired(t, lastTouched) {
		return nil, agenterrors.ThreadErr(agenterrors.ThreadExpired, threadID)
	}
	if len(turns) == 0 {
		return nil, nil
	}

	used := 0
	k := len(turns)
	for k > 0 {
		cost := provider.DefaultCountTokens(turns[k-1].Content)
		if used+cost > budgetTokens && k < len(turns) {
			break
		}
		used += cost
		k--
	}
	if k == len(turns) {
		k = len(turns) - 1 // always return at least the most recent turn
	}

	suffix := turns[k:]
	if k == 0 {
		return suffix, nil
	}
	result := make([]Turn, 0, len(suffix)+1)
	result = append(result, turns[0])
	result = append(result, suffix...)
	return result, nil
}

// Files returns the thread's deduplicated attached file paths.
func (s *Store) Files(threadID string) ([]string, error) {
	t, ok := s.lookup(threadID)
	if !ok {
		return nil, agenterrors.ThreadErr(agenterrors.ThreadUnknown, threadID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.Files...), nil
}

// ToolName returns the tool that started the thread, for cross-tool
// handoff bookkeeping.
func (s *Store) ToolName(threadID string) (string, bool) {
	t, ok := s.lookup(threadID)
	if !ok {
		return "", false
	}
	return t.ToolName, true
}

// GC evicts threads whose last_touched_at + TTL < now. LRU-capacity
// eviction is handled inline by every Add call (hashicorp/golang-lru/v2's
// fixed-size cache), so GC only needs to handle the TTL trigger.
func (s *Store) GC(ctx context.Context) {
	s.mapMu.Lock()
	keys := s.lru.Keys()
	s.mapMu.Unlock()

	for _, k := range keys {
		s.mapMu.Lock()
		t, ok := s.lru.Peek(k) // Peek: doesn't disturb LRU recency
		s.mapMu.Unlock()
		if !ok {
			continue
		}

		t.mu.Lock()
		expired := s.expired(t, t.LastTouchedAt)
		t.mu.Unlock()

		if expired {
			s.mapMu.Lock()
			s.lru.Remove(k)
			s.mapMu.Unlock()
			s.logger.Debug(ctx, "conversation memory: evicted expired thread", zlog.F("thread_id", k))
		}
	}
}

// RunGC starts a background goroutine running GC every interval until ctx
// is cancelled.
func (s *Store) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.GC(ctx)
			}
		}
	}()
}

// dedupeFiles appends new absolute paths to existing, skipping exact
// string-equality duplicates after normalization.
func dedupeFiles(existing, add []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := append([]string(nil), existing...)
	for _, f := range existing {
		seen[normalizePath(f)] = struct{}{}
	}
	for _, f := range add {
		n := normalizePath(f)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, f)
	}
	return out
}

func normalizePath(p string) string {
	return strings.TrimRight(p, "/")
}
