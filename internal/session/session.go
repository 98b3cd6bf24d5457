// Package session manages per-scope retrieval sessions. A session wraps the
// document index's conversational answer operation for one scope value (a
// manual identifier, or the unscoped value) and accumulates that scope's
// conversation history so follow-up questions condense correctly.
//
// Sessions are created lazily on first use of a scope and cached per scope
// value. When the active scope changes, the incoming scope's session must be
// invalidated by the caller so history never bleeds across manuals — the
// condensing step would otherwise rewrite follow-ups using the wrong
// manual's context.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	gocache "github.com/patrickmn/go-cache"

	"github.com/vivoassist/vivoassist-go/internal/budget"
	"github.com/vivoassist/vivoassist-go/internal/index"
)

// unscopedKey is the cache key for the session that answers without a
// manual filter.
const unscopedKey = "(unscoped)"

// Session is one scope's conversational session. It is owned by a single
// conversation and is not safe for concurrent use.
type Session struct {
	// scope is the manual identifier retrieval is filtered to, or "" for
	// unrestricted retrieval.
	scope string

	// idx is the document index collaborator.
	idx index.Client

	// history is the accumulated conversation, oldest first.
	history []*schema.Message

	// maxContextTokens bounds the history injected per question.
	maxContextTokens int
}

// Ask sends question to the index within this session's scope, records the
// turn in the session history, and returns the answer with its fragments.
// History is trimmed oldest-first to stay within the context budget.
func (s *Session) Ask(ctx context.Context, question string) (index.Answer, error) {
	fixed := []*schema.Message{schema.UserMessage(question)}
	s.history = budget.TrimHistory(fixed, s.history, s.maxContextTokens)

	ans, err := s.idx.Answer(ctx, question, s.history, s.scope)
	if err != nil {
		return index.Answer{}, fmt.Errorf("session: ask: %w", err)
	}

	s.history = append(s.history,
		schema.UserMessage(question),
		schema.AssistantMessage(ans.Text, nil),
	)
	return ans, nil
}

// Scope returns the manual identifier this session is filtered to, or ""
// when unrestricted.
func (s *Session) Scope() string { return s.scope }

// HistoryLen returns the number of recorded history messages.
func (s *Session) HistoryLen() int { return len(s.history) }

// Config holds the session cache settings.
type Config struct {
	// TTL is how long an idle session is kept before expiry. Zero keeps
	// sessions for the process lifetime.
	TTL time.Duration

	// MaxEntries caps the number of cached sessions. When the cap is
	// reached all sessions are dropped — eviction discards whole sessions,
	// never partial history. Zero means unbounded.
	MaxEntries int

	// MaxContextTokens is the history token budget per session.
	// Defaults to budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Cache holds the per-scope sessions of one conversation. Each conversation
// owns its own Cache; caches are never shared.
type Cache struct {
	idx              index.Client
	sessions         *gocache.Cache
	maxEntries       int
	maxContextTokens int
}

// NewCache constructs a session Cache over the given index collaborator.
func NewCache(idx index.Client, cfg Config) (*Cache, error) {
	if idx == nil {
		return nil, fmt.Errorf("session: index client must not be nil")
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}

	return &Cache{
		idx:              idx,
		sessions:         gocache.New(ttl, 10*time.Minute),
		maxEntries:       cfg.MaxEntries,
		maxContextTokens: maxCtx,
	}, nil
}

// GetOrCreate returns the cached session for scope, creating a fresh one on
// first use. scope "" selects the unscoped session.
func (c *Cache) GetOrCreate(scope string) *Session {
	key := cacheKey(scope)
	if v, ok := c.sessions.Get(key); ok {
		return v.(*Session)
	}

	if c.maxEntries > 0 && c.sessions.ItemCount() >= c.maxEntries {
		c.sessions.Flush()
	}

	s := &Session{
		scope:            scope,
		idx:              c.idx,
		maxContextTokens: c.maxContextTokens,
	}
	c.sessions.SetDefault(key, s)
	return s
}

// Invalidate discards the cached session for scope so the next question in
// that scope starts with empty history.
func (c *Cache) Invalidate(scope string) {
	c.sessions.Delete(cacheKey(scope))
}

// cacheKey maps a scope value to its cache key.
func cacheKey(scope string) string {
	if scope == "" {
		return unscopedKey
	}
	return scope
}
