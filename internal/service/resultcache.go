package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/fatturaflow/fatturaflow/internal/domain/agent"
	"github.com/fatturaflow/fatturaflow/internal/domain/conversation"
	"github.com/fatturaflow/fatturaflow/internal/domain/sharedctx"
	"github.com/fatturaflow/fatturaflow/internal/port/cache"
)

// ResultCache wraps the cache port with agent-result fingerprinting.
// The orchestrator consults it opportunistically: cache faults are logged
// and ignored, and a nil or disabled cache degrades to pass-through.
type ResultCache struct {
	backend cache.Cache
	cfg     cache.Config
}

// NewResultCache validates the configuration and builds the cache wrapper.
// A nil backend or a disabled config yields a functional no-op cache.
func NewResultCache(backend cache.Cache, cfg cache.Config) (*ResultCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ResultCache{backend: backend, cfg: cfg}, nil
}

// Enabled reports whether lookups can hit a backend.
func (rc *ResultCache) Enabled() bool {
	return rc != nil && rc.backend != nil && rc.cfg.Enabled
}

// Key fingerprints one agent invocation: agent type, the shared business
// snapshot and the tail of the conversation that will reach the agent.
// Only role and content participate; metadata does not affect identity.
// The key stays within the JetStream KV key charset ([-/_=.a-zA-Z0-9]),
// so the same fingerprint works against both cache levels.
func (rc *ResultCache) Key(t agent.Type, sc sharedctx.SharedContext, history []conversation.Message) string {
	h := sha256.New()
	h.Write([]byte(t.String()))
	h.Write([]byte{0})

	if data, err := json.Marshal(sc); err == nil {
		h.Write(data)
	}
	for _, m := range history {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
	}
	return string(t) + "." + hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached result for the fingerprint, if present.
func (rc *ResultCache) Get(ctx context.Context, key string) (*agent.Result, bool) {
	if !rc.Enabled() {
		return nil, false
	}

	data, ok, err := rc.backend.Get(ctx, key)
	if err != nil {
		slog.Warn("result cache lookup failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var r agent.Result
	if err := json.Unmarshal(data, &r); err != nil {
		slog.Warn("result cache entry corrupt, dropping", "key", key, "error", err)
		_ = rc.backend.Delete(ctx, key)
		return nil, false
	}
	return &r, true
}

// Put stores a successful result under the fingerprint. Failed results are
// never cached; a transient fault must not short-circuit future invocations.
func (rc *ResultCache) Put(ctx context.Context, key string, r *agent.Result) {
	if !rc.Enabled() || r == nil || r.Failed() {
		return
	}

	data, err := json.Marshal(r)
	if err != nil {
		slog.Warn("result cache marshal failed", "error", err)
		return
	}
	if err := rc.backend.Set(ctx, key, data, rc.cfg.DefaultTTL); err != nil {
		slog.Warn("result cache store failed", "error", err)
	}
}
