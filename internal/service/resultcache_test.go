package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/fatturaflow/fatturaflow/internal/domain/agent"
	"github.com/fatturaflow/fatturaflow/internal/domain/conversation"
	"github.com/fatturaflow/fatturaflow/internal/domain/sharedctx"
	"github.com/fatturaflow/fatturaflow/internal/port/cache"
)

func enabledConfig() cache.Config {
	return cache.Config{
		Enabled:    true,
		Strategy:   cache.StrategyExact,
		MaxEntries: 100,
		DefaultTTL: time.Minute,
	}
}

func TestNewResultCacheValidatesConfig(t *testing.T) {
	if _, err := NewResultCache(newMapCache(), cache.Config{Strategy: "fuzzy"}); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
	if _, err := NewResultCache(newMapCache(), cache.Config{Strategy: cache.StrategyExact, MaxEntries: -1}); err == nil {
		t.Fatal("expected error for negative max_entries")
	}
}

func TestEnabledDegradesGracefully(t *testing.T) {
	var nilCache *ResultCache
	if nilCache.Enabled() {
		t.Error("nil cache must be disabled")
	}

	disabled, err := NewResultCache(newMapCache(), cache.Config{Strategy: cache.StrategyExact})
	if err != nil {
		t.Fatal(err)
	}
	if disabled.Enabled() {
		t.Error("config with Enabled=false must be disabled")
	}
	if _, ok := disabled.Get(context.Background(), "k"); ok {
		t.Error("disabled cache must always miss")
	}
}

func TestKeyFingerprint(t *testing.T) {
	rc, _ := NewResultCache(newMapCache(), enabledConfig())
	sc := sharedctx.SharedContext{TotalInvoices: 3, DefaultVATRate: 22}
	history := []conversation.Message{{Role: conversation.RoleUser, Content: "invoice for consulting"}}

	k1 := rc.Key(agent.TypeExtraction, sc, history)
	k2 := rc.Key(agent.TypeExtraction, sc, history)
	if k1 != k2 {
		t.Error("identical invocations must fingerprint identically")
	}

	if k1 == rc.Key(agent.TypeDescription, sc, history) {
		t.Error("agent type must participate in the fingerprint")
	}

	other := sc
	other.TotalInvoices = 4
	if k1 == rc.Key(agent.TypeExtraction, other, history) {
		t.Error("shared context must participate in the fingerprint")
	}

	// Metadata does not affect identity, only role and content do.
	withMeta := []conversation.Message{{
		Role: conversation.RoleUser, Content: "invoice for consulting",
		Metadata: map[string]any{"trace": "abc"},
	}}
	if k1 != rc.Key(agent.TypeExtraction, sc, withMeta) {
		t.Error("metadata must not affect the fingerprint")
	}
}

func TestKeyFitsJetStreamKVCharset(t *testing.T) {
	rc, _ := NewResultCache(newMapCache(), enabledConfig())
	keyCharset := regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

	history := []conversation.Message{{Role: conversation.RoleUser, Content: "fattura: 100€ *subito*"}}
	for _, at := range []agent.Type{agent.TypeExtraction, agent.TypeDescription, agent.TypeTaxSuggestion, agent.TypeCompliance} {
		k := rc.Key(at, sharedctx.SharedContext{}, history)
		if !keyCharset.MatchString(k) {
			t.Errorf("key %q for %s is not storable in a KV bucket", k, at)
		}
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	rc, _ := NewResultCache(newMapCache(), enabledConfig())
	ctx := context.Background()

	r, _ := agent.NewResult(agent.TypeDescription, true, "drafted", 0.9)
	rc.Put(ctx, "k1", r)

	got, ok := rc.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Content != "drafted" || got.Confidence != 0.9 {
		t.Errorf("round trip mangled the result: %+v", got)
	}
}

func TestFailedResultsNeverCached(t *testing.T) {
	rc, _ := NewResultCache(newMapCache(), enabledConfig())
	ctx := context.Background()

	rc.Put(ctx, "k1", agent.Failure(agent.TypeDescription, context.DeadlineExceeded))
	if _, ok := rc.Get(ctx, "k1"); ok {
		t.Error("failed results must not be cached")
	}
}

func TestCorruptEntryDropped(t *testing.T) {
	backend := newMapCache()
	rc, _ := NewResultCache(backend, enabledConfig())
	ctx := context.Background()

	if err := backend.Set(ctx, "k1", []byte("{not json"), time.Minute); err != nil {
		t.Fatal(err)
	}

	if _, ok := rc.Get(ctx, "k1"); ok {
		t.Fatal("corrupt entry must be a miss")
	}
	if _, ok, _ := backend.Get(ctx, "k1"); ok {
		t.Error("corrupt entry must be deleted from the backend")
	}
}
