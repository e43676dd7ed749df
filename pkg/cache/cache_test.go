package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mercator-hq/sentinel/pkg/cache/storage"
	"mercator-hq/sentinel/pkg/decision"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(policy Policy, maxEntries int, store storage.Store) (*DecisionCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(Options{
		MaxEntries: maxEntries,
		Policy:     policy,
		Store:      store,
		Clock:      clock.now,
	})
	return c, clock
}

func testKey(op string) Key {
	return GenerateKey(op, map[string]any{"op": op}, nil, nil, "standard")
}

func allowInsert() Insert {
	return Insert{
		Verdict:    decision.VerdictAllow,
		Confidence: decision.ConfidenceHigh,
		Reasoning:  "test",
		TTL:        -1,
	}
}

func TestPutGet_Idempotent(t *testing.T) {
	c, _ := newTestCache(PolicyLRU, 10, nil)
	key := testKey("help")

	ins := allowInsert()
	ins.Alternatives = []string{"ask for docs"}
	ins.Restrictions = []string{"read only"}
	if err := c.Put(context.Background(), key, ins); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	e, ok := c.Get(context.Background(), key)
	if !ok {
		t.Fatal("Expected hit immediately after Put")
	}
	if e.Verdict != decision.VerdictAllow || e.Confidence != decision.ConfidenceHigh {
		t.Errorf("Entry fields changed: %+v", e)
	}
	if len(e.Alternatives) != 1 || e.Alternatives[0] != "ask for docs" {
		t.Errorf("Alternatives not preserved: %v", e.Alternatives)
	}
	if e.AccessCount != 1 {
		t.Errorf("Expected access count 1, got %d", e.AccessCount)
	}
}

func TestGet_Miss(t *testing.T) {
	c, _ := newTestCache(PolicyLRU, 10, nil)

	if _, ok := c.Get(context.Background(), testKey("nothing")); ok {
		t.Error("Expected miss on empty cache")
	}

	stats := c.Stats()
	if stats.Misses != 1 || stats.Hits != 0 {
		t.Errorf("Expected 1 miss, got %+v", stats)
	}
}

func TestTTLExpiry(t *testing.T) {
	c, clock := newTestCache(PolicyLRU, 10, nil)
	key := testKey("transient")

	ins := allowInsert()
	ins.TTL = time.Second
	if err := c.Put(context.Background(), key, ins); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	clock.advance(500 * time.Millisecond)
	if _, ok := c.Get(context.Background(), key); !ok {
		t.Error("Entry should be retrievable at t=0.5s")
	}

	clock.advance(time.Second)
	if _, ok := c.Get(context.Background(), key); ok {
		t.Error("Entry should be expired at t=1.5s")
	}

	if stats := c.Stats(); stats.Expired != 1 {
		t.Errorf("Expected 1 expired entry, got %+v", stats)
	}
}

func TestNoExpiryTTL(t *testing.T) {
	c, clock := newTestCache(PolicyLRU, 10, nil)
	key := testKey("durable")

	ins := allowInsert()
	ins.TTL = -1
	if err := c.Put(context.Background(), key, ins); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	clock.advance(1000 * time.Hour)
	if _, ok := c.Get(context.Background(), key); !ok {
		t.Error("Entry with non-positive TTL must never expire")
	}
}

func TestEvictionBound_AllPolicies(t *testing.T) {
	const maxEntries = 20
	policies := []Policy{PolicyLRU, PolicyLFU, PolicyTTL, PolicyPriority, PolicyAdaptive}

	for _, policy := range policies {
		t.Run(string(policy), func(t *testing.T) {
			c, clock := newTestCache(policy, maxEntries, nil)

			for i := 0; i < maxEntries+15; i++ {
				ins := allowInsert()
				ins.Priority = i % 5
				if err := c.Put(context.Background(), testKey(fmt.Sprintf("op-%d", i)), ins); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
				clock.advance(time.Millisecond)
			}

			if n := c.Stats().Entries; n > maxEntries {
				t.Errorf("Cache exceeded capacity under %s: %d > %d", policy, n, maxEntries)
			}
		})
	}
}

func TestEviction_LRUKeepsRecent(t *testing.T) {
	c, clock := newTestCache(PolicyLRU, 10, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := c.Put(ctx, testKey(fmt.Sprintf("op-%d", i)), allowInsert()); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		clock.advance(time.Minute)
	}

	// Touch op-0 so it becomes the most recently used.
	if _, ok := c.Get(ctx, testKey("op-0")); !ok {
		t.Fatal("Expected hit for op-0")
	}
	clock.advance(time.Minute)

	// Trigger eviction.
	if err := c.Put(ctx, testKey("op-new"), allowInsert()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok := c.Get(ctx, testKey("op-0")); !ok {
		t.Error("Recently accessed entry should have survived LRU eviction")
	}
	if _, ok := c.Get(ctx, testKey("op-1")); ok {
		t.Error("Least recently accessed entry should have been evicted")
	}
}

func TestEviction_PriorityKeepsHighPriority(t *testing.T) {
	c, clock := newTestCache(PolicyPriority, 10, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ins := allowInsert()
		ins.Priority = i
		if err := c.Put(ctx, testKey(fmt.Sprintf("op-%d", i)), ins); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		clock.advance(time.Millisecond)
	}

	ins := allowInsert()
	ins.Priority = 100
	if err := c.Put(ctx, testKey("op-new"), ins); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok := c.Get(ctx, testKey("op-0")); ok {
		t.Error("Lowest-priority entry should have been evicted first")
	}
	if _, ok := c.Get(ctx, testKey("op-9")); !ok {
		t.Error("High-priority entry should have survived")
	}
}

func TestInvalidate_Wildcard(t *testing.T) {
	c, _ := newTestCache(PolicyLRU, 10, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := c.Put(ctx, testKey(fmt.Sprintf("op-%d", i)), allowInsert()); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	removed, err := c.Invalidate(ctx, "*", "security_policy_change")
	if err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if removed != 5 {
		t.Errorf("Expected 5 removed, got %d", removed)
	}
	if c.Stats().Entries != 0 {
		t.Error("Expected empty cache after wildcard invalidation")
	}
}

func TestInvalidate_Pattern(t *testing.T) {
	c, _ := newTestCache(PolicyLRU, 10, nil)
	ctx := context.Background()

	if err := c.Put(ctx, testKey("file_read /etc/hosts"), allowInsert()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Put(ctx, testKey("network ping"), allowInsert()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	removed, err := c.Invalidate(ctx, "file_read", "file_system_change")
	if err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if _, ok := c.Get(ctx, testKey("network ping")); !ok {
		t.Error("Unrelated entry should have survived pattern invalidation")
	}
}

func TestTriggerInvalidation_SensitiveEntries(t *testing.T) {
	c, _ := newTestCache(PolicyLRU, 10, nil)
	ctx := context.Background()

	ins := allowInsert()
	ins.InvalidationTriggers = []string{TriggerNetworkPolicyChange}
	if err := c.Put(ctx, testKey("network fetch"), ins); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Put(ctx, testKey("help"), allowInsert()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	removed, err := c.TriggerInvalidation(ctx, TriggerNetworkPolicyChange)
	if err != nil {
		t.Fatalf("TriggerInvalidation failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if _, ok := c.Get(ctx, testKey("help")); !ok {
		t.Error("Insensitive entry should survive the trigger")
	}
}

func TestTriggerInvalidation_GlobalScope(t *testing.T) {
	c, _ := newTestCache(PolicyLRU, 10, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Put(ctx, testKey(fmt.Sprintf("op-%d", i)), allowInsert()); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	removed, err := c.TriggerInvalidation(ctx, TriggerSecurityPolicyChange)
	if err != nil {
		t.Fatalf("TriggerInvalidation failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("Security policy change must flush everything, removed %d", removed)
	}
}

// failingStore fails every Save.
type failingStore struct {
	storage.Store
}

func (f *failingStore) Save(context.Context, *storage.Record) error {
	return errors.New("disk full")
}

func TestPut_RollbackOnPersistenceFailure(t *testing.T) {
	store := &failingStore{Store: storage.NewMemoryStore()}
	c, _ := newTestCache(PolicyLRU, 10, store)
	key := testKey("op")

	err := c.Put(context.Background(), key, allowInsert())
	if err == nil {
		t.Fatal("Expected error from Put with failing store")
	}
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Errorf("Expected PersistenceError, got %T", err)
	}

	// The in-memory insert must have been rolled back.
	if _, ok := c.Get(context.Background(), key); ok {
		t.Error("Entry must not be served after persistence rollback")
	}
	if c.Stats().PutFailures != 1 {
		t.Errorf("Expected 1 put failure, got %+v", c.Stats())
	}
}

func TestPersistence_RoundTripAndWarm(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	c1, _ := newTestCache(PolicyLRU, 10, store)
	key := testKey("persisted")
	ins := allowInsert()
	ins.Metadata = map[string]any{"origin": "test"}
	if err := c1.Put(ctx, key, ins); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// A second cache over the same store warms from it.
	c2, _ := newTestCache(PolicyLRU, 10, store)
	loaded, err := c2.Warm(ctx)
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if loaded != 1 {
		t.Errorf("Expected 1 warmed entry, got %d", loaded)
	}

	e, ok := c2.Get(ctx, key)
	if !ok {
		t.Fatal("Expected hit after warm start")
	}
	if e.Verdict != decision.VerdictAllow {
		t.Errorf("Unexpected verdict after warm: %v", e.Verdict)
	}
}

func TestPersistedTTLRounding(t *testing.T) {
	cases := []struct {
		ttl  time.Duration
		want int64
	}{
		{-1, -1},
		{0, 0},
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tc := range cases {
		e := &Entry{Key: testKey("ttl"), TTL: tc.ttl}
		if got := recordFromEntry(e).TTLSeconds; got != tc.want {
			t.Errorf("TTL %v persisted as %ds, want %d", tc.ttl, got, tc.want)
		}
	}
}

func TestSubSecondTTLExpiresAfterWarm(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	c1, _ := newTestCache(PolicyLRU, 10, store)
	key := testKey("short-lived")
	ins := allowInsert()
	ins.TTL = 500 * time.Millisecond
	if err := c1.Put(ctx, key, ins); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec, err := store.Load(ctx, key.String())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec.TTLSeconds != 1 {
		t.Fatalf("Persisted TTL = %ds, want 1", rec.TTLSeconds)
	}

	// A cache warming from the store after expiry must not resurrect
	// the entry.
	c2, clock := newTestCache(PolicyLRU, 10, store)
	clock.advance(2 * time.Second)
	if _, err := c2.Warm(ctx); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if _, ok := c2.Get(ctx, key); ok {
		t.Error("Expired sub-second entry survived a warm start")
	}
}

func TestWarm_SkipsExpired(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	c1, clock := newTestCache(PolicyLRU, 10, store)
	ins := allowInsert()
	ins.TTL = time.Second
	if err := c1.Put(ctx, testKey("transient"), ins); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c1.Put(ctx, testKey("durable"), allowInsert()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	c2 := New(Options{
		MaxEntries: 10,
		Policy:     PolicyLRU,
		Store:      store,
		Clock:      func() time.Time { return clock.t.Add(time.Hour) },
	})
	loaded, err := c2.Warm(ctx)
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if loaded != 1 {
		t.Errorf("Expected only the unexpired entry to warm, got %d", loaded)
	}
}

func TestGet_FallsBackToStore(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	c1, _ := newTestCache(PolicyLRU, 10, store)
	key := testKey("persisted")
	if err := c1.Put(ctx, key, allowInsert()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Fresh cache with an empty index but the same store.
	c2, _ := newTestCache(PolicyLRU, 10, store)
	if _, ok := c2.Get(ctx, key); !ok {
		t.Error("Expected Get to fall back to the persistent store")
	}
	// Promoted into memory: second Get hits without the store.
	if e, ok := c2.Get(ctx, key); !ok || e.AccessCount < 2 {
		t.Error("Expected promoted entry with access bookkeeping")
	}
}

func TestClose(t *testing.T) {
	c, _ := newTestCache(PolicyLRU, 10, nil)
	if err := c.Put(context.Background(), testKey("op"), allowInsert()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := c.Get(context.Background(), testKey("op")); ok {
		t.Error("Closed cache must not serve entries")
	}
	if err := c.Put(context.Background(), testKey("op2"), allowInsert()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
