package ratelimit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	l := NewMemoryLimiter(Config{Limit: 5, Window: 15 * time.Minute})
	defer l.Stop()

	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		result, err := l.Allow(ctx, "203.0.113.1")
		if err != nil {
			t.Fatal(err)
		}
		if !result.Allowed {
			t.Fatalf("request %d denied, want first 5 allowed", i)
		}
		if result.Remaining != 5-i {
			t.Errorf("request %d Remaining = %d, want %d", i, result.Remaining, 5-i)
		}
	}

	result, err := l.Allow(ctx, "203.0.113.1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed {
		t.Error("6th request allowed, want denied")
	}
	if result.RetryAfter <= 0 || result.RetryAfter > 15*time.Minute {
		t.Errorf("RetryAfter = %v", result.RetryAfter)
	}
}

func TestMemoryLimiterKeysIndependent(t *testing.T) {
	l := NewMemoryLimiter(Config{Limit: 1, Window: time.Minute})
	defer l.Stop()

	ctx := context.Background()

	if result, _ := l.Allow(ctx, "a"); !result.Allowed {
		t.Fatal("first request for key a denied")
	}
	if result, _ := l.Allow(ctx, "a"); result.Allowed {
		t.Fatal("second request for key a allowed")
	}
	if result, _ := l.Allow(ctx, "b"); !result.Allowed {
		t.Error("request for independent key b denied")
	}
}

func TestMemoryLimiterWindowReset(t *testing.T) {
	l := NewMemoryLimiter(Config{Limit: 2, Window: 50 * time.Millisecond})
	defer l.Stop()

	ctx := context.Background()

	l.Allow(ctx, "k")
	l.Allow(ctx, "k")
	if result, _ := l.Allow(ctx, "k"); result.Allowed {
		t.Fatal("over-limit request allowed")
	}

	time.Sleep(60 * time.Millisecond)

	result, _ := l.Allow(ctx, "k")
	if !result.Allowed {
		t.Fatal("request after window elapsed denied")
	}
	// A new window starts with count 1.
	if result.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", result.Remaining)
	}
}

func TestDropExpired(t *testing.T) {
	now := time.Now()
	counters := map[string]*Counter{
		"fresh": {Count: 1, WindowStart: now},
		"stale": {Count: 3, WindowStart: now.Add(-time.Hour)},
	}

	dropExpired(counters, 15*time.Minute, now)

	if _, ok := counters["stale"]; ok {
		t.Error("stale counter not dropped")
	}
	if _, ok := counters["fresh"]; !ok {
		t.Error("fresh counter dropped")
	}
}

func TestBoltLimiterPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.db")
	ctx := context.Background()

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatal(err)
	}

	l, err := NewBoltLimiter(db, Config{Limit: 2, Window: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	l.Allow(ctx, "203.0.113.9")
	l.Allow(ctx, "203.0.113.9")

	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
	db.Close()

	// Reopen: the window must carry over.
	db, err = bolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	l2, err := NewBoltLimiter(db, Config{Limit: 2, Window: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Stop()

	result, err := l2.Allow(ctx, "203.0.113.9")
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed {
		t.Error("request allowed after restart, counters not persisted")
	}
}
