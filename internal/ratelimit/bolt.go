package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRateLimits = []byte("rate_limits")

// BoltLimiter persists counters to bbolt so limits survive restarts.
// Counters live in memory and are flushed on an interval and on Stop.
type BoltLimiter struct {
	db       *bolt.DB
	cfg      Config
	mu       sync.Mutex
	counters map[string]*Counter
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewBoltLimiter creates a persistent fixed-window limiter.
func NewBoltLimiter(db *bolt.DB, cfg Config) (*BoltLimiter, error) {
	cfg.setDefaults()

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	l := &BoltLimiter{
		db:       db,
		cfg:      cfg,
		counters: make(map[string]*Counter),
		stopCh:   make(chan struct{}),
	}

	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	go l.persistLoop()

	return l, nil
}

// Allow implements Limiter.
func (l *BoltLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return check(l.counters, key, l.cfg, time.Now()), nil
}

// Stop flushes counters and stops the persistence loop.
func (l *BoltLimiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return l.persistCounters()
}

func (l *BoltLimiter) loadCounters() error {
	return l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil // Skip invalid entries
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

func (l *BoltLimiter) persistCounters() error {
	l.mu.Lock()
	dropExpired(l.counters, l.cfg.Window, time.Now())
	snapshot := make(map[string][]byte, len(l.counters))
	for key, counter := range l.counters {
		data, err := json.Marshal(counter)
		if err != nil {
			continue
		}
		snapshot[key] = data
	}
	l.mu.Unlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketRateLimits); err != nil {
			return err
		}
		bucket, err := tx.CreateBucket(bucketRateLimits)
		if err != nil {
			return err
		}
		for key, data := range snapshot {
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *BoltLimiter) persistLoop() {
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.persistCounters()
		}
	}
}
