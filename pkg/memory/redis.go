package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBackedMemory is an optional durable Store backed by Redis, grounded
// on the teacher's pkg/memory/implementations.go RedisMemory: a namespaced
// sorted set (score = stored_at_ms) holds the record log so the oldest
// entries can be trimmed cheaply, while each member carries the raw
// envelope JSON. Similarity search still runs the same token-overlap
// heuristic as Ring, just over records fetched from Redis instead of an
// in-process slice; the core ships Ring by default (spec.md §6: "Persisted
// state: None by the core") and this adapter is opt-in for callers that
// want the memory ring to survive a process restart.
type RedisBackedMemory struct {
	mu        sync.Mutex
	client    *redis.Client
	key       string
	capacity  int
	ttl       time.Duration
	evictions int
	failures  int
	lastError string
}

// NewRedisBackedMemory dials redisURL and returns a RedisBackedMemory
// namespaced under key, bounded at capacity records with the given TTL.
func NewRedisBackedMemory(redisURL, key string, capacity int, ttl time.Duration) (*RedisBackedMemory, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("memory: invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("memory: failed to connect to redis: %w", err)
	}

	if key == "" {
		key = "selfheal:memory"
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTLMS * time.Millisecond
	}

	return &RedisBackedMemory{client: client, key: key, capacity: capacity, ttl: ttl}, nil
}

var _ Store = (*RedisBackedMemory)(nil)

// Add appends envelopeJSON to the Redis-backed sorted set, trims the
// oldest entries past capacity, and prunes anything past its TTL. Like
// Ring.Add, it never panics the caller: any Redis error is recorded in the
// metrics and Add returns false.
func (m *RedisBackedMemory) Add(envelopeJSON string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	now := time.Now()
	member := fmt.Sprintf("%d:%s", now.UnixMilli(), envelopeJSON)

	if err := m.client.ZAdd(ctx, m.key, &redis.Z{Score: float64(now.UnixMilli()), Member: member}).Err(); err != nil {
		m.failures++
		m.lastError = err.Error()
		return false
	}

	cutoff := now.Add(-m.ttl).UnixMilli()
	if err := m.client.ZRemRangeByScore(ctx, m.key, "-inf", fmt.Sprintf("(%d", cutoff)).Err(); err != nil {
		m.failures++
		m.lastError = err.Error()
	}

	if count, err := m.client.ZCard(ctx, m.key).Result(); err == nil && int(count) > m.capacity {
		overflow := count - int64(m.capacity)
		if members, err := m.client.ZRange(ctx, m.key, 0, overflow-1).Result(); err == nil {
			for _, mem := range members {
				m.client.ZRem(ctx, m.key, mem)
				m.evictions++
			}
		}
	}

	return true
}

// Similar returns up to 5 of the most recent records sharing at least one
// token with query, applying Ring's tokenize/overlaps helpers to records
// fetched from Redis.
func (m *RedisBackedMemory) Similar(query string) []Record {
	m.mu.Lock()
	key := m.key
	client := m.client
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	members, err := client.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		m.mu.Lock()
		m.failures++
		m.lastError = err.Error()
		m.mu.Unlock()
		return nil
	}

	queryTokens := tokenize(query)
	var matches []Record
	for _, mem := range members {
		if len(matches) >= maxSimilarResults {
			break
		}
		tsMS, envelopeJSON := splitMember(mem)
		if overlaps(queryTokens, tokenize(envelopeJSON)) {
			matches = append(matches, Record{EnvelopeJSON: envelopeJSON, StoredAtMS: tsMS})
		}
	}
	return matches
}

// splitMember parses a "<storedAtMS>:<envelopeJSON>" sorted-set member.
func splitMember(member string) (int64, string) {
	for i := 0; i < len(member); i++ {
		if member[i] == ':' {
			var ts int64
			fmt.Sscanf(member[:i], "%d", &ts)
			return ts, member[i+1:]
		}
	}
	return 0, member
}

// Metrics returns the adapter's current health.
func (m *RedisBackedMemory) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	size, _ := m.client.ZCard(ctx, m.key).Result()

	return Metrics{
		Size:      int(size),
		Evictions: m.evictions,
		Failures:  m.failures,
		LastError: m.lastError,
	}
}

// Close releases the underlying Redis connection.
func (m *RedisBackedMemory) Close() error {
	return m.client.Close()
}
