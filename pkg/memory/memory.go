// Package memory implements the Resilient Memory (spec.md §4.6): a bounded,
// TTL-evicting ring of past envelope snapshots queried by a cheap
// token-overlap similarity heuristic during the backoff/consult loop.
// Grounded on the teacher's pkg/memory/implementations.go InMemoryStore
// (bounded map + per-entry expiry, lazy eviction on access) generalized
// from a key/value TTL cache into an append-only similarity ring, since
// the spec's memory has no keyed lookup — only add/similar/metrics.
package memory

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"github.com/itsneelabh/selfheal/pkg/ports"
)

// Record is one stored envelope snapshot (spec.md §4.6 MemoryRecord).
type Record struct {
	EnvelopeJSON string `json:"envelope_json"`
	StoredAtMS   int64  `json:"stored_at_ms"`
}

// Metrics reports the ring's health (spec.md §4.6 metrics()).
type Metrics struct {
	Size      int    `json:"size"`
	Evictions int    `json:"evictions"`
	Failures  int    `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}

// Store is the behavior the session loop depends on; Ring is the default,
// in-process implementation, and RedisBackedMemory (pkg/memory/redis.go) is
// an optional durable adapter over the same contract.
type Store interface {
	Add(envelopeJSON string) bool
	Similar(query string) []Record
	Metrics() Metrics
}

const (
	// DefaultCapacity is the max number of records the ring retains
	// (spec.md §6).
	DefaultCapacity = 500
	// DefaultTTLMS is the default eviction age: 7 days (spec.md §6
	// memory_ttl_ms).
	DefaultTTLMS = 7 * 24 * 60 * 60 * 1000
	maxSimilarResults = 5
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases s and splits it into alphanumeric tokens (spec.md
// §4.6: "lowercased alphanumeric tokens of stringified query vs stored
// envelope").
func tokenize(s string) map[string]struct{} {
	tokens := tokenPattern.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

func overlaps(a, b map[string]struct{}) bool {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for tok := range small {
		if _, ok := big[tok]; ok {
			return true
		}
	}
	return false
}

// Ring is the default, in-process Resilient Memory: a capacity-bounded,
// TTL-evicting, oldest-first-evicting append log.
type Ring struct {
	mu        sync.Mutex
	capacity  int
	ttlMS     int64
	clock     ports.Clock
	records   []Record
	evictions int
	failures  int
	lastError string
}

// Option configures a Ring.
type Option func(*Ring)

// WithCapacity overrides the default record capacity.
func WithCapacity(n int) Option {
	return func(r *Ring) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithTTLMS overrides the default eviction age.
func WithTTLMS(ttlMS int64) Option {
	return func(r *Ring) {
		if ttlMS > 0 {
			r.ttlMS = ttlMS
		}
	}
}

// New creates a Ring bounded at DefaultCapacity records with DefaultTTLMS
// eviction, using clock as the time source for eviction and record
// timestamps.
func New(clock ports.Clock, opts ...Option) *Ring {
	r := &Ring{capacity: DefaultCapacity, ttlMS: DefaultTTLMS, clock: clock}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Store = (*Ring)(nil)

// Add appends envelopeJSON to the ring. Writes never panic the caller:
// invalid JSON or any internal failure is recorded in the metrics and Add
// returns false (spec.md §4.6: "Writes must never throw; on error,
// increment failures, record last_error, return false").
func (r *Ring) Add(envelopeJSON string) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.mu.Lock()
			r.failures++
			r.lastError = "panic while adding record"
			r.mu.Unlock()
			ok = false
		}
	}()

	if !json.Valid([]byte(envelopeJSON)) {
		r.mu.Lock()
		r.failures++
		r.lastError = "envelope is not valid JSON"
		r.mu.Unlock()
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()
	if len(r.records) >= r.capacity {
		r.records = r.records[1:]
		r.evictions++
	}
	r.records = append(r.records, Record{EnvelopeJSON: envelopeJSON, StoredAtMS: r.clock.NowMS()})
	return true
}

// evictExpiredLocked removes records older than ttlMS. Records are stored
// oldest-first, so expired entries are always a prefix.
func (r *Ring) evictExpiredLocked() {
	now := r.clock.NowMS()
	cutoff := now - r.ttlMS
	i := 0
	for i < len(r.records) && r.records[i].StoredAtMS < cutoff {
		i++
	}
	if i > 0 {
		r.evictions += i
		r.records = r.records[i:]
	}
}

// Similar returns up to 5 of the most recent records sharing at least one
// lowercased alphanumeric token with query (spec.md §4.6).
func (r *Ring) Similar(query string) []Record {
	queryTokens := tokenize(query)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictExpiredLocked()

	var matches []Record
	for i := len(r.records) - 1; i >= 0 && len(matches) < maxSimilarResults; i-- {
		rec := r.records[i]
		if overlaps(queryTokens, tokenize(rec.EnvelopeJSON)) {
			matches = append(matches, rec)
		}
	}
	return matches
}

// Metrics returns the ring's current health.
func (r *Ring) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Metrics{
		Size:      len(r.records),
		Evictions: r.evictions,
		Failures:  r.failures,
		LastError: r.lastError,
	}
}
