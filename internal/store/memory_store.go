package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is a goroutine-safe in-memory StatsStore, sufficient for unit
// tests that exercise the rule/guard/protector feedback loop without a
// Redis dependency.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]memoryEntry
	lists  map[string][]string
	hashes map[string]map[string]string
	sets   map[string]map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]memoryEntry),
		lists:  make(map[string][]string),
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]float64),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) expired(key string) bool {
	e, ok := m.values[key]
	if !ok {
		return false
	}
	if e.expiresAt.IsZero() {
		return false
	}
	return time.Now().After(e.expiresAt)
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		delete(m.values, key)
		return "", false, nil
	}
	e, ok := m.values[key]
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.values[key] = memoryEntry{value: value, expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		delete(m.values, key)
	}
	if _, ok := m.values[key]; ok {
		return true, nil
	}
	if _, ok := m.lists[key]; ok {
		return true, nil
	}
	if _, ok := m.hashes[key]; ok {
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.values[key]
	if !ok || e.expiresAt.IsZero() {
		return -1, nil
	}
	remaining := time.Until(e.expiresAt)
	if remaining < 0 {
		return -2, nil
	}
	return remaining, nil
}

func (m *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.values[key]
	if !ok {
		return nil
	}
	e.expiresAt = time.Now().Add(ttl)
	m.values[key] = e
	return nil
}

func (m *MemoryStore) RPush(ctx context.Context, list, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[list] = append(m.lists[list], value)
	return nil
}

func (m *MemoryStore) ListLen(list string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[list])
}

func (m *MemoryStore) HExists(ctx context.Context, hash, field string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[hash]
	if !ok {
		return false, nil
	}
	_, ok = h[field]
	return ok, nil
}

func (m *MemoryStore) HSet(ctx context.Context, hash string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[hash]
	if !ok {
		h = make(map[string]string)
		m.hashes[hash] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *MemoryStore) HGetAll(ctx context.Context, hash string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[hash]
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) HIncrBy(ctx context.Context, hash, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[hash]
	if !ok {
		h = make(map[string]string)
		m.hashes[hash] = h
	}
	var cur int64
	if v, ok := h[field]; ok {
		cur, _ = strconv.ParseInt(v, 10, 64)
	}
	cur += delta
	h[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (m *MemoryStore) ZScore(ctx context.Context, set, member string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[set]
	if !ok {
		return 0, false, nil
	}
	score, ok := s[member]
	return score, ok, nil
}

func (m *MemoryStore) ZAdd(ctx context.Context, set string, members map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[set]
	if !ok {
		s = make(map[string]float64)
		m.sets[set] = s
	}
	for member, score := range members {
		s[member] = score
	}
	return nil
}

func (m *MemoryStore) ZRangeWithScoresDesc(ctx context.Context, set string) ([]ZMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[set]
	if !ok {
		return nil, nil
	}
	out := make([]ZMember, 0, len(s))
	for member, score := range s {
		out = append(out, ZMember{Member: member, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
