// Package mocks holds in-memory stand-ins for external services.
package mocks

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MockCache is an in-memory mock of the Redis cache.
// Used for testing without requiring a real Redis instance
type MockCache struct {
	data   map[string]string
	topics []string
	mu     sync.RWMutex

	// Gets counts Get calls, for asserting cache hits.
	Gets int
}

// NewMockCache creates a new mock cache instance
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[string]string)}
}

// Get retrieves a value from the mock cache
func (m *MockCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	return m.data[key], nil // "" for missing keys, like RedisCache
}

// Set stores a value in the mock cache. Expiration is ignored.
func (m *MockCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch v := value.(type) {
	case string:
		m.data[key] = v
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return nil
}

// Del deletes keys from the mock cache
func (m *MockCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

// Incr increments a key's value
func (m *MockCache) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

// Publish records an invalidation topic.
func (m *MockCache) Publish(_ context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	return nil
}

// Published returns the topics published so far.
func (m *MockCache) Published() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.topics))
	copy(out, m.topics)
	return out
}

// Keys returns how many keys are stored.
func (m *MockCache) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Health always returns nil for mock
func (m *MockCache) Health(context.Context) error {
	return nil
}

// Close is a no-op for mock
func (m *MockCache) Close() error {
	return nil
}

// Clear resets the mock cache (useful for tests)
func (m *MockCache) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	m.topics = nil
}
