package cache

import (
	"context"
	"sync"
	"time"

	"gomhangpro/backend/internal/domain"
)

// StaffCache fronts the staff directory during token verification so a
// hot login path does not hit the database on every request.
type StaffCache interface {
	Get(ctx context.Context, key string) (*domain.UserAccount, bool, error)
	Set(ctx context.Context, key string, value *domain.UserAccount, ttl time.Duration) error
}

type NoopStaffCache struct{}

func (NoopStaffCache) Get(_ context.Context, _ string) (*domain.UserAccount, bool, error) {
	return nil, false, nil
}

func (NoopStaffCache) Set(_ context.Context, _ string, _ *domain.UserAccount, _ time.Duration) error {
	return nil
}

type memoryEntry struct {
	value     domain.UserAccount
	expiresAt time.Time
}

// MemoryStaffCache is the in-process fallback when redis is not
// configured. The clock is injectable so TTL expiry is testable.
type MemoryStaffCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	nowFn   func() time.Time
}

func NewMemoryStaffCache() *MemoryStaffCache {
	return &MemoryStaffCache{
		entries: make(map[string]memoryEntry),
		nowFn:   time.Now,
	}
}

// SetClock replaces the cache clock. Test helper.
func (c *MemoryStaffCache) SetClock(nowFn func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowFn = nowFn
}

func (c *MemoryStaffCache) Get(_ context.Context, key string) (*domain.UserAccount, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	now := c.nowFn()
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	value := entry.value
	return &value, true, nil
}

func (c *MemoryStaffCache) Set(_ context.Context, key string, value *domain.UserAccount, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: *value, expiresAt: c.nowFn().Add(ttl)}
	return nil
}
