// Package storage provides the local stand-ins for external caching and
// search infrastructure: a TTL key/value cache backed by SQLite and an
// append-only document log with one segment file per collection.
package storage

import (
	"encoding/json"
	"sync"
	"time"

	"gorm.io/gorm"

	"netsentry/models"
	"netsentry/system"
)

// Cache is a TTL key/value store on top of the cache_entries table.
// Entries past their expiry are treated as absent by every read path even
// before the periodic sweep physically removes them.
type Cache struct {
	db  *gorm.DB
	mu  sync.Mutex
	now func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewCache(db *gorm.DB) *Cache {
	return &Cache{
		db:       db,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Set stores a value under key, replacing any existing entry. A ttl <= 0
// means the entry never expires. Values are serialized as JSON.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		system.Error("Failed to serialize cache value for key %s: %v", key, err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := models.CacheEntry{
		Key:       key,
		Value:     string(data),
		CreatedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		entry.ExpiresAt = &expires
	}

	if err := c.db.Save(&entry).Error; err != nil {
		system.Error("Failed to set cache key %s: %v", key, err)
		return false
	}
	return true
}

// Get returns the raw serialized value for key, or false if the key is
// absent or expired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entry models.CacheEntry
	err := c.db.
		Where("key = ? AND (expires_at IS NULL OR expires_at > ?)", key, c.now()).
		First(&entry).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			system.Error("Failed to get cache key %s: %v", key, err)
		}
		return "", false
	}
	return entry.Value, true
}

// GetJSON unmarshals the cached value for key into out.
func (c *Cache) GetJSON(key string, out interface{}) bool {
	raw, ok := c.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		system.Error("Failed to decode cache value for key %s: %v", key, err)
		return false
	}
	return true
}

// Delete removes a key. Returns false if no row was removed.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.db.Where("key = ?", key).Delete(&models.CacheEntry{})
	if res.Error != nil {
		system.Error("Failed to delete cache key %s: %v", key, res.Error)
		return false
	}
	return res.RowsAffected > 0
}

// Exists reports whether key holds a non-expired entry.
func (c *Cache) Exists(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// ClearExpired physically removes expired entries and returns the count.
func (c *Cache) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.db.
		Where("expires_at IS NOT NULL AND expires_at <= ?", c.now()).
		Delete(&models.CacheEntry{})
	if res.Error != nil {
		system.Error("Failed to clear expired cache entries: %v", res.Error)
		return 0
	}
	return int(res.RowsAffected)
}

// ListKeys returns all non-expired keys.
func (c *Cache) ListKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string
	err := c.db.Model(&models.CacheEntry{}).
		Where("expires_at IS NULL OR expires_at > ?", c.now()).
		Pluck("key", &keys).Error
	if err != nil {
		system.Error("Failed to list cache keys: %v", err)
		return nil
	}
	return keys
}

// StartSweep runs a background loop that removes expired entries.
func (c *Cache) StartSweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-c.stopChan:
				return
			case <-ticker.C:
				if n := c.ClearExpired(); n > 0 {
					system.Info("Cleaned up %d expired cache entries", n)
				}
			}
		}
	}()
}

// Stop terminates the sweep loop.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}
