package cache

import "time"

// CacheService is a key/value cache with per-entry expiration. Values may
// come back as the original Go value (L1) or as a JSON string (L2).
type CacheService interface {
	GetCache(key string) (interface{}, bool)
	SetCache(key string, value interface{}, expiration time.Duration) error
	DelCache(key string) error
}
