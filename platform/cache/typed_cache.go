package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// TypedCache stores values of one type under a key namespace.
type TypedCache[T any] struct {
	cache     CacheService
	namespace string
	sf        singleflight.Group
}

func NewTypedCache[T any](cache CacheService, namespace string) *TypedCache[T] {
	return &TypedCache[T]{cache: cache, namespace: namespace}
}

func (tc *TypedCache[T]) key(k string) string {
	if tc.namespace == "" {
		return k
	}
	return tc.namespace + ":" + k
}

func (tc *TypedCache[T]) Set(key string, value T, expiration time.Duration) error {
	return tc.cache.SetCache(tc.key(key), value, expiration)
}

// Get returns the cached value. A hit that cannot be decoded reports
// found=true with an error.
func (tc *TypedCache[T]) Get(key string) (T, bool, error) {
	var zero T

	rawValue, exists := tc.cache.GetCache(tc.key(key))
	if !exists {
		return zero, false, nil
	}
	if typedValue, ok := rawValue.(T); ok {
		return typedValue, true, nil
	}

	var result T
	switch v := rawValue.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &result); err != nil {
			return zero, true, fmt.Errorf("failed to unmarshal cache value: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(v, &result); err != nil {
			return zero, true, fmt.Errorf("failed to unmarshal cache value: %w", err)
		}
	default:
		jsonData, err := json.Marshal(rawValue)
		if err != nil {
			return zero, true, fmt.Errorf("failed to marshal intermediate value: %w", err)
		}
		if err := json.Unmarshal(jsonData, &result); err != nil {
			return zero, true, fmt.Errorf("failed to unmarshal cache value: %w", err)
		}
	}
	return result, true, nil
}

// GetOrLoad returns the cached value or calls load once for all concurrent
// callers of the same key and caches its result. Cache write failures are
// ignored.
func (tc *TypedCache[T]) GetOrLoad(key string, expiration time.Duration, load func() (T, error)) (T, error) {
	if v, ok, err := tc.Get(key); ok && err == nil {
		return v, nil
	}
	v, err, _ := tc.sf.Do(key, func() (interface{}, error) {
		val, err := load()
		if err != nil {
			return nil, err
		}
		_ = tc.Set(key, val, expiration)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (tc *TypedCache[T]) Delete(key string) error {
	return tc.cache.DelCache(tc.key(key))
}
