package cache

import (
	"time"

	"github.com/patrickmn/go-cache"
)

type L1CacheService struct {
	client *cache.Cache
}

// NewL1Cache returns an in-process cache. Entries set with expiration 0
// use defaultTTL; expired entries are swept every cleanup interval.
func NewL1Cache(defaultTTL, cleanup time.Duration) *L1CacheService {
	return &L1CacheService{
		client: cache.New(defaultTTL, cleanup),
	}
}

func (s *L1CacheService) Get(key string) (interface{}, bool) {
	return s.client.Get(key)
}

func (s *L1CacheService) Set(key string, value interface{}, expiration time.Duration) {
	s.client.Set(key, value, expiration)
}

func (s *L1CacheService) Del(key string) {
	s.client.Delete(key)
}

func (s *L1CacheService) Len() int {
	return s.client.ItemCount()
}
