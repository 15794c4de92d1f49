// Package session keeps the set of paid session ids, bounded by a TTL.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
)

// DefaultTTL is how long a paid session stays paid.
const DefaultTTL = time.Hour

// Store maps session ids to a paid flag. Implementations must evict
// entries; a shared cache can back it across instances.
type Store interface {
	MarkPaid(sessionID string) error
	IsPaid(sessionID string) bool
}

var paid = []byte{1}

// BigCacheStore is an in-process Store with TTL eviction.
type BigCacheStore struct {
	cache *bigcache.BigCache
}

func NewBigCacheStore(ttl time.Duration) (*BigCacheStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Verbose = false

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &BigCacheStore{cache: cache}, nil
}

func (s *BigCacheStore) MarkPaid(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is empty")
	}
	return s.cache.Set(sessionID, paid)
}

func (s *BigCacheStore) IsPaid(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	_, err := s.cache.Get(sessionID)
	return err == nil
}

// Len is the number of live sessions.
func (s *BigCacheStore) Len() int {
	return s.cache.Len()
}

func (s *BigCacheStore) Close() error {
	return s.cache.Close()
}
