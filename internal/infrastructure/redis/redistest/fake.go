// Package redistest provides an in-memory RedisClient for tests.
package redistest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/honeynil/p2p-marketplace/internal/infrastructure/redis"
)

// Fake implements redis.RedisClient. TTLs are recorded but never expire.
type Fake struct {
	mu     sync.Mutex
	values map[string]string
	lists  map[string][]string
	TTLs   map[string]time.Duration

	// Err, when set, is returned by every call.
	Err error
}

var _ redis.RedisClient = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		values: make(map[string]string),
		lists:  make(map[string][]string),
		TTLs:   make(map[string]time.Duration),
	}
}

func (f *Fake) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	v, ok := f.values[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (f *Fake) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.values[key] = fmt.Sprint(value)
	f.TTLs[key] = expiration
	return nil
}

func (f *Fake) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	delete(f.values, key)
	delete(f.lists, key)
	delete(f.TTLs, key)
	return nil
}

func (f *Fake) PushCapped(_ context.Context, key, value string, maxLen int64, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	list := append([]string{value}, f.lists[key]...)
	if int64(len(list)) > maxLen {
		list = list[:maxLen]
	}
	f.lists[key] = list
	f.TTLs[key] = ttl
	return nil
}

func (f *Fake) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	list := f.lists[key]
	n := int64(len(list))
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start >= n || start > stop {
		return []string{}, nil
	}
	return append([]string{}, list[start:stop+1]...), nil
}

func (f *Fake) Close() error { return nil }

// Has reports whether a plain value is stored under key.
func (f *Fake) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}
