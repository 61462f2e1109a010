package session

import (
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tmc/langchaingo/vectorstores"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already registered")
)

// Registry 会话ID到文档索引的映射。
// ttl 为 0 时索引常驻进程内存，不做淘汰。
type Registry struct {
	cache *cache.Cache
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		return &Registry{
			cache: cache.New(cache.NoExpiration, 0),
		}
	}

	cleanupInterval := ttl / 2
	if cleanupInterval < time.Second {
		cleanupInterval = time.Second
	}
	return &Registry{
		cache: cache.New(ttl, cleanupInterval),
	}
}

// Put 注册会话索引，会话ID已存在时返回 ErrSessionExists
func (r *Registry) Put(sessionID string, index vectorstores.VectorStore) error {
	if err := r.cache.Add(sessionID, index, cache.DefaultExpiration); err != nil {
		return ErrSessionExists
	}
	return nil
}

func (r *Registry) Get(sessionID string) (vectorstores.VectorStore, bool) {
	x, found := r.cache.Get(sessionID)
	if !found {
		return nil, false
	}
	return x.(vectorstores.VectorStore), true
}

func (r *Registry) Exists(sessionID string) bool {
	_, found := r.cache.Get(sessionID)
	return found
}

func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// OnEvicted 注册索引过期后的回调
func (r *Registry) OnEvicted(f func(sessionID string)) {
	r.cache.OnEvicted(func(key string, _ interface{}) {
		f(key)
	})
}
