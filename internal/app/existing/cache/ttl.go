package cache

import (
	"time"

	"bmcheck.local/internal/platform/metrics"
	"github.com/dgraph-io/ristretto"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache 基于 ristretto 的本地内存缓存，过期在读取时判断。
//
// 容量淘汰交给 ristretto 的准入/淘汰策略；过期条目在 Get 时顺手删除，不需要后台清理。
type TTLCache[V any] struct {
	store *ristretto.Cache
	now   func() time.Time
}

// New 创建缓存；maxItems 为最大条目数（每个条目 cost=1）。
func New[V any](maxItems int64) (*TTLCache[V], error) {
	if maxItems <= 0 {
		maxItems = 10000
	}
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10, // 计数器数量，建议为 maxItems 的 10 倍
		MaxCost:     maxItems,
		BufferItems: 64,
		// MaxCost 按条目数计算，不计入 ristretto 自身的内部开销
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &TTLCache[V]{store: store, now: time.Now}, nil
}

// WithClock 替换时钟，测试用。
func (c *TTLCache[V]) WithClock(now func() time.Time) *TTLCache[V] {
	c.now = now
	return c
}

// Get 只读内存，不阻塞，也不会触发网络 I/O。
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := c.store.Get(key)
	if !ok {
		metrics.CacheOperations.WithLabelValues("miss").Inc()
		return zero, false
	}
	e, ok := raw.(entry[V])
	if !ok {
		c.store.Del(key)
		metrics.CacheOperations.WithLabelValues("miss").Inc()
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		c.store.Del(key)
		metrics.CacheOperations.WithLabelValues("expired").Inc()
		return zero, false
	}
	metrics.CacheOperations.WithLabelValues("hit").Inc()
	return e.value, true
}

// Put 写入缓存，同一 key 后写覆盖先写。ttlSeconds <= 0 表示不缓存。
func (c *TTLCache[V]) Put(key string, value V, ttlSeconds int) {
	if ttlSeconds <= 0 {
		metrics.CacheOperations.WithLabelValues("skip").Inc()
		return
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	c.store.SetWithTTL(key, entry[V]{value: value, expiresAt: c.now().Add(ttl)}, 1, ttl)
	// ristretto 的写入是异步缓冲的，等它落地后紧接着的 Get 才能读到
	c.store.Wait()
	metrics.CacheOperations.WithLabelValues("store").Inc()
}

func (c *TTLCache[V]) Delete(key string) {
	c.store.Del(key)
	metrics.CacheOperations.WithLabelValues("delete").Inc()
}

func (c *TTLCache[V]) Close() {
	c.store.Close()
}
