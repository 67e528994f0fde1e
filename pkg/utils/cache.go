package utils

import (
	"sync"
	"time"
)

// MemoryCache 进程内 TTL 缓存
// 盒子详情和概率表的读穿缓存用，过期懒删除
type MemoryCache struct {
	store sync.Map
}

// cacheItem 内部结构，包含值和过期时间
type cacheItem struct {
	value      string
	expiration int64 // unix nano，0 表示不过期
}

// NewMemoryCache 创建缓存实例
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Set 设置缓存
func (c *MemoryCache) Set(key string, value string, ttl time.Duration) {
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}

	c.store.Store(key, cacheItem{
		value:      value,
		expiration: exp,
	})
}

// Get 获取缓存并验证是否过期
func (c *MemoryCache) Get(key string) (string, bool) {
	val, ok := c.store.Load(key)
	if !ok {
		return "", false
	}

	item := val.(cacheItem)

	if item.expiration > 0 && time.Now().UnixNano() > item.expiration {
		c.store.Delete(key) // 懒删除
		return "", false
	}

	return item.value, true
}

// Delete 删除缓存
func (c *MemoryCache) Delete(key string) {
	c.store.Delete(key)
}
