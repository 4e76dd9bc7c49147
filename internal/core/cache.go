package core

import (
	"sync"
	"time"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/samber/mo"
)

// ResultCache 抓取结果缓存
// 键为 Job.CacheKey(),值为去重后的有序结果;容量满时淘汰最久未使用的条目
type ResultCache struct {
	mu      sync.Mutex
	entries *expirable.LRU[string, []models.ExtractedItem]
}

// NewResultCache 创建缓存,ttl为0时只按容量淘汰
func NewResultCache(size int, ttl time.Duration) *ResultCache {
	if size < 1 {
		size = 1
	}
	return &ResultCache{
		entries: expirable.NewLRU[string, []models.ExtractedItem](size, nil, ttl),
	}
}

// Lookup 查询缓存
func (c *ResultCache) Lookup(key string) mo.Option[[]models.ExtractedItem] {
	if c == nil {
		return mo.None[[]models.ExtractedItem]()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	items, ok := c.entries.Get(key)
	if !ok {
		return mo.None[[]models.ExtractedItem]()
	}
	// 返回副本,调用方修改结果不会污染缓存
	copied := make([]models.ExtractedItem, len(items))
	copy(copied, items)
	return mo.Some(copied)
}

// Store 写入缓存,保存副本避免调用方修改
func (c *ResultCache) Store(key string, items []models.ExtractedItem) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make([]models.ExtractedItem, len(items))
	copy(copied, items)
	c.entries.Add(key, copied)
}

// Len 当前条目数
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Purge 清空缓存
func (c *ResultCache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}
