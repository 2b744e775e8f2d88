package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ============================================================
// LRU 内存缓存实现（使用双向链表实现 O(1) 操作）
// ============================================================

// MemoryCache 是容量受限的 LRU 内存缓存。
// 过期检查在 Get 时惰性执行；配置了 cleanupInterval 时
// 另有后台清扫循环批量淘汰过期条目。
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*lruNode
	head     *lruNode // 最近使用
	tail     *lruNode // 最久未使用

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	stopCh chan struct{}
	stopMu sync.Once
	logger *zap.Logger
}

type lruNode struct {
	key       string
	value     []byte
	expiresAt time.Time // 零值表示不过期
	prev      *lruNode
	next      *lruNode
}

// NewMemoryCache 创建内存缓存。cleanupInterval <= 0 时仅惰性过期。
func NewMemoryCache(capacity int, cleanupInterval time.Duration, logger *zap.Logger) *MemoryCache {
	if capacity <= 0 {
		capacity = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &MemoryCache{
		capacity: capacity,
		items:    make(map[string]*lruNode),
		stopCh:   make(chan struct{}),
		logger:   logger.With(zap.String("component", "memory_cache")),
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

// Get 返回 key 对应的值。过期条目被删除并按未命中处理。
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	// 惰性过期检查
	if !node.expiresAt.IsZero() && time.Now().After(node.expiresAt) {
		c.removeNode(node)
		delete(c.items, key)
		c.misses.Add(1)
		return nil, false
	}

	c.moveToHead(node)
	c.hits.Add(1)
	return node.value, true
}

// Set 写入值。ttl <= 0 表示不过期。
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// 已存在：更新并移动到头部
	if node, ok := c.items[key]; ok {
		node.value = value
		node.expiresAt = expiresAt
		c.moveToHead(node)
		return
	}

	// 容量检查，淘汰最久未使用的
	if len(c.items) >= c.capacity {
		c.evictTail()
	}

	node := &lruNode{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}
	c.items[key] = node
	c.addToHead(node)
}

// Delete 删除条目。
func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		c.removeNode(node)
		delete(c.items, key)
	}
}

// Len 返回当前条目数。
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats 返回命中统计。
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	size := len(c.items)
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      size,
	}
}

// Close 停止后台清扫循环。
func (c *MemoryCache) Close() error {
	c.stopMu.Do(func() { close(c.stopCh) })
	return nil
}

// cleanupLoop 周期性批量淘汰过期条目
func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryCache) removeExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, node := range c.items {
		if !node.expiresAt.IsZero() && now.After(node.expiresAt) {
			c.removeNode(node)
			delete(c.items, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("expired entries swept", zap.Int("count", removed))
	}
}

// addToHead 添加节点到头部 O(1)
func (c *MemoryCache) addToHead(node *lruNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

// removeNode 从链表中移除节点 O(1)
func (c *MemoryCache) removeNode(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
}

// moveToHead 移动节点到头部 O(1)
func (c *MemoryCache) moveToHead(node *lruNode) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToHead(node)
}

// evictTail 淘汰尾部节点 O(1)
func (c *MemoryCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.key)
	c.removeNode(c.tail)
	c.evictions.Add(1)
}
