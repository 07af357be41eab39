package cache

import (
	"container/list"
	"strconv"
	"sync"
	"time"

	"county-api/internal/geo"
)

// 文档注释：进程内 LRU 缓存（带 TTL）
// 背景：热点坐标在短周期内重复查询，缓存解析结果以跳过索引与点入多边形判定。
// 约束：键为精确坐标（见 Key），不做量化；容量 <=0 时所有操作为空操作。
type LRU[V any] struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	now  func() time.Time
	lst  *list.List
	dict map[string]*list.Element
}

type entry[V any] struct {
	k   string
	v   V
	exp time.Time
}

// NewLRU：ttl <=0 表示永不过期
func NewLRU[V any](capacity int, ttl time.Duration) *LRU[V] {
	return &LRU[V]{cap: capacity, ttl: ttl, now: time.Now, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *LRU[V]) Get(k string) (V, bool) {
	var zero V
	if c == nil || c.cap <= 0 {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.dict[k]
	if !ok {
		return zero, false
	}
	it := e.Value.(entry[V])
	if c.ttl > 0 && !c.now().Before(it.exp) {
		c.lst.Remove(e)
		delete(c.dict, k)
		return zero, false
	}
	c.lst.MoveToFront(e)
	return it.v, true
}

func (c *LRU[V]) Set(k string, v V) {
	if c == nil || c.cap <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	it := entry[V]{k: k, v: v, exp: c.now().Add(c.ttl)}
	if e, ok := c.dict[k]; ok {
		e.Value = it
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(it)
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(entry[V]).k)
		c.lst.Remove(back)
	}
}

// Len：当前条目数（含未清理的过期条目）
func (c *LRU[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

// Purge：清空全部条目
func (c *LRU[V]) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lst.Init()
	clear(c.dict)
}

// Key：坐标缓存键 "county:[<ns>:]<lat>:<lon>"，使用最短往返精度
// 约束：ns 通常为数据集名称，数据集切换后旧键自然失效。
func Key(ns string, c geo.Coordinate) string {
	k := "county:"
	if ns != "" {
		k += ns + ":"
	}
	return k + strconv.FormatFloat(c.Latitude, 'g', -1, 64) + ":" + strconv.FormatFloat(c.Longitude, 'g', -1, 64)
}
