package cache

import (
	"container/list"
	"sync"

	"github.com/icon-project/goagree/common/errors"
)

// Create builds the value for a missing key.
type Create func(key []byte) (interface{}, error)

// LRUCache keeps at most size values, evicting the least recently used.
// When created with a Create function, Get fills misses through it.
type LRUCache struct {
	lock  sync.Mutex
	size  int
	lru   list.List
	items map[string]*list.Element

	create Create
	hits   int
	misses int
}

type item struct {
	key   string
	value interface{}
}

func (c *LRUCache) putInLock(key string, value interface{}) {
	if e, ok := c.items[key]; ok {
		e.Value = item{key: key, value: value}
		c.lru.MoveToBack(e)
		return
	}
	c.items[key] = c.lru.PushBack(item{key: key, value: value})
	if c.lru.Len() > c.size {
		e := c.lru.Front()
		c.lru.Remove(e)
		delete(c.items, e.Value.(item).key)
	}
}

func (c *LRUCache) Get(key []byte) (interface{}, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if e, ok := c.items[string(key)]; ok {
		c.hits++
		c.lru.MoveToBack(e)
		return e.Value.(item).value, nil
	}
	c.misses++
	if c.create == nil {
		return nil, errors.ErrNotFound
	}
	value, err := c.create(key)
	if err != nil {
		return nil, err
	}
	c.putInLock(string(key), value)
	return value, nil
}

func (c *LRUCache) Put(key []byte, value interface{}) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.putInLock(string(key), value)
}

func (c *LRUCache) Remove(key []byte) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if e, ok := c.items[string(key)]; ok {
		c.lru.Remove(e)
		delete(c.items, string(key))
	}
}

func (c *LRUCache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.lru.Len()
}

// Stats returns the number of hits and misses of Get.
func (c *LRUCache) Stats() (hits, misses int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.hits, c.misses
}

func NewLRUCache(size int, create Create) *LRUCache {
	if size <= 0 {
		size = 1
	}
	return &LRUCache{
		size:   size,
		items:  make(map[string]*list.Element),
		create: create,
	}
}
