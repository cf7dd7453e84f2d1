// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sessionctx

import (
	"container/list"
	"sync"
	"time"

	"github.com/teradata-labs/weft/pkg/types"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 60 * time.Second
)

type cacheEntry struct {
	id      string
	session *types.Session
	expires time.Time
}

// sessionCache is a process-local LRU of session contexts. Entries carry
// a soft TTL so a context refreshed by another process is picked up
// within a minute.
type sessionCache struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	now     func() time.Time
	order   *list.List // front is most recently used
	entries map[string]*list.Element
}

func newSessionCache(size int, ttl time.Duration) *sessionCache {
	return &sessionCache{
		size:    size,
		ttl:     ttl,
		now:     time.Now,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (c *sessionCache) get(id string) (*types.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.entries, id)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.session, true
}

func (c *sessionCache) put(id string, sess *types.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[id]; ok {
		entry := el.Value.(*cacheEntry)
		entry.session = sess
		entry.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	c.entries[id] = c.order.PushFront(&cacheEntry{
		id:      id,
		session: sess,
		expires: c.now().Add(c.ttl),
	})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).id)
	}
}

func (c *sessionCache) invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[id]; ok {
		c.order.Remove(el)
		delete(c.entries, id)
	}
}

func (c *sessionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
