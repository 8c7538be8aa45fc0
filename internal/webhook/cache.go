package webhook

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mattjoyce/hooky/internal/store"
)

// Cache defaults for token lookups.
const (
	CacheSize = 1024
	CacheTTL  = 30 * time.Second
)

// tokenCache holds webhooks by token. Every Delete advances gen; a fill
// started under an older gen is dropped so a lookup that read the store
// before a write cannot re-insert the pre-write row.
type tokenCache struct {
	webhooks *expirable.LRU[string, store.Webhook]

	mu  sync.Mutex
	gen uint64
}

func newTokenCache(size int, ttl time.Duration) *tokenCache {
	if size <= 0 {
		size = 1
	}
	return &tokenCache{webhooks: expirable.NewLRU[string, store.Webhook](size, nil, ttl)}
}

func (c *tokenCache) Get(token string) (*store.Webhook, bool) {
	w, ok := c.webhooks.Get(token)
	if !ok {
		return nil, false
	}
	return &w, true
}

// Generation returns the value to hand to Fill after reading the store.
func (c *tokenCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Fill caches w unless an invalidation happened since gen was taken.
func (c *tokenCache) Fill(w *store.Webhook, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.webhooks.Add(w.Token, *w)
	return true
}

func (c *tokenCache) Delete(tokens ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, t := range tokens {
		c.webhooks.Remove(t)
	}
}

func (c *tokenCache) Len() int {
	return c.webhooks.Len()
}
