package pagecache

import (
	"context"

	pagekey "github.com/schedview/schedview/pkg/page-key"
)

// prefetchNeighbors queues background warming for the two pages adjacent to
// key, provided key is still the active page. Neighbors that are already
// fresh in the store or already queued are skipped. A key without decodable
// neighbors only loses prefetching.
func (c *Cache) prefetchNeighbors(key pagekey.Key) {
	neighbors := key.Neighbors()
	if len(neighbors) == 0 {
		c.log.Trace().Str("key", string(key)).Msg("Key has no neighbors, skipping prefetch")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if key != c.activeKey {
		// a navigation won the race; only the active page's neighbors are worth warming
		return
	}
	now := c.clock.Now()
	for _, neighbor := range neighbors {
		if e, ok := c.entries.get(neighbor); ok && !c.ttl.Expired(e, now) {
			continue
		}
		if _, pending := c.pendingPrefetch[neighbor]; pending {
			continue
		}
		c.pendingPrefetch[neighbor] = struct{}{}
		go c.prefetch(neighbor)
	}
}

// prefetch warms one neighbor page after a small delay, so warming does not
// contend with the active page's own fetch. The pending mark is removed
// whether the fetch succeeds or fails; failures are best effort and only
// logged.
func (c *Cache) prefetch(key pagekey.Key) {
	defer func() {
		c.mu.Lock()
		delete(c.pendingPrefetch, key)
		c.mu.Unlock()
	}()

	if c.prefetchDelay > 0 {
		c.clock.Sleep(c.prefetchDelay)
	}
	req, err := c.fetchRequest(key)
	if err != nil {
		return
	}
	payload, err := c.fetch(context.Background(), req)
	if err != nil {
		c.log.Debug().Err(err).Str("key", string(key)).Msg("Prefetch failed")
		return
	}
	c.put(key, payload)
}
