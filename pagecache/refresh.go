package pagecache

import (
	"context"

	pagekey "github.com/schedview/schedview/pkg/page-key"
)

// armRefreshTimer schedules the next active-page refresh one active-TTL from
// now. The tick carries the current schedule generation so a cancellation can
// invalidate it even after it fires. The caller must hold the mutex.
func (c *Cache) armRefreshTimer() {
	if c.activeKey == "" {
		return
	}
	gen := c.refreshGen
	c.refreshTimer = c.clock.AfterFunc(c.ttl.Active, func() {
		c.refreshTick(gen)
	})
}

// stopRefreshTimer cancels the outstanding refresh timer, if any. Bumping the
// generation also retires a tick that has already fired and is waiting on the
// mutex, so a superseded schedule cannot re-arm a second timer chain.
// The caller must hold the mutex.
func (c *Cache) stopRefreshTimer() {
	c.refreshGen++
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

// refreshTick re-fetches the active page, if one is cached and still
// classified active, and re-arms the timer regardless of outcome. The timer
// is re-armed before the fetch starts so a slow origin cannot stall the
// schedule. Ticks from a canceled schedule return without re-arming.
func (c *Cache) refreshTick(gen int) {
	c.mu.Lock()
	key := c.activeKey
	if gen != c.refreshGen || key == "" {
		c.mu.Unlock()
		return
	}
	e, ok := c.entries.get(key)
	refresh := ok && e.Relevance == RelevanceActive
	c.armRefreshTimer()
	c.mu.Unlock()

	if refresh {
		go c.refresh(key)
	}
}

// refresh re-fetches the page for key in the background. Failures are logged
// and swallowed: the previous entry, stale but valid, stays in place until a
// later refresh succeeds.
func (c *Cache) refresh(key pagekey.Key) {
	if _, err := c.fetchAndStore(context.Background(), key); err != nil {
		c.log.Warn().Err(err).Str("key", string(key)).Msg("Background refresh failed")
	}
}
