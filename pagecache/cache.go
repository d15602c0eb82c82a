// Package pagecache caches timetable pages, one week of one subject's
// schedule per entry. Pages are classified by how relevant they are to the
// page currently on screen, expired relevant pages are served stale while a
// background refresh runs, concurrent fetches for the same page are
// deduplicated, and the two pages adjacent to the active one are warmed
// ahead of navigation.
package pagecache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	pagekey "github.com/schedview/schedview/pkg/page-key"
)

// FetchRequest describes one page fetch against the timetable backend.
type FetchRequest struct {
	SubjectID     string
	WindowStart   time.Time
	WindowEnd     time.Time
	ViewingAsSelf bool
}

// Fetcher performs the actual network call for a page. The cache treats the
// returned payload as opaque and never retries a failed fetch itself.
type Fetcher func(ctx context.Context, req FetchRequest) ([]byte, error)

type Config struct {
	// Fetch is the function used for all page fetches. Required.
	Fetch Fetcher
	// TTL per relevance tier. Zero fields get defaults.
	TTL TTLPolicy
	// MaxEntries caps the store size. Defaults to 24.
	MaxEntries int
	// PrefetchDelay postpones neighbor warming slightly so it does not
	// contend with the active page's own fetch. Defaults to 150ms;
	// a negative value disables the delay.
	PrefetchDelay time.Duration
	// Clock to use. The real clock is used if nil.
	Clock clockwork.Clock
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Cache is the windowed page cache. One instance is meant to live for the
// lifetime of the hosting process; all methods are safe for concurrent use.
type Cache struct {
	mu              sync.Mutex
	entries         *pageStore
	activeKey       pagekey.Key
	viewSelf        map[string]bool
	inFlight        map[pagekey.Key]struct{}
	pendingPrefetch map[pagekey.Key]struct{}
	refreshTimer    clockwork.Timer
	refreshGen      int

	fetches       singleflight.Group
	fetch         Fetcher
	ttl           TTLPolicy
	prefetchDelay time.Duration
	clock         clockwork.Clock
	log           zerolog.Logger
}

// CreateCache initializes a page cache. The refresh timer is armed lazily on
// the first read, once there is an active page to keep fresh.
func CreateCache(config Config) *Cache {
	if config.Fetch == nil {
		panic("pagecache: Config.Fetch is required")
	}
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	maxEntries := config.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	prefetchDelay := config.PrefetchDelay
	if prefetchDelay == 0 {
		prefetchDelay = defaultPrefetchDelay
	}

	return &Cache{
		entries:         newPageStore(maxEntries),
		viewSelf:        make(map[string]bool),
		inFlight:        make(map[pagekey.Key]struct{}),
		pendingPrefetch: make(map[pagekey.Key]struct{}),
		fetch:           config.Fetch,
		ttl:             config.TTL.withDefaults(),
		prefetchDelay:   prefetchDelay,
		clock:           clock,
		log:             logger.With().Str("component", "pagecache").Logger(),
	}
}

// Read returns the page for the given subject and window, making it the
// active page. Fresh entries are returned as is. Expired active or neighbor
// entries are returned stale while a background refresh is kicked off. On a
// miss (or an expired background entry) the page is fetched synchronously;
// concurrent reads for the same key share a single fetch. A successful read
// also schedules warming of the two neighbor pages.
func (c *Cache) Read(ctx context.Context, subjectID string, windowStart, windowEnd time.Time, viewingAsSelf bool) ([]byte, error) {
	key := pagekey.Make(subjectID, windowStart, windowEnd)
	c.setActive(key)

	c.mu.Lock()
	c.viewSelf[subjectID] = viewingAsSelf
	now := c.clock.Now()
	if e, ok := c.entries.get(key); ok {
		if !c.ttl.Expired(e, now) {
			payload := e.Payload
			c.mu.Unlock()
			c.log.Trace().Str("key", string(key)).Msg("Cache hit")
			c.prefetchNeighbors(key)
			return payload, nil
		}
		if e.Relevance != RelevanceBackground {
			payload := e.Payload
			_, inFlight := c.inFlight[key]
			c.mu.Unlock()
			if !inFlight {
				c.log.Debug().Str("key", string(key)).Msg("Serving stale entry, refreshing in background")
				go c.refresh(key)
			}
			c.prefetchNeighbors(key)
			return payload, nil
		}
		// expired background entries are deleted lazily on read
		c.entries.delete(key)
	}
	c.mu.Unlock()

	payload, err := c.fetchAndStore(ctx, key)
	if err != nil {
		return nil, err
	}
	c.prefetchNeighbors(key)
	return payload, nil
}

// Peek returns the cached page for the given subject and window if one is
// usable, without fetching, reclassifying, or touching the active key.
func (c *Cache) Peek(subjectID string, windowStart, windowEnd time.Time) ([]byte, bool) {
	key := pagekey.Make(subjectID, windowStart, windowEnd)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.get(key)
	if !ok {
		return nil, false
	}
	if e.Relevance == RelevanceBackground && c.ttl.Expired(e, c.clock.Now()) {
		return nil, false
	}
	return e.Payload, true
}

// Invalidate removes the given subject's entries. An empty subject id wipes
// the whole cache: the refresh timer is canceled, the active key and both
// pending sets are cleared. Fetches already in flight are not canceled;
// whatever they write afterwards is classified from scratch.
func (c *Cache) Invalidate(subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if subjectID == "" {
		c.stopRefreshTimer()
		c.activeKey = ""
		c.entries.clear("")
		c.viewSelf = make(map[string]bool)
		c.inFlight = make(map[pagekey.Key]struct{})
		c.pendingPrefetch = make(map[pagekey.Key]struct{})
		c.log.Debug().Msg("Cache cleared")
		return
	}
	c.entries.clear(subjectID)
	delete(c.viewSelf, subjectID)
	c.log.Debug().Str("subject", subjectID).Msg("Subject entries cleared")
}

// Stats is a diagnostic snapshot of the cache.
type Stats struct {
	Count           int            `json:"count"`
	InFlight        int            `json:"inFlight"`
	PendingPrefetch int            `json:"pendingPrefetch"`
	ActiveKey       string         `json:"activeKey"`
	ByRelevance     map[string]int `json:"byRelevance"`
}

// Stats returns a snapshot of the cache state. It has no side effects.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Count:           c.entries.len(),
		InFlight:        len(c.inFlight),
		PendingPrefetch: len(c.pendingPrefetch),
		ActiveKey:       string(c.activeKey),
		ByRelevance:     c.entries.countsByRelevance(),
	}
}

// setActive makes key the active page. On a change the outstanding refresh
// timer is canceled, every entry is reclassified against the new key, and a
// fresh timer is armed.
func (c *Cache) setActive(key pagekey.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setActiveLocked(key)
}

func (c *Cache) setActiveLocked(key pagekey.Key) {
	if key == c.activeKey {
		return
	}
	c.stopRefreshTimer()
	c.activeKey = key
	c.entries.reclassify(key)
	c.armRefreshTimer()
}

// fetchAndStore fetches the page for key and writes it to the store.
// Concurrent calls for the same key share one fetch and its outcome.
func (c *Cache) fetchAndStore(ctx context.Context, key pagekey.Key) ([]byte, error) {
	payload, err, _ := c.fetches.Do(string(key), func() (interface{}, error) {
		c.mu.Lock()
		c.inFlight[key] = struct{}{}
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.inFlight, key)
			c.mu.Unlock()
		}()

		req, err := c.fetchRequest(key)
		if err != nil {
			return nil, err
		}
		body, err := c.fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		c.put(key, body)
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return payload.([]byte), nil
}

// fetchRequest rebuilds the collaborator call for a key, using the last
// viewing mode recorded for the subject.
func (c *Cache) fetchRequest(key pagekey.Key) (FetchRequest, error) {
	subjectID, start, end, err := key.Parts()
	if err != nil {
		return FetchRequest{}, err
	}
	c.mu.Lock()
	self := c.viewSelf[subjectID]
	c.mu.Unlock()
	return FetchRequest{
		SubjectID:     subjectID,
		WindowStart:   start,
		WindowEnd:     end,
		ViewingAsSelf: self,
	}, nil
}

// put stores a fetched payload. The entry is classified against whatever key
// is active at write time, and a prune pass keeps the store within policy.
// Writes are last-write-wins per key.
func (c *Cache) put(key pagekey.Key, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.entries.put(key, &Entry{
		Payload:   payload,
		FetchedAt: now,
		Relevance: classify(key, c.activeKey),
	})
	c.entries.prune(c.activeKey, c.ttl, now)
}
