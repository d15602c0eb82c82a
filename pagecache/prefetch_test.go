package pagecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var errBackendDown = errors.New("backend down")

func TestPrefetchIsIdempotentWhilePending(t *testing.T) {
	fetcher := newFetchRecorder()
	release := fetcher.blockNext()
	c := newTestCache(fetcher, clockwork.NewRealClock())

	key := weekKey("u1", "2024-01-08")
	c.put(key, []byte("page"))
	c.setActive(key)

	prev := weekKey("u1", "2024-01-01")
	next := weekKey("u1", "2024-01-15")

	// planning twice before the fetches resolve must not double them
	c.prefetchNeighbors(key)
	c.prefetchNeighbors(key)

	waitFor(t, "both prefetches to start", func() bool {
		return fetcher.count(prev) == 1 && fetcher.count(next) == 1
	})
	time.Sleep(50 * time.Millisecond)
	if fetcher.count(prev) != 1 || fetcher.count(next) != 1 {
		t.Fatalf("Neighbors fetched %d and %d times", fetcher.count(prev), fetcher.count(next))
	}

	close(release)
	waitFor(t, "pending set cleanup", func() bool { return c.Stats().PendingPrefetch == 0 })
	if r, ok := relevanceOf(c, prev); !ok || r != RelevanceNeighbor {
		t.Fatalf("Prefetched window classified %s (present %v)", r, ok)
	}
}

func TestPrefetchSkipsFreshNeighbors(t *testing.T) {
	fetcher := newFetchRecorder()
	c := newTestCache(fetcher, clockwork.NewRealClock())

	key := weekKey("u1", "2024-01-08")
	c.put(weekKey("u1", "2024-01-01"), []byte("prev"))
	c.put(weekKey("u1", "2024-01-15"), []byte("next"))
	c.put(key, []byte("page"))
	c.setActive(key)

	c.prefetchNeighbors(key)
	time.Sleep(50 * time.Millisecond)
	if total := fetcher.total(); total != 0 {
		t.Fatalf("Fetcher called %d times for fresh neighbors", total)
	}
}

func TestPrefetchFailureIsSwallowedAndCleanedUp(t *testing.T) {
	fetcher := newFetchRecorder()
	fetcher.err = errBackendDown
	c := newTestCache(fetcher, clockwork.NewRealClock())

	key := weekKey("u1", "2024-01-08")
	c.put(key, []byte("page"))
	c.setActive(key)

	c.prefetchNeighbors(key)
	waitFor(t, "pending set cleanup after failures", func() bool {
		return fetcher.total() == 2 && c.Stats().PendingPrefetch == 0
	})
	// failed warming leaves no partial entries behind
	if count := c.Stats().Count; count != 1 {
		t.Fatalf("Store has %d entries", count)
	}
}

// A cold read that resolves after the user has already navigated away must
// not warm the neighbors of its now demoted page.
func TestSlowColdReadSkipsPrefetchAfterNavigation(t *testing.T) {
	fetcher := newFetchRecorder()
	release := fetcher.blockNext()
	c := newTestCache(fetcher, clockwork.NewRealClock())

	k1 := weekKey("u1", "2024-01-01")
	done := make(chan error, 1)
	go func() {
		_, err := c.Read(context.Background(), "u1", date("2024-01-01"), date("2024-01-07"), false)
		done <- err
	}()
	waitFor(t, "cold fetch to start", func() bool { return fetcher.count(k1) == 1 })

	// navigate away while the first page is still in flight
	c.setActive(weekKey("u2", "2024-01-01"))
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if n := fetcher.count(weekKey("u1", "2023-12-25")); n != 0 {
		t.Fatalf("Demoted page's previous neighbor fetched %d times", n)
	}
	if n := fetcher.count(weekKey("u1", "2024-01-08")); n != 0 {
		t.Fatalf("Demoted page's next neighbor fetched %d times", n)
	}
	if r, ok := relevanceOf(c, k1); !ok || r != RelevanceBackground {
		t.Fatalf("Late page classified %s (present %v)", r, ok)
	}
}

func TestMalformedActiveKeySkipsPrefetch(t *testing.T) {
	fetcher := newFetchRecorder()
	c := newTestCache(fetcher, clockwork.NewRealClock())

	c.prefetchNeighbors("not-a-key")
	time.Sleep(50 * time.Millisecond)
	if total := fetcher.total(); total != 0 {
		t.Fatalf("Fetcher called %d times for a malformed key", total)
	}
}
