package pagecache

import (
	"sort"
	"time"

	pagekey "github.com/schedview/schedview/pkg/page-key"
)

// Relevance classifies a cached page by how close it is to what the user is
// looking at right now. The zero value is the lowest tier.
type Relevance int

const (
	// RelevanceBackground marks pages that are neither on screen nor
	// adjacent to the page on screen.
	RelevanceBackground Relevance = iota
	// RelevanceNeighbor marks the pages one window before and after the
	// active page, for the same subject.
	RelevanceNeighbor
	// RelevanceActive marks the page currently on screen.
	RelevanceActive
)

func (r Relevance) String() string {
	switch r {
	case RelevanceActive:
		return "active"
	case RelevanceNeighbor:
		return "neighbor"
	default:
		return "background"
	}
}

// Entry is one cached page. The payload is opaque to the cache.
type Entry struct {
	Payload   []byte
	FetchedAt time.Time
	Relevance Relevance
}

// pageStore holds the cached pages. It does no locking of its own:
// the owning Cache serializes all access.
type pageStore struct {
	entries    map[pagekey.Key]*Entry
	maxEntries int
}

func newPageStore(maxEntries int) *pageStore {
	return &pageStore{
		entries:    make(map[pagekey.Key]*Entry),
		maxEntries: maxEntries,
	}
}

func (s *pageStore) get(key pagekey.Key) (*Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

func (s *pageStore) put(key pagekey.Key, e *Entry) {
	s.entries[key] = e
}

func (s *pageStore) delete(key pagekey.Key) {
	delete(s.entries, key)
}

func (s *pageStore) len() int {
	return len(s.entries)
}

// clear removes entries belonging to the given subject,
// or every entry if subjectID is empty.
func (s *pageStore) clear(subjectID string) {
	if subjectID == "" {
		s.entries = make(map[pagekey.Key]*Entry)
		return
	}
	for key := range s.entries {
		if key.SubjectID() == subjectID {
			delete(s.entries, key)
		}
	}
}

// classify returns the relevance of key given the currently active key.
func classify(key, active pagekey.Key) Relevance {
	if active == "" {
		return RelevanceBackground
	}
	if key == active {
		return RelevanceActive
	}
	for _, neighbor := range active.Neighbors() {
		if key == neighbor {
			return RelevanceNeighbor
		}
	}
	return RelevanceBackground
}

// reclassify recomputes every entry's relevance against the active key.
func (s *pageStore) reclassify(active pagekey.Key) {
	for key, e := range s.entries {
		e.Relevance = classify(key, active)
	}
}

// prune brings the store back within policy: relevance tags are recomputed,
// expired background entries are dropped, and if the store is still over its
// entry cap the surplus is evicted lowest-relevance-first, oldest-first.
// Active and neighbor pages only ever go under memory pressure.
func (s *pageStore) prune(active pagekey.Key, ttl TTLPolicy, now time.Time) {
	s.reclassify(active)

	for key, e := range s.entries {
		if e.Relevance == RelevanceBackground && ttl.Expired(e, now) {
			delete(s.entries, key)
		}
	}

	surplus := len(s.entries) - s.maxEntries
	if surplus <= 0 {
		return
	}
	keys := make([]pagekey.Key, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := s.entries[keys[i]], s.entries[keys[j]]
		if a.Relevance != b.Relevance {
			return a.Relevance < b.Relevance
		}
		return a.FetchedAt.Before(b.FetchedAt)
	})
	for _, key := range keys[:surplus] {
		delete(s.entries, key)
	}
}

// countsByRelevance tallies entries per relevance tier.
func (s *pageStore) countsByRelevance() map[string]int {
	counts := make(map[string]int, 3)
	for _, e := range s.entries {
		counts[e.Relevance.String()]++
	}
	return counts
}
