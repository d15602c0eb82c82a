package pagecache

import "time"

const (
	defaultActiveTTL     = 60 * time.Second
	defaultNeighborTTL   = 120 * time.Second
	defaultBackgroundTTL = 120 * time.Second
	defaultMaxEntries    = 24
	defaultPrefetchDelay = 150 * time.Millisecond
)

// TTLPolicy holds the time-to-live for each relevance tier.
// Expiry means different things per tier: an expired active or neighbor
// entry is served stale and refreshed in the background, while an expired
// background entry is deleted on the next read or prune pass.
type TTLPolicy struct {
	Active     time.Duration
	Neighbor   time.Duration
	Background time.Duration
}

func (p TTLPolicy) withDefaults() TTLPolicy {
	if p.Active == 0 {
		p.Active = defaultActiveTTL
	}
	if p.Neighbor == 0 {
		p.Neighbor = defaultNeighborTTL
	}
	if p.Background == 0 {
		p.Background = defaultBackgroundTTL
	}
	return p
}

// TTL returns the time-to-live for the given relevance tier.
func (p TTLPolicy) TTL(r Relevance) time.Duration {
	switch r {
	case RelevanceActive:
		return p.Active
	case RelevanceNeighbor:
		return p.Neighbor
	default:
		return p.Background
	}
}

// Expired reports whether the entry's age exceeds its tier's time-to-live.
func (p TTLPolicy) Expired(e *Entry, now time.Time) bool {
	return now.Sub(e.FetchedAt) > p.TTL(e.Relevance)
}
