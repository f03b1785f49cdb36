package keys

import (
	"sync"
	"time"
)

// fetchThrottle is a sliding-window limit on fetch attempts per key source.
// It keeps a repeatedly failing source (down IdP, bad URL) from being fetched
// on every request once its cache entry is gone.
type fetchThrottle struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string][]int64
}

func newFetchThrottle(limit int, window time.Duration) *fetchThrottle {
	return &fetchThrottle{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]int64),
	}
}

// allow records a fetch attempt for key and reports whether it may proceed.
// Denied attempts are not recorded.
func (t *fetchThrottle) allow(key string) bool {
	if t == nil || t.limit <= 0 {
		return true
	}
	nowMs := time.Now().UnixNano() / 1e6
	windowStart := nowMs - t.window.Milliseconds()

	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.buckets[key]

	// Prune timestamps outside the window.
	pruneIdx := 0
	for pruneIdx < len(ts) && ts[pruneIdx] < windowStart {
		pruneIdx++
	}
	if pruneIdx > 0 {
		ts = ts[pruneIdx:]
	}

	if len(ts) >= t.limit {
		if len(ts) == 0 {
			delete(t.buckets, key)
		} else {
			t.buckets[key] = ts
		}
		return false
	}

	t.buckets[key] = append(ts, nowMs)
	return true
}
