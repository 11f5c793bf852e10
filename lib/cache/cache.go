package cache

import (
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	gocache "github.com/patrickmn/go-cache"
)

var Logger = logger.GetLogger("cache")

// Entry is an immutable cached response. A newer response for the same url
// replaces the entry as a whole.
type Entry struct {
	URL      string
	ETag     string
	Body     []byte
	StoredAt time.Time
}

// Stats holds the counters of a ResponseCache
type Stats struct {
	Hits    uint64
	Misses  uint64
	Flushes uint64
	Entries int
}

// ResponseCache maps request urls to the last successful response and its etag.
// Entries never expire. Once maxEntries is reached the cache is flushed before
// the next insert.
type ResponseCache struct {
	c          *gocache.Cache
	maxEntries int

	hits    atomic.Uint64
	misses  atomic.Uint64
	flushes atomic.Uint64
}

// NewResponseCache creates an empty cache bounded to maxEntries (<=0 means unbounded)
func NewResponseCache(maxEntries int) *ResponseCache {
	return &ResponseCache{
		c:          gocache.New(gocache.NoExpiration, 0),
		maxEntries: maxEntries,
	}
}

// Get returns the cached entry of the url
func (r *ResponseCache) Get(url string) (*Entry, bool) {
	v, ok := r.c.Get(url)
	if !ok {
		r.misses.Add(1)
		return nil, false
	}
	e, ok := v.(*Entry)
	if !ok {
		r.misses.Add(1)
		return nil, false
	}
	r.hits.Add(1)
	return e, true
}

// Put stores a copy of body under the url. Responses without an etag are not cached.
func (r *ResponseCache) Put(url, etag string, body []byte) {
	if etag == "" {
		r.c.Delete(url)
		return
	}
	if r.maxEntries > 0 && r.c.ItemCount() >= r.maxEntries {
		if _, exists := r.c.Get(url); !exists {
			Logger.Debugf("response cache reached %d entries, flushing", r.maxEntries)
			r.c.Flush()
			r.flushes.Add(1)
		}
	}

	snapshot := make([]byte, len(body))
	copy(snapshot, body)
	r.c.Set(url, &Entry{
		URL:      url,
		ETag:     etag,
		Body:     snapshot,
		StoredAt: time.Now(),
	}, gocache.NoExpiration)
}

// Invalidate removes the entry of the url
func (r *ResponseCache) Invalidate(url string) {
	r.c.Delete(url)
}

// Clear removes all entries
func (r *ResponseCache) Clear() {
	r.c.Flush()
}

// Len returns the number of cached entries
func (r *ResponseCache) Len() int {
	return r.c.ItemCount()
}

// Stats returns the current counters
func (r *ResponseCache) Stats() Stats {
	return Stats{
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
		Flushes: r.flushes.Load(),
		Entries: r.c.ItemCount(),
	}
}
