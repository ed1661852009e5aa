// Package replycache is the server's at-most-once invocation semantics store: a
// requestId-keyed cache of completed Responses (SPEC_FULL.md §3 ReplyCacheEntry,
// §4.5). It is built on patrickmn/go-cache, the same in-memory expiring cache the
// ancestor uses for PendingBlocks tracking (server/core.go), which gives the
// bounded-retention refinement flagged as an open item for free when an operator
// opts into a TTL; the spec's own default ("retain for process lifetime") is
// simply "no expiration". Capacity is bounded independently of TTL: entries are
// evicted oldest-first once the approximate total size of cached Responses
// would exceed the configured byte budget, the same way `server/register.go`'s
// stash capacity (also parsed with `datasize`) bounds its own store.
package replycache

import (
	"encoding/gob"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Alexlaaa/RemoteFileAccessSystem/wire"
)

// Cache stores one Response per requestId, bounded by an approximate total
// byte budget on top of go-cache's own TTL expiry.
type Cache struct {
	c             *gocache.Cache
	capacityBytes uint64

	mu        sync.Mutex
	order     []string // insertion order, oldest first, for FIFO eviction
	sizeByKey map[string]uint64
	usedBytes uint64
}

// New constructs a Cache. ttl of 0 retains entries for the process lifetime,
// matching the spec's default (SPEC_FULL.md §3); a positive ttl opts into the
// bounded-retention refinement the spec names as acceptable. capacityBytes of
// 0 means unbounded; a positive value evicts the oldest entries once the
// approximate total size of cached Responses would exceed it.
func New(ttl time.Duration, capacityBytes uint64) *Cache {
	expiration := gocache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}
	// Cleanup interval only matters when an expiration is actually set; a fixed
	// one-minute sweep is a reasonable default either way.
	return &Cache{
		c:             gocache.New(expiration, time.Minute),
		capacityBytes: capacityBytes,
		sizeByKey:     make(map[string]uint64),
	}
}

// Get returns the cached Response for requestId, and whether it was present.
// A present entry means the request is a client retry and FileService must not
// be invoked again (SPEC_FULL.md §4.5 step 1).
func (rc *Cache) Get(requestId uint64) (*wire.Response, bool) {
	v, ok := rc.c.Get(key(requestId))
	if !ok {
		return nil, false
	}
	resp, ok := v.(*wire.Response)
	return resp, ok
}

// Put inserts (or last-writer-wins overwrites) the Response for requestId,
// evicting the oldest entries first if capacityBytes would otherwise be
// exceeded.
func (rc *Cache) Put(requestId uint64, resp *wire.Response) {
	k := key(requestId)
	size := responseSize(resp)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if oldSize, exists := rc.sizeByKey[k]; exists {
		rc.usedBytes -= oldSize
	} else {
		rc.order = append(rc.order, k)
	}
	rc.sizeByKey[k] = size
	rc.usedBytes += size

	rc.evictLocked()

	rc.c.SetDefault(k, resp)
}

// evictLocked drops the oldest entries until usedBytes fits within
// capacityBytes. Must be called with rc.mu held.
func (rc *Cache) evictLocked() {
	if rc.capacityBytes == 0 {
		return
	}
	for rc.usedBytes > rc.capacityBytes && len(rc.order) > 0 {
		oldest := rc.order[0]
		rc.order = rc.order[1:]
		rc.usedBytes -= rc.sizeByKey[oldest]
		delete(rc.sizeByKey, oldest)
		rc.c.Delete(oldest)
	}
}

// Len reports the current number of cached entries, for observability.
func (rc *Cache) Len() int {
	return rc.c.ItemCount()
}

func key(requestId uint64) string {
	// go-cache is string-keyed; requestId's decimal form is a cheap, unambiguous key.
	return strconv.FormatUint(requestId, 10)
}

// responseSize approximates the memory a cached Response occupies: its two
// variable-length fields plus a fixed overhead for the rest.
func responseSize(resp *wire.Response) uint64 {
	const fixedOverhead = 32
	return uint64(len(resp.Payload)) + uint64(len(resp.Message)) + fixedOverhead
}

// SaveToFile writes a snapshot of every currently-cached Response to path via
// gob encoding. This backs the optional, off-by-default -persist-replies
// operational aid (SPEC_FULL.md §6); it is never required for correctness.
func (rc *Cache) SaveToFile(path string) error {
	items := rc.c.Items()
	snapshot := make(map[string]*wire.Response, len(items))
	for k, item := range items {
		if resp, ok := item.Object.(*wire.Response); ok {
			snapshot[k] = resp
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("replycache: create snapshot file: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(snapshot); err != nil {
		return fmt.Errorf("replycache: encode snapshot: %w", err)
	}
	return nil
}

// LoadFromFile restores a snapshot written by SaveToFile, reinserting each
// entry with a fresh TTL. A missing file is not an error: the cache simply
// starts empty, the same as a first run.
func (rc *Cache) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("replycache: open snapshot file: %w", err)
	}
	defer f.Close()

	var snapshot map[string]*wire.Response
	if err := gob.NewDecoder(f).Decode(&snapshot); err != nil {
		return fmt.Errorf("replycache: decode snapshot: %w", err)
	}
	for k, v := range snapshot {
		requestId, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			continue // not a key this package wrote; skip rather than fail the whole load
		}
		rc.Put(requestId, v)
	}
	return nil
}
