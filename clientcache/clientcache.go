// Package clientcache implements the client-side freshness cache (SPEC_FULL.md
// §3 CacheEntry, §4.8), modeled directly on original_source/src/client/ClientCache.java:
// each entry remembers the byte range it was populated from, the server mtime it
// was read at, and the wall-clock time it was last validated, so a read can be
// served locally when it falls within both the cached range and the freshness
// window, and otherwise triggers revalidation or replacement.
package clientcache

import (
	"sync"
	"time"
)

// entry is one cached file region.
type entry struct {
	content               []byte
	offset                uint64
	length                uint64 // bytes actually cached, content may be shorter at EOF
	lastValidationTime    time.Time
	serverLastModifiedMs  int64
}

func (e entry) contains(offset, length uint64) bool {
	return offset >= e.offset && offset+length <= e.offset+e.length
}

// Cache holds one entry per path. A single mutex protects the whole map; entries
// themselves are never mutated in place, only replaced, so readers never observe
// a torn entry.
type Cache struct {
	mu             sync.Mutex
	entries        map[string]entry
	freshnessWindow time.Duration
}

// New constructs a Cache whose entries are considered fresh (skip server
// revalidation entirely) for freshnessWindow after they were last validated.
func New(freshnessWindow time.Duration) *Cache {
	return &Cache{
		entries:         make(map[string]entry),
		freshnessWindow: freshnessWindow,
	}
}

// Lookup is the cache-side half of the reconciliation described in SPEC_FULL.md §4.8:
//   - Hit: an entry covers [offset, offset+length) and is within the freshness
//     window. The cached bytes are returned without contacting the server.
//   - Stale: an entry covers the range but is outside the freshness window.
//     The caller must revalidate with the server; Lookup returns ok=false but
//     reports the cached mtime via knownModifiedMs so the caller can compare it
//     with the mtime in the server's reply.
//   - Miss: no entry covers the range, or none exists. knownModifiedMs is -1.
func (c *Cache) Lookup(path string, offset, length uint64, now time.Time) (content []byte, ok bool, knownModifiedMs int64) {
	c.mu.Lock()
	e, found := c.entries[path]
	c.mu.Unlock()

	if !found || !e.contains(offset, length) {
		return nil, false, -1
	}
	if now.Sub(e.lastValidationTime) >= c.freshnessWindow {
		return nil, false, e.serverLastModifiedMs
	}
	start := offset - e.offset
	out := make([]byte, length)
	copy(out, e.content[start:start+length])
	return out, true, e.serverLastModifiedMs
}

// KnownModifiedMs returns the server mtime the cache last observed for path, or
// -1 if path isn't cached. Used to compare against a revalidation reply's mtime
// even when the requested range isn't fully covered.
func (c *Cache) KnownModifiedMs(path string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok {
		return -1
	}
	return e.serverLastModifiedMs
}

// Store installs or replaces the cached region for path after a server round
// trip, recording the new content, range, and server mtime, and resetting the
// freshness clock. Used on a cold read and on a revalidation reply whose mtime
// differs from the cached one (replace); a reply with an unchanged mtime goes
// through Touch instead, keeping the cached content and range.
func (c *Cache) Store(path string, offset uint64, content []byte, serverLastModifiedMs int64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = entry{
		content:              content,
		offset:               offset,
		length:               uint64(len(content)),
		lastValidationTime:   now,
		serverLastModifiedMs: serverLastModifiedMs,
	}
}

// Touch refreshes lastValidationTime for path without changing its content,
// used when a revalidation confirms the server mtime is unchanged (the
// miss-same-mtime-revalidate path in SPEC_FULL.md §4.8).
func (c *Cache) Touch(path string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok {
		return
	}
	e.lastValidationTime = now
	c.entries[path] = e
}

// Invalidate drops any cached entry for path, used when a MONITOR callback
// reports a mutation the client should no longer trust its local copy against.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}
