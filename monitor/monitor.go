// Package monitor implements MonitorRegistry (SPEC_FULL.md §3, §4.7): a
// path-keyed set of client subscriptions with duration-based expiry and
// best-effort callback delivery on mutating operations.
//
// Storage rides on patrickmn/go-cache the same way the ancestor's server
// package uses it for PendingBlocks bookkeeping, but expiry is enforced by the
// spec's own lazy check on every notify scan rather than go-cache's background
// sweep — the cache here is just a concurrency-safe map container.
package monitor

import (
	"log"
	"net"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Alexlaaa/RemoteFileAccessSystem/wire"
)

// Subscription is one client's interest in callbacks for a path.
type Subscription struct {
	Path           string
	ClientAddr     *net.UDPAddr
	RegisteredAtMs int64
	DurationMs     int64
}

func (s Subscription) expired(nowMs int64) bool {
	return nowMs-s.RegisteredAtMs > s.DurationMs
}

// Sender delivers a marshaled callback datagram to a client endpoint. Its
// production implementation is transport.ServerTransport.SendTo.
type Sender interface {
	SendTo(to *net.UDPAddr, data []byte) error
}

// Registry tracks monitor subscriptions per path and emits callbacks on
// mutating operations (SPEC_FULL.md §4.7).
type Registry struct {
	mu     sync.Mutex // guards store; coarse-grained per spec §5 "suffices"
	store  *gocache.Cache
	sender Sender
}

// New constructs a Registry that delivers callbacks through sender.
func New(sender Sender) *Registry {
	return &Registry{
		store:  gocache.New(gocache.NoExpiration, gocache.NoExpiration),
		sender: sender,
	}
}

// Register adds a subscription for path, starting its expiry clock now.
func (r *Registry) Register(path string, clientAddr *net.UDPAddr, durationMs int64) {
	now := time.Now().UnixMilli()
	r.mu.Lock()
	defer r.mu.Unlock()

	var subs []Subscription
	if v, ok := r.store.Get(path); ok {
		subs = v.([]Subscription)
	}
	subs = append(subs, Subscription{
		Path:           path,
		ClientAddr:     clientAddr,
		RegisteredAtMs: now,
		DurationMs:     durationMs,
	})
	r.store.SetDefault(path, subs)
}

// Notify scans path's subscriber list, pruning expired entries and delivering a
// CALLBACK Response carrying updatedContent to everyone still active. Delivery
// is best-effort: send failures and simulated loss are not retried.
func (r *Registry) Notify(path string, updatedContent []byte, op wire.Op, serverLastModifiedMs int64) {
	now := time.Now().UnixMilli()

	r.mu.Lock()
	v, ok := r.store.Get(path)
	if !ok {
		r.mu.Unlock()
		return
	}
	subs := v.([]Subscription)

	active := subs[:0:0]
	for _, s := range subs {
		if !s.expired(now) {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		r.store.Delete(path)
	} else {
		r.store.SetDefault(path, active)
	}
	r.mu.Unlock()

	if len(active) == 0 {
		return
	}

	resp := &wire.Response{
		Status:               wire.StatusCallback,
		Payload:              updatedContent,
		Message:              "File update notification for " + path + ". Operation: " + op.String(),
		ServerLastModifiedMs: serverLastModifiedMs,
		Path:                 path,
	}
	data := wire.MarshalResponse(resp)

	for _, s := range active {
		if err := r.sender.SendTo(s.ClientAddr, data); err != nil {
			log.Printf("monitor: callback send to %s for %s failed: %v", s.ClientAddr, path, err)
		}
	}
}

// ActiveCount reports the number of non-expired subscriptions for path, for
// tests and observability; it does not prune.
func (r *Registry) ActiveCount(path string) int {
	now := time.Now().UnixMilli()
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.store.Get(path)
	if !ok {
		return 0
	}
	subs := v.([]Subscription)
	n := 0
	for _, s := range subs {
		if !s.expired(now) {
			n++
		}
	}
	return n
}
