// Package ids generates request identifiers: 64-bit values that name one logical
// client invocation and stay stable across that invocation's retries (SPEC_FULL.md
// §3, §9). Two generators are offered, mirroring the ancestor's IdFromName/RandId
// split between name-derived and random identity terms (server/genid.go).
package ids

import (
	"crypto/sha1"
	"encoding/binary"
	"hash/fnv"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/rand"
)

// Generator produces request identifiers. Implementations must never return 0
// (SPEC_FULL.md §3 invariant: requestId ≠ 0).
type Generator interface {
	Next() uint64
}

// XorGenerator combines a per-invocation monotonic nanosecond component with a
// host identity term via xor, as described in SPEC_FULL.md §9. Collisions are
// tolerated as rare anomalies, not depended on for correctness.
type XorGenerator struct {
	hostTerm uint64
	counter  uint64
}

// NewXorGenerator derives the host identity term from the local hostname the same
// way the ancestor derives volume/file keys from names (server/genid.go's
// IdFromName, sha1 of a name). If the hostname can't be read, a random 64-bit
// term takes its place instead of silently defaulting to zero.
func NewXorGenerator() *XorGenerator {
	host, err := os.Hostname()
	var term uint64
	if err == nil && host != "" {
		term = hostIdentity(host)
	} else {
		term = rand.Uint64()
	}
	if term == 0 {
		term = rand.Uint64() | 1
	}
	return &XorGenerator{hostTerm: term}
}

func hostIdentity(name string) uint64 {
	sum := sha1.Sum([]byte(name))
	return binary.BigEndian.Uint64(sum[:8])
}

// Next returns hostTerm xor a strictly increasing nanosecond-resolution counter,
// guaranteeing uniqueness within this process even under a coarse system clock.
func (g *XorGenerator) Next() uint64 {
	n := atomic.AddUint64(&g.counter, 1)
	stamp := uint64(time.Now().UnixNano()) + n
	id := stamp ^ g.hostTerm
	if id == 0 {
		id = 1
	}
	return id
}

// UUIDGenerator is the simpler alternative flagged in SPEC_FULL.md §11: a random
// v4 UUID folded down to 64 bits with FNV-1a, the way sandstore mints entity IDs
// with google/uuid but at 64-bit request-identifier width instead of a string.
type UUIDGenerator struct{}

// NewUUIDGenerator constructs a UUIDGenerator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// Next returns a UUID folded to 64 bits via FNV-1a over its 16 raw bytes.
func (UUIDGenerator) Next() uint64 {
	id := uuid.New()
	h := fnv.New64a()
	_, _ = h.Write(id[:])
	sum := h.Sum64()
	if sum == 0 {
		sum = 1
	}
	return sum
}
