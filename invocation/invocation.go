// Package invocation implements the two ends of SPEC_FULL.md §4.4/§4.5's
// invocation semantics: the client's timeout-and-retry loop, modeled on
// original_source/src/strategy/NetworkStrategy.java, and the server's
// AT_LEAST_ONCE / AT_MOST_ONCE strategies, modeled on
// AtLeastOnceStrategy.java and AtMostOnceStrategy.java.
package invocation

import (
	"errors"
	"fmt"

	"github.com/Alexlaaa/RemoteFileAccessSystem/replycache"
	"github.com/Alexlaaa/RemoteFileAccessSystem/transport"
	"github.com/Alexlaaa/RemoteFileAccessSystem/wire"
)

// ClientStrategy retries a request across an unreliable transport until a
// reply is unmarshaled or maxRetries rounds are exhausted.
type ClientStrategy struct {
	transport  *transport.ClientTransport
	maxRetries int
}

// NewClientStrategy constructs a ClientStrategy bound to t, making at most
// maxRetries sends of the same request (same requestId on every attempt, so
// an AT_MOST_ONCE server recognizes retries as duplicates).
func NewClientStrategy(t *transport.ClientTransport, maxRetries int) *ClientStrategy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ClientStrategy{transport: t, maxRetries: maxRetries}
}

// Invoke sends req and returns the server's Response, or a client-synthesized
// NETWORK_ERROR Response if every attempt is lost or times out, or a
// GENERAL_ERROR Response if a reply arrives but fails to decode.
func (c *ClientStrategy) Invoke(req *wire.Request) *wire.Response {
	data := wire.MarshalRequest(req)

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		raw, err := c.transport.SendAndReceive(data)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue // no reply before deadline: retry per SPEC_FULL.md §4.4.
			}
			return wire.NetworkError(fmt.Sprintf("transport error: %v", err))
		}
		if raw == nil {
			continue // simulated datagram loss in either direction: retry.
		}

		resp, err := wire.UnmarshalResponse(raw)
		if err != nil {
			return wire.GeneralError(fmt.Sprintf("malformed reply: %v", err))
		}
		return resp
	}

	return wire.NetworkError(fmt.Sprintf("no reply after %d attempts", c.maxRetries))
}

// Handler is the underlying per-request work a ServerStrategy wraps: invoking
// the appropriate fileservice/monitor operation and producing a Response.
type Handler func(req *wire.Request) *wire.Response

// ServerStrategy applies invocation semantics to Handler on behalf of a single
// inbound request.
type ServerStrategy interface {
	Invoke(req *wire.Request, handle Handler) *wire.Response
}

// AtLeastOnce re-runs handle on every delivered datagram, including retried
// duplicates, matching at-least-once semantics (SPEC_FULL.md §4.5).
type AtLeastOnce struct{}

func (AtLeastOnce) Invoke(req *wire.Request, handle Handler) *wire.Response {
	return handle(req)
}

// AtMostOnce suppresses duplicate execution of handle for a requestId already
// seen, returning the cached Response instead (SPEC_FULL.md §4.5).
type AtMostOnce struct {
	cache *replycache.Cache
}

// NewAtMostOnce constructs an AtMostOnce strategy backed by cache.
func NewAtMostOnce(cache *replycache.Cache) *AtMostOnce {
	return &AtMostOnce{cache: cache}
}

func (s *AtMostOnce) Invoke(req *wire.Request, handle Handler) *wire.Response {
	if cached, ok := s.cache.Get(req.RequestId); ok {
		return cached
	}
	resp := handle(req)
	s.cache.Put(req.RequestId, resp)
	return resp
}
