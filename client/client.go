// Package client composes ClientService, the invocation-side counterpart to
// package server: it issues requests through invocation.ClientStrategy's
// retry loop, reconciles results against a clientcache.Cache, and exposes one
// method per operation the protocol supports. Its shape — a single struct
// wrapping a transport plus stateful helpers, built by one constructor — again
// follows the ancestor's PCFS/FileStream composition, generalized away from
// BFTRaft-addressed blocks to direct server round trips.
package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/Alexlaaa/RemoteFileAccessSystem/clientcache"
	"github.com/Alexlaaa/RemoteFileAccessSystem/config"
	"github.com/Alexlaaa/RemoteFileAccessSystem/ids"
	"github.com/Alexlaaa/RemoteFileAccessSystem/invocation"
	"github.com/Alexlaaa/RemoteFileAccessSystem/transport"
	"github.com/Alexlaaa/RemoteFileAccessSystem/wire"
)

// ClientService is one client's connection to a single FileAccessServer.
type ClientService struct {
	transport *transport.ClientTransport
	strategy  *invocation.ClientStrategy
	ids       ids.Generator
	cache     *clientcache.Cache
}

// New builds a ClientService from cfg, resolving the request-id generator
// strategy named in cfg.RequestIdStrategy (SPEC_FULL.md §11).
func New(cfg config.ClientConfig) (*ClientService, error) {
	tr, err := transport.NewClientTransport(cfg.ServerAddress, cfg.ServerPort, cfg.ReceiveTimeout(), cfg.SendProb, cfg.RecvProb)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	var gen ids.Generator
	switch strings.ToLower(cfg.RequestIdStrategy) {
	case "uuid":
		gen = ids.NewUUIDGenerator()
	default:
		gen = ids.NewXorGenerator()
	}

	return &ClientService{
		transport: tr,
		strategy:  invocation.NewClientStrategy(tr, cfg.MaxRetries),
		ids:       gen,
		cache:     clientcache.New(cfg.FreshnessInterval()),
	}, nil
}

// Close releases the client's UDP socket.
func (c *ClientService) Close() error {
	return c.transport.Close()
}

// Read serves [offset, offset+length) from the local cache when it is covered
// and fresh; otherwise it round-trips to the server and reconciles the cache
// against the reply's mtime (SPEC_FULL.md §4.8 step 3): if the server's mtime
// matches what the cache last saw for path, the file hasn't changed since, so
// the existing cached payload and range are kept as-is (Touch only refreshes
// the validation clock); otherwise the cache is replaced with what the server
// just returned.
func (c *ClientService) Read(path string, offset, length uint64) ([]byte, error) {
	now := time.Now()
	if content, ok, _ := c.cache.Lookup(path, offset, length, now); ok {
		return content, nil
	}
	knownModifiedMs := c.cache.KnownModifiedMs(path)

	req := &wire.Request{RequestId: c.ids.Next(), Op: wire.OpRead, Path: path, Offset: offset, Length: length}
	resp := c.strategy.Invoke(req)

	switch resp.Status {
	case wire.StatusReadSuccess, wire.StatusReadIncomplete:
		if knownModifiedMs != -1 && resp.ServerLastModifiedMs == knownModifiedMs {
			c.cache.Touch(path, now)
		} else {
			c.cache.Store(path, offset, resp.Payload, resp.ServerLastModifiedMs, now)
		}
		return resp.Payload, nil
	default:
		return nil, responseError("read", path, resp)
	}
}

// WriteInsert inserts payload's bytes at offset and invalidates any cached
// region for path, since the byte offsets of everything after offset shift.
func (c *ClientService) WriteInsert(path string, offset uint64, payload []byte) error {
	req := &wire.Request{RequestId: c.ids.Next(), Op: wire.OpWriteInsert, Path: path, Offset: offset, Payload: payload}
	resp := c.strategy.Invoke(req)
	if resp.Status != wire.StatusWriteInsertOK {
		return responseError("write-insert", path, resp)
	}
	c.cache.Invalidate(path)
	return nil
}

// WriteDelete removes length bytes at offset and invalidates any cached region
// for path, for the same reason as WriteInsert.
func (c *ClientService) WriteDelete(path string, offset, length uint64) error {
	req := &wire.Request{RequestId: c.ids.Next(), Op: wire.OpWriteDelete, Path: path, Offset: offset, Length: length}
	resp := c.strategy.Invoke(req)
	if resp.Status != wire.StatusWriteDeleteOK {
		return responseError("write-delete", path, resp)
	}
	c.cache.Invalidate(path)
	return nil
}

// FileInfo fetches path's descriptive metadata payload from the server.
func (c *ClientService) FileInfo(path string) (string, error) {
	req := &wire.Request{RequestId: c.ids.Next(), Op: wire.OpFileInfo, Path: path}
	resp := c.strategy.Invoke(req)
	if resp.Status != wire.StatusFileInfoSuccess {
		return "", responseError("file-info", path, resp)
	}
	return string(resp.Payload), nil
}

// Monitor registers interest in path's mutations for the given duration. Actual
// callback datagrams arrive asynchronously and are retrieved with
// ReceiveCallback; Monitor itself only confirms registration.
func (c *ClientService) Monitor(path string, duration time.Duration) error {
	req := &wire.Request{RequestId: c.ids.Next(), Op: wire.OpMonitor, Path: path, MonitorDurationMs: uint64(duration.Milliseconds())}
	resp := c.strategy.Invoke(req)
	if resp.Status != wire.StatusMonitorSuccess {
		return responseError("monitor", path, resp)
	}
	return nil
}

// Shutdown asks the server to stop accepting new requests after replying.
func (c *ClientService) Shutdown() error {
	req := &wire.Request{RequestId: c.ids.Next(), Op: wire.OpShutdown}
	resp := c.strategy.Invoke(req)
	if !resp.IsShutdown() {
		return responseError("shutdown", "", resp)
	}
	return nil
}

// ReceiveCallback blocks up to timeout for the next monitor callback datagram,
// invalidating the local cache entry for the changed path before returning it.
// Callers that registered Monitor on more than one path are responsible for
// calling this in a loop and inspecting Response.Path to tell them apart.
func (c *ClientService) ReceiveCallback(timeout time.Duration) (*wire.Response, error) {
	raw, err := c.transport.ListenForCallback(time.Now().Add(timeout))
	if err != nil {
		return nil, fmt.Errorf("client: receive callback: %w", err)
	}
	resp, err := wire.UnmarshalResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("client: decode callback: %w", err)
	}
	if resp.Status == wire.StatusCallback && resp.Path != "" {
		c.cache.Invalidate(resp.Path)
	}
	return resp, nil
}

func responseError(op, path string, resp *wire.Response) error {
	if path == "" {
		return fmt.Errorf("client: %s: %s (%v)", op, resp.Message, resp.Status)
	}
	return fmt.Errorf("client: %s %s: %s (%v)", op, path, resp.Message, resp.Status)
}
