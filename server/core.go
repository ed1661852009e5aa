// Package server composes FileAccessServer, the request-handling root that
// wires transport, invocation semantics, file operations, and monitor
// callbacks together (SPEC_FULL.md §5). Its shape — a single struct built by
// one constructor function and driven by a blocking Serve call — follows the
// ancestor's PCFSServer/GetServer composition root, generalized from a
// BFTRaft-backed distributed store to this module's UDP file-access service.
package server

import (
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/Alexlaaa/RemoteFileAccessSystem/config"
	"github.com/Alexlaaa/RemoteFileAccessSystem/fileservice"
	"github.com/Alexlaaa/RemoteFileAccessSystem/invocation"
	"github.com/Alexlaaa/RemoteFileAccessSystem/monitor"
	"github.com/Alexlaaa/RemoteFileAccessSystem/replycache"
	"github.com/Alexlaaa/RemoteFileAccessSystem/transport"
	"github.com/Alexlaaa/RemoteFileAccessSystem/wire"
)

// FileAccessServer is one running instance of the service: a transport loop,
// a filesystem rooted at a configured directory, a monitor registry, and the
// invocation strategy chosen by configuration.
type FileAccessServer struct {
	transport *transport.ServerTransport
	files     *fileservice.Service
	monitors  *monitor.Registry
	strategy  invocation.ServerStrategy

	// replyCache and persistPath are non-nil/non-empty only when the optional
	// -persist-replies snapshot feature (SPEC_FULL.md §6) is enabled; they are
	// otherwise left zero and Close skips the snapshot step entirely.
	replyCache  *replycache.Cache
	persistPath string
}

// New builds a FileAccessServer from cfg. It binds the UDP listen socket and
// resolves the filesystem root eagerly, so configuration errors surface before
// Serve is ever called.
func New(cfg config.ServerConfig) (*FileAccessServer, error) {
	files, err := fileservice.New(cfg.FilesystemRoot)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	tr, err := transport.NewServerTransport(cfg.ListenPort, cfg.SendProb, cfg.RecvProb, cfg.WorkerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	strategy, cache, err := buildStrategy(cfg)
	if err != nil {
		return nil, err
	}

	s := &FileAccessServer{
		transport: tr,
		files:     files,
		monitors:  monitor.New(tr),
		strategy:  strategy,
	}

	if cfg.PersistReplies && cache != nil {
		s.replyCache = cache
		s.persistPath = cfg.PersistPath
		if err := cache.LoadFromFile(cfg.PersistPath); err != nil {
			log.Printf("server: could not load reply cache snapshot from %s: %v", cfg.PersistPath, err)
		}
	}

	return s, nil
}

// buildStrategy also returns the concrete *replycache.Cache backing an
// AT_MOST_ONCE strategy (nil under AT_LEAST_ONCE), so New can wire the
// optional disk snapshot without the invocation.ServerStrategy interface
// needing to expose persistence itself.
func buildStrategy(cfg config.ServerConfig) (invocation.ServerStrategy, *replycache.Cache, error) {
	switch strings.ToUpper(cfg.Strategy) {
	case "AT_LEAST_ONCE":
		log.Println("server: running under AT_LEAST_ONCE semantics; a lost reply causes the client to re-execute this request, which is unsafe for non-idempotent writes (SPEC_FULL.md §4.5)")
		return invocation.AtLeastOnce{}, nil, nil
	case "", "AT_MOST_ONCE":
		cache := replycache.New(cfg.ReplyCacheTTL(), cfg.ReplyCacheCapacityBytes())
		return invocation.NewAtMostOnce(cache), cache, nil
	default:
		return nil, nil, fmt.Errorf("server: unrecognized invocation strategy %q", cfg.Strategy)
	}
}

// Serve runs the blocking receive loop until a SHUTDOWN request is processed
// or the underlying socket is closed.
func (s *FileAccessServer) Serve() error {
	log.Printf("server: listening")
	return s.transport.Serve(s.handleDatagram)
}

// Close releases the server's UDP socket, snapshotting the reply cache first
// when -persist-replies is enabled.
func (s *FileAccessServer) Close() error {
	if s.replyCache != nil && s.persistPath != "" {
		if err := s.replyCache.SaveToFile(s.persistPath); err != nil {
			log.Printf("server: could not save reply cache snapshot to %s: %v", s.persistPath, err)
		}
	}
	return s.transport.Close()
}

// ListenPort reports the UDP port the server is bound to, useful for tests
// and for operators who configure port 0 to let the OS choose one.
func (s *FileAccessServer) ListenPort() int {
	return s.transport.LocalAddr().Port
}

func (s *FileAccessServer) handleDatagram(data []byte, from *net.UDPAddr) (reply []byte, shutdown bool) {
	req, err := wire.UnmarshalRequest(data)
	if err != nil {
		log.Printf("server: malformed request from %s: %v", from, err)
		return wire.MarshalResponse(wire.GeneralError(err.Error())), false
	}

	if req.Op == wire.OpShutdown {
		log.Printf("server: shutdown requested by %s", from)
		return wire.MarshalResponse(wire.ShutdownResponse()), true
	}

	resp := s.strategy.Invoke(req, func(req *wire.Request) *wire.Response {
		return s.dispatch(req, from)
	})
	return wire.MarshalResponse(resp), false
}

// dispatch runs the file operation or monitor registration a Request names.
// It is the Handler invoked by whichever invocation.ServerStrategy is active,
// so it runs exactly once per distinct requestId under AT_MOST_ONCE and once
// per delivered datagram under AT_LEAST_ONCE.
func (s *FileAccessServer) dispatch(req *wire.Request, from *net.UDPAddr) *wire.Response {
	switch req.Op {
	case wire.OpRead:
		return fromResult(s.files.Read(req.Path, req.Offset, req.Length))

	case wire.OpWriteInsert:
		result := s.files.WriteInsert(req.Path, req.Offset, req.Payload)
		if result.UpdatedContent != nil {
			s.monitors.Notify(req.Path, result.UpdatedContent, wire.OpWriteInsert, result.ServerLastModifiedMs)
		}
		return fromResult(result)

	case wire.OpWriteDelete:
		result := s.files.WriteDelete(req.Path, req.Offset, req.Length)
		if result.UpdatedContent != nil {
			s.monitors.Notify(req.Path, result.UpdatedContent, wire.OpWriteDelete, result.ServerLastModifiedMs)
		}
		return fromResult(result)

	case wire.OpFileInfo:
		return fromResult(s.files.FileInfo(req.Path))

	case wire.OpMonitor:
		s.monitors.Register(req.Path, from, int64(req.MonitorDurationMs))
		return &wire.Response{
			Status:               wire.StatusMonitorSuccess,
			Message:              fmt.Sprintf("monitoring %s for %dms", req.Path, req.MonitorDurationMs),
			ServerLastModifiedMs: -1,
		}

	default:
		return &wire.Response{Status: wire.StatusInvalidOperation, Message: fmt.Sprintf("unrecognized op %v", req.Op), ServerLastModifiedMs: -1}
	}
}

func fromResult(r fileservice.Result) *wire.Response {
	return &wire.Response{
		Status:               wire.Status(r.Status),
		Payload:              r.Payload,
		Message:              r.Message,
		ServerLastModifiedMs: r.ServerLastModifiedMs,
	}
}
