package server

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/Alexlaaa/RemoteFileAccessSystem/config"
	"github.com/Alexlaaa/RemoteFileAccessSystem/monitor"
	"github.com/Alexlaaa/RemoteFileAccessSystem/wire"
)

type recordingSender struct {
	sent []struct {
		to   *net.UDPAddr
		data []byte
	}
}

func (r *recordingSender) SendTo(to *net.UDPAddr, data []byte) error {
	r.sent = append(r.sent, struct {
		to   *net.UDPAddr
		data []byte
	}{to, data})
	return nil
}

func newTestServer(t *testing.T) (*FileAccessServer, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.ServerConfig{
		ListenPort:     0,
		Strategy:       "AT_MOST_ONCE",
		SendProb:       1.0,
		RecvProb:       1.0,
		WorkerPoolSize: 2,
		FilesystemRoot: dir,
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, dir
}

func TestDispatchReadSuccess(t *testing.T) {
	srv, dir := newTestServer(t)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	req := &wire.Request{RequestId: 1, Op: wire.OpRead, Path: "a.txt", Length: 5}
	resp := srv.dispatch(req, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000})
	if resp.Status != wire.StatusReadSuccess {
		t.Fatalf("expected READ_SUCCESS, got %v: %s", resp.Status, resp.Message)
	}
	if string(resp.Payload) != "hello" {
		t.Fatalf("unexpected payload %q", resp.Payload)
	}
}

func TestDispatchWriteInsertNotifiesMonitors(t *testing.T) {
	srv, dir := newTestServer(t)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("world"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	sender := &recordingSender{}
	srv.monitors = monitor.New(sender)

	from := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5001}
	monitorReq := &wire.Request{RequestId: 1, Op: wire.OpMonitor, Path: "a.txt", MonitorDurationMs: 60_000}
	if resp := srv.dispatch(monitorReq, from); resp.Status != wire.StatusMonitorSuccess {
		t.Fatalf("expected MONITOR_SUCCESS, got %v", resp.Status)
	}

	writeReq := &wire.Request{RequestId: 2, Op: wire.OpWriteInsert, Path: "a.txt", Offset: 0, Payload: []byte("hello ")}
	resp := srv.dispatch(writeReq, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5002})
	if resp.Status != wire.StatusWriteInsertOK {
		t.Fatalf("expected WRITE_INSERT_SUCCESS, got %v: %s", resp.Status, resp.Message)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one callback delivery, got %d", len(sender.sent))
	}
}

func TestHandleDatagramShutdownSignalsTransportStop(t *testing.T) {
	srv, _ := newTestServer(t)
	data := wire.MarshalRequest(&wire.Request{RequestId: 1, Op: wire.OpShutdown})
	reply, shutdown := srv.handleDatagram(data, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5003})
	if !shutdown {
		t.Fatalf("expected SHUTDOWN op to signal shutdown")
	}
	resp, err := wire.UnmarshalResponse(reply)
	if err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if !resp.IsShutdown() {
		t.Fatalf("expected shutdown response status")
	}
}

func TestHandleDatagramMalformedRequestYieldsGeneralError(t *testing.T) {
	srv, _ := newTestServer(t)
	reply, shutdown := srv.handleDatagram([]byte{0x01, 0x02}, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5004})
	if shutdown {
		t.Fatalf("malformed request must not trigger shutdown")
	}
	resp, err := wire.UnmarshalResponse(reply)
	if err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if resp.Status != wire.StatusGeneralError {
		t.Fatalf("expected GENERAL_ERROR, got %v", resp.Status)
	}
}
