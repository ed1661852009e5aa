package client_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Alexlaaa/RemoteFileAccessSystem/client"
	"github.com/Alexlaaa/RemoteFileAccessSystem/config"
	"github.com/Alexlaaa/RemoteFileAccessSystem/server"
)

// startTestServer binds an ephemeral UDP port, starts serving in the
// background, and returns the chosen port plus a cleanup func.
func startTestServer(t *testing.T, root string, strategy string) (int, func()) {
	t.Helper()
	cfg := config.ServerConfig{
		ListenPort:     0,
		Strategy:       strategy,
		SendProb:       1.0,
		RecvProb:       1.0,
		WorkerPoolSize: 4,
		FilesystemRoot: root,
	}
	srv, err := server.New(cfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve()
	}()

	return srv.ListenPort(), func() {
		_ = srv.Close()
		<-done
	}
}

func newTestClient(t *testing.T, port int) *client.ClientService {
	t.Helper()
	cfg := config.ClientConfig{
		ServerAddress:       "127.0.0.1",
		ServerPort:          port,
		ReceiveTimeoutMs:    500,
		MaxRetries:          3,
		FreshnessIntervalMs: 10_000,
		SendProb:            1.0,
		RecvProb:            1.0,
		RequestIdStrategy:   "xor",
	}
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestReadThenWriteInsertInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	port, stop := startTestServer(t, dir, "AT_MOST_ONCE")
	defer stop()

	c := newTestClient(t, port)

	content, err := c.Read("a.txt", 0, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(content) != "hello" {
		t.Fatalf("unexpected content: %q", content)
	}

	if err := c.WriteInsert("a.txt", 5, []byte(",")); err != nil {
		t.Fatalf("WriteInsert: %v", err)
	}

	updated, err := c.Read("a.txt", 0, 6)
	if err != nil {
		t.Fatalf("Read after write: %v", err)
	}
	if string(updated) != "hello," {
		t.Fatalf("expected fresh read to reflect the insert, got %q", updated)
	}
}

func TestMonitorDeliversCallbackOnRemoteWrite(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("v1"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	port, stop := startTestServer(t, dir, "AT_MOST_ONCE")
	defer stop()

	watcher := newTestClient(t, port)
	if err := watcher.Monitor("b.txt", 5*time.Second); err != nil {
		t.Fatalf("Monitor: %v", err)
	}

	writer := newTestClient(t, port)
	if err := writer.WriteInsert("b.txt", 2, []byte("+v2")); err != nil {
		t.Fatalf("WriteInsert: %v", err)
	}

	resp, err := watcher.ReceiveCallback(2 * time.Second)
	if err != nil {
		t.Fatalf("ReceiveCallback: %v", err)
	}
	if resp.Path != "b.txt" {
		t.Fatalf("expected callback for b.txt, got %q", resp.Path)
	}
	if string(resp.Payload) != "v1+v2" {
		t.Fatalf("expected callback payload to carry the new content, got %q", resp.Payload)
	}
}

func TestReadRevalidationWithUnchangedMtimeRetainsCachedRange(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "d.txt"), []byte("abcdefghij0123456789"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	port, stop := startTestServer(t, dir, "AT_MOST_ONCE")

	cfg := config.ClientConfig{
		ServerAddress:       "127.0.0.1",
		ServerPort:          port,
		ReceiveTimeoutMs:    200,
		MaxRetries:          1,
		FreshnessIntervalMs: 20,
		SendProb:            1.0,
		RecvProb:            1.0,
		RequestIdStrategy:   "xor",
	}
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	defer c.Close()

	if _, err := c.Read("d.txt", 0, 20); err != nil {
		t.Fatalf("initial Read: %v", err)
	}

	time.Sleep(40 * time.Millisecond) // fall outside the freshness window

	// Revalidates a narrower sub-range; the file's mtime is unchanged, so the
	// full [0,20) cached range must be retained rather than shrunk to [5,10).
	if _, err := c.Read("d.txt", 5, 5); err != nil {
		t.Fatalf("revalidating Read: %v", err)
	}

	stop() // the server is gone; any further Read that needs the network now fails

	got, err := c.Read("d.txt", 15, 5)
	if err != nil {
		t.Fatalf("expected the outer range to still be served from cache, got error: %v", err)
	}
	if string(got) != "56789" {
		t.Fatalf("unexpected cached content: %q", got)
	}
}

func TestWriteDeleteOutOfBoundsReturnsError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "c.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	port, stop := startTestServer(t, dir, "AT_MOST_ONCE")
	defer stop()

	c := newTestClient(t, port)
	if err := c.WriteDelete("c.txt", 0, 100); err == nil {
		t.Fatalf("expected an error for an out-of-bounds delete range")
	}
}
