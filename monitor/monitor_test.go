package monitor

import (
	"net"
	"testing"
	"time"

	"github.com/Alexlaaa/RemoteFileAccessSystem/wire"
)

type fakeSender struct {
	sent []sentCall
}

type sentCall struct {
	to   *net.UDPAddr
	data []byte
}

func (f *fakeSender) SendTo(to *net.UDPAddr, data []byte) error {
	f.sent = append(f.sent, sentCall{to: to, data: data})
	return nil
}

func addr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestNotifyDeliversToActiveSubscribers(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender)
	r.Register("/a.txt", addr(9001), 60_000)
	r.Register("/a.txt", addr(9002), 60_000)

	r.Notify("/a.txt", []byte("new content"), wire.OpWriteInsert, 123)

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 callback deliveries, got %d", len(sender.sent))
	}
	resp, err := wire.UnmarshalResponse(sender.sent[0].data)
	if err != nil {
		t.Fatalf("unmarshal callback: %v", err)
	}
	if resp.Status != wire.StatusCallback {
		t.Fatalf("expected CALLBACK status, got %v", resp.Status)
	}
	if string(resp.Payload) != "new content" {
		t.Fatalf("expected full updated content in payload, got %q", resp.Payload)
	}
	if resp.Path != "/a.txt" {
		t.Fatalf("expected callback to carry the changed path, got %q", resp.Path)
	}
}

func TestNotifyPrunesExpiredSubscriptions(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender)
	r.Register("/a.txt", addr(9001), 0) // duration 0: expired once a millisecond has passed
	time.Sleep(5 * time.Millisecond)

	r.Notify("/a.txt", []byte("x"), wire.OpWriteInsert, 1)

	if len(sender.sent) != 0 {
		t.Fatalf("expected no delivery to an expired subscription, got %d", len(sender.sent))
	}
	if r.ActiveCount("/a.txt") != 0 {
		t.Fatalf("expected expired subscription to be pruned")
	}
}

func TestNotifyOnUnregisteredPathIsNoop(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender)
	r.Notify("/never-registered.txt", []byte("x"), wire.OpWriteInsert, 1)
	if len(sender.sent) != 0 {
		t.Fatalf("expected no deliveries for an unregistered path")
	}
}
