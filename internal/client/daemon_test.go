package client

import (
	"context"
	"net"
	"testing"
	"time"

	"tether/internal/config"
	"tether/internal/logging"
	"tether/internal/protocol"
	"tether/internal/server"
	"tether/internal/testsupport"
)

func startServer(t *testing.T, cfg *config.Config) *server.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	d, err := server.New(context.Background(), cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	t.Cleanup(d.Close)
	d.Serve()
	return d
}

func TestClientIndexExchange(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteWorkspaceFile(t, cfg.Paths.Workspace, "main.go", "package main\n")
	srv := startServer(t, cfg)

	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if got := d.CurrentIndexHash(); got != 0 {
		t.Fatalf("fresh client fingerprint = %d, want 0", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Connect(ctx, srv.Addr()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	resp, err := d.RequestIndex(ctx)
	if err != nil {
		t.Fatalf("RequestIndex: %v", err)
	}
	if resp.FileCount != 1 {
		t.Fatalf("file count = %d, want 1", resp.FileCount)
	}
	if !resp.Changed {
		t.Fatal("changed = false on first contact")
	}
	if d.CurrentIndexHash() != resp.Hash {
		t.Fatalf("fingerprint = %#x, want %#x", d.CurrentIndexHash(), resp.Hash)
	}

	// One request per connection: a second exchange needs a fresh dial.
	if err := d.Connect(ctx, srv.Addr()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	again, err := d.RequestIndex(ctx)
	if err != nil {
		t.Fatalf("second RequestIndex: %v", err)
	}
	if again.Changed {
		t.Fatal("changed = true with up-to-date fingerprint")
	}
}

func TestClientFingerprintPersistsAcrossRestarts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteWorkspaceFile(t, cfg.Paths.Workspace, "main.go", "package main\n")
	srv := startServer(t, cfg)

	first, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := first.Connect(ctx, srv.Addr()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	resp, err := first.RequestIndex(ctx)
	if err != nil {
		t.Fatalf("RequestIndex: %v", err)
	}
	first.Close()

	second, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	defer second.Close()
	if got := second.CurrentIndexHash(); got != resp.Hash {
		t.Fatalf("restarted client fingerprint = %#x, want %#x", got, resp.Hash)
	}
}

func TestClientConnectRetriesUntilListenerAppears(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	// Reserve an address, release it, and bring the listener up shortly
	// after the client has started dialing.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	addr := probe.Addr().String()
	probe.Close()

	listenerUp := make(chan net.Listener, 1)
	go func() {
		time.Sleep(300 * time.Millisecond)
		l, lerr := net.Listen("tcp", addr)
		if lerr != nil {
			listenerUp <- nil
			return
		}
		listenerUp <- l
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Connect(ctx, addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if l := <-listenerUp; l != nil {
		l.Close()
	}
}

func TestClientPushConnectionsAreDroppedNotFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if err := d.ListenPush(); err != nil {
		t.Fatalf("ListenPush: %v", err)
	}
	d.ServePush()

	// No push handlers are wired, so a recognized tag is dropped after
	// logging. The listener must keep accepting afterwards.
	for i := 0; i < 2; i++ {
		conn, err := net.DialTimeout("tcp", d.PushAddr(), 2*time.Second)
		if err != nil {
			t.Fatalf("dial push %d: %v", i, err)
		}
		buf, err := protocol.Encode(protocol.NewNotify("index_changed", 7))
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if _, err := conn.Write(buf); err != nil {
			t.Fatalf("write push %d: %v", i, err)
		}

		// The daemon closes the connection once it has handled the one
		// message.
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		one := make([]byte, 1)
		if _, err := conn.Read(one); err == nil {
			t.Fatal("push connection stayed open with data")
		}
		conn.Close()
	}
}
