package server

import (
	"context"
	"net"
	"testing"
	"time"

	"tether/internal/logging"
	"tether/internal/protocol"
	"tether/internal/testsupport"
)

func startServer(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	testsupport.WriteWorkspaceFile(t, cfg.Paths.Workspace, "main.go", "package main\n")
	testsupport.WriteWorkspaceFile(t, cfg.Paths.Workspace, "lib/util.go", "package lib\n")
	store := testsupport.MustOpenStore(t, cfg)

	d, err := New(context.Background(), cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Close)
	d.Serve()
	return d
}

func roundTrip(t *testing.T, addr string, prevHash uint64) protocol.IndexResponse {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	buf, err := protocol.Encode(protocol.NewIndexRequest(prevHash, ""))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	replyBuf, err := protocol.ReadMessage(conn)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	resp, err := protocol.Decode[protocol.IndexResponse](replyBuf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return resp
}

func TestServerServesIndexRequest(t *testing.T) {
	d := startServer(t)

	resp := roundTrip(t, d.Addr(), 0)
	if resp.FileCount != 2 {
		t.Fatalf("file count = %d, want 2", resp.FileCount)
	}
	if resp.Hash == 0 {
		t.Fatal("fingerprint is zero")
	}
	if !resp.Changed {
		t.Fatal("changed = false on first contact")
	}

	// A rescan of an unchanged workspace reports the same fingerprint and
	// no change relative to it.
	again := roundTrip(t, d.Addr(), resp.Hash)
	if again.Hash != resp.Hash {
		t.Fatalf("fingerprint moved on unchanged workspace: %#x then %#x", resp.Hash, again.Hash)
	}
	if again.Changed {
		t.Fatal("changed = true with matching prev hash")
	}
}

func TestServerSurvivesBadConnections(t *testing.T) {
	d := startServer(t)

	// Malformed envelope.
	conn, err := net.DialTimeout("tcp", d.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := conn.Write([]byte{0x01}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	conn.Close()

	// Recognized tag with no handler wired.
	conn, err = net.DialTimeout("tcp", d.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	buf, err := protocol.Encode(protocol.NewNotify("index_changed", 1))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("write notify: %v", err)
	}
	conn.Close()

	// The listen loop is still alive and serving.
	resp := roundTrip(t, d.Addr(), 0)
	if resp.FileCount != 2 {
		t.Fatalf("file count after bad connections = %d, want 2", resp.FileCount)
	}
}

func TestServerRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first, err := New(context.Background(), cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer first.Close()

	if _, err := New(context.Background(), cfg, store, logging.NewNop()); err == nil {
		t.Fatal("second instance acquired the lock")
	}
}
