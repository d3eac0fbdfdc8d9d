package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[paths]
workspace = "/tmp/ws"

[remote]
host = "devbox"
`)
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("exists = false for a real file")
	}
	if resolved != path {
		t.Fatalf("resolved path = %s, want %s", resolved, path)
	}
	if cfg.Remote.ServerPort != defaultServerPort {
		t.Fatalf("server port = %d, want default %d", cfg.Remote.ServerPort, defaultServerPort)
	}
	if cfg.Tunnel.GraceSeconds != defaultTunnelGraceSeconds {
		t.Fatalf("grace = %d, want default %d", cfg.Tunnel.GraceSeconds, defaultTunnelGraceSeconds)
	}
	if len(cfg.Index.Exclude) == 0 {
		t.Fatal("exclude list is empty, want defaults")
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Fatalf("log format = %s, want %s", cfg.Logging.Format, defaultLogFormat)
	}
}

func TestLoadRequiresWorkspace(t *testing.T) {
	path := writeConfig(t, `
[remote]
host = "devbox"
`)
	if _, _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "workspace") {
		t.Fatalf("Load error = %v, want workspace requirement", err)
	}
}

func TestLoadRejectsBadPorts(t *testing.T) {
	path := writeConfig(t, `
[paths]
workspace = "/tmp/ws"

[remote]
host = "devbox"
server_port = 70000
`)
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("Load accepted out-of-range port")
	}
}

func TestLoadRejectsPortCollision(t *testing.T) {
	path := writeConfig(t, `
[paths]
workspace = "/tmp/ws"

[remote]
host = "devbox"
client_port = 9131
listen_port = 9131
`)
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("Load accepted client_port == listen_port")
	}
}

func TestLoadExpandsLocalPathsOnly(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	path := writeConfig(t, `
[paths]
workspace = "~/ws"

[remote]
host = "devbox"
remote_path = "~/tether/bin"
`)
	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.Workspace != filepath.Join(home, "ws") {
		t.Fatalf("workspace = %s, not expanded", cfg.Paths.Workspace)
	}
	// The tilde in remote_path resolves on the remote host.
	if cfg.Remote.RemotePath != "~/tether/bin" {
		t.Fatalf("remote_path = %s, must stay unexpanded", cfg.Remote.RemotePath)
	}
}

func TestLoadMissingFileUsesDefaultsButStillValidates(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	if _, _, _, err := Load(missing); err == nil {
		t.Fatal("Load without workspace must fail validation")
	}
}

func TestCreateSampleParses(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if err := CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "workspace") {
		t.Fatal("sample config does not mention workspace")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Paths.Workspace = base
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.CacheDir, cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("directory %s missing after EnsureDirectories", dir)
		}
	}
}
