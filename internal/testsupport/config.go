package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tether/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Ports default to 0 so the kernel assigns free ones; tests read the bound
// address back rather than relying on the configured port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.Workspace = filepath.Join(base, "workspace")
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Remote.Host = "test-host"
	cfgVal.Remote.ServerPort = 0
	cfgVal.Remote.ClientPort = 0
	cfgVal.Remote.ListenPort = 0
	cfgVal.Tunnel.GraceSeconds = 0
	cfgVal.Tunnel.PollIntervalMillis = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := cfgVal.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := os.MkdirAll(builder.cfg.Paths.Workspace, 0o755); err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	return builder.cfg
}

// WithWorkspace overrides the workspace root on the test config.
func WithWorkspace(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.Workspace = path
	}
}

// WithExclude replaces the index exclusion list on the test config.
func WithExclude(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Index.Exclude = names
	}
}

// WithHost overrides the remote host on the test config.
func WithHost(host string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.Host = host
	}
}
