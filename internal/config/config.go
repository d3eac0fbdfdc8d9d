package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory configuration.
type Paths struct {
	// Workspace is the directory the remote server indexes; on the client
	// it is forwarded as the workspace argument of the tunnel's remote
	// command.
	Workspace string `toml:"workspace"`
	// CacheDir holds client-side state (last observed index fingerprint).
	CacheDir string `toml:"cache_dir"`
	// DataDir holds server-side state (index database, lock file).
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Remote contains tunnel endpoint configuration. Host must resolve through
// the operator's own ssh configuration; tether never manages ssh auth.
type Remote struct {
	Host string `toml:"host"`
	// RemotePath is the install directory of the server binary on the
	// remote host.
	RemotePath string `toml:"remote_path"`
	ServerPort int    `toml:"server_port"`
	ClientPort int    `toml:"client_port"`
	// ListenPort is where the client daemon accepts push connections.
	ListenPort int `toml:"listen_port"`
}

// Tunnel contains supervisor timing configuration.
type Tunnel struct {
	GraceSeconds       int `toml:"grace_seconds"`
	PollIntervalMillis int `toml:"poll_interval_ms"`
}

// Index contains workspace scan configuration.
type Index struct {
	// Exclude lists directory and file names skipped during scans.
	Exclude []string `toml:"exclude"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tether. Both daemons
// read the same shape; the server only consults Paths, Remote.ServerPort,
// Index, and Logging.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Remote  Remote  `toml:"remote"`
	Tunnel  Tunnel  `toml:"tunnel"`
	Index   Index   `toml:"index"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tether/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The bool reports
// whether a file was actually read (false means defaults only).
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// normalize expands and cleans all path fields and fills timing defaults.
func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.Workspace, &c.Paths.CacheDir, &c.Paths.DataDir, &c.Paths.LogDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	// RemotePath stays unexpanded: "~" must resolve on the remote host,
	// not here.
	c.Remote.RemotePath = strings.TrimSpace(c.Remote.RemotePath)
	c.Remote.Host = strings.TrimSpace(c.Remote.Host)

	if c.Tunnel.GraceSeconds <= 0 {
		c.Tunnel.GraceSeconds = defaultTunnelGraceSeconds
	}
	if c.Tunnel.PollIntervalMillis <= 0 {
		c.Tunnel.PollIntervalMillis = defaultTunnelPollMillis
	}
	if len(c.Index.Exclude) == 0 {
		c.Index.Exclude = defaultIndexExclude()
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaultLogFormat
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.Workspace) == "" {
		return errors.New("config: paths.workspace is required")
	}
	for name, port := range map[string]int{
		"remote.server_port": c.Remote.ServerPort,
		"remote.client_port": c.Remote.ClientPort,
		"remote.listen_port": c.Remote.ListenPort,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("config: %s must be in 1..65535, got %d", name, port)
		}
	}
	if c.Remote.ClientPort == c.Remote.ListenPort {
		return fmt.Errorf("config: remote.client_port and remote.listen_port must differ, both are %d", c.Remote.ClientPort)
	}
	return nil
}

// EnsureDirectories creates the directories daemon operation requires.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
