package config

const (
	defaultCacheDir           = "~/.local/share/tether/cache"
	defaultDataDir            = "~/.local/share/tether/data"
	defaultLogDir             = "~/.local/share/tether/logs"
	defaultRemotePath         = "~/.local/share/tether/bin"
	defaultServerPort         = 9130
	defaultClientPort         = 9131
	defaultListenPort         = 9132
	defaultTunnelGraceSeconds = 2
	defaultTunnelPollMillis   = 1000
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

func defaultIndexExclude() []string {
	return []string{".git", ".hg", ".svn"}
}

// Default returns a Config populated with repository defaults. Workspace
// and host have no sensible defaults and must come from the config file or
// flags.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir: defaultCacheDir,
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
		},
		Remote: Remote{
			RemotePath: defaultRemotePath,
			ServerPort: defaultServerPort,
			ClientPort: defaultClientPort,
			ListenPort: defaultListenPort,
		},
		Tunnel: Tunnel{
			GraceSeconds:       defaultTunnelGraceSeconds,
			PollIntervalMillis: defaultTunnelPollMillis,
		},
		Index: Index{
			Exclude: defaultIndexExclude(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
