// Command tetherd is the remote-host daemon. The tunnel launches it with
// the workspace and port on the command line; it indexes the workspace and
// serves requests arriving through the tunnel.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tether/internal/config"
	"tether/internal/index"
	"tether/internal/logging"
	"tether/internal/server"
)

func main() {
	cmd := newServerCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	var workspaceFlag string
	var portFlag int
	var dataFlag string
	var logLevelFlag string
	var logFormatFlag string

	cmd := &cobra.Command{
		Use:           "tetherd",
		Short:         "Tether remote workspace server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(workspaceFlag, portFlag, dataFlag, logLevelFlag, logFormatFlag)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&workspaceFlag, "workspace", "w", "", "Workspace directory to index (required)")
	cmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Port to listen on")
	cmd.Flags().StringVarP(&dataFlag, "data", "r", "", "Directory for the index database and lock file")
	cmd.Flags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormatFlag, "log-format", "", "Log format (console or json)")
	_ = cmd.MarkFlagRequired("workspace")

	return cmd
}

// buildConfig assembles the server config from defaults and flags. The
// remote host usually has no config file; everything the server needs
// arrives on the command line.
func buildConfig(workspace string, port int, dataDir, logLevel, logFormat string) (*config.Config, error) {
	cfg := config.Default()

	expanded, err := config.ExpandPath(strings.TrimSpace(workspace))
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if expanded == "" {
		return nil, errors.New("workspace is required")
	}
	cfg.Paths.Workspace = expanded

	if port > 0 {
		cfg.Remote.ServerPort = port
	}
	if strings.TrimSpace(dataDir) != "" {
		expanded, err := config.ExpandPath(dataDir)
		if err != nil {
			return nil, fmt.Errorf("resolve data directory: %w", err)
		}
		cfg.Paths.DataDir = expanded
	} else {
		expanded, err := config.ExpandPath(cfg.Paths.DataDir)
		if err != nil {
			return nil, fmt.Errorf("resolve data directory: %w", err)
		}
		cfg.Paths.DataDir = expanded
	}
	for _, field := range []*string{&cfg.Paths.CacheDir, &cfg.Paths.LogDir} {
		expanded, err := config.ExpandPath(*field)
		if err != nil {
			return nil, err
		}
		*field = expanded
	}
	if strings.TrimSpace(logLevel) != "" {
		cfg.Logging.Level = logLevel
	}
	if strings.TrimSpace(logFormat) != "" {
		cfg.Logging.Format = logFormat
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func runServer(cmdCtx context.Context, cfg *config.Config) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := index.Open(cfg.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("open index store: %w", err)
	}
	defer store.Close()

	d, err := server.New(signalCtx, cfg, store, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	d.Serve()

	<-signalCtx.Done()
	logger.Info("tetherd shutting down")
	d.Close()
	return nil
}
