package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tether/internal/client"
	"tether/internal/logging"
	"tether/internal/tunnel"
)

// connectTimeout bounds the initial dial through the tunnel. The tunnel
// supervisor keeps retrying beyond this, but a daemon that cannot reach the
// server within it is almost always misconfigured.
const connectTimeout = 30 * time.Second

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the tether client daemon and tunnel supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClientDaemon(cmd.Context(), ctx)
		},
	}
}

func runClientDaemon(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	sup, err := tunnel.New(tunnel.Options{
		Host:         cfg.Remote.Host,
		RemotePath:   cfg.Remote.RemotePath,
		Workspace:    cfg.Paths.Workspace,
		ServerPort:   cfg.Remote.ServerPort,
		ClientPort:   cfg.Remote.ClientPort,
		Grace:        time.Duration(cfg.Tunnel.GraceSeconds) * time.Second,
		PollInterval: time.Duration(cfg.Tunnel.PollIntervalMillis) * time.Millisecond,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create tunnel supervisor: %w", err)
	}
	sup.Start()
	defer sup.Stop()

	d, err := client.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create client daemon: %w", err)
	}
	defer d.Close()

	dialCtx, dialCancel := context.WithTimeout(signalCtx, connectTimeout)
	err = d.ConnectTunnel(dialCtx)
	dialCancel()
	if err != nil {
		return err
	}

	if _, err := d.RequestIndex(signalCtx); err != nil {
		logger.Warn("initial index request failed", logging.Error(err))
	}

	if err := d.ListenPush(); err != nil {
		return err
	}
	d.ServePush()

	// The supervisor gives up after repeated tunnel failures; treat that
	// as fatal for the daemon rather than idling without a tunnel.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-signalCtx.Done():
			logger.Info("tether daemon shutting down")
			return nil
		case <-ticker.C:
			if sup.State() == tunnel.StateStopped {
				if err := sup.Err(); err != nil {
					return fmt.Errorf("tunnel terminated: %w", err)
				}
				return nil
			}
		}
	}
}
