package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show effective configuration and tunnel reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			tunnelState := "unreachable"
			addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Remote.ClientPort))
			if conn, dialErr := net.DialTimeout("tcp", addr, time.Second); dialErr == nil {
				conn.Close()
				tunnelState = "reachable"
			}

			rows := [][]string{
				{"Workspace", cfg.Paths.Workspace},
				{"Remote host", cfg.Remote.Host},
				{"Remote path", cfg.Remote.RemotePath},
				{"Server port", strconv.Itoa(cfg.Remote.ServerPort)},
				{"Client port", strconv.Itoa(cfg.Remote.ClientPort)},
				{"Listen port", strconv.Itoa(cfg.Remote.ListenPort)},
				{"Tunnel", tunnelState},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}
