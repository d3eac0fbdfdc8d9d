package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tether/internal/client"
	"tether/internal/logging"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	var timeoutFlag time.Duration

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Request a fresh workspace index through the tunnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			d, err := client.New(cfg, logging.NewNop())
			if err != nil {
				return err
			}
			defer d.Close()

			dialCtx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()

			prev := d.CurrentIndexHash()
			if err := d.ConnectTunnel(dialCtx); err != nil {
				return fmt.Errorf("reach server (is `tether daemon` running?): %w", err)
			}
			resp, err := d.RequestIndex(dialCtx)
			if err != nil {
				return fmt.Errorf("request index: %w", err)
			}

			rows := [][]string{
				{"Workspace", cfg.Paths.Workspace},
				{"Files", strconv.FormatInt(resp.FileCount, 10)},
				{"Fingerprint", fmt.Sprintf("%016x", resp.Hash)},
				{"Previous", fmt.Sprintf("%016x", prev)},
				{"Changed", yesNo(resp.Changed)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeoutFlag, "timeout", 10*time.Second, "How long to wait for the server")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
