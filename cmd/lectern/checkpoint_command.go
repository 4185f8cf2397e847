package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lectern/internal/ipc"
)

func newCheckpointCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Show the worker's latest checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, stores *directStores) error {
				var cp *ipc.Checkpoint
				if client != nil {
					// Use IPC if daemon is running
					resp, err := client.Checkpoint()
					if err != nil {
						return err
					}
					cp = resp.Checkpoint
				} else {
					// Use direct store access
					record, err := stores.pipelines.LatestCheckpoint(cmd.Context())
					if err != nil {
						return err
					}
					cp = ipc.FromCheckpoint(record)
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"checkpoint": cp})
				}
				kind, message := checkpointStatusLine(cp)
				fmt.Fprintln(cmd.OutOrStdout(), renderStatusLine("Checkpoint", kind, message, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}
}
