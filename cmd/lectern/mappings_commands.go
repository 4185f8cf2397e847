package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lectern/internal/ipc"
)

// Mapping review talks to the daemon only. Confirmations feed the worker's
// rescan of parked pipelines, which is meaningless without a running daemon.
func newMappingsCommand(ctx *commandContext) *cobra.Command {
	mappingsCmd := &cobra.Command{
		Use:   "mappings",
		Short: "Review proposed chunk-topic mappings",
	}

	mappingsCmd.AddCommand(newMappingsListCommand(ctx))
	mappingsCmd.AddCommand(newMappingsConfirmCommand(ctx))
	mappingsCmd.AddCommand(newMappingsRejectCommand(ctx))

	return mappingsCmd
}

var mappingListHeaders = []string{"ID", "Topic", "Document", "Confidence", "Excerpt"}

var mappingListAligns = []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft}

func newMappingsListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mappings awaiting confirmation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.MappingList(limit)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"mappings": resp.Mappings})
				}
				if len(resp.Mappings) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No mappings awaiting confirmation")
					return nil
				}
				table := renderTable(mappingListHeaders, buildMappingRows(resp.Mappings), mappingListAligns)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum mappings to list (0 uses the daemon default)")
	return cmd
}

func newMappingsConfirmCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <mappingID>",
		Short: "Confirm a proposed mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePositiveID(args[0], "mapping id")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.MappingConfirm(id); err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"id": id, "confirmed": true})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Mapping %d confirmed\n", id)
				return nil
			})
		},
	}
}

func newMappingsRejectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <mappingID>",
		Short: "Reject a proposed mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePositiveID(args[0], "mapping id")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.MappingReject(id); err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"id": id, "rejected": true})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Mapping %d rejected\n", id)
				return nil
			})
		},
	}
}
