package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/ipc"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Review validated content awaiting approval",
	}

	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewApproveCommand(ctx))
	reviewCmd.AddCommand(newReviewRejectCommand(ctx))

	return reviewCmd
}

var reviewListHeaders = []string{"ID", "Type", "Priority", "Summary", "Queued"}

var reviewListAligns = []columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List validated items awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ReviewList(limit)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"items": resp.Items})
				}
				if len(resp.Items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Review queue is empty")
					return nil
				}
				table := renderTable(reviewListHeaders, buildReviewRows(resp.Items), reviewListAligns)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum items to list (0 uses the daemon default)")
	return cmd
}

func newReviewApproveCommand(ctx *commandContext) *cobra.Command {
	var approvedBy string

	cmd := &cobra.Command{
		Use:   "approve <validatedID>",
		Short: "Approve a validated item for release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePositiveID(args[0], "item id")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ReviewApprove(id, approvedBy)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"validated_id": id, "approved_id": resp.ApprovedID})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d approved (released as approved #%d)\n", id, resp.ApprovedID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&approvedBy, "by", "", "Reviewer name recorded on the approval")
	return cmd
}

func newReviewRejectCommand(ctx *commandContext) *cobra.Command {
	var rejectedBy string
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <validatedID>",
		Short: "Reject a validated item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePositiveID(args[0], "item id")
			if err != nil {
				return err
			}
			if strings.TrimSpace(reason) == "" {
				return errors.New("rejection reason is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ReviewReject(id, reason, rejectedBy); err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"validated_id": id, "rejected": true})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d rejected\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rejectedBy, "by", "", "Reviewer name recorded on the rejection")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the item is being rejected (required)")
	return cmd
}
