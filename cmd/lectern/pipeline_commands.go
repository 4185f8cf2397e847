package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/ipc"
	"lectern/internal/pipeline"
)

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	pipelineCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Inspect and manage document pipelines",
	}

	pipelineCmd.AddCommand(newPipelineListCommand(ctx))
	pipelineCmd.AddCommand(newPipelineShowCommand(ctx))
	pipelineCmd.AddCommand(newPipelineRetryCommand(ctx))
	pipelineCmd.AddCommand(newPipelineCancelCommand(ctx))

	return pipelineCmd
}

var pipelineListHeaders = []string{"ID", "Document", "Status", "Stage", "Tasks", "Created"}

var pipelineListAligns = []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}

func newPipelineListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List document pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parsePipelineStatuses(listStatuses)
			if err != nil {
				return err
			}

			return ctx.withStore(func(client *ipc.Client, stores *directStores) error {
				var pipelines []ipc.Pipeline
				if client != nil {
					// Use IPC if daemon is running
					resp, err := client.PipelineList(listStatuses)
					if err != nil {
						return err
					}
					pipelines = resp.Pipelines
				} else {
					// Use direct store access
					records, err := stores.pipelines.ListPipelines(cmd.Context(), parsed...)
					if err != nil {
						return err
					}
					pipelines = ipc.FromPipelines(records)
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"pipelines": pipelines})
				}
				if len(pipelines) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No pipelines found")
					return nil
				}
				table := renderTable(pipelineListHeaders, buildPipelineRows(pipelines), pipelineListAligns)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by pipeline status (repeatable)")
	return cmd
}

func newPipelineShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <pipelineID>",
		Short: "Show one pipeline with its document and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePipelineID(args[0])
			if err != nil {
				return err
			}

			return ctx.withStore(func(client *ipc.Client, stores *directStores) error {
				var detail *ipc.PipelineDescribeResponse
				if client != nil {
					// Use IPC if daemon is running
					resp, err := client.PipelineDescribe(id)
					if err != nil {
						return err
					}
					detail = resp
				} else {
					// Use direct store access
					pl, err := stores.pipelines.GetPipeline(cmd.Context(), id)
					if err != nil {
						return err
					}
					if pl == nil {
						return fmt.Errorf("pipeline %d not found", id)
					}
					tasks, err := stores.pipelines.Tasks(cmd.Context(), id)
					if err != nil {
						return err
					}
					detail = &ipc.PipelineDescribeResponse{
						Pipeline: ipc.FromPipeline(pl),
						Tasks:    ipc.FromTasks(tasks),
					}
					if doc, err := stores.docs.GetDocument(cmd.Context(), pl.DocumentID); err == nil && doc != nil {
						converted := ipc.FromDocument(doc)
						detail.Document = &converted
					}
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, detail)
				}
				renderPipelineDetail(cmd, detail)
				return nil
			})
		},
	}
}

func renderPipelineDetail(cmd *cobra.Command, detail *ipc.PipelineDescribeResponse) {
	out := cmd.OutOrStdout()
	p := detail.Pipeline

	fmt.Fprintf(out, "Pipeline: #%d\n", p.ID)
	if detail.Document != nil {
		fmt.Fprintf(out, "Document: %s\n", formatDocumentSummary(detail.Document))
	} else {
		fmt.Fprintf(out, "Document: #%d\n", p.DocumentID)
	}
	fmt.Fprintf(out, "Status: %s\n", formatStatusLabel(p.Status))
	fmt.Fprintf(out, "Stage: %s\n", formatStatusLabel(p.CurrentStage))
	fmt.Fprintf(out, "Tasks: %s\n", formatTaskProgress(p))
	if msg := strings.TrimSpace(p.ErrorMessage); msg != "" {
		fmt.Fprintf(out, "Error: %s\n", msg)
	}
	if p.StartedAt != "" {
		fmt.Fprintf(out, "Started: %s\n", formatDisplayTime(p.StartedAt))
	}
	if p.CompletedAt != "" {
		fmt.Fprintf(out, "Completed: %s\n", formatDisplayTime(p.CompletedAt))
	}
	fmt.Fprintf(out, "Created: %s\n", formatDisplayTime(p.CreatedAt))

	if len(detail.Tasks) == 0 {
		fmt.Fprintln(out, "No tasks recorded")
		return
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderTable(taskListHeaders, buildTaskRows(detail.Tasks), taskListAligns))
}

func newPipelineRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <pipelineID>",
		Short: "Reset a pipeline's retryable failed tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePipelineID(args[0])
			if err != nil {
				return err
			}

			return ctx.withStore(func(client *ipc.Client, stores *directStores) error {
				var updated int64
				if client != nil {
					// Use IPC if daemon is running
					resp, err := client.RetryFailed(id)
					if err != nil {
						return err
					}
					updated = resp.Updated
				} else {
					// Use direct store access
					updated, err = stores.pipelines.RetryFailedTasks(cmd.Context(), id)
					if err != nil {
						return err
					}
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"pipeline": id, "updated": updated})
				}
				if updated == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %d has no retryable failed tasks\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed tasks on pipeline %d\n", updated, id)
				return nil
			})
		},
	}
}

func newPipelineCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <pipelineID>",
		Short: "Cancel a pipeline that has not completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePipelineID(args[0])
			if err != nil {
				return err
			}

			return ctx.withStore(func(client *ipc.Client, stores *directStores) error {
				var cancelled bool
				if client != nil {
					// Use IPC if daemon is running
					resp, err := client.CancelPipeline(id)
					if err != nil {
						return err
					}
					cancelled = resp.Cancelled
				} else {
					// Use direct store access
					cancelled, err = stores.pipelines.CancelPipeline(cmd.Context(), id)
					if err != nil {
						return err
					}
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"pipeline": id, "cancelled": cancelled})
				}
				if !cancelled {
					fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %d cannot be cancelled\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %d cancelled\n", id)
				return nil
			})
		},
	}
}

var taskListHeaders = []string{"ID", "Type", "Item", "Status", "Retries", "Error"}

var taskListAligns = []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}

func newTasksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <pipelineID>",
		Short: "List a pipeline's tasks in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePipelineID(args[0])
			if err != nil {
				return err
			}

			return ctx.withStore(func(client *ipc.Client, stores *directStores) error {
				var tasks []ipc.Task
				if client != nil {
					// Use IPC if daemon is running
					resp, err := client.TaskList(id)
					if err != nil {
						return err
					}
					tasks = resp.Tasks
				} else {
					// Use direct store access
					records, err := stores.pipelines.Tasks(cmd.Context(), id)
					if err != nil {
						return err
					}
					tasks = ipc.FromTasks(records)
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"tasks": tasks})
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks recorded")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(taskListHeaders, buildTaskRows(tasks), taskListAligns))
				return nil
			})
		},
	}
}

func parsePipelineID(arg string) (int64, error) {
	return parsePositiveID(arg, "pipeline id")
}

func parsePositiveID(arg, label string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", label, arg)
	}
	return id, nil
}

func parsePipelineStatuses(values []string) ([]pipeline.Status, error) {
	statuses := make([]pipeline.Status, 0, len(values))
	for _, value := range values {
		parsed, ok := pipeline.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown pipeline status %q (valid: %s)", value, knownStatusList())
		}
		statuses = append(statuses, parsed)
	}
	return statuses, nil
}

func knownStatusList() string {
	all := pipeline.AllStatuses()
	names := make([]string, 0, len(all))
	for _, status := range all {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}
