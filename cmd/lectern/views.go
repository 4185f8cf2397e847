package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	xlanguage "golang.org/x/text/language"

	"lectern/internal/ipc"
	"lectern/internal/language"
	"lectern/internal/textutil"
)

const tableExcerptWidth = 48

var statusLabelCaser = cases.Title(xlanguage.Und)

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return statusLabelCaser.String(strings.ReplaceAll(strings.ToLower(status), "_", " "))
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func parseWireTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatTaskProgress(p ipc.Pipeline) string {
	progress := fmt.Sprintf("%d/%d", p.CompletedTasks, p.TotalTasks)
	if p.FailedTasks > 0 {
		progress = fmt.Sprintf("%s (%d failed)", progress, p.FailedTasks)
	}
	return progress
}

func buildPipelineRows(pipelines []ipc.Pipeline) [][]string {
	if len(pipelines) == 0 {
		return nil
	}
	sorted := make([]ipc.Pipeline, len(pipelines))
	copy(sorted, pipelines)

	sort.Slice(sorted, func(i, j int) bool {
		ti := parseWireTime(sorted[i].CreatedAt)
		tj := parseWireTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})

	rows := make([][]string, 0, len(sorted))
	for _, p := range sorted {
		rows = append(rows, []string{
			fmt.Sprintf("%d", p.ID),
			fmt.Sprintf("#%d", p.DocumentID),
			formatStatusLabel(p.Status),
			formatStatusLabel(p.CurrentStage),
			formatTaskProgress(p),
			formatDisplayTime(p.CreatedAt),
		})
	}
	return rows
}

func buildTaskRows(tasks []ipc.Task) [][]string {
	if len(tasks) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			fmt.Sprintf("%d", t.ID),
			formatStatusLabel(t.Type),
			fmt.Sprintf("%s #%d", t.ItemType, t.ItemID),
			formatStatusLabel(t.Status),
			fmt.Sprintf("%d", t.RetryCount),
			textutil.Excerpt(t.ErrorMessage, tableExcerptWidth),
		})
	}
	return rows
}

func buildMappingRows(mappings []ipc.Mapping) [][]string {
	if len(mappings) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(mappings))
	for _, m := range mappings {
		topic := strings.TrimSpace(m.TopicName)
		if topic == "" {
			topic = fmt.Sprintf("#%d", m.TopicID)
		}
		document := strings.TrimSpace(m.DocumentTitle)
		if document == "" {
			document = fmt.Sprintf("#%d", m.DocumentID)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", m.ID),
			topic,
			document,
			fmt.Sprintf("%.2f", m.Confidence),
			textutil.Excerpt(m.ChunkExcerpt, tableExcerptWidth),
		})
	}
	return rows
}

func buildReviewRows(items []ipc.ReviewItem) [][]string {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.ValidatedID),
			formatStatusLabel(item.DataType),
			fmt.Sprintf("%d", item.Priority),
			textutil.Excerpt(item.Summary, tableExcerptWidth),
			formatDisplayTime(item.QueuedAt),
		})
	}
	return rows
}

func buildSummaryRows(summary ipc.PipelineSummary) [][]string {
	if summary.Total == 0 {
		return nil
	}
	counts := []struct {
		label string
		count int
	}{
		{"pending", summary.Pending},
		{"processing", summary.Processing},
		{"completed", summary.Completed},
		{"failed", summary.Failed},
		{"cancelled", summary.Cancelled},
	}
	rows := make([][]string, 0, len(counts)+1)
	for _, entry := range counts {
		if entry.count == 0 {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(entry.label), fmt.Sprintf("%d", entry.count)})
	}
	rows = append(rows, []string{"Total", fmt.Sprintf("%d", summary.Total)})
	return rows
}

func checkpointStatusLine(cp *ipc.Checkpoint) (statusKind, string) {
	if cp == nil {
		return statusInfo, "No checkpoints recorded"
	}
	if cp.Error != "" {
		return statusError, fmt.Sprintf("Error at %s: %s", formatDisplayTime(cp.CreatedAt), cp.Error)
	}
	if cp.Heartbeat {
		return statusOK, fmt.Sprintf("Heartbeat %s", formatDisplayTime(cp.CreatedAt))
	}
	label := strings.ToLower(strings.TrimSpace(cp.LastProcessedType))
	if label == "" {
		label = "item"
	}
	if cp.LastProcessedID != nil {
		return statusOK, fmt.Sprintf("Processed %s #%d at %s", label, *cp.LastProcessedID, formatDisplayTime(cp.CreatedAt))
	}
	return statusOK, fmt.Sprintf("Processed %s at %s", label, formatDisplayTime(cp.CreatedAt))
}

func formatDocumentSummary(doc *ipc.Document) string {
	if doc == nil {
		return ""
	}
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = "Untitled"
	}
	parts := []string{language.DisplayName(doc.Language)}
	if level := strings.TrimSpace(doc.TargetLevel); level != "" {
		parts = append(parts, level)
	}
	return fmt.Sprintf("#%d %q (%s)", doc.ID, title, strings.Join(parts, ", "))
}
