package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// printResult writes v as JSON with --json, otherwise the non-empty fields
// as aligned label/value lines.
func printResult(v any, fields [][2]string) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		fmt.Fprintf(w, "%s:\t%s\n", f[0], f[1])
	}
	return w.Flush()
}

func printJobs(jobs []core.Job) error {
	if jsonOutput {
		if jobs == nil {
			jobs = []core.Job{}
		}
		return printResult(jobs, nil)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", "JOB", "STATUS", "UPLOADED", "FILE")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		strings.Repeat("-", 36), strings.Repeat("-", 10), strings.Repeat("-", 20), strings.Repeat("-", 20))
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", job.ID, job.Status, formatTime(job.UploadedAt), job.FileName)
	}
	return w.Flush()
}

func printAudit(entries []core.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", "WHEN", "ACTION", "ROWS", "DETAIL")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", formatTime(e.CreatedAt), e.Action, e.RowsAffected, e.Reason)
	}
	return w.Flush()
}

func jobFields(job core.Job) [][2]string {
	processed := ""
	if job.ProcessedAt != nil {
		processed = formatTime(*job.ProcessedAt)
	}
	return [][2]string{
		{"Job", job.ID.String()},
		{"Status", string(job.Status)},
		{"File", job.FileName},
		{"Upload", idOrEmpty(job.UploadID)},
		{"Uploaded", formatTime(job.UploadedAt)},
		{"Processed", processed},
		{"From", job.UploadedFrom},
		{"Message", job.Message},
	}
}

func idOrEmpty(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// batchBar draws commit progress on stderr. The bar is created on the first
// report because the row count is unknown until the staged rows are loaded.
type batchBar struct {
	bar *progressbar.ProgressBar
}

func newBatchBar() *batchBar {
	return &batchBar{}
}

func (b *batchBar) report(inserted, total int) {
	if b.bar == nil {
		b.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Committing rows"),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(os.Stderr)
			}),
		)
	}
	if err := b.bar.Set(inserted); err != nil {
		slog.Warn("failed to update progress bar", "error", err)
	}
}

// Finish completes a bar that was started. A rolled-back commit leaves it
// short of the total.
func (b *batchBar) Finish() {
	if b.bar == nil {
		return
	}
	if err := b.bar.Exit(); err != nil {
		slog.Warn("failed to close progress bar", "error", err)
	}
}
