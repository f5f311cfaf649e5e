// Package templates holds the templ components rendered by the web server.
package templates

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/a-h/templ"
)

// DashboardData is everything the status page shows.
type DashboardData struct {
	Status  core.StatusSnapshot
	Jobs    []core.Job
	Limiter core.LimiterStatus
}

// Dashboard renders the import status page. The page carries no file names;
// those are only served by the authenticated API.
func Dashboard(data DashboardData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := page("Sales import").Render(ctx, w); err != nil {
			return err
		}
		if err := statusCard(data.Status, data.Limiter).Render(ctx, w); err != nil {
			return err
		}
		if err := jobTable(data.Jobs).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</main></body></html>")
		return err
	})
}

func page(title string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta http-equiv="refresh" content="10"><title>%s</title>`+
			`<style>body{font-family:sans-serif;margin:2rem}table{border-collapse:collapse}`+
			`td,th{padding:.25rem .75rem;border-bottom:1px solid #ddd;text-align:left}`+
			`.error{color:#b00}.success{color:#070}</style></head><body><main><h1>%s</h1>`,
			templ.EscapeString(title), templ.EscapeString(title))
		return err
	})
}

func statusCard(snap core.StatusSnapshot, limiter core.LimiterStatus) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		updated := "never"
		if !snap.UpdatedAt.IsZero() {
			updated = snap.UpdatedAt.Format(time.RFC3339)
		}
		_, err := fmt.Fprintf(w, `<section id="status"><h2>Last run</h2>`+
			`<p class="%s"><strong>%s</strong> %s</p>`+
			`<p>Rows inserted: %d. Total amount: %s. Updated: %s.</p>`+
			`<p>Processing slots in use: %d of %d.</p></section>`,
			templ.EscapeString(snap.Status),
			templ.EscapeString(snap.Status),
			templ.EscapeString(snap.Message),
			snap.RowsInserted,
			templ.EscapeString(snap.TotalAmount.StringFixed(2)),
			templ.EscapeString(updated),
			limiter.Active, limiter.MaxConcurrent,
		)
		return err
	})
}

func jobTable(jobs []core.Job) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<section id="jobs"><h2>Recent jobs</h2>`); err != nil {
			return err
		}
		if len(jobs) == 0 {
			_, err := io.WriteString(w, `<p>No uploads yet.</p></section>`)
			return err
		}

		if _, err := io.WriteString(w, `<table><thead><tr><th>Job</th><th>Status</th>`+
			`<th>Uploaded</th><th>Message</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, job := range jobs {
			_, err := fmt.Fprintf(w, `<tr><td><code>%s</code></td><td class="%s">%s</td><td>%s</td><td>%s</td></tr>`,
				templ.EscapeString(job.ID.String()),
				templ.EscapeString(string(job.Status)),
				templ.EscapeString(string(job.Status)),
				templ.EscapeString(job.UploadedAt.Format(time.RFC3339)),
				templ.EscapeString(job.Message),
			)
			if err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table></section>`)
		return err
	})
}
