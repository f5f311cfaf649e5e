package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/admin"
	"github.com/JonMunkholm/ledgerimport/internal/app"
	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/JonMunkholm/ledgerimport/internal/store/postgres"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// errImportFailed makes the process exit non-zero after an error result has
// been printed.
var errImportFailed = errors.New("import failed")

func stageCmd() *cobra.Command {
	var allowDuplicate bool

	cmd := &cobra.Command{
		Use:   "stage <file>",
		Short: "Validate a spreadsheet and stage its rows as a new job",
		Long: `Copies the file into the upload directory, validates every row, checks
receipt numbers against the ledger and stages the rows. Prints the job ID to
pass to "process".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Service.AcceptUpload(cmd.Context(), core.UploadRequest{
					FileName:       filepath.Base(args[0]),
					Body:           f,
					AllowDuplicate: allowDuplicate,
				})
				if err != nil {
					return err
				}

				if err := printResult(res, [][2]string{
					{"Status", res.Status},
					{"Job", idOrEmpty(res.JobID)},
					{"Upload", idOrEmpty(res.UploadID)},
					{"Rows", fmt.Sprint(res.TotalRows)},
					{"Message", res.Message},
					{"Duplicates", strings.Join(res.Duplicates, ", ")},
				}); err != nil {
					return err
				}
				if res.Status != core.StatusSuccess {
					return errImportFailed
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&allowDuplicate, "allow-duplicate", false, "stage even if the same file was uploaded before")
	return cmd
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <job-id>",
		Short: "Commit a staged job to the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				ctx := cmd.Context()
				if !jsonOutput {
					bar := newBatchBar()
					defer bar.Finish()
					ctx = core.ContextWithProgress(ctx, bar.report)
				}

				res, err := a.Service.ProcessJob(ctx, jobID)
				if err != nil {
					return err
				}

				if err := printResult(res, [][2]string{
					{"Status", res.Status},
					{"Job", res.JobID.String()},
					{"Rows inserted", fmt.Sprint(res.RowsInserted)},
					{"Total amount", res.TotalAmount.StringFixed(2)},
					{"Message", res.Message},
					{"Duplicates", strings.Join(res.Duplicates, ", ")},
					{"New services", strings.Join(res.Rewritten, ", ")},
				}); err != nil {
					return err
				}
				if res.Status != core.StatusSuccess {
					return errImportFailed
				}
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the latest import status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				snap, err := a.Service.Status(cmd.Context())
				if err != nil {
					return err
				}
				return printResult(snap, [][2]string{
					{"Status", snap.Status},
					{"Job", snap.JobID},
					{"Rows inserted", fmt.Sprint(snap.RowsInserted)},
					{"Total amount", snap.TotalAmount.StringFixed(2)},
					{"Message", snap.Message},
					{"Updated", formatTime(snap.UpdatedAt)},
				})
			})
		},
	}
}

func jobsCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "jobs [job-id]",
		Short: "List jobs, or show one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if len(args) == 1 {
					jobID, err := uuid.Parse(args[0])
					if err != nil {
						return fmt.Errorf("invalid job id %q: %w", args[0], err)
					}
					job, err := a.Service.GetJob(cmd.Context(), jobID)
					if err != nil {
						return err
					}
					if err := printResult(job, jobFields(job)); err != nil {
						return err
					}
					if jsonOutput {
						return nil
					}
					trail, err := a.Service.AuditLog(cmd.Context(), jobID)
					if err != nil {
						return err
					}
					return printAudit(trail)
				}

				jobs, err := a.Service.ListJobs(cmd.Context())
				if err != nil {
					return err
				}
				var filtered []core.Job
				for _, job := range jobs {
					if status == "" || string(job.Status) == status {
						filtered = append(filtered, job)
					}
				}
				return printJobs(filtered)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only list jobs in this state")
	return cmd
}

func initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the ledger, catalog and staging tables if missing",
		Long: `Creates the tables the importer writes to and registers the new-service
placeholder. Existing tables are left as they are.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := app.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.New(pool).Bootstrap(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("ledger tables ready")
			return nil
		},
	}
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Register stylists and services",
		Long:  `Names are matched case-insensitively; adding an existing name returns its ID.`,
	}

	add := func(use, short string, fn func(s *postgres.Store, ctx context.Context, name string) (int64, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <name>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				name := strings.TrimSpace(args[0])
				if name == "" {
					return errors.New("name must not be empty")
				}

				pool, err := app.Connect(cmd.Context(), cfg.Database)
				if err != nil {
					return err
				}
				defer pool.Close()

				id, err := fn(postgres.New(pool), cmd.Context(), name)
				if err != nil {
					return err
				}
				fmt.Printf("%s\t%d\n", name, id)
				return nil
			},
		}
	}

	cmd.AddCommand(add("add-stylist", "Register a stylist", (*postgres.Store).AddStylist))
	cmd.AddCommand(add("add-service", "Register a service", (*postgres.Store).AddService))
	return cmd
}

func sweepCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire jobs that were staged but never processed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				ttl = cfg.Sweep.SessionTTL
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Service.SweepExpired(cmd.Context(), ttl)
				if err != nil {
					return err
				}
				fmt.Printf("expired %d job(s) older than %s\n", n, ttl)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "age after which a job expires (default: sweep.session_ttl)")
	return cmd
}

func purgeCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "purge-orphans",
		Short: "Delete staged rows that no upload session refers to",
		Long: `Removes staged rows left behind by a process that died mid-stage.
Stop the server before running this: an upload being staged has rows but no
session yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				p := &admin.Purger{Staging: a.Ledger, Tracker: core.NewTracker(a.State)}
				res, err := p.PurgeOrphans(cmd.Context(), dryRun)
				if err != nil {
					return err
				}
				for _, id := range res.Orphans {
					fmt.Println(id)
				}
				fmt.Printf("%d orphaned upload(s), %d cleared\n", len(res.Orphans), res.Cleared)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list orphans without deleting")
	return cmd
}

// withApp opens the configured stores for the duration of fn.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
