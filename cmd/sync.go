package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tramites-sync/internal/changelog"
	"github.com/sells-group/tramites-sync/internal/config"
	"github.com/sells-group/tramites-sync/internal/fetcher"
	"github.com/sells-group/tramites-sync/internal/monitoring"
	"github.com/sells-group/tramites-sync/internal/pipeline"
	"github.com/sells-group/tramites-sync/internal/resilience"
	"github.com/sells-group/tramites-sync/internal/store"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the catalog, diff it and publish the changelogs",
	Long: `Runs one full sync: lists and downloads every procedure from the portal,
diffs the result against the previous snapshot, appends to the additions/removals
and modifications changelogs, replaces the snapshot and records the run.

Intended to be invoked weekly by an external scheduler.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		bootstrap, _ := cmd.Flags().GetBool("bootstrap")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		maxRecords, _ := cmd.Flags().GetInt("max")
		if bootstrap {
			cfg.Run.Bootstrap = true
		}
		if maxRecords == 0 {
			maxRecords = cfg.Portal.MaxRecords
		}

		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := newPipeline(cfg, st)
		res, err := p.Run(ctx, pipeline.RunOpts{
			Bootstrap:  cfg.Run.Bootstrap,
			DryRun:     dryRun,
			MaxRecords: maxRecords,
		})
		if res != nil {
			formatSyncResult(os.Stdout, res)
		}
		if err != nil {
			return eris.Wrap(err, "sync")
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("bootstrap", false, "treat a missing previous snapshot as empty (first run)")
	syncCmd.Flags().Bool("dry-run", false, "compute the diff without writing any output")
	syncCmd.Flags().Int("max", 0, "fetch at most N procedures (0 = all); publishes only on a first run")
	rootCmd.AddCommand(syncCmd)
}

// newPipeline wires the portal client, alerter and store into a pipeline.
func newPipeline(c *config.Config, st store.Store) *pipeline.Pipeline {
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         c.Portal.UserAgent,
		Timeout:           c.Portal.Timeout(),
		RequestsPerSecond: c.Portal.RequestsPerSecond,
	})

	retry := resilience.DefaultPolicy()
	if c.Portal.MaxRetries > 0 {
		retry.Attempts = c.Portal.MaxRetries
	}
	retry.Notify = resilience.LogRetries("portal", "get")

	portal := fetcher.NewPortal(httpFetcher, fetcher.PortalOptions{
		BaseURL:          c.Portal.BaseURL,
		PageSize:         c.Portal.PageSize,
		Concurrency:      c.Portal.MaxConcurrent,
		MaxRecords:       c.Portal.MaxRecords,
		Retry:            retry,
		BreakerThreshold: c.Portal.BreakerThreshold,
		BreakerCooldown:  time.Duration(c.Portal.BreakerCooldown) * time.Second,
	})

	return pipeline.New(portal, st, monitoring.NewAlerter(c.Monitoring), pipeline.Options{
		Outputs: changelog.Outputs{
			Dir:               c.Output.Dir,
			SnapshotFile:      c.Output.SnapshotFile,
			AdditionsFile:     c.Output.AdditionsFile,
			ModificationsFile: c.Output.ModificationsFile,
			ErrorsFile:        c.Output.ErrorsFile,
		},
		IDField:         c.Run.IDField,
		TimestampFormat: c.Run.TimestampFormat,
	})
}

// formatSyncResult prints the run summary.
func formatSyncResult(out io.Writer, res *pipeline.Result) {
	s := res.Summary
	_, _ = fmt.Fprintf(out, "Run %s\n", res.RunID)
	_, _ = fmt.Fprintf(out, "  fetched:       %d (%d failed)\n", s.Fetched, s.FetchErrors)
	_, _ = fmt.Fprintf(out, "  previous:      %d\n", s.Previous)
	_, _ = fmt.Fprintf(out, "  added:         %d\n", s.Added)
	_, _ = fmt.Fprintf(out, "  removed:       %d\n", s.Removed)
	_, _ = fmt.Fprintf(out, "  modified:      %d (%d field changes)\n", s.Modified, s.FieldChanges)
	if s.Carried > 0 {
		_, _ = fmt.Fprintf(out, "  carried:       %d (kept from previous snapshot)\n", s.Carried)
	}
	if s.Anomalies > 0 {
		_, _ = fmt.Fprintf(out, "  anomalies:     %d\n", s.Anomalies)
	}
	if s.DryRun {
		_, _ = fmt.Fprintln(out, "  (dry run, nothing published)")
	}
	for _, a := range res.Alerts {
		_, _ = fmt.Fprintf(out, "  ALERT [%s] %s\n", a.Type, a.Message)
	}
}
