package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tramites-sync/internal/model"
	"github.com/sells-group/tramites-sync/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect sync run history",
	Long:  "Commands for listing and viewing sync runs and the changes they detected.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sync runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		withEvents, _ := cmd.Flags().GetBool("events")
		var events []model.RunEvent
		if withEvents {
			limit, _ := cmd.Flags().GetInt("limit")
			if events, err = st.ListEvents(ctx, run.ID, limit); err != nil {
				return eris.Wrap(err, "runs show events")
			}
		}

		return showRun(os.Stdout, run, events, withEvents)
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("events", false, "include the changes the run detected")
	runsShowCmd.Flags().Int("limit", 1000, "max number of events to include")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// showRun writes the run as indented JSON, optionally with its events.
func showRun(out io.Writer, run *model.Run, events []model.RunEvent, withEvents bool) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if !withEvents {
		return enc.Encode(run)
	}
	if events == nil {
		events = []model.RunEvent{}
	}
	return enc.Encode(struct {
		*model.Run
		Events []model.RunEvent `json:"events"`
	}{run, events})
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tFETCHED\tADDED\tREMOVED\tMODIFIED\tERROR")

	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}

		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		fetched, added, removed, modified := "-", "-", "-", "-"
		if s := r.Summary; s != nil {
			fetched = fmt.Sprint(s.Fetched)
			added = fmt.Sprint(s.Added)
			removed = fmt.Sprint(s.Removed)
			modified = fmt.Sprint(s.Modified)
		}

		errMsg := r.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			id,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			fetched, added, removed, modified,
			errMsg,
		)
	}
	_ = w.Flush()
}
