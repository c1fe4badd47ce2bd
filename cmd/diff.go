package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tramites-sync/internal/changelog"
	"github.com/sells-group/tramites-sync/internal/diff"
	"github.com/sells-group/tramites-sync/internal/snapshot"
)

var diffCmd = &cobra.Command{
	Use:   "diff <previous.jsonl> <current.jsonl>",
	Short: "Diff two snapshot files offline",
	Long:  "Compares two snapshot files and prints additions, removals and field changes. No file is written.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idField, _ := cmd.Flags().GetString("id-field")
		if idField == "" {
			idField = cfg.Run.IDField
		}

		res, err := diffFiles(args[0], args[1], idField, time.Now())
		if err != nil {
			return eris.Wrap(err, "diff")
		}
		formatDiff(os.Stdout, res, cfg.Run.TimestampFormat)
		return nil
	},
}

func init() {
	diffCmd.Flags().String("id-field", "", "identifier attribute (default from config)")
	rootCmd.AddCommand(diffCmd)
}

// diffFiles loads both snapshots strictly and diffs them.
func diffFiles(previousPath, currentPath, idField string, at time.Time) (*diff.Result, error) {
	log := zap.L().With(zap.String("component", "diff"))

	previous, anomalies, err := snapshot.Load(previousPath, idField)
	if err != nil {
		return nil, err
	}
	snapshot.LogAnomalies(log, previousPath, anomalies)

	current, anomalies, err := snapshot.Load(currentPath, idField)
	if err != nil {
		return nil, err
	}
	snapshot.LogAnomalies(log, currentPath, anomalies)

	return diff.Snapshots(previous, current, at), nil
}

// formatDiff writes the lifecycle and modification tables to out.
func formatDiff(out io.Writer, res *diff.Result, layout string) {
	if res.Empty() {
		_, _ = fmt.Fprintln(out, "No changes.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if rows := changelog.LifecycleRows(res, layout); len(rows) > 0 {
		_, _ = fmt.Fprintln(w, "ID\tDIRECTION")
		for _, r := range rows {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", r.ID, r.Direction)
		}
		_, _ = fmt.Fprintln(w)
	}
	if rows := changelog.ModificationRows(res, layout); len(rows) > 0 {
		_, _ = fmt.Fprintln(w, "ID\tFIELD\tOLD\tNEW")
		for _, r := range rows {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Field, truncate(r.Old, 40), truncate(r.New, 40))
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "%d added, %d removed, %d modified (%d field changes)\n",
		len(res.Added), len(res.Removed), len(res.Modified), res.FieldChangeCount())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
