// Package pipeline runs one sync: fetch the portal catalog, diff it against
// the previous snapshot, publish the changelogs and record the run.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tramites-sync/internal/changelog"
	"github.com/sells-group/tramites-sync/internal/diff"
	"github.com/sells-group/tramites-sync/internal/fetcher"
	"github.com/sells-group/tramites-sync/internal/model"
	"github.com/sells-group/tramites-sync/internal/monitoring"
	"github.com/sells-group/tramites-sync/internal/snapshot"
	"github.com/sells-group/tramites-sync/internal/store"
)

// ErrEmptyFetch fails a run whose fetch stage produced no records. Publishing
// an empty snapshot would report the whole catalog as removed.
var ErrEmptyFetch = eris.New("pipeline: fetch returned no records")

// Source lists and fetches procedures. *fetcher.Portal implements it.
type Source interface {
	List(ctx context.Context) ([]fetcher.ListingEntry, error)
	FetchAll(ctx context.Context, entries []fetcher.ListingEntry) ([]model.Value, []fetcher.FetchFailure, error)
}

// Options are the settings fixed for every run of a Pipeline.
type Options struct {
	Outputs         changelog.Outputs
	IDField         string
	TimestampFormat string
}

// RunOpts are per-invocation switches.
type RunOpts struct {
	// Bootstrap treats a missing previous snapshot as empty.
	Bootstrap bool
	// DryRun computes the diff without publishing or archiving anything.
	DryRun bool
	// MaxRecords caps the listing, 0 for no cap. A capped run against a
	// non-empty previous snapshot is downgraded to a dry run.
	MaxRecords int
}

// Result is what a run produced.
type Result struct {
	RunID     string
	Summary   model.RunSummary
	Diff      *diff.Result
	Failures  []fetcher.FetchFailure
	Anomalies []snapshot.Anomaly
	Alerts    []monitoring.Alert
}

// Pipeline orchestrates a sync run.
type Pipeline struct {
	source  Source
	store   store.Store
	alerter *monitoring.Alerter
	opts    Options
	now     func() time.Time
}

// New creates a Pipeline. alerter may be nil.
func New(src Source, st store.Store, alerter *monitoring.Alerter, opts Options) *Pipeline {
	if opts.IDField == "" {
		opts.IDField = snapshot.DefaultIDField
	}
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = changelog.DefaultTimestampLayout
	}
	if st == nil {
		st = store.Nop{}
	}
	return &Pipeline{
		source:  src,
		store:   st,
		alerter: alerter,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one sync. On failure the run is recorded as failed, no output
// is touched and the error is returned.
func (p *Pipeline) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"))

	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting sync",
		zap.Bool("bootstrap", opts.Bootstrap),
		zap.Bool("dry_run", opts.DryRun),
	)

	result := &Result{RunID: run.ID}
	result.Summary.DryRun = opts.DryRun

	if err := p.execute(ctx, log, opts, result); err != nil {
		log.Error("pipeline: sync failed", zap.Error(err))
		p.finish(ctx, log, result, err)
		return result, err
	}

	log.Info("pipeline: sync complete",
		zap.Int("fetched", result.Summary.Fetched),
		zap.Int("fetch_errors", result.Summary.FetchErrors),
		zap.Int("added", result.Summary.Added),
		zap.Int("removed", result.Summary.Removed),
		zap.Int("modified", result.Summary.Modified),
		zap.Int("field_changes", result.Summary.FieldChanges),
	)
	p.finish(ctx, log, result, nil)
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, log *zap.Logger, opts RunOpts, result *Result) error {
	at := p.now()
	s := &result.Summary

	var values []model.Value
	err := phase(log, "fetch", func() error {
		entries, err := p.source.List(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: list procedures")
		}
		if opts.MaxRecords > 0 && len(entries) > opts.MaxRecords {
			entries = entries[:opts.MaxRecords]
		}

		values, result.Failures, err = p.source.FetchAll(ctx, entries)
		if err != nil {
			return eris.Wrap(err, "pipeline: fetch details")
		}
		s.Fetched = len(values)
		s.FetchErrors = len(result.Failures)
		if len(values) == 0 {
			return ErrEmptyFetch
		}
		return nil
	})
	if err != nil {
		return err
	}

	var current, previous *snapshot.Snapshot
	err = phase(log, "snapshot", func() error {
		b := snapshot.NewBuilder(p.opts.IDField)
		for _, v := range values {
			b.AddValue(v)
		}
		var anomalies []snapshot.Anomaly
		current, anomalies = b.Build()
		snapshot.LogAnomalies(log, "portal", anomalies)
		result.Anomalies = append(result.Anomalies, anomalies...)

		path := p.opts.Outputs.Path(p.opts.Outputs.SnapshotFile)
		prev, prevAnomalies, err := snapshot.LoadPrevious(path, p.opts.IDField, opts.Bootstrap)
		if err != nil {
			return err
		}
		snapshot.LogAnomalies(log, path, prevAnomalies)
		result.Anomalies = append(result.Anomalies, prevAnomalies...)
		previous = prev

		if carried := carryForward(previous, current, result.Failures); len(carried) > 0 {
			current, _ = snapshot.FromRecords(append(current.Records(), carried...)...)
			s.Carried = len(carried)
			log.Warn("pipeline: kept previous version of unfetched procedures",
				zap.Int("carried", len(carried)),
			)
		}

		s.Previous = previous.Len()
		s.Anomalies = len(result.Anomalies)
		s.Bootstrap = opts.Bootstrap && previous.Len() == 0
		return nil
	})
	if err != nil {
		return err
	}

	res := diff.Snapshots(previous, current, at)
	result.Diff = res
	s.Added = len(res.Added)
	s.Removed = len(res.Removed)
	s.Modified = len(res.Modified)
	s.FieldChanges = res.FieldChangeCount()

	if opts.MaxRecords > 0 && previous.Len() > 0 && !opts.DryRun {
		log.Warn("pipeline: capped run against an existing snapshot, outputs not published",
			zap.Int("max_records", opts.MaxRecords),
			zap.Int("previous", previous.Len()),
		)
		s.DryRun = true
	}
	if s.DryRun {
		log.Info("pipeline: dry run, outputs not published")
		return nil
	}

	err = phase(log, "publish", func() error {
		failures := make([]any, len(result.Failures))
		for i, f := range result.Failures {
			failures[i] = f
		}
		return changelog.Commit(p.opts.Outputs, changelog.Batch{
			Snapshot:      current,
			Lifecycle:     changelog.LifecycleRows(res, p.opts.TimestampFormat),
			Modifications: changelog.ModificationRows(res, p.opts.TimestampFormat),
			Failures:      failures,
		})
	})
	if err != nil {
		return err
	}

	// Outputs are already published; a failed archive only costs history.
	if n, err := p.store.SaveEvents(ctx, result.RunID, Events(res)); err != nil {
		log.Warn("pipeline: archive events", zap.Error(err))
	} else {
		log.Debug("pipeline: events archived", zap.Int64("count", n))
	}
	return nil
}

// carryForward returns the previous version of every procedure that was
// listed but whose detail could not be fetched. A failed fetch says nothing
// about whether the procedure still exists, so it must not read as a removal.
func carryForward(previous, current *snapshot.Snapshot, failures []fetcher.FetchFailure) []model.Record {
	var carried []model.Record
	seen := make(map[string]bool, len(failures))
	for _, f := range failures {
		id, ok := model.IdentifierText(f.ID)
		if !ok || seen[id] || current.Has(id) {
			continue
		}
		seen[id] = true
		if rec, ok := previous.Get(id); ok {
			carried = append(carried, rec)
		}
	}
	return carried
}

// finish records the outcome and raises alerts. Both use a context that
// survives cancellation of the run.
func (p *Pipeline) finish(ctx context.Context, log *zap.Logger, result *Result, runErr error) {
	ctx = context.WithoutCancel(ctx)

	report := monitoring.RunReport{
		RunID:   result.RunID,
		Status:  model.RunStatusComplete,
		Summary: result.Summary,
	}
	if runErr != nil {
		report.Status = model.RunStatusFailed
		report.Error = runErr.Error()
		summary := result.Summary
		if err := p.store.FailRun(ctx, result.RunID, runErr.Error(), &summary); err != nil {
			log.Warn("pipeline: record failed run", zap.Error(err))
		}
	} else if err := p.store.CompleteRun(ctx, result.RunID, result.Summary); err != nil {
		log.Warn("pipeline: record completed run", zap.Error(err))
	}

	if p.alerter == nil {
		return
	}
	result.Alerts = p.alerter.Evaluate(report)
	if len(result.Alerts) > 0 {
		sent := p.alerter.SendAlerts(ctx, result.Alerts)
		log.Info("pipeline: alerts raised",
			zap.Int("alerts_triggered", len(result.Alerts)),
			zap.Int("alerts_sent", sent),
		)
	}
}

// phase runs fn and logs its duration.
func phase(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return err
	}
	log.Info("pipeline: phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}
