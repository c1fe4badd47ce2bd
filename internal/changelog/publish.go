package changelog

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tramites-sync/internal/snapshot"
)

// Outputs names the files a run publishes. Relative names resolve against Dir.
type Outputs struct {
	Dir               string
	SnapshotFile      string
	AdditionsFile     string
	ModificationsFile string
	ErrorsFile        string
}

// Path resolves name against the output directory.
func (o Outputs) Path(name string) string {
	if filepath.IsAbs(name) || o.Dir == "" {
		return name
	}
	return filepath.Join(o.Dir, name)
}

// Batch is everything one run publishes.
type Batch struct {
	Snapshot      *snapshot.Snapshot
	Lifecycle     []LifecycleRow
	Modifications []ModificationRow
	// Failures are written one JSON object per line to the errors file.
	// When empty, a stale errors file from an earlier run is removed.
	Failures []any
}

// staged is a temp file waiting to replace target.
type staged struct {
	tmp    string
	target string
}

// Commit publishes a batch. Every output is first written to a temp file in
// its target directory; only when all of them are complete are they renamed
// into place, the snapshot last. If staging fails no existing output is
// touched.
func Commit(out Outputs, b Batch) (err error) {
	log := zap.L().With(zap.String("component", "changelog"))

	if out.Dir != "" {
		if err := os.MkdirAll(out.Dir, 0o755); err != nil {
			return eris.Wrapf(err, "changelog: create output dir %s", out.Dir)
		}
	}

	var pending []staged
	defer func() {
		if err == nil {
			return
		}
		for _, s := range pending {
			_ = os.Remove(s.tmp)
		}
	}()

	stage := func(target string, write func(w io.Writer) error) error {
		tmp, err := stageFile(target, write)
		if tmp != "" {
			pending = append(pending, staged{tmp: tmp, target: target})
		}
		return err
	}

	if len(b.Lifecycle) > 0 {
		target := out.Path(out.AdditionsFile)
		if err := stage(target, appendTo(target, b.Lifecycle)); err != nil {
			return err
		}
	}
	if len(b.Modifications) > 0 {
		target := out.Path(out.ModificationsFile)
		if err := stage(target, appendTo(target, b.Modifications)); err != nil {
			return err
		}
	}
	if len(b.Failures) > 0 && out.ErrorsFile != "" {
		if err := stage(out.Path(out.ErrorsFile), writeJSONL(b.Failures)); err != nil {
			return err
		}
	}
	snapPath := out.Path(out.SnapshotFile)
	if err := stage(snapPath, func(w io.Writer) error { return snapshot.Write(w, b.Snapshot) }); err != nil {
		return err
	}

	for i, s := range pending {
		if err := os.Rename(s.tmp, s.target); err != nil {
			// Already-renamed files are final; only clean up what remains.
			pending = pending[i:]
			return eris.Wrapf(err, "changelog: publish %s", s.target)
		}
		log.Debug("changelog: published", zap.String("path", s.target))
	}
	pending = nil

	if len(b.Failures) == 0 && out.ErrorsFile != "" {
		if err := os.Remove(out.Path(out.ErrorsFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn("changelog: remove stale errors file", zap.Error(err))
		}
	}

	log.Info("changelog: outputs committed",
		zap.Int("lifecycle_rows", len(b.Lifecycle)),
		zap.Int("modification_rows", len(b.Modifications)),
		zap.Int("failures", len(b.Failures)),
		zap.Int("records", b.Snapshot.Len()),
	)
	return nil
}

// stageFile writes a temp sibling of target and returns its path. The path
// is returned even on error so the caller can remove it.
func stageFile(target string, write func(w io.Writer) error) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return "", eris.Wrapf(err, "changelog: stage %s", target)
	}
	tmp := f.Name()

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		_ = f.Close()
		return tmp, eris.Wrapf(err, "changelog: stage %s", target)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return tmp, eris.Wrapf(err, "changelog: stage %s", target)
	}
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		return tmp, eris.Wrapf(err, "changelog: stage %s", target)
	}
	if err := f.Close(); err != nil {
		return tmp, eris.Wrapf(err, "changelog: stage %s", target)
	}
	return tmp, nil
}

// appendTo copies the existing log at target (if any) and appends rows,
// writing the header only when the log is new or empty.
func appendTo[T any](target string, rows []T) func(w io.Writer) error {
	return func(w io.Writer) error {
		existing, err := os.ReadFile(target)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return eris.Wrap(err, "read existing log")
		}
		if len(existing) > 0 {
			if _, err := w.Write(existing); err != nil {
				return eris.Wrap(err, "copy existing log")
			}
			if existing[len(existing)-1] != '\n' {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return eris.Wrap(err, "copy existing log")
				}
			}
		}
		return AppendRows(w, rows, len(existing) == 0)
	}
}

func writeJSONL(items []any) func(w io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, it := range items {
			if err := enc.Encode(it); err != nil {
				return eris.Wrap(err, "encode failure")
			}
		}
		return nil
	}
}
