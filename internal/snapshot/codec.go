package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tramites-sync/internal/model"
)

// maxLineBytes bounds a single JSONL record. Portal records carry long
// free-text requirements, so the default bufio limit is too small.
const maxLineBytes = 16 << 20

// Read parses a line-delimited JSON stream. Blank lines are skipped. A line
// that is not valid JSON makes the whole snapshot unavailable; a valid line
// that is not an identifiable object becomes a malformed-record anomaly.
func Read(r io.Reader, source, idField string) (*Snapshot, []Anomaly, error) {
	b := NewBuilder(idField)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			// Keep anomaly positions aligned with file line numbers.
			b.pos++
			continue
		}

		v, err := decodeLine(raw)
		if err != nil {
			return nil, nil, unavailable(source, line, err)
		}
		b.AddValue(v)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, unavailable(source, line+1, err)
	}

	s, anomalies := b.Build()
	return s, anomalies, nil
}

func decodeLine(raw []byte) (model.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return model.Value{}, eris.Wrap(err, "decode record")
	}
	if dec.More() {
		return model.Value{}, eris.New("trailing data after record")
	}
	return model.FromAny(decoded)
}

// Load reads a snapshot file.
func Load(path, idField string) (*Snapshot, []Anomaly, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, unavailable(path, 0, err)
	}
	defer f.Close() //nolint:errcheck

	return Read(f, path, idField)
}

// LoadPrevious reads the snapshot written by the prior run. A missing file is
// an error unless bootstrap is set, in which case an empty snapshot is
// returned and every current record will be reported as an addition.
func LoadPrevious(path, idField string, bootstrap bool) (*Snapshot, []Anomaly, error) {
	s, anomalies, err := Load(path, idField)
	if err == nil {
		return s, anomalies, nil
	}

	if bootstrap && errors.Is(err, fs.ErrNotExist) {
		zap.L().Info("snapshot: no previous snapshot, bootstrapping",
			zap.String("path", path),
		)
		return Empty(), nil, nil
	}
	return nil, nil, err
}

// Write encodes one compact JSON object per line, ordered by identifier.
func Write(w io.Writer, s *Snapshot) error {
	bw := bufio.NewWriter(w)
	for _, rec := range s.Records() {
		b, err := rec.MarshalJSON()
		if err != nil {
			return eris.Wrapf(err, "snapshot: encode record %s", rec.ID())
		}
		if _, err := bw.Write(b); err != nil {
			return eris.Wrap(err, "snapshot: write record")
		}
		if err := bw.WriteByte('\n'); err != nil {
			return eris.Wrap(err, "snapshot: write record")
		}
	}
	return eris.Wrap(bw.Flush(), "snapshot: flush")
}

// LogAnomalies reports anomalies at warn level.
func LogAnomalies(log *zap.Logger, source string, anomalies []Anomaly) {
	for _, a := range anomalies {
		log.Warn("snapshot: record anomaly",
			zap.String("source", source),
			zap.String("kind", string(a.Kind)),
			zap.String("id", a.ID),
			zap.Int("position", a.Position),
			zap.String("reason", a.Reason),
		)
	}
}
