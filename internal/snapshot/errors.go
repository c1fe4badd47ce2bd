package snapshot

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrSnapshotUnavailable matches any UnavailableError via errors.Is.
var ErrSnapshotUnavailable = eris.New("snapshot unavailable")

// UnavailableError reports a snapshot that could not be read or parsed.
// A run that hits it must stop before writing any output.
type UnavailableError struct {
	Source string
	Line   int
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("snapshot unavailable: %s line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("snapshot unavailable: %s: %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrSnapshotUnavailable) match.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrSnapshotUnavailable
}

func unavailable(source string, line int, err error) error {
	return &UnavailableError{Source: source, Line: line, Err: err}
}
