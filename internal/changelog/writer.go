package changelog

import (
	"encoding/csv"
	"io"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// AppendRows encodes rows as CSV to w. The header derived from the row
// type's csv tags is written first only when withHeader is set, so a log
// gets exactly one header no matter how many runs append to it.
func AppendRows[T any](w io.Writer, rows []T, withHeader bool) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = false

	if withHeader {
		var zero T
		if err := enc.EncodeHeader(zero); err != nil {
			return eris.Wrap(err, "changelog: write header")
		}
	}

	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return eris.Wrapf(err, "changelog: encode row %d", i)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "changelog: flush")
}
