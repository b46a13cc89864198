package aggregate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput reports an input with no header row. Nothing can be
// resolved or aggregated, so the run aborts before any processing.
var ErrEmptyInput = errors.New("empty input: missing header row")

// SchemaError reports required column names absent from the header when no
// fallback positions were supplied.
type SchemaError struct {
	Missing []string
	Header  []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("header %v does not contain required columns: %s",
		e.Header, strings.Join(e.Missing, ", "))
}

// ParseWarning records a malformed data row that was skipped. Row is the
// 1-based data row number (the header is not counted). Warnings never abort
// a run; they are accumulated and reported on the Result.
type ParseWarning struct {
	Row    int
	Record []string
	Reason string
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("row %d: %s: %v", w.Row, w.Reason, w.Record)
}
