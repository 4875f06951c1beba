package panel

import "fmt"

// DataAccessError reports a structural problem with the input file: missing,
// unreadable, malformed, or lacking a required column. Fatal to the run.
type DataAccessError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DataAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("panel: %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("panel: %s: %s", e.Path, e.Reason)
}

func (e *DataAccessError) Unwrap() error { return e.Err }

// InvalidValueError reports non-positive inputs fed to a log transform. The
// affected rows carry NaN derived values; Count is the number of rows hit and
// the City/Year/Column fields identify the first one.
type InvalidValueError struct {
	City   string
	Year   int
	Column string
	Value  float64
	Count  int
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("panel: non-positive %s for %s/%d (%g), %d row(s) affected",
		e.Column, e.City, e.Year, e.Value, e.Count)
}
