package index

import "fmt"

// RowFlag is the tri-state classification assigned to each dataset row at
// build time.
//
// Include rows participate in lookups and scans. Exclude rows are indexed
// as absent from query results. Skip rows (headers, malformed lines) are
// left out of indexing entirely but remain physically present in the file.
type RowFlag byte

// Row flag values use the original single-byte on-disk encoding.
const (
	FlagInclude RowFlag = 'Y'
	FlagExclude RowFlag = 'N'
	FlagSkip    RowFlag = 'S'
)

// String returns a human-readable flag name.
func (f RowFlag) String() string {
	switch f {
	case FlagInclude:
		return "include"
	case FlagExclude:
		return "exclude"
	case FlagSkip:
		return "skip"
	default:
		return fmt.Sprintf("RowFlag(%d)", byte(f))
	}
}

// Valid reports whether f is one of the three defined flags.
func (f RowFlag) Valid() bool {
	return f == FlagInclude || f == FlagExclude || f == FlagSkip
}

// ParseRowFlag converts the single-byte encoding back to a RowFlag.
func ParseRowFlag(b byte) (RowFlag, error) {
	f := RowFlag(b)
	if !f.Valid() {
		return 0, fmt.Errorf("index: invalid row flag byte %q", b)
	}
	return f, nil
}
