package ledger

import (
	"fmt"
	"time"
)

// Period is an inclusive calendar interval.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (p Period) Year() int {
	return p.Start.Year()
}

func (p Period) Valid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && !p.End.Before(p.Start)
}

// Folder is the storage folder token, periode-<start>-<end>.
func (p Period) Folder() string {
	return fmt.Sprintf("periode-%s-%s", FormatCompact(p.Start), FormatCompact(p.End))
}

func (p Period) String() string {
	return FormatFrench(p.Start) + " - " + FormatFrench(p.End)
}

// Reconcile reports whether two extracted periods describe exactly the same interval.
func Reconcile(a, b Period) bool {
	return a.Start.Equal(b.Start) && a.End.Equal(b.End)
}

// Overlaps uses inclusive bounds: touching intervals overlap.
func Overlaps(a, b Period) bool {
	return !a.Start.After(b.End) && !a.End.Before(b.Start)
}
