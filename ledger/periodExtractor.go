package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPeriodExtraction is matched by every PeriodExtractionError.
var ErrPeriodExtraction = errors.New("cannot extract period")

type PeriodExtractionError struct {
	MissingStart bool
	MissingEnd   bool
	Err          error
}

func (e *PeriodExtractionError) Error() string {
	var missing []string
	if e.MissingStart {
		missing = append(missing, "start")
	}
	if e.MissingEnd {
		missing = append(missing, "end")
	}
	msg := ErrPeriodExtraction.Error()
	if len(missing) > 0 {
		msg += fmt.Sprintf(" (missing %s)", strings.Join(missing, " and "))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PeriodExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPeriodExtraction}
	}
	return []error{ErrPeriodExtraction, e.Err}
}

var startMarkers = []string{"période du", "periode du"}

// periodScanner holds the row-by-row state of the "Période du ... au" search.
// Exports print the label, the "au" separator and the end date on separate rows.
type periodScanner struct {
	start     *Period
	endNext   bool
	completed bool
	period    Period
}

// feed consumes one row and reports whether the scan is finished.
func (s *periodScanner) feed(row []string) bool {
	text := strings.ToLower(strings.Join(row, " "))

	if s.endNext {
		s.endNext = false
		if end, err := ParseFrenchDate(text); err == nil {
			s.period = Period{Start: s.start.Start, End: end}
			s.completed = true
			return true
		}
	}

	if containsAny(text, startMarkers) {
		if start, err := ParseFrenchDate(text); err == nil {
			s.start = &Period{Start: start}
		}
	}

	if s.start != nil && strings.TrimSpace(text) == "au" {
		s.endNext = true
	}
	return false
}

func (s *periodScanner) result() (Period, error) {
	if s.completed {
		return s.period, nil
	}
	return Period{}, &PeriodExtractionError{MissingStart: s.start == nil, MissingEnd: true}
}

// ExtractPeriod scans rows top to bottom for the accounting period printed in ledger exports.
func ExtractPeriod(rows [][]string) (Period, error) {
	var s periodScanner
	for _, row := range rows {
		if s.feed(row) {
			break
		}
	}
	return s.result()
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
