package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrParse is matched by every ParseError.
var ErrParse = errors.New("no french date found")

// dateToken matches DD/MM/YY and DD/MM/YYYY anywhere in a string.
var dateToken = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{2,4})`)

type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s in %q", ErrParse.Error(), e.Input)
	}
	return fmt.Sprintf("%s in %q: %s", ErrParse.Error(), e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// ParseFrenchDate returns the first day-month-year date token of s as a UTC calendar date.
// Years below 100 are read as 2000+year, so "15/03/98" is 2098-03-15.
func ParseFrenchDate(s string) (time.Time, error) {
	m := dateToken.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, &ParseError{Input: s}
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		year += 2000
	}

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; reject instead of shifting the period.
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, &ParseError{Input: s, Reason: "not a calendar date"}
	}
	return d, nil
}

// FormatCompact renders a date as YYYYMMDD.
func FormatCompact(d time.Time) string {
	return d.Format("20060102")
}

// FormatFrench renders a date as DD/MM/YYYY.
func FormatFrench(d time.Time) string {
	return d.Format("02/01/2006")
}
