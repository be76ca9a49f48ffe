package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

var ErrEmptyWorkbook = errors.New("workbook has no sheets")

// openWorkbook opens an OOXML workbook. Legacy BIFF (.xls) content is rejected by excelize.
func openWorkbook(r io.Reader) (*excelize.File, string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open Excel file: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, "", ErrEmptyWorkbook
	}
	return f, sheets[0], nil
}

// ReadFirstSheetRows returns every row of the first sheet as cell strings.
func ReadFirstSheetRows(r io.Reader) ([][]string, error) {
	f, sheet, err := openWorkbook(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// ExtractPeriodFromWorkbook streams the first sheet and stops reading as soon as both
// bounds are found. Any reader failure is reported as a PeriodExtractionError.
func ExtractPeriodFromWorkbook(r io.Reader) (Period, error) {
	f, sheet, err := openWorkbook(r)
	if err != nil {
		return Period{}, &PeriodExtractionError{MissingStart: true, MissingEnd: true, Err: err}
	}
	defer f.Close()

	rows, err := f.Rows(sheet)
	if err != nil {
		return Period{}, &PeriodExtractionError{MissingStart: true, MissingEnd: true, Err: err}
	}
	defer rows.Close()

	var s periodScanner
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return Period{}, &PeriodExtractionError{MissingStart: s.start == nil, MissingEnd: true, Err: err}
		}
		if s.feed(cols) {
			break
		}
	}
	if err := rows.Error(); err != nil && !s.completed {
		return Period{}, &PeriodExtractionError{MissingStart: s.start == nil, MissingEnd: true, Err: err}
	}
	return s.result()
}

// ExtractPeriodFromBytes is a convenience wrapper for in-memory uploads.
func ExtractPeriodFromBytes(data []byte) (Period, error) {
	return ExtractPeriodFromWorkbook(bytes.NewReader(data))
}
