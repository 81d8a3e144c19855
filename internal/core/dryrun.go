package core

import (
	"context"
	"fmt"
)

// DefaultDryRunErrorLimit is how many errors a dry run returns.
const DefaultDryRunErrorLimit = 20

// DryRunReport summarizes a validation pass over a whole file.
type DryRunReport struct {
	TotalRows  int        `json:"total_rows"`
	ValidRows  int        `json:"valid_rows"`
	ErrorCount int        `json:"error_count"`
	Errors     []RowError `json:"errors"`
}

// DryRun validates every row without resolving entities or calling the row
// processor. Duplicate errors come first, then field and row validator
// errors in row order. At most maxErrors errors are returned; ErrorCount is
// always the full count. Blank rows skipped by the operation count as valid.
func (p *Pipeline) DryRun(ctx context.Context, op OperationDefinition, headers []string, rows [][]string, fm FieldMap, maxErrors int) (DryRunReport, error) {
	if maxErrors <= 0 {
		maxErrors = DefaultDryRunErrorLimit
	}

	idx := MakeHeaderIndex(headers)
	mapped := make([]MappedRow, len(rows))
	for i, cells := range rows {
		mapped[i] = MapRow(op.Fields, idx, cells, fm)
	}

	report := DryRunReport{TotalRows: len(rows)}
	failedRows := make(map[int]bool)
	var errs []RowError

	for _, e := range FindDuplicates(op.Fields, mapped) {
		errs = append(errs, e)
		failedRows[e.Row] = true
	}

	for i, row := range mapped {
		if err := ctx.Err(); err != nil {
			return DryRunReport{}, err
		}
		rowNum := i + 1
		if op.SkipEmptyRows && IsEmptyRow(row, fm) {
			continue
		}

		processed, err := p.ValidateRow(ctx, op, row)
		if err == nil && op.Validator != nil {
			err = op.Validator.ValidateRow(ctx, processed)
		} else if err != nil && !IsRowError(err) {
			return DryRunReport{}, fmt.Errorf("row %d: %w", rowNum, err)
		}
		if err != nil {
			errs = append(errs, RowError{Row: rowNum, Item: ItemIdentifier(op.Fields, row), Message: err.Error()})
			failedRows[rowNum] = true
		}
	}

	report.ErrorCount = len(errs)
	report.ValidRows = report.TotalRows - len(failedRows)
	if len(errs) > maxErrors {
		errs = errs[:maxErrors]
	}
	if errs == nil {
		errs = []RowError{}
	}
	report.Errors = errs
	return report, nil
}
