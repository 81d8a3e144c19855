package core

// orchestrator.go drives an import run across many short batch calls.
//
// A run moves idle -> running -> complete | cancelled | error. Every batch
// call checks the persisted state first, so a cancel issued between calls
// stops the run before more rows are touched. Row failures are counted and
// recorded on the run; only configuration and backend errors abort a batch.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// DefaultMaxStoredErrors is how many row errors a run record keeps.
const DefaultMaxStoredErrors = 20

// Orchestrator executes batches and keeps run statistics.
type Orchestrator struct {
	pipeline  *Pipeline
	stats     StatsStore
	maxErrors int
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator. maxErrors <= 0 uses DefaultMaxStoredErrors.
func NewOrchestrator(pipeline *Pipeline, stats StatsStore, maxErrors int) *Orchestrator {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxStoredErrors
	}
	return &Orchestrator{
		pipeline:  pipeline,
		stats:     stats,
		maxErrors: maxErrors,
		now:       time.Now,
	}
}

// InitRun resets the run record of op and fires the before-import hook.
// When the hook fails the run is marked as errored and ErrBeforeImport is
// returned; no batch will be accepted until the run is started again.
func (o *Orchestrator) InitRun(ctx context.Context, op OperationDefinition, sourceFile string, total int) (RunStats, error) {
	key := op.Key()
	stats := RunStats{
		Total:      total,
		Errors:     []RowError{},
		LastRun:    o.now(),
		Status:     StatusRunning,
		SourceFile: sourceFile,
	}
	if err := o.stats.Init(ctx, key, stats); err != nil {
		return RunStats{}, fmt.Errorf("init run %s: %w", key, err)
	}

	if op.Hooks != nil {
		if err := op.Hooks.BeforeImport(ctx, RunInfo{Key: key, SourceFile: sourceFile, Total: total}); err != nil {
			slog.Warn("import rejected by before-import hook", "operation", key.String(), "error", err)
			st, uerr := o.stats.Update(ctx, key, func(s *RunStats) error {
				s.Status = StatusError
				s.Errors = capErrors(append(s.Errors, RowError{Item: "Import", Message: err.Error()}), o.maxErrors)
				return nil
			})
			if uerr != nil {
				return stats, fmt.Errorf("init run %s: %w", key, uerr)
			}
			return st, fmt.Errorf("%w: %v", ErrBeforeImport, err)
		}
	}

	slog.Info("import run started", "operation", key.String(), "source_file", sourceFile, "total", total)
	return stats, nil
}

// ProcessBatch maps, processes and persists rows. offset is the 0-based
// index of rows[0] among the data rows of the file.
func (o *Orchestrator) ProcessBatch(ctx context.Context, op OperationDefinition, headers []string, rows [][]string, offset int, fm FieldMap) (BatchResult, error) {
	idx := MakeHeaderIndex(headers)
	res := BatchResult{Errors: []RowError{}, NextOffset: offset}

	for i, cells := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rowNum := offset + i + 1
		mapped := MapRow(op.Fields, idx, cells, fm)

		outcome, rowErr, err := o.processRow(ctx, op, mapped, fm, rowNum)
		if err != nil {
			return res, fmt.Errorf("row %d: %w", rowNum, err)
		}

		res.Processed++
		res.NextOffset = rowNum
		if rowErr != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{
				Row:     rowNum,
				Item:    ItemIdentifier(op.Fields, mapped),
				Message: rowErr.Error(),
			})
			slog.Debug("import row failed", "operation", op.Key().String(), "row", rowNum, "error", rowErr)
			continue
		}

		switch outcome {
		case OutcomeUpdated:
			res.Updated++
		case OutcomeSkipped:
			res.Skipped++
		default:
			res.Created++
		}
	}

	return res, nil
}

// processRow returns the row outcome, a row-scoped failure, or a batch-level error.
func (o *Orchestrator) processRow(ctx context.Context, op OperationDefinition, mapped MappedRow, fm FieldMap, rowNum int) (Outcome, error, error) {
	if op.SkipEmptyRows && IsEmptyRow(mapped, fm) {
		return OutcomeSkipped, nil, nil
	}

	processed, err := o.pipeline.ProcessRow(ctx, op, mapped)
	if err != nil {
		if IsRowError(err) {
			return "", err, nil
		}
		return "", nil, err
	}

	if op.Validator != nil {
		if err := op.Validator.ValidateRow(ctx, processed); err != nil {
			return "", err, nil
		}
	}

	outcome, err := safeProcess(ctx, op.Processor, processed, RowMeta{Key: op.Key(), Row: rowNum, Mapped: mapped})
	if err != nil {
		return "", err, nil
	}
	return outcome, nil, nil
}

// safeProcess calls the row processor, turning a panic into a row failure.
func safeProcess(ctx context.Context, p RowProcessor, row ProcessedRow, meta RowMeta) (outcome Outcome, err error) {
	if p == nil {
		return "", ErrNoProcessor
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in row processor", "operation", meta.Key.String(), "row", meta.Row, "panic", r)
			err = fmt.Errorf("unexpected error: %v", r)
		}
	}()
	return p.ProcessRow(ctx, row, meta)
}

// UpdateBatch merges a batch result into the run record.
func (o *Orchestrator) UpdateBatch(ctx context.Context, key RunKey, res BatchResult) (RunStats, error) {
	st, err := o.stats.Update(ctx, key, func(s *RunStats) error {
		MergeBatch(s, res, o.maxErrors)
		s.LastRun = o.now()
		return nil
	})
	if err != nil {
		return RunStats{}, fmt.Errorf("update run %s: %w", key, err)
	}
	return st, nil
}

// MergeBatch adds a batch's counters and errors to s. At most maxErrors
// errors are kept; the oldest are dropped first.
func MergeBatch(s *RunStats, res BatchResult, maxErrors int) {
	s.Created += res.Created
	s.Updated += res.Updated
	s.Skipped += res.Skipped
	s.Failed += res.Failed
	s.Errors = capErrors(append(s.Errors, res.Errors...), maxErrors)
}

func capErrors(errs []RowError, max int) []RowError {
	if max > 0 && len(errs) > max {
		errs = errs[len(errs)-max:]
	}
	out := make([]RowError, len(errs))
	copy(out, errs)
	return out
}

// RunBatch processes one batch of a running import. A pending cancel
// request seals the run as cancelled and processes nothing. It returns
// ErrRunNotStarted for an idle operation and ErrRunFinished once the run
// has completed or errored.
func (o *Orchestrator) RunBatch(ctx context.Context, op OperationDefinition, headers []string, rows [][]string, offset int, fm FieldMap) (BatchResult, RunStats, error) {
	key := op.Key()
	st, err := o.stats.Get(ctx, key)
	if err != nil {
		return BatchResult{}, RunStats{}, fmt.Errorf("load run %s: %w", key, err)
	}

	if st.Status == StatusRunning && st.CancelRequested {
		st, err = o.CompleteRun(ctx, op, StatusCancelled)
		if err != nil {
			return BatchResult{}, RunStats{}, err
		}
	}

	switch st.Status {
	case StatusNone:
		return BatchResult{}, st, fmt.Errorf("%w: %s", ErrRunNotStarted, key)
	case StatusCancelled:
		return BatchResult{Errors: []RowError{}, NextOffset: offset}, st, nil
	case StatusComplete, StatusError:
		return BatchResult{}, st, fmt.Errorf("%w: %s is %s", ErrRunFinished, key, st.Status)
	}

	res, err := o.ProcessBatch(ctx, op, headers, rows, offset, fm)
	if err != nil {
		slog.Error("import batch aborted", "operation", key.String(), "offset", offset, "error", err)
		return res, st, err
	}

	st, err = o.UpdateBatch(ctx, key, res)
	if err != nil {
		return res, st, err
	}
	res.HasMore = res.NextOffset < st.Total && len(rows) > 0

	slog.Info("import batch processed",
		"operation", key.String(),
		"offset", offset,
		"rows", res.Processed,
		"failed", res.Failed,
		"percent", Percentage(st),
	)
	return res, st, nil
}

// CompleteRun seals the run with status. A zero total is backfilled from the
// counters. The after-import hook fires only when status is complete and the
// run was still open, so repeated calls change nothing.
func (o *Orchestrator) CompleteRun(ctx context.Context, op OperationDefinition, status RunStatus) (RunStats, error) {
	if !status.Terminal() {
		return RunStats{}, fmt.Errorf("complete run: invalid status %q", status)
	}

	key := op.Key()
	sealed := false
	st, err := o.stats.Update(ctx, key, func(s *RunStats) error {
		if s.Status == StatusNone {
			return fmt.Errorf("%w: %s", ErrRunNotStarted, key)
		}
		if s.Status.Terminal() {
			return nil
		}
		s.Status = status
		s.CancelRequested = false
		s.LastRun = o.now()
		if s.Total == 0 {
			s.Total = s.Processed()
		}
		sealed = true
		return nil
	})
	if err != nil {
		return RunStats{}, fmt.Errorf("complete run %s: %w", key, err)
	}

	if sealed {
		slog.Info("import run finished",
			"operation", key.String(),
			"status", string(st.Status),
			"created", st.Created,
			"updated", st.Updated,
			"skipped", st.Skipped,
			"failed", st.Failed,
		)
		if status == StatusComplete && op.Hooks != nil {
			op.Hooks.AfterImport(ctx, key, st)
		}
	}
	return st, nil
}

// RequestCancel flags a running import so the next batch call stops it.
func (o *Orchestrator) RequestCancel(ctx context.Context, key RunKey) (RunStats, error) {
	st, err := o.stats.Update(ctx, key, func(s *RunStats) error {
		if s.Status == StatusRunning {
			s.CancelRequested = true
		}
		return nil
	})
	if err != nil {
		return RunStats{}, fmt.Errorf("request cancel %s: %w", key, err)
	}
	return st, nil
}

// Percentage returns round(100 * processed / total), or 0 when total is 0.
func Percentage(s RunStats) int {
	if s.Total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(s.Processed()) / float64(s.Total)))
}
