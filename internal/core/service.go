package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ServiceConfig holds the tunables of the driver-facing service.
type ServiceConfig struct {
	DefaultBatchSize int
	DryRunErrorLimit int
	MaxStoredErrors  int
	PreviewRows      int
	BatchTimeout     time.Duration
}

// DefaultBatchSize is used when neither the operation nor the config sets one.
const DefaultBatchSize = 50

// Service is the entry point for drivers (HTTP handlers, tests, CLIs).
// Every method is a short, independent call; run state lives in the stats store.
type Service struct {
	registry *Registry
	files    FileSource
	stats    StatsStore
	pipeline *Pipeline
	orch     *Orchestrator
	limiter  *BatchLimiter
	cfg      ServiceConfig
}

// NewService wires a service. resolver and limiter may be nil.
func NewService(registry *Registry, files FileSource, stats StatsStore, resolver *Resolver, limiter *BatchLimiter, cfg ServiceConfig) *Service {
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = DefaultBatchSize
	}
	if cfg.DryRunErrorLimit <= 0 {
		cfg.DryRunErrorLimit = DefaultDryRunErrorLimit
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = 5
	}
	if limiter == nil {
		limiter = NewBatchLimiter(DefaultMaxConcurrentBatches, DefaultMaxWaitTime)
	}

	pipeline := NewPipeline(resolver)
	return &Service{
		registry: registry,
		files:    files,
		stats:    stats,
		pipeline: pipeline,
		orch:     NewOrchestrator(pipeline, stats, cfg.MaxStoredErrors),
		limiter:  limiter,
		cfg:      cfg,
	}
}

// Limiter exposes the batch limiter for shutdown draining and health checks.
func (s *Service) Limiter() *BatchLimiter {
	return s.limiter
}

// Operations lists every registered operation.
func (s *Service) Operations() []OperationDefinition {
	return s.registry.All()
}

// PageOperations returns the operations registered under pageID.
func (s *Service) PageOperations(pageID string) []OperationDefinition {
	return s.registry.ByPage(pageID)
}

// Operation returns a registered operation.
func (s *Service) Operation(pageID, operationID string) (OperationDefinition, error) {
	return s.registry.Lookup(pageID, operationID)
}

// Preview is the head of an uploaded file.
type Preview struct {
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	TotalRows int        `json:"total_rows"`
}

// GetPreview returns the headers and first maxRows rows of a file.
func (s *Service) GetPreview(ctx context.Context, handle string, maxRows int) (Preview, error) {
	if maxRows <= 0 {
		maxRows = s.cfg.PreviewRows
	}
	headers, err := s.files.Headers(ctx, handle)
	if err != nil {
		return Preview{}, fmt.Errorf("preview headers: %w", err)
	}
	rows, err := s.files.Rows(ctx, handle, 0, maxRows)
	if err != nil {
		return Preview{}, fmt.Errorf("preview rows: %w", err)
	}
	total, err := s.files.RowCount(ctx, handle)
	if err != nil {
		return Preview{}, fmt.Errorf("preview row count: %w", err)
	}
	return Preview{Headers: headers, Rows: rows, TotalRows: total}, nil
}

// GenerateSample renders a sample CSV for an operation.
func (s *Service) GenerateSample(pageID, operationID string) (string, error) {
	op, err := s.registry.Lookup(pageID, operationID)
	if err != nil {
		return "", err
	}
	return GenerateSample(op.Fields)
}

// SuggestFieldMap proposes a field map for a file's headers.
func (s *Service) SuggestFieldMap(ctx context.Context, pageID, operationID, handle string) (FieldMap, error) {
	op, err := s.registry.Lookup(pageID, operationID)
	if err != nil {
		return nil, err
	}
	headers, err := s.files.Headers(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("read headers: %w", err)
	}
	return SuggestFieldMap(op.Fields, headers), nil
}

// DryRun validates a whole file without side effects.
func (s *Service) DryRun(ctx context.Context, pageID, operationID, handle string, fm FieldMap) (DryRunReport, error) {
	op, err := s.registry.Lookup(pageID, operationID)
	if err != nil {
		return DryRunReport{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.limiter.Acquire(ctx); err != nil {
		return DryRunReport{}, err
	}
	defer s.limiter.Release()

	headers, err := s.files.Headers(ctx, handle)
	if err != nil {
		return DryRunReport{}, fmt.Errorf("dry run headers: %w", err)
	}
	rows, err := s.files.Rows(ctx, handle, 0, 0)
	if err != nil {
		return DryRunReport{}, fmt.Errorf("dry run rows: %w", err)
	}
	return s.pipeline.DryRun(ctx, op, headers, rows, fm, s.cfg.DryRunErrorLimit)
}

// FileMeta identifies an uploaded file.
type FileMeta struct {
	Handle string `json:"file"`
	Name   string `json:"name"`
}

// StartResponse tells the driver how to page through the file.
type StartResponse struct {
	TotalItems int      `json:"total_items"`
	BatchSize  int      `json:"batch_size"`
	Stats      RunStats `json:"stats"`
}

// StartRun begins a run over an uploaded file.
func (s *Service) StartRun(ctx context.Context, pageID, operationID string, file FileMeta) (StartResponse, error) {
	op, err := s.registry.Lookup(pageID, operationID)
	if err != nil {
		return StartResponse{}, err
	}
	if op.Processor == nil {
		return StartResponse{}, ErrNoProcessor
	}

	total, err := s.files.RowCount(ctx, file.Handle)
	if err != nil {
		return StartResponse{}, fmt.Errorf("count rows: %w", err)
	}

	name := file.Name
	if name == "" {
		name = file.Handle
	}
	st, err := s.orch.InitRun(ctx, op, name, total)
	if err != nil {
		return StartResponse{Stats: st}, err
	}
	return StartResponse{TotalItems: total, BatchSize: s.batchSize(op), Stats: st}, nil
}

// BatchResponse is the result of one batch call with cumulative progress.
type BatchResponse struct {
	BatchResult
	Stats      RunStats  `json:"stats"`
	Percentage int       `json:"percentage"`
	Status     RunStatus `json:"status"`
}

// RunBatch processes the batch of the file starting at offset.
func (s *Service) RunBatch(ctx context.Context, pageID, operationID, handle string, offset int, fm FieldMap) (BatchResponse, error) {
	op, err := s.registry.Lookup(pageID, operationID)
	if err != nil {
		return BatchResponse{}, err
	}
	if offset < 0 {
		return BatchResponse{}, fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.limiter.Acquire(ctx); err != nil {
		return BatchResponse{}, err
	}
	defer s.limiter.Release()

	headers, err := s.files.Headers(ctx, handle)
	if err != nil {
		return BatchResponse{}, fmt.Errorf("batch headers: %w", err)
	}
	rows, err := s.files.Rows(ctx, handle, offset, s.batchSize(op))
	if err != nil {
		return BatchResponse{}, fmt.Errorf("batch rows: %w", err)
	}

	res, st, err := s.orch.RunBatch(ctx, op, headers, rows, offset, fm)
	if err != nil {
		return BatchResponse{BatchResult: res, Stats: st, Status: st.Status}, err
	}
	return BatchResponse{
		BatchResult: res,
		Stats:       st,
		Percentage:  Percentage(st),
		Status:      st.Status,
	}, nil
}

// Complete seals a run with status.
func (s *Service) Complete(ctx context.Context, pageID, operationID string, status RunStatus) (RunStats, error) {
	op, err := s.registry.Lookup(pageID, operationID)
	if err != nil {
		return RunStats{}, err
	}
	return s.orch.CompleteRun(ctx, op, status)
}

// Cancel seals a run as cancelled.
func (s *Service) Cancel(ctx context.Context, pageID, operationID string) (RunStats, error) {
	return s.Complete(ctx, pageID, operationID, StatusCancelled)
}

// RequestCancel asks a running import to stop at its next batch.
func (s *Service) RequestCancel(ctx context.Context, pageID, operationID string) (RunStats, error) {
	op, err := s.registry.Lookup(pageID, operationID)
	if err != nil {
		return RunStats{}, err
	}
	return s.orch.RequestCancel(ctx, op.Key())
}

// GetStats returns the run record of an operation.
func (s *Service) GetStats(ctx context.Context, pageID, operationID string) (RunStats, error) {
	op, err := s.registry.Lookup(pageID, operationID)
	if err != nil {
		return RunStats{}, err
	}
	return s.stats.Get(ctx, op.Key())
}

// ClearStats deletes the run record of an operation.
func (s *Service) ClearStats(ctx context.Context, pageID, operationID string) error {
	op, err := s.registry.Lookup(pageID, operationID)
	if err != nil {
		return err
	}
	if err := s.stats.Clear(ctx, op.Key()); err != nil {
		return fmt.Errorf("clear stats %s: %w", op.Key(), err)
	}
	slog.Info("import stats cleared", "operation", op.Key().String())
	return nil
}

func (s *Service) batchSize(op OperationDefinition) int {
	if op.BatchSize > 0 {
		return op.BatchSize
	}
	return s.cfg.DefaultBatchSize
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.BatchTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.BatchTimeout)
	}
	return context.WithCancel(ctx)
}
