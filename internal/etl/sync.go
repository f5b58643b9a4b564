package etl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ── SyncJob ────────────────────────────────────────────────
// Orchestrates: source.Read → batched destination writes.
//
// Pattern: Airbyte sync / Singer tap→target pipeline.

// SyncJob holds the configuration for a single ETL sync.
type SyncJob struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	SourceType    string       `json:"sourceType"`
	SourceCfg     SourceConfig `json:"sourceConfig"`
	Target        Target       `json:"target"`
	SyncMode      SyncMode     `json:"syncMode"`
	TriggerType   string       `json:"triggerType"`   // "manual" | "schedule" | "file_watch"
	TriggerConfig string       `json:"triggerConfig"` // cron expression or watched glob
	Enabled       bool         `json:"enabled"`
	LastRunAt     time.Time    `json:"lastRunAt"`
	LastStatus    string       `json:"lastStatus"` // "success" | "error" | "running" | ""
	LastError     string       `json:"lastError"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// SyncResult is the outcome of running a sync job.
type SyncResult struct {
	JobID       string        `json:"jobId"`
	Status      string        `json:"status"` // "success" | "error"
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Skipped     []SkippedFile `json:"skipped,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// SyncRunLog is a historical record of a sync run.
type SyncRunLog struct {
	ID           string    `json:"id"`
	JobID        string    `json:"jobId"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Status       string    `json:"status"`
	RowsRead     int       `json:"rowsRead"`
	RowsWritten  int       `json:"rowsWritten"`
	FilesSkipped int       `json:"filesSkipped"`
	Error        string    `json:"error,omitempty"`
}

// SkippedFile is an input a source skipped instead of failing the run.
type SkippedFile struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type skipReporterKey struct{}

// WithSkipReporter returns a context through which sources report inputs
// they skipped.
func WithSkipReporter(ctx context.Context, report func(path string, err error)) context.Context {
	return context.WithValue(ctx, skipReporterKey{}, report)
}

// ReportSkip forwards a skipped input to the reporter installed on ctx, if any.
func ReportSkip(ctx context.Context, path string, err error) {
	if report, ok := ctx.Value(skipReporterKey{}).(func(string, error)); ok {
		report(path, err)
	}
}

// ── Engine ─────────────────────────────────────────────────

const DefaultBatchSize = 500

// Engine runs sync jobs using the registered sources and a destination.
type Engine struct {
	Dest      Destination
	BatchSize int // records per write, defaults to DefaultBatchSize
}

// RunSync executes a sync job end-to-end. Records are written in batches as
// they are read: the first batch uses the job's sync mode, later batches
// append. A replace job whose source yields nothing still clears the target.
func (e *Engine) RunSync(ctx context.Context, job *SyncJob) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{JobID: job.ID}
	fail := func(stage string, err error) (*SyncResult, error) {
		result.Status = "error"
		result.Error = fmt.Sprintf("%s: %s", stage, err)
		result.Duration = time.Since(start)
		return result, err
	}

	// 1. Resolve source from registry and check its config.
	source, err := GetSource(job.SourceType)
	if err != nil {
		return fail("source", err)
	}
	if err := ValidateConfig(source, job.SourceCfg); err != nil {
		return fail("config", err)
	}

	// 2. Discover schema (for column auto-creation).
	schema, err := source.Discover(ctx, job.SourceCfg)
	if err != nil {
		return fail("discover", err)
	}

	// 3. Open the destination.
	sink, err := e.Dest.Open(ctx, job.Target)
	if err != nil {
		return fail("open target", err)
	}
	defer sink.Close()

	// 4. Stream records, flushing full batches.
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var skipMu sync.Mutex
	readCtx = WithSkipReporter(readCtx, func(path string, err error) {
		skipMu.Lock()
		defer skipMu.Unlock()
		result.Skipped = append(result.Skipped, SkippedFile{Path: path, Error: err.Error()})
	})
	recCh, errCh := source.Read(readCtx, job.SourceCfg)

	size := e.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	mode := job.SyncMode
	if mode == "" {
		mode = SyncReplace
	}
	flushed := false
	batch := make([]Record, 0, size)
	flush := func() error {
		n, err := sink.Write(ctx, schema, batch, mode)
		result.RowsWritten += n
		batch = batch[:0]
		mode = SyncAppend
		flushed = true
		return err
	}

	for rec := range recCh {
		result.RowsRead++
		batch = append(batch, rec)
		if len(batch) < size {
			continue
		}
		if err := flush(); err != nil {
			cancel()
			for range recCh {
			}
			return fail("write", err)
		}
	}

	// Check for source errors.
	if err := <-errCh; err != nil {
		return fail("read", err)
	}
	if err := ctx.Err(); err != nil {
		return fail("read", err)
	}

	// 5. Final partial batch; an empty replace still clears the target.
	if len(batch) > 0 || !flushed {
		if err := flush(); err != nil {
			return fail("write", err)
		}
	}

	result.Status = "success"
	result.Duration = time.Since(start)
	return result, nil
}

// Preview executes only the source read phase and returns up to maxRows records.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) ([]Record, *Schema, error) {
	source, err := GetSource(sourceType)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateConfig(source, cfg); err != nil {
		return nil, nil, err
	}

	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := source.Read(readCtx, cfg)

	var records []Record
	for rec := range recCh {
		records = append(records, rec)
		if len(records) >= maxRows {
			break
		}
	}

	// Stop the source and drain what it already produced.
	cancel()
	for range recCh {
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return records, schema, err
	}

	return records, schema, nil
}
