package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"geoetl/internal/etl"
	"geoetl/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// ETL Service: business logic for ETL sync jobs
// ─────────────────────────────────────────────────────────────

// DefaultRunTimeout bounds a single job run. Shapefile jobs convert every
// matched archive, so this is well above the per-archive convert timeout.
const DefaultRunTimeout = 30 * time.Minute

// ETLService manages ETL sync jobs, scheduling, and file watching.
type ETLService struct {
	store       *storage.ETLStore
	dest        etl.Destination
	emitter     EventEmitter
	runs        runGuard

	// RunTimeout overrides DefaultRunTimeout; negative disables it.
	RunTimeout time.Duration
	// Debounce is the quiet period after a watched file changes.
	Debounce time.Duration

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewETLService creates an ETLService ready for use.
func NewETLService(
	store *storage.ETLStore,
	dest etl.Destination,
	emitter EventEmitter,
) *ETLService {
	if emitter == nil {
		emitter = &LogEmitter{}
	}
	return &ETLService{
		store:    store,
		dest:     dest,
		emitter:  emitter,
		Debounce: 500 * time.Millisecond,
	}
}

// ── Job CRUD ───────────────────────────────────────────────

type CreateETLJobInput struct {
	Name          string         `json:"name" yaml:"name"`
	SourceType    string         `json:"sourceType" yaml:"sourceType"`
	SourceConfig  map[string]any `json:"sourceConfig" yaml:"sourceConfig"`
	Target        etl.Target     `json:"target" yaml:"target"`
	SyncMode      string         `json:"syncMode" yaml:"syncMode"`
	TriggerType   string         `json:"triggerType" yaml:"triggerType"`
	TriggerConfig string         `json:"triggerConfig" yaml:"triggerConfig"`
	Enabled       bool           `json:"enabled" yaml:"enabled"`
}

// BuildJob validates input and turns it into a job with defaults applied.
func BuildJob(input CreateETLJobInput) (*etl.SyncJob, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	source, err := etl.GetSource(input.SourceType)
	if err != nil {
		return nil, err
	}
	if err := etl.ValidateConfig(source, input.SourceConfig); err != nil {
		return nil, fmt.Errorf("source config: %w", err)
	}
	if err := input.Target.Validate(); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	job := &etl.SyncJob{
		Name:          input.Name,
		SourceType:    input.SourceType,
		SourceCfg:     input.SourceConfig,
		Target:        input.Target,
		SyncMode:      etl.SyncMode(input.SyncMode),
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		Enabled:       input.Enabled,
	}
	if job.SyncMode == "" {
		job.SyncMode = etl.SyncReplace
	}
	if job.SyncMode != etl.SyncReplace && job.SyncMode != etl.SyncAppend {
		return nil, fmt.Errorf("unknown sync mode %q", job.SyncMode)
	}
	if job.TriggerType == "" {
		job.TriggerType = "manual"
	}
	if err := validateTrigger(job.TriggerType, job.TriggerConfig); err != nil {
		return nil, err
	}
	return job, nil
}

func validateTrigger(typ, cfg string) error {
	switch typ {
	case "manual":
		return nil
	case "schedule":
		if _, err := cron.ParseStandard(cfg); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", cfg, err)
		}
		return nil
	case "file_watch":
		if cfg == "" {
			return fmt.Errorf("file_watch trigger needs a path or glob")
		}
		if _, err := filepath.Glob(cfg); err != nil {
			return fmt.Errorf("invalid watch glob %q: %w", cfg, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown trigger type %q", typ)
	}
}

func (s *ETLService) CreateJob(ctx context.Context, input CreateETLJobInput) (*etl.SyncJob, error) {
	job, err := BuildJob(input)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create etl job: %w", err)
	}
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *ETLService) GetJob(id string) (*etl.SyncJob, error) {
	return s.store.GetJob(id)
}

// FindJob resolves a job by id, falling back to its name.
func (s *ETLService) FindJob(ref string) (*etl.SyncJob, error) {
	job, err := s.store.GetJob(ref)
	if errors.Is(err, storage.ErrJobNotFound) {
		return s.store.GetJobByName(ref)
	}
	return job, err
}

func (s *ETLService) ListJobs() ([]etl.SyncJob, error) {
	return s.store.ListJobs()
}

func (s *ETLService) UpdateJob(ctx context.Context, id string, input CreateETLJobInput) error {
	job, err := s.store.GetJob(id)
	if err != nil {
		return err
	}
	next, err := BuildJob(input)
	if err != nil {
		return err
	}
	next.ID = job.ID
	next.CreatedAt = job.CreatedAt

	if err := s.store.UpdateJob(next); err != nil {
		return err
	}
	s.RestartWatchers(ctx)
	return nil
}

func (s *ETLService) DeleteJob(ctx context.Context, id string) error {
	err := s.store.DeleteJob(id)
	if err == nil {
		s.RestartWatchers(ctx)
	}
	return err
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a single ETL sync job synchronously, records a run log,
// and emits "etl:job-completed".
func (s *ETLService) RunJob(ctx context.Context, id string) (*etl.SyncResult, error) {
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	release, err := s.runs.acquire(job)
	if err != nil {
		return nil, err
	}
	defer release()

	s.store.UpdateJobStatus(id, "running", "")

	engine := &etl.Engine{Dest: s.dest}

	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	start := time.Now()
	result, runErr := engine.RunSync(runCtx, job)

	runLog := &etl.SyncRunLog{
		JobID:        id,
		StartedAt:    start,
		FinishedAt:   time.Now(),
		Status:       result.Status,
		RowsRead:     result.RowsRead,
		RowsWritten:  result.RowsWritten,
		FilesSkipped: len(result.Skipped),
	}
	errMsg := ""
	if runErr != nil {
		errMsg = result.Error
		runLog.Error = errMsg
	}
	if err := s.store.CreateRunLog(runLog); err != nil {
		log.Printf("etl run: job %s: save run log: %v", id, err)
	}
	s.store.UpdateJobStatus(id, result.Status, errMsg)

	for _, sk := range result.Skipped {
		log.Printf("etl run: job %s skipped %s: %s", id, sk.Path, sk.Error)
	}
	s.emitter.Emit(ctx, "etl:job-completed", map[string]any{
		"jobId":       id,
		"status":      result.Status,
		"rowsWritten": result.RowsWritten,
		"table":       job.Target.Table,
	})

	return result, runErr
}

func (s *ETLService) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.RunTimeout
	if timeout == 0 {
		timeout = DefaultRunTimeout
	}
	if timeout < 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// ListSources returns the available ETL source descriptors.
func (s *ETLService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// ListRunLogs returns the last 50 run logs for a job.
func (s *ETLService) ListRunLogs(jobID string) ([]etl.SyncRunLog, error) {
	return s.store.ListRunLogs(jobID, 50)
}

// ── Preview / Schema Discovery ─────────────────────────────

func (s *ETLService) PreviewSource(ctx context.Context, sourceType string, cfgJSON string) (*PreviewResult, error) {
	var cfg etl.SourceConfig
	if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
		return nil, fmt.Errorf("parse source config: %w", err)
	}
	return s.Preview(ctx, sourceType, cfg, 10)
}

// Preview reads up to maxRows records from a source without writing them.
func (s *ETLService) Preview(ctx context.Context, sourceType string, cfg etl.SourceConfig, maxRows int) (*PreviewResult, error) {
	engine := &etl.Engine{Dest: s.dest}

	previewCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	records, schema, err := engine.Preview(previewCtx, sourceType, cfg, maxRows)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Schema: schema, Records: records}, nil
}

// PreviewResult is the response from PreviewSource.
type PreviewResult struct {
	Schema  *etl.Schema  `json:"schema"`
	Records []etl.Record `json:"records"`
}

func (s *ETLService) DiscoverSchema(ctx context.Context, sourceType string, cfgJSON string) (*etl.Schema, error) {
	var cfg etl.SourceConfig
	if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
		return nil, fmt.Errorf("parse source config: %w", err)
	}

	source, err := etl.GetSource(sourceType)
	if err != nil {
		return nil, err
	}
	if err := etl.ValidateConfig(source, cfg); err != nil {
		return nil, err
	}

	discCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	return source.Discover(discCtx, cfg)
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them from scratch.
func (s *ETLService) RestartWatchers(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchers()

	jobs, err := s.store.ListEnabledScheduledJobs()
	if err != nil {
		log.Printf("etl watcher: failed to list jobs: %v", err)
		return
	}

	// ── Cron jobs ──
	c := cron.New()
	scheduled := 0
	for _, j := range jobs {
		if j.TriggerType != "schedule" || j.TriggerConfig == "" {
			continue
		}
		jid := j.ID
		_, err := c.AddFunc(j.TriggerConfig, func() {
			log.Printf("etl cron: running job %s", jid)
			if _, err := s.RunJob(ctx, jid); err != nil {
				log.Printf("etl cron: job %s failed: %v", jid, err)
			}
		})
		if err != nil {
			log.Printf("etl cron: invalid expression %q for job %s: %v", j.TriggerConfig, jid, err)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		log.Printf("etl cron: scheduled %d job(s)", scheduled)
	}

	// ── File watchers ──
	var patterns []watchPattern
	for _, j := range jobs {
		if j.TriggerType != "file_watch" || j.TriggerConfig == "" {
			continue
		}
		abs, err := filepath.Abs(j.TriggerConfig)
		if err != nil {
			log.Printf("etl watcher: bad path %q: %v", j.TriggerConfig, err)
			continue
		}
		patterns = append(patterns, watchPattern{jobID: j.ID, glob: abs})
	}
	if len(patterns) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("etl watcher: failed to create watcher: %v", err)
		return
	}
	s.watcher = watcher

	watchedDirs := make(map[string]bool)
	for _, p := range patterns {
		dir := filepath.Dir(p.glob)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Printf("etl watcher: failed to watch dir %q: %v", dir, err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go s.watchLoop(ctx, watchCtx, watcher, patterns)

	log.Printf("etl watcher: watching %d pattern(s) in %d dir(s)", len(patterns), len(watchedDirs))
}

type watchPattern struct {
	jobID string
	glob  string // absolute path or glob
}

// matchJobs returns the ids of jobs whose pattern matches path.
func matchJobs(patterns []watchPattern, path string) []string {
	var ids []string
	for _, p := range patterns {
		if ok, _ := filepath.Match(p.glob, path); ok {
			ids = append(ids, p.jobID)
		}
	}
	return ids
}

func (s *ETLService) watchLoop(ctx, watchCtx context.Context, watcher *fsnotify.Watcher, patterns []watchPattern) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-watchCtx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			for _, jid := range matchJobs(patterns, absPath) {
				if t, exists := timers[jid]; exists {
					t.Stop()
				}
				jid := jid
				timers[jid] = time.AfterFunc(s.Debounce, func() {
					log.Printf("etl watcher: file changed %q, running job %s", absPath, jid)
					if _, err := s.RunJob(ctx, jid); err != nil {
						log.Printf("etl watcher: run failed for job %s: %v", jid, err)
					}
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("etl watcher: error: %v", err)
		}
	}
}

// IsRunning reports whether the job is currently executing.
func (s *ETLService) IsRunning(jobID string) bool {
	return s.runs.running(jobID)
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ETLService) WaitRunning(ctx context.Context) {
	s.runs.waitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *ETLService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchers()
}

func (s *ETLService) stopWatchers() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
