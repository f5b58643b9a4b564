package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"geoetl/internal/etl"
)

// JobBusyError is returned by RunJob when the job, or another job writing
// the same target table, is already running.
type JobBusyError struct {
	JobID  string
	Target string // empty when the job itself is running
	HeldBy string // job holding the target
}

func (e *JobBusyError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("job %s is already running", e.JobID)
	}
	return fmt.Sprintf("job %s: target %s is being written by job %s", e.JobID, e.Target, e.HeldBy)
}

// runGuard serializes job runs. A job never overlaps itself, and two jobs
// never write the same target table at once.
type runGuard struct {
	mu      sync.Mutex
	jobs    map[string]string // job id -> target key
	targets map[string]string // target key -> job id
	wg      sync.WaitGroup
}

// targetKey identifies a destination table independent of credentials.
func targetKey(t etl.Target) string {
	return strings.Join([]string{
		string(t.Driver), t.Host, fmt.Sprint(t.Port), t.Database, t.Table,
	}, "|")
}

// acquire marks job as running. The returned release must be called once.
func (g *runGuard) acquire(job *etl.SyncJob) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.jobs == nil {
		g.jobs = make(map[string]string)
		g.targets = make(map[string]string)
	}
	if _, ok := g.jobs[job.ID]; ok {
		return nil, &JobBusyError{JobID: job.ID}
	}
	key := targetKey(job.Target)
	if holder, ok := g.targets[key]; ok {
		return nil, &JobBusyError{JobID: job.ID, Target: job.Target.Table, HeldBy: holder}
	}
	g.jobs[job.ID] = key
	g.targets[key] = job.ID
	g.wg.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.jobs, job.ID)
			delete(g.targets, key)
			g.mu.Unlock()
			g.wg.Done()
		})
	}, nil
}

// running reports whether the job id currently holds the guard.
func (g *runGuard) running(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.jobs[jobID]
	return ok
}

// waitAll blocks until every running job releases or ctx is done.
func (g *runGuard) waitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
