package service_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"geoetl/internal/domain"
	"geoetl/internal/etl"
	_ "geoetl/internal/etl/sources"
	"geoetl/internal/service"
	"geoetl/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// ETLService tests
// Jobs read a CSV file and write into a SQLite target; the job
// store is a SQLite file under t.TempDir().
// ─────────────────────────────────────────────────────────────

func newService(t *testing.T) (*service.ETLService, *service.MockEmitter) {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "geoetl.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	emitter := &service.MockEmitter{}
	svc := service.NewETLService(storage.NewETLStore(db), &etl.TableWriter{}, emitter)
	svc.Debounce = 20 * time.Millisecond
	t.Cleanup(func() {
		svc.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.WaitRunning(ctx)
	})
	return svc, emitter
}

func csvInput(t *testing.T, dir string) service.CreateETLJobInput {
	t.Helper()
	csvPath := filepath.Join(dir, "zones.csv")
	if err := os.WriteFile(csvPath, []byte("id,name\n1,north\n2,south\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return service.CreateETLJobInput{
		Name:         "zones",
		SourceType:   "csv_file",
		SourceConfig: map[string]any{"filePath": csvPath},
		Target: etl.Target{
			DatabaseConnection: domain.DatabaseConnection{
				Driver: domain.DatabaseDriverSQLite,
				Host:   filepath.Join(dir, "out.db"),
			},
			Table: "zones",
		},
		Enabled: true,
	}
}

func TestETLService_NewETLService(t *testing.T) {
	// nil emitter falls back to logging
	svc := service.NewETLService(nil, nil, nil)
	if svc == nil {
		t.Fatal("expected non-nil ETLService")
	}
}

func TestETLService_WaitRunning_Immediate(t *testing.T) {
	// With no running jobs, WaitRunning should return immediately
	svc := service.NewETLService(nil, nil, &service.MockEmitter{})

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		svc.WaitRunning(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitRunning hung with no running jobs")
	}
}

func TestETLService_Stop_Idempotent(t *testing.T) {
	svc := service.NewETLService(nil, nil, &service.MockEmitter{})
	svc.Stop()
	svc.Stop()
}

func TestBuildJob_Defaults(t *testing.T) {
	job, err := service.BuildJob(csvInput(t, t.TempDir()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.SyncMode != etl.SyncReplace {
		t.Errorf("expected replace by default, got %q", job.SyncMode)
	}
	if job.TriggerType != "manual" {
		t.Errorf("expected manual trigger by default, got %q", job.TriggerType)
	}
}

func TestBuildJob_Rejects(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]func(in *service.CreateETLJobInput){
		"no name":        func(in *service.CreateETLJobInput) { in.Name = "" },
		"unknown source": func(in *service.CreateETLJobInput) { in.SourceType = "ftp" },
		"bad config":     func(in *service.CreateETLJobInput) { in.SourceConfig = map[string]any{} },
		"no table":       func(in *service.CreateETLJobInput) { in.Target.Table = "" },
		"bad mode":       func(in *service.CreateETLJobInput) { in.SyncMode = "upsert" },
		"bad cron": func(in *service.CreateETLJobInput) {
			in.TriggerType, in.TriggerConfig = "schedule", "every now and then"
		},
		"bad trigger": func(in *service.CreateETLJobInput) { in.TriggerType = "webhook" },
		"empty watch": func(in *service.CreateETLJobInput) { in.TriggerType = "file_watch" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := csvInput(t, dir)
			mutate(&in)
			if _, err := service.BuildJob(in); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestETLService_RunJob(t *testing.T) {
	svc, emitter := newService(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, csvInput(t, t.TempDir()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := svc.RunJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != "success" || result.RowsWritten != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	logs, err := svc.ListRunLogs(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].RowsWritten != 2 || logs[0].Status != "success" {
		t.Fatalf("unexpected run logs %+v", logs)
	}

	stored, err := svc.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastStatus != "success" || stored.LastRunAt.IsZero() {
		t.Errorf("job status not updated: %+v", stored)
	}

	events := emitter.Snapshot()
	if len(events) != 1 || events[0].Event != "etl:job-completed" {
		t.Fatalf("expected one completion event, got %+v", events)
	}
}

func TestETLService_RunJob_RecordsFailure(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	in := csvInput(t, t.TempDir())
	job, err := svc.CreateJob(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	os.Remove(in.SourceConfig["filePath"].(string))

	if _, err := svc.RunJob(ctx, job.ID); err == nil {
		t.Fatal("expected run to fail without its input file")
	}
	logs, _ := svc.ListRunLogs(job.ID)
	if len(logs) != 1 || logs[0].Status != "error" || logs[0].Error == "" {
		t.Fatalf("expected an error run log, got %+v", logs)
	}
}

func TestETLService_FindJob(t *testing.T) {
	svc, _ := newService(t)
	job, err := svc.CreateJob(context.Background(), csvInput(t, t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}

	byName, err := svc.FindJob("zones")
	if err != nil || byName.ID != job.ID {
		t.Fatalf("lookup by name: %v %+v", err, byName)
	}
	if _, err := svc.FindJob("missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestETLService_FileWatchTrigger(t *testing.T) {
	svc, emitter := newService(t)
	ctx := context.Background()

	dropDir := t.TempDir()
	in := csvInput(t, t.TempDir())
	in.TriggerType = "file_watch"
	in.TriggerConfig = filepath.Join(dropDir, "*.zip")
	if _, err := svc.CreateJob(ctx, in); err != nil {
		t.Fatal(err)
	}

	// non-matching names are ignored
	os.WriteFile(filepath.Join(dropDir, "notes.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dropDir, "parcels.zip"), []byte("x"), 0o644)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(emitter.Snapshot()) > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("file drop did not trigger the job")
}
