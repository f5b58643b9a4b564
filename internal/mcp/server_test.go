package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"geoetl/internal/domain"
	"geoetl/internal/etl"
	_ "geoetl/internal/etl/sources"
	"geoetl/internal/service"
	"geoetl/internal/storage"

	"github.com/mark3labs/mcp-go/mcp"
)

func newTestServer(t *testing.T, approver Approver) *Server {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "geoetl.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	svc := service.NewETLService(storage.NewETLStore(db), &etl.TableWriter{}, &service.MockEmitter{})
	t.Cleanup(svc.Stop)
	return New(Deps{ETL: svc, Approver: approver})
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content %T", res.Content[0])
	}
	return tc.Text
}

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zones.csv")
	if err := os.WriteFile(path, []byte("id;name;id\n1;north;7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestListETLSources(t *testing.T) {
	s := newTestServer(t, nil)
	res, err := s.handleListETLSources(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resultText(t, res), `"shapefile"`) {
		t.Error("shapefile source not listed")
	}
}

func TestDiscoverHeaderFields(t *testing.T) {
	s := newTestServer(t, nil)
	res, err := s.handleDiscoverHeaderFields(context.Background(), call(map[string]any{
		"filePath":  writeCSV(t),
		"delimiter": ";",
	}))
	if err != nil {
		t.Fatal(err)
	}

	var fields []etl.Field
	if err := json.Unmarshal([]byte(resultText(t, res)), &fields); err != nil {
		t.Fatal(err)
	}
	if len(fields) != 3 || fields[0].Name != "id_1" || fields[2].Name != "id_2" {
		t.Fatalf("unexpected fields %+v", fields)
	}
}

func TestResolveFields(t *testing.T) {
	s := newTestServer(t, nil)

	// accepts the definition as a JSON string or as a decoded array
	for _, def := range []any{`["NAME", {"name": "POP"}]`, []any{"NAME", map[string]any{"name": "POP"}}} {
		res, err := s.handleResolveFields(context.Background(), call(map[string]any{"definitionJSON": def}))
		if err != nil {
			t.Fatal(err)
		}
		if text := resultText(t, res); !strings.Contains(text, `"POP"`) {
			t.Errorf("unexpected result %s", text)
		}
	}

	if _, err := s.handleResolveFields(context.Background(), call(map[string]any{"definitionJSON": `[1]`})); err == nil {
		t.Error("expected definition error")
	}
}

func TestCreateAndRunJob(t *testing.T) {
	ctx := context.Background()
	var asked []string
	s := newTestServer(t, ApproverFunc(func(_ context.Context, tool, _ string) (bool, error) {
		asked = append(asked, tool)
		return true, nil
	}))

	target := map[string]any{"driver": "sqlite", "host": filepath.Join(t.TempDir(), "out.db"), "table": "zones"}
	_, err := s.handleCreateETLJob(ctx, call(map[string]any{
		"name":             "zones",
		"sourceType":       "csv_file",
		"sourceConfigJSON": `{"filePath": "` + writeCSV(t) + `", "delimiter": ";"}`,
		"targetJSON":       target,
	}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := s.handleRunETLJob(ctx, call(map[string]any{"jobId": "zones"}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var result etl.SyncResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &result); err != nil {
		t.Fatal(err)
	}
	if result.Status != "success" || result.RowsWritten != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(asked) != 1 || asked[0] != "run_etl_job" {
		t.Errorf("expected one approval request, got %v", asked)
	}

	res, err = s.handleListETLJobs(ctx, call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resultText(t, res), `"lastStatus": "success"`) {
		t.Errorf("job status missing from list: %s", resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), `"running": false`) {
		t.Errorf("finished job should not be listed as running: %s", resultText(t, res))
	}
}

func TestRunJob_DeniedByDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, nil)

	job, err := s.etl.CreateJob(ctx, service.CreateETLJobInput{
		Name:         "zones",
		SourceType:   "csv_file",
		SourceConfig: map[string]any{"filePath": writeCSV(t), "delimiter": ";"},
		Target: etl.Target{
			DatabaseConnection: domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLite, Host: filepath.Join(t.TempDir(), "out.db")},
			Table:              "zones",
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.handleRunETLJob(ctx, call(map[string]any{"jobId": job.ID}))
	if err != nil {
		t.Fatal(err)
	}
	if resultText(t, res) != "Action rejected by user" {
		t.Fatalf("expected rejection, got %s", resultText(t, res))
	}
	if logs, _ := s.etl.ListRunLogs(job.ID); len(logs) != 0 {
		t.Error("rejected job must not run")
	}

	if _, err := s.handleRunETLJob(ctx, call(map[string]any{"jobId": "missing"})); err == nil {
		t.Error("expected unknown job error")
	}
}

func TestExtractJobIDFromURI(t *testing.T) {
	cases := map[string]string{
		"geoetl://job/abc-123/runs": "abc-123",
		"geoetl://job/abc/other":    "",
		"geoetl://jobs":             "",
		"geoetl://job/a/b/runs":     "",
	}
	for uri, want := range cases {
		if got := extractJobIDFromURI(uri); got != want {
			t.Errorf("extractJobIDFromURI(%q) = %q, want %q", uri, got, want)
		}
	}
}
