package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"geoetl/internal/app"
	"geoetl/internal/config"
	"geoetl/internal/etl"
	"geoetl/internal/geo"
	"geoetl/internal/service"
)

func main() {
	// stdout carries data (features, MCP); diagnostics go to stderr
	log.SetOutput(os.Stderr)

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "features":
		os.Exit(runFeatures(ctx, args))
	case "fields":
		os.Exit(runFields(args))
	case "header":
		os.Exit(runHeader(args))
	case "run":
		os.Exit(runJob(ctx, args))
	case "add":
		os.Exit(runAdd(ctx, args))
	case "list":
		os.Exit(runList(args))
	case "runs":
		os.Exit(runRuns(args))
	case "serve":
		os.Exit(runServe(args))
	case "mcp":
		os.Exit(runMCP(args))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprint(w, `geoetl: load zipped shapefiles (and CSV / GeoJSON files) into database tables

Usage:
  geoetl features --glob '/data/*.zip' [--projection EPSG:4326] [--continue-on-error] [--limit N]
  geoetl fields   --definition '["NAME", {"name": "POP"}]'
  geoetl header   --file zones.csv [--delimiter ';']
  geoetl run      --job parcels.yaml | --name parcels
  geoetl add      --job parcels.yaml
  geoetl list
  geoetl runs     --name parcels
  geoetl serve
  geoetl mcp      [--allow-run]

Environment:
  GEOETL_DB               job database (default ~/.local/share/geoetl/geoetl.db)
  GEOETL_OGR2OGR          ogr2ogr executable (default ogr2ogr)
  GEOETL_CONVERT_TIMEOUT  per-archive conversion timeout (default 5m)
  GEOETL_MAX_CONVERSIONS  concurrent ogr2ogr processes (default 2)
  GEOETL_WORKDIR          parent of extraction workspaces (default system temp dir)
  GEOETL_EXTRACTOR        "zip" (default) or an unzip-compatible executable
  GEOETL_SECRET_<KEY>     target database password for secretKey <key>
`)
}

func loadEnv() (config.Env, bool) {
	env, err := config.LoadEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return config.Env{}, false
	}
	return env, true
}

func openApp() (*app.App, int) {
	env, ok := loadEnv()
	if !ok {
		return nil, 2
	}
	a, err := app.Open(env, &service.LogEmitter{})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return nil, 1
	}
	return a, 0
}

func closeApp(a *app.App) {
	a.Shutdown(context.Background())
}

// runFeatures streams features from matched archives to stdout, one JSON
// document per line.
func runFeatures(ctx context.Context, args []string) int {
	env, ok := loadEnv()
	if !ok {
		return 2
	}

	fs := flag.NewFlagSet("features", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var glob, projection string
	var continueOnError bool
	var limit int
	fs.StringVar(&glob, "glob", "", "Glob matching .zip shapefile archives")
	fs.StringVar(&projection, "projection", "EPSG:4326", "Spatial reference for the output features")
	fs.BoolVar(&continueOnError, "continue-on-error", false, "Skip archives that fail instead of stopping")
	fs.IntVar(&limit, "limit", 0, "Stop after this many features, 0 for all")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if glob == "" {
		_, _ = fmt.Fprintln(os.Stderr, "features requires --glob")
		return 2
	}

	stream := &geo.Stream{
		Projection:      projection,
		Converter:       env.Converter(),
		Workspaces:      env.Workspaces(),
		ContinueOnError: continueOnError,
	}
	enc := json.NewEncoder(os.Stdout)
	n := 0
	for f, err := range stream.Features(ctx, glob) {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "features: %s\n", err)
			return 1
		}
		if err := enc.Encode(f); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "write feature: %s\n", err)
			return 1
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	log.Printf("features: %d written", n)
	return 0
}

func runFields(args []string) int {
	fs := flag.NewFlagSet("fields", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var definition string
	fs.StringVar(&definition, "definition", "", "Definition list as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var defs []any
	if err := json.Unmarshal([]byte(definition), &defs); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "parse definition: %s\n", err)
		return 2
	}
	fields, err := etl.ResolveFields(defs)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	return printFields(fields)
}

func runHeader(args []string) int {
	fs := flag.NewFlagSet("header", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var file, delimiter string
	fs.StringVar(&file, "file", "", "Delimited text file")
	fs.StringVar(&delimiter, "delimiter", "", `Column delimiter (default ","; "tab" for tab)`)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if file == "" {
		_, _ = fmt.Fprintln(os.Stderr, "header requires --file")
		return 2
	}

	delim, err := etl.ParseDelimiter(delimiter)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 2
	}
	fields, err := etl.HeaderFields(file, etl.HeaderOptions{Delimiter: delim})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	return printFields(fields)
}

func printFields(fields []etl.Field) int {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, f := range fields {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", f.Name, f.Type)
	}
	if err := w.Flush(); err != nil {
		return 1
	}
	return 0
}

// runJob runs a job file once without storing it, or a stored job by name.
func runJob(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var jobFile, name string
	fs.StringVar(&jobFile, "job", "", "YAML job file to run once")
	fs.StringVar(&name, "name", "", "Stored job name or id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if (jobFile == "") == (name == "") {
		_, _ = fmt.Fprintln(os.Stderr, "run requires exactly one of --job or --name")
		return 2
	}

	a, code := openApp()
	if a == nil {
		return code
	}
	defer closeApp(a)

	var result *etl.SyncResult
	var err error
	if jobFile != "" {
		result, err = runJobFile(ctx, a, jobFile)
	} else {
		var job *etl.SyncJob
		job, err = a.ETL.FindJob(name)
		if err == nil {
			result, err = a.ETL.RunJob(ctx, job.ID)
		}
	}
	if result != nil {
		printResult(result)
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "run failed: %s\n", err)
		return 1
	}
	return 0
}

func runJobFile(ctx context.Context, a *app.App, path string) (*etl.SyncResult, error) {
	f, err := config.LoadJobFile(path)
	if err != nil {
		return nil, err
	}
	job, err := f.Job()
	if err != nil {
		return nil, err
	}
	engine := &etl.Engine{Dest: &etl.TableWriter{Secrets: a.Secrets()}}
	return engine.RunSync(ctx, job)
}

func printResult(r *etl.SyncResult) {
	_, _ = fmt.Fprintf(os.Stdout, "status=%s read=%d written=%d skipped=%d duration=%s\n",
		r.Status, r.RowsRead, r.RowsWritten, len(r.Skipped), r.Duration.Round(time.Millisecond))
	for _, s := range r.Skipped {
		_, _ = fmt.Fprintf(os.Stdout, "  skipped %s: %s\n", s.Path, s.Error)
	}
	if r.Error != "" {
		_, _ = fmt.Fprintf(os.Stdout, "error: %s\n", r.Error)
	}
}

func runAdd(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var jobFile string
	fs.StringVar(&jobFile, "job", "", "YAML job file to store")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if jobFile == "" {
		_, _ = fmt.Fprintln(os.Stderr, "add requires --job")
		return 2
	}
	f, err := config.LoadJobFile(jobFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 2
	}

	a, code := openApp()
	if a == nil {
		return code
	}
	defer closeApp(a)

	job, err := a.ETL.CreateJob(ctx, f.Input())
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(os.Stdout, "added job %s (%s)\n", job.Name, job.ID)
	return 0
}

func runList(args []string) int {
	a, code := openApp()
	if a == nil {
		return code
	}
	defer closeApp(a)

	jobs, err := a.ETL.ListJobs()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSOURCE\tTABLE\tTRIGGER\tLAST STATUS")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.Name, j.SourceType, j.Target.Table, j.TriggerType, j.LastStatus)
	}
	if err := w.Flush(); err != nil {
		return 1
	}
	return 0
}

func runRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var name string
	fs.StringVar(&name, "name", "", "Stored job name or id")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, code := openApp()
	if a == nil {
		return code
	}
	defer closeApp(a)

	job, err := a.ETL.FindJob(name)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	logs, err := a.ETL.ListRunLogs(job.ID)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STARTED\tSTATUS\tREAD\tWRITTEN\tSKIPPED\tERROR")
	for _, l := range logs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			l.StartedAt.Format("2006-01-02 15:04:05"), l.Status, l.RowsRead, l.RowsWritten, l.FilesSkipped, l.Error)
	}
	if err := w.Flush(); err != nil {
		return 1
	}
	return 0
}

func runServe(args []string) int {
	env, ok := loadEnv()
	if !ok {
		return 2
	}
	if err := app.Serve(env); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	return 0
}

func runMCP(args []string) int {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var allowRun bool
	fs.BoolVar(&allowRun, "allow-run", false, "Approve run_etl_job calls without asking")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	env, ok := loadEnv()
	if !ok {
		return 2
	}
	if err := app.ServeMCP(env, allowRun); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	return 0
}
