package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geoetl/internal/config"
	mcpserver "geoetl/internal/mcp"
	"geoetl/internal/service"
)

// noopEmitter is a no-op EventEmitter used in MCP mode, where stdout
// carries the protocol.
type noopEmitter struct{}

func (noopEmitter) Emit(_ context.Context, _ string, _ any) {}

// ServeMCP runs geoetl as an MCP server on stdin/stdout until interrupted.
// With allowRun, run_etl_job calls are approved automatically.
func ServeMCP(env config.Env, allowRun bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := Open(env, noopEmitter{})
	if err != nil {
		return err
	}
	defer shutdown(a)

	var approver mcpserver.Approver = mcpserver.DenyAll{}
	if allowRun {
		approver = mcpserver.AutoApprove{}
	}
	mcpSrv := mcpserver.New(mcpserver.Deps{ETL: a.ETL, Approver: approver})

	errCh := make(chan error, 1)
	go func() { errCh <- mcpSrv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("[MCP] interrupted, shutting down")
		return nil
	}
}

// Serve runs the cron and file-watch triggers of every enabled job until
// interrupted.
func Serve(env config.Env) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := Open(env, &service.LogEmitter{})
	if err != nil {
		return err
	}
	defer shutdown(a)

	a.ETL.RestartWatchers(ctx)
	log.Printf("geoetl: serving jobs from %s", env.DBPath)
	<-ctx.Done()
	log.Println("geoetl: shutting down, waiting for running jobs")
	return nil
}

func shutdown(a *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.Shutdown(ctx)
}
