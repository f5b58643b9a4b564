package app

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"geoetl/internal/config"
	"geoetl/internal/etl"
	"geoetl/internal/etl/sources" // registers all sources via init()
	"geoetl/internal/secret"
	"geoetl/internal/service"
	"geoetl/internal/storage"
)

// App wires storage, the shared converter and the ETL service together.
// The CLI, the scheduler daemon and the MCP server all run on top of it.
type App struct {
	Env     config.Env
	db      *storage.DB
	secrets secret.SecretStore
	ETL     *service.ETLService
}

// Open builds an App from env. The job database is created on first use.
func Open(env config.Env, emitter service.EventEmitter) (*App, error) {
	db, err := storage.New(env.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every shapefile read in the process shares one converter, so
	// MaxConversions bounds ogr2ogr subprocesses across concurrent jobs.
	sources.SetConverter(env.Converter())
	sources.SetWorkspaces(env.Workspaces())

	secrets := defaultSecrets()
	dest := &etl.TableWriter{Secrets: secrets}

	return &App{
		Env:     env,
		db:      db,
		secrets: secrets,
		ETL:     service.NewETLService(storage.NewETLStore(db), dest, emitter),
	}, nil
}

// Secrets returns the store target passwords are read from.
func (a *App) Secrets() secret.SecretStore {
	return a.secrets
}

// Shutdown stops schedulers, waits for running jobs, and closes the database.
func (a *App) Shutdown(ctx context.Context) {
	a.ETL.Stop()
	a.ETL.WaitRunning(ctx)
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("close database: %v", err)
		}
	}
}

// defaultSecrets checks GEOETL_SECRET_* variables first, then the macOS
// Keychain where it exists.
func defaultSecrets() secret.SecretStore {
	if runtime.GOOS == "darwin" {
		return secret.Chain{secret.EnvStore{}, secret.NewKeychainStore()}
	}
	return secret.EnvStore{}
}
