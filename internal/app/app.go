// Package app wires configuration, storage, the registry client and the
// import services together for the command line and the ops server.
package app

import (
	"context"
	"fmt"

	"github.com/PorticoEstate/matrikkel-sub000/internal/checkpoint"
	"github.com/PorticoEstate/matrikkel-sub000/internal/config"
	"github.com/PorticoEstate/matrikkel-sub000/internal/database"
	"github.com/PorticoEstate/matrikkel-sub000/internal/logger"
	"github.com/PorticoEstate/matrikkel-sub000/internal/progress"
	"github.com/PorticoEstate/matrikkel-sub000/internal/registry"
	"github.com/PorticoEstate/matrikkel-sub000/internal/repository"
	"github.com/PorticoEstate/matrikkel-sub000/internal/services"
)

// Version is reported by the ops API and at startup.
const Version = "1.0.0"

// App holds the long-lived components of one process.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	DB        *database.Database
	Tracker   *progress.Tracker
	Imports   services.ImportService
	Hierarchy services.HierarchyService

	checkpoints checkpoint.Store
}

// NewLogger creates the process logger, adding file rotation when a log
// file is configured.
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.New(cfg.Server.Env, logger.WithFile(logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}))
}

// New connects to the store, opens the checkpoint database and builds the
// services. Close releases what New acquired.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("Database connection established", map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})

	checkpoints, err := openCheckpoints(cfg.Checkpoint, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	client := registry.NewHTTPClient(cfg.Registry.URL,
		registry.Timeout(cfg.Registry.Timeout),
		registry.Debug(cfg.Registry.Debug),
	)

	hierarchy := services.NewHierarchyService(repository.NewHierarchyRepository(db), log)
	owners := services.NewOwnerService(client, repository.NewOwnerRepository(db), log)
	tracker := progress.NewTracker()

	imports := services.NewImportService(services.ImportDependencies{
		Client:      client,
		Store:       db,
		Parcels:     repository.NewParcelRepository(db),
		Owners:      owners,
		Hierarchy:   hierarchy,
		Tracker:     tracker,
		Sink:        progress.Multi{progress.NewLogSink(log), progress.NewPrometheusSink()},
		Checkpoints: checkpoints,
	}, cfg.Import, log)

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		Tracker:     tracker,
		Imports:     imports,
		Hierarchy:   hierarchy,
		checkpoints: checkpoints,
	}, nil
}

func openCheckpoints(cfg config.CheckpointConfig, log *logger.Logger) (checkpoint.Store, error) {
	if cfg.Dir == "" {
		log.Debug("Checkpointing disabled", nil)
		return checkpoint.Nop{}, nil
	}

	store, err := checkpoint.Open(checkpoint.Options{
		Dir:    cfg.Dir,
		Logger: checkpoint.NewLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoints: %w", err)
	}
	log.Info("Checkpoint store opened", map[string]interface{}{"dir": cfg.Dir})
	return store, nil
}

// Close waits for background imports and releases the store and the
// checkpoint database.
func (a *App) Close() {
	if a.Imports != nil {
		a.Imports.Wait()
	}
	if a.checkpoints != nil {
		if err := a.checkpoints.Close(); err != nil {
			a.Log.Error("Failed to close checkpoint store", err, nil)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
