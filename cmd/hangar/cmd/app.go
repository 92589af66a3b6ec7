package cmd

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-hangar/internal/api"
	"go-hangar/internal/database"
	"go-hangar/internal/index"
	"go-hangar/internal/installer"
	"go-hangar/internal/models"
	"go-hangar/internal/operations"
	"go-hangar/internal/queue"
	"go-hangar/internal/store"
	"go-hangar/internal/tasks"
	"go-hangar/internal/updates"
	"go-hangar/internal/wharf"
)

// app bundles the wired-up subsystems a command works with.
type app struct {
	db        *database.DB
	store     *store.Store
	registry  *tasks.Registry
	queue     *queue.Queue
	performer *operations.Performer
	client    wharf.Client
	apiClient *api.Client
	index     bleve.Index
}

// openApp opens the database and wires the orchestration core together.
// The library index is only opened when a command needs it; it is the
// most expensive piece.
func openApp(withIndex bool) (*app, error) {
	cfg := globalConfig
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("DatabasePath is not configured")
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	a := &app{
		db:       db,
		store:    store.New(db),
		registry: tasks.NewRegistry(),
	}

	if withIndex {
		idx, err := openLibraryIndex()
		if err != nil {
			db.Close()
			return nil, err
		}
		a.index = idx
	}

	// No patcher subprocess transport ships with this build; install and
	// repair operations are served by the in-process stub client.
	a.client = &wharf.Fake{}

	stagingRoot := cfg.StagingPath
	if stagingRoot == "" {
		stagingRoot = filepath.Join(cfg.LibraryPath, "staging")
	}

	a.performer = &operations.Performer{
		Store:            a.store,
		Registry:         installer.NewRegistry(a.client),
		Client:           a.client,
		Index:            a.index,
		Credentials:      wharf.Credentials{APIKey: cfg.ApiKey},
		StagingRoot:      stagingRoot,
		InstallLocations: cfg.InstallLocations,
	}

	a.queue, err = queue.New(queue.Opts{
		Store:       a.store,
		Registry:    a.registry,
		Events:      queue.NopEvents{},
		Work:        a.performer.Perform,
		Parent:      context.Background(),
		StartPaused: cfg.StartPaused,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	a.performer.EnqueueHeal = func(cave *models.Cave) error {
		item, err := a.performer.NewHealItem(cave)
		if err != nil {
			return err
		}
		_, err = a.queue.Enqueue(item)
		return err
	}

	a.apiClient = api.NewClient(cfg.ApiKey, &http.Client{
		Timeout:   time.Duration(cfg.ApiClientTimeoutSec) * time.Second,
		Transport: globalHttpTransport,
	}, cfg)

	return a, nil
}

func (a *app) close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			log.WithError(err).Warn("Error closing library index")
		}
	}
	if err := a.db.Close(); err != nil {
		log.WithError(err).Warn("Error closing database")
	}
}

// newChecker builds an update checker over the app's store and client.
func (a *app) newChecker(onResult func(updates.Result)) *updates.Checker {
	return updates.NewChecker(updates.Opts{
		Client:       a.apiClient,
		Store:        a.store,
		IsRunning:    func(string) bool { return false },
		Interval:     time.Duration(globalConfig.UpdateCheckIntervalMin) * time.Minute,
		PerItemDelay: time.Duration(globalConfig.ApiDelayMs) * time.Millisecond,
		OnResult:     onResult,
	})
}

func openLibraryIndex() (bleve.Index, error) {
	return index.OpenOrCreateIndex(globalConfig.IndexPath)
}
