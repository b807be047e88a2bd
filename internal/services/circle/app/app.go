// Package app assembles the circle service process: data directory lock,
// store selection, engine, councils, event feed, and the HTTP API server.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	circleapi "github.com/osusu/osusu/internal/services/circle/api/http"
	"github.com/osusu/osusu/internal/services/circle/engine"
	"github.com/osusu/osusu/internal/services/circle/storage"
	circlebadger "github.com/osusu/osusu/internal/services/circle/storage/badger"
	circlesqlite "github.com/osusu/osusu/internal/services/circle/storage/sqlite"
	councilservice "github.com/osusu/osusu/internal/services/council/service"
	councilstorage "github.com/osusu/osusu/internal/services/council/storage"
	councilbadger "github.com/osusu/osusu/internal/services/council/storage/badger"
	councilsqlite "github.com/osusu/osusu/internal/services/council/storage/sqlite"
)

// Store backend names accepted by Config.Store.
const (
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
)

// lockFileName guards the data directory against concurrent daemons.
const lockFileName = "osusud.lock"

// Config defines the inputs for one daemon process.
type Config struct {
	// HTTPAddr is the JSON API listen address.
	HTTPAddr string
	// DataDir holds the store files and the daemon lock.
	DataDir string
	// Store picks the backend: sqlite (default) or badger.
	Store string
	// Logger receives process logs. Defaults to log.Default().
	Logger *log.Logger
}

// Run assembles the service and blocks until ctx is cancelled or the server
// fails.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	dataDir := strings.TrimSpace(cfg.DataDir)
	if dataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	// One daemon per data directory.
	fileLock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire data directory lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("data directory %s is locked by another process", dataDir)
	}
	defer fileLock.Unlock()

	circles, councils, err := openStores(dataDir, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer circles.Close()
	defer councils.Close()

	feed := circleapi.NewFeedHub()
	eng, err := engine.New(engine.Config{Store: circles, Publisher: feed})
	if err != nil {
		return err
	}
	councilSvc, err := councilservice.New(councils, nil)
	if err != nil {
		return err
	}

	grants, err := circleapi.LoadGrantConfigFromEnv(nil)
	if err != nil {
		return err
	}

	handler, err := circleapi.NewHandler(circleapi.HandlerConfig{
		Engine:   eng,
		Councils: councilSvc,
		Feed:     feed,
		Grants:   grants,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	server, err := circleapi.NewServer(circleapi.ServerConfig{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	})
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx)
}

// openStores opens the circle and council stores on the selected backend
// inside dataDir. On success both stores share that backend.
func openStores(dataDir, backend string, logger *log.Logger) (storage.CircleStore, councilstorage.CouncilStore, error) {
	switch strings.TrimSpace(strings.ToLower(backend)) {
	case "", StoreSQLite:
		circles, err := circlesqlite.Open(filepath.Join(dataDir, "circles.db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open circle store: %w", err)
		}
		councils, err := councilsqlite.Open(filepath.Join(dataDir, "councils.db"))
		if err != nil {
			circles.Close()
			return nil, nil, fmt.Errorf("open council store: %w", err)
		}
		return circles, councils, nil
	case StoreBadger:
		circles, err := circlebadger.Open(circlebadger.Config{
			Path:       filepath.Join(dataDir, "circles"),
			SyncWrites: true,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open circle store: %w", err)
		}
		councils, err := councilbadger.Open(councilbadger.Config{
			Path:       filepath.Join(dataDir, "councils"),
			SyncWrites: true,
			Logger:     logger,
		})
		if err != nil {
			circles.Close()
			return nil, nil, fmt.Errorf("open council store: %w", err)
		}
		return circles, councils, nil
	default:
		return nil, nil, fmt.Errorf("store backend %q is not supported", backend)
	}
}
