package cli

import (
	"bufio"
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kith-app/kith/internal/client/approval"
	"github.com/kith-app/kith/internal/client/config"
	"github.com/kith-app/kith/internal/client/database"
	"github.com/kith-app/kith/internal/client/keyvault"
	"github.com/kith-app/kith/internal/client/localstore"
	"github.com/kith-app/kith/internal/client/remote"
	"github.com/kith-app/kith/internal/client/services"
	"github.com/kith-app/kith/internal/client/session"
	"github.com/kith-app/kith/internal/client/syncengine"
	"github.com/kith-app/kith/internal/filex"
	"github.com/kith-app/kith/internal/logging"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

type App struct {
	config      *config.Config
	authService services.AuthService
	records     services.RecordService
	approval    *approval.Flow
	engine      *syncengine.Engine
	vault       *keyvault.Vault
	repos       *database.Repositories
	logger      logging.Logger
	userName    string
	loggedIn    bool
	Mode        Mode
	reader      *bufio.Reader
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	dataDir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, err
	}

	repos, err := database.Init(ctx, filepath.Join(dataDir, "kith.db"))
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	sess := session.New("", "")
	apiClient := remote.NewHTTPClient(c.ServerEndpointAddr, sess)

	logger := logging.NewSlogLogger(slog.Default())
	vault := keyvault.New(repos.Metadata)
	store := localstore.New(repos.DB)

	as := services.NewAuthService(apiClient, vault, repos.Metadata, sess)
	rs := services.NewRecordService(store)
	flow := approval.New(vault, repos.Devices, repos.Metadata, apiClient, logger)

	engine := syncengine.New(store.Sync(), repos.Queue, repos.Metadata, apiClient, vault, logger, syncengine.Config{
		BatchSize:      c.SyncBatchSize,
		MaxAttempts:    c.SyncMaxAttempts,
		TickInterval:   c.SyncInterval,
		TombstoneGrace: c.TombstoneGrace,
	})

	return &App{
		config:      c,
		authService: as,
		records:     rs,
		approval:    flow,
		engine:      engine,
		vault:       vault,
		repos:       repos,
		logger:      logger,
		reader:      bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

func (a *App) Run(ctx context.Context) {
	defer a.authService.Close(ctx)

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	go func() {
		if err := a.engine.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error(ctx, "sync engine stopped", "error", err)
		}
	}()

	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.loggedIn
}

// StartOnlineStatusWatcher probes the server on an interval and keeps the
// Mode in step, nudging the sync engine when connectivity returns.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.authService.Ping(pingCtx)
			cancel()

			if err != nil {
				if a.Mode == ModeOnline {
					a.setMode(ModeOffline)
				}
			} else {
				if a.Mode != ModeOnline {
					a.setMode(ModeOnline)
					a.engine.Trigger()
				}
			}

		case <-ctx.Done():
			return
		}
	}
}
