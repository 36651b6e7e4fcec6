// Package app assembles the gateway and its backends from configuration.
// The CLI, the MCP server and the HTTP daemon all start from here.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"musickit/channel"
	"musickit/config"
	"musickit/database"
	"musickit/jxa"
	"musickit/musickit"
	"musickit/storekit"
)

// versionProbeTimeout bounds the startup OS version query.
const versionProbeTimeout = 5 * time.Second

// VersionSource reports the operating system version.
type VersionSource interface {
	OSVersion(ctx context.Context) (string, error)
}

// App holds the wired components of a running process.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Gateway    *musickit.Gateway
	Dispatcher *channel.Dispatcher
	Journal    *database.DatabaseManager // nil when the journal is disabled
	Registry   *prometheus.Registry
}

// Backends overrides the default StoreKit helper and JXA player.
type Backends struct {
	Service musickit.CloudService
	Player  musickit.Player
	Version VersionSource
}

// New builds an App from cfg using the StoreKit helper and the Music app.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	helper := storekit.NewHelper(cfg.HelperPath, cfg.HelperTimeout, logger.Named("storekit"))
	player := jxa.NewPlayer(cfg.QueuePlaylist, logger.Named("jxa"))
	return NewWithBackends(ctx, cfg, logger, Backends{Service: helper, Player: player, Version: helper})
}

// NewWithBackends builds an App over the given backends.
func NewWithBackends(ctx context.Context, cfg config.Config, logger *zap.Logger, b Backends) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := musickit.Options{
		Logger:            logger.Named("gateway"),
		StorefrontTimeout: cfg.StorefrontTimeout,
	}
	if cfg.UseDatabase {
		dm, err := database.NewDatabaseManager(cfg.DBPath, logger.Named("journal"))
		if err != nil {
			return nil, fmt.Errorf("failed to open queue journal: %w", err)
		}
		a.Journal = dm
		opts.Journal = dm
	}

	a.Gateway = musickit.NewGateway(b.Service, b.Player, opts)
	a.Dispatcher = channel.NewDispatcher(a.Gateway, channel.Options{
		Supported: a.resolveSupport(ctx, b.Version),
		Logger:    logger.Named("channel"),
		Metrics:   channel.NewMetrics(a.Registry),
	})
	return a, nil
}

// resolveSupport runs the version gate once. A failed probe disables the
// channel.
func (a *App) resolveSupport(ctx context.Context, src VersionSource) bool {
	if a.Config.MinOSVersion == "" {
		return true
	}
	if src == nil {
		a.Logger.Warn("No OS version source, channel disabled")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	version, err := src.OSVersion(ctx)
	if err != nil {
		a.Logger.Warn("Failed to read OS version, channel disabled", zap.Error(err))
		return false
	}

	supported := channel.VersionSupported(version, a.Config.MinOSVersion)
	if !supported {
		a.Logger.Warn("OS version below minimum, channel disabled",
			zap.String("version", version),
			zap.String("minimum", a.Config.MinOSVersion))
	}
	return supported
}

// Close waits for background storefront refreshes and closes the journal.
func (a *App) Close() error {
	a.Gateway.Wait()
	if a.Journal != nil {
		return a.Journal.Close()
	}
	return nil
}
