// Package daemon composes the bridge: provider adapter, ingestion engine,
// state machine, and the local gateway, wired together with fx.
package daemon

import (
	"context"
	"fmt"
	"os"

	"github.com/matheus3301/wabridge/internal/bus"
	"github.com/matheus3301/wabridge/internal/config"
	"github.com/matheus3301/wabridge/internal/gateway"
	"github.com/matheus3301/wabridge/internal/ingest"
	"github.com/matheus3301/wabridge/internal/lock"
	"github.com/matheus3301/wabridge/internal/logging"
	"github.com/matheus3301/wabridge/internal/session"
	"github.com/matheus3301/wabridge/internal/status"
	"github.com/matheus3301/wabridge/internal/store"
	"github.com/matheus3301/wabridge/internal/wa"
	qrterminal "github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
}

// Module returns the fx module for the bridge daemon, composing all
// providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideAdapter,
			provideDownloader,
			provideEngine,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus, logger *zap.Logger) *status.Machine {
	return status.NewMachine(b, logger)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.BridgeDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	count, err := db.MessageCount()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store initialized", zap.String("path", dbPath), zap.Int64("messages", count))
	return db, nil
}

func provideAdapter(p Params, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), p.SessionName, logger)
}

func provideDownloader(p Params, adapter *wa.Adapter, logger *zap.Logger) (*wa.Downloader, error) {
	dir := session.MediaDir(p.SessionName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return wa.NewDownloader(adapter.Client(), dir, logger), nil
}

func provideEngine(db *store.DB, b *bus.Bus, adapter *wa.Adapter, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, b, adapter, logger)
}

func provideServer(p Params, db *store.DB, machine *status.Machine, adapter *wa.Adapter, b *bus.Bus, logger *zap.Logger) *gateway.Server {
	return gateway.NewServer(p.Config.Port, p.Config.APISecret, db, machine, adapter, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *gateway.Server, lk *lock.Lock, adapter *wa.Adapter, downloader *wa.Downloader, engine *ingest.Engine, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(context.Background())
			srv.Hub().Run(context.Background())

			handler := wa.NewEventHandler(b, machine, downloader, logger)
			adapter.AddEventHandler(handler.Handle)
			machine.SetReconnector(adapter)

			machine.OnChallenge(func(code string) {
				fmt.Println("Scan this QR code with WhatsApp on your phone:")
				qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
				if err := qrcode.WriteFile(code, qrcode.Medium, 512, session.QRPath(p.SessionName)); err != nil {
					logger.Warn("could not write QR image", zap.Error(err))
				}
			})
			machine.OnReady(func() {
				logger.Info("session ready")
			})
			machine.OnDisconnected(func(reason string) {
				logger.Warn("session disconnected", zap.String("reason", reason))
			})

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gateway server error", zap.Error(err))
				}
			}()

			go func() {
				if err := adapter.Connect(); err != nil {
					logger.Error("connect failed", zap.Error(err))
					machine.MarkDisconnected("connect failed: "+err.Error(), false)
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			adapter.Disconnect()
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("error stopping gateway", zap.Error(err))
			}
			engine.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
