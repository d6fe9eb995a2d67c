package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/virtualdevices/internal/adapter/actor"
	"github.com/berfenger/virtualdevices/internal/config"
	"github.com/berfenger/virtualdevices/internal/core/actor"
	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/flow"
	"github.com/berfenger/virtualdevices/internal/core/service"
	"github.com/berfenger/virtualdevices/internal/plugin"
	"github.com/berfenger/virtualdevices/internal/server"
	"github.com/berfenger/virtualdevices/internal/storage"
	"github.com/berfenger/virtualdevices/internal/util/actorutil"
	"github.com/berfenger/virtualdevices/pkg/gpioline"
	"github.com/berfenger/virtualdevices/pkg/modbuscoil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const MODBUS_TIMEOUT = 2 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the device host",
	RunE:  runServe,
}

// services holds what both serve and the offline commands open.
type services struct {
	cfg    *config.Config
	db     *storage.DB
	store  *storage.SQLiteEntryStore
	lines  *gpioline.Registry
	coils  *modbuscoil.Pool
	loader *plugin.Loader
	logger *zap.Logger
}

func openServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*services, error) {
	if cfg.Plugins.SeedBuiltin {
		n, err := plugin.SeedBuiltins(cfg.Plugins.BuiltinDir)
		if err != nil {
			return nil, fmt.Errorf("seeding built-in plugins: %w", err)
		}
		logger.Debug("main: built-in plugins seeded", zap.Int("written", n))
	}

	db, err := storage.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	lines := gpioline.NewRegistry(logger,
		gpioline.WithLockTimeout(cfg.GPIO.LockTimeout()),
		gpioline.WithPulseOverhead(cfg.GPIO.PulseOverhead()))
	coils := modbuscoil.NewPool(modbuscoil.TCPDialer, MODBUS_TIMEOUT, logger)

	loader := plugin.NewLoader(cfg.Plugins.OverrideDir, cfg.Plugins.BuiltinDir, logger,
		plugin.LogAPI{},
		plugin.GPIOAPI{Lines: lines, ChipGlob: cfg.GPIO.ChipGlob},
		plugin.ModbusAPI{Coils: coils},
	)

	return &services{
		cfg:    cfg,
		db:     db,
		store:  storage.NewSQLiteEntryStore(db),
		lines:  lines,
		coils:  coils,
		loader: loader,
		logger: logger,
	}, nil
}

func (r *services) Close() {
	r.coils.Close()
	r.lines.Close()
	r.db.Close()
}

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func runServe(cmd *cobra.Command, args []string) error {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		return fmt.Errorf("config errors: %w", err)
	}
	safePrintConfig(*cfg)

	// zap logger
	logger := buildLogger(cfg)
	defer logger.Sync()

	ctx := context.Background()
	svc, err := openServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	assembler := service.NewAssembler(svc.loader, versioninfo.Short(), logger)
	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewHostActor(svc.store, assembler, registrarProvider(cfg, logger), logger)
	})
	pid, err := root.SpawnNamed(props, domain.ACTOR_ID_HOST)
	if err != nil {
		return err
	}
	host := actor.NewHostClient(root, pid)

	if cfg.Plugins.Watch {
		watcher, err := plugin.NewWatcher(svc.loader, func(ev domain.PluginChangedEvent) {
			host.PluginChanged(ev.Name, ev.Mixin)
		}, logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	if interval := cfg.Monitor.PollInterval(); interval > 0 {
		poller := actor.NewPoller(root, pid, interval, logger)
		if err := poller.Start(ctx); err != nil {
			return err
		}
		defer poller.Stop(ctx)
	}

	flows := flow.NewManager(flow.Deps{
		Store:    svc.store,
		Reloader: host,
		Catalog:  svc.loader,
		Classes:  domain.StaticDeviceClasses{},
		Logger:   logger,
	})

	srv := server.NewServer(*cfg, server.Deps{
		Host:    host,
		Flows:   flows,
		Catalog: svc.loader,
		Store:   svc.store,
		Logger:  logger,
	})
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(srv, done)

	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	if err := root.StopFuture(pid).Wait(); err != nil {
		logger.Warn("main: host stop", zap.Error(err))
	}
	as.Shutdown()
	return nil
}

func registrarProvider(cfg *config.Config, logger *zap.Logger) actor.RegistrarProvider {
	if !cfg.MQTT.Enable {
		return nil
	}
	return func() pactor.Actor {
		return adactor.NewMQTTActor(cfg, logger)
	}
}
