// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "dataexplorer-comm/docs"
	"dataexplorer-comm/internal/comm"
	"dataexplorer-comm/internal/config"
	"dataexplorer-comm/internal/database"
	"dataexplorer-comm/internal/handler"
	"dataexplorer-comm/internal/mqtt"
	"dataexplorer-comm/internal/protocol"
	"dataexplorer-comm/internal/repository"
	"dataexplorer-comm/internal/routes"
	"dataexplorer-comm/internal/service"
	"dataexplorer-comm/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	// Services
	portService        *service.PortService
	acquisitionService *service.AcquisitionService

	// Repositories
	sessionRepo  repository.SessionRepository
	telegramRepo repository.TelegramRepository

	// Side channels
	wsHandler *handler.WebSocketHandler
	publisher *mqtt.Publisher

	cancel context.CancelFunc
}

// @title DataExplorer Comm API
// @version 1.0.0
// @description Device port diagnostics and telegram acquisition

// @host localhost:8085
// @BasePath /
func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, version) and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *migrateCmd != "" {
		if err := runMigration(cfg, *migrateCmd); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app, err := NewApplication(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer utils.LogPanic(app.logger)

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// runMigration runs a single migration command against the recorder database
func runMigration(cfg *config.Config, command string) error {
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer utils.CloseLogger(logger)

	migrator := database.NewMigrator(cfg.GetDatabaseDSN(), logger, &cfg.Database)
	switch command {
	case "up":
		return migrator.Up()
	case "down":
		return migrator.Down()
	case "version":
		version, err := migrator.Status()
		if err != nil {
			return err
		}
		logger.Info("Database schema version", zap.Uint("version", version))
		return nil
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "dataexplorer-comm")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg.Port)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.initializeRepositories()

	if err := app.initializeSideChannels(); err != nil {
		return nil, fmt.Errorf("failed to initialize side channels: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initializeServer()

	return app, nil
}

// initializeDatabase sets up the recorder connection and runs migrations
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Telegram recording disabled")
		return nil
	}

	dsn := app.config.GetDatabaseDSN()
	if err := database.NewMigrator(dsn, app.logger, &app.config.Database).Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	db, err := database.NewConnection(&app.config.Database, dsn, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() {
	if app.database == nil {
		return
	}
	app.sessionRepo = repository.NewSessionRepository(app.database, app.logger)
	app.telegramRepo = repository.NewTelegramRepository(app.database, app.logger)

	app.logger.Info("Repositories initialized successfully")
}

// initializeSideChannels creates the websocket hub and the MQTT publisher
func (app *Application) initializeSideChannels() error {
	app.wsHandler = handler.NewWebSocketHandler(app.logger)

	if app.config.MQTT.Enabled {
		app.publisher = mqtt.NewPublisher(app.config.MQTT, app.logger)
		if err := app.publisher.Connect(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
	}
	return nil
}

// initializeServices creates the port binding and the services on top of it
func (app *Application) initializeServices() error {
	kind, err := protocol.ParseKind(app.config.Port.Kind)
	if err != nil {
		return err
	}

	binding, err := protocol.CreateChannel(kind, protocol.Settings{
		ReadTick:  app.config.Port.ReadTick,
		USB:       service.USBSettings(app.config),
		Simulator: service.SimulatorSettings(app.config),
		TCP:       service.TCPSettings(app.config),
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create port binding: %w", err)
	}

	status := comm.StatusFanout{app.wsHandler}
	publishers := []service.TelegramPublisher{app.wsHandler}
	if app.publisher != nil {
		status = append(status, app.publisher)
		publishers = append(publishers, app.publisher)
	}

	app.portService, err = service.NewPortService(app.config, binding, service.PortServiceOption{
		Lister: protocol.NewPortLister(kind, app.logger),
		Status: status,
	}, app.logger)
	if err != nil {
		return err
	}

	app.acquisitionService, err = service.NewAcquisitionService(
		app.portService,
		app.sessionRepo,
		app.telegramRepo,
		app.config,
		app.logger,
		publishers...,
	)
	if err != nil {
		return err
	}

	app.logger.Info("Services initialized successfully", zap.String("kind", string(kind)))
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	var db handler.DatabaseChecker
	if app.database != nil {
		db = app.database
	}

	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		db,
		app.portService,
		app.acquisitionService,
		app.sessionRepo,
		app.telegramRepo,
		app.wsHandler,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.config.GetServerAddr()))
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices(ctx context.Context) {
	app.wsHandler.Start(ctx)

	if app.telegramRepo != nil && app.config.Database.Retention > 0 {
		go app.startCleanupService(ctx)
	}

	if app.config.Acquisition.AutoStart {
		startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := app.acquisitionService.Start(startCtx); err != nil {
			utils.LogError(app.logger, "Failed to auto-start acquisition", err)
		}
	}

	app.logger.Info("Background services started")
}

// startCleanupService removes telegrams older than the retention period
func (app *Application) startCleanupService(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	app.logger.Info("Cleanup service started",
		zap.Duration("retention", app.config.Database.Retention),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cleanupCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		deleted, err := app.telegramRepo.DeleteOlderThan(cleanupCtx, time.Now().Add(-app.config.Database.Retention))
		cancel()
		if err != nil {
			app.logger.Error("Failed to cleanup old telegrams", zap.Error(err))
		} else if deleted > 0 {
			app.logger.Info("Cleaned up old telegrams", zap.Int64("deleted", deleted))
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown stops the loop, closes the port and waits for the close to
// complete before releasing the remaining resources.
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "dataexplorer-comm")
	serviceLogger.LogServiceStop("shutdown signal received")

	timeout := app.config.Server.ShutdownTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.acquisitionService.Stop(ctx); err != nil && err != service.ErrAcquisitionNotRunning {
		app.logger.Error("Acquisition stop error", zap.Error(err))
	}

	if app.portService.Port().IsConnected() {
		if err := app.portService.Close(ctx); err != nil {
			app.logger.Error("Port close error", zap.Error(err))
		}
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.publisher != nil {
		app.publisher.Disconnect()
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start runs the HTTP server and blocks until shutdown
func (app *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices(ctx)

	app.waitForShutdown()

	return nil
}
