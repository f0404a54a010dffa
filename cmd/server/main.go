package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/config"
	"github.com/garyjia/approval-flow/internal/directory"
	"github.com/garyjia/approval-flow/internal/dispatcher"
	"github.com/garyjia/approval-flow/internal/engine"
	httpserver "github.com/garyjia/approval-flow/internal/interfaces/http"
	"github.com/garyjia/approval-flow/internal/lark"
	"github.com/garyjia/approval-flow/internal/notification"
	"github.com/garyjia/approval-flow/internal/repository"
	"github.com/garyjia/approval-flow/internal/resolver"
	"github.com/garyjia/approval-flow/internal/template"
	"github.com/garyjia/approval-flow/migrations"
	"github.com/garyjia/approval-flow/pkg/database"
	"github.com/garyjia/approval-flow/pkg/utils"
)

func main() {
	// Load .env if present; real deployments use environment variables
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Approval Flow Service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(migrations.FS); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	templateRepo := repository.NewTemplateRepository(db.DB, logger)
	documentRepo := repository.NewDocumentRepository(db.DB, logger)
	snapshotRepo := repository.NewSnapshotRepository(db.DB, logger)

	// Directory gateway
	var larkClient *lark.Client
	var gateway directory.Gateway
	switch cfg.Directory.Mode {
	case "lark":
		larkClient = lark.NewClient(lark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
		}, logger)
		gateway = directory.NewLarkGateway(larkClient, logger)
	default:
		gateway = directory.NewStaticGateway()
		logger.Warn("Using static directory gateway; employee data must be seeded")
	}

	retry := &directory.RetryStrategy{
		MaxAttempts: cfg.Directory.RetryAttempts,
		BaseBackoff: cfg.Directory.RetryBackoff,
		MaxBackoff:  cfg.Directory.MaxBackoff,
		Jitter:      true,
	}

	// Core services
	templateStore := template.NewStore(db, templateRepo, logger)
	lineResolver := resolver.New(templateStore, gateway, retry, logger)

	events := dispatcher.New(logger)
	defer events.Close()

	approvalEngine := engine.New(db, documentRepo, snapshotRepo, lineResolver, events, logger)

	// Approver notifications ride on the event dispatcher
	if cfg.Notification.Enabled {
		if larkClient == nil {
			larkClient = lark.NewClient(lark.Config{
				AppID:     cfg.Lark.AppID,
				AppSecret: cfg.Lark.AppSecret,
			}, logger)
		}
		messageAPI := lark.NewMessageAPI(larkClient, logger)
		notifier := notification.NewApproverNotifier(messageAPI, snapshotRepo, documentRepo, logger)
		notifier.Register(events)
		logger.Info("Approver notifications enabled")
	}

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, approvalEngine, lineResolver, templateStore, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
