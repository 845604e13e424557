package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	"github.com/nutrivida/api/internal/audit"
	"github.com/nutrivida/api/internal/auth"
	"github.com/nutrivida/api/internal/config"
	"github.com/nutrivida/api/internal/httpapi"
	"github.com/nutrivida/api/internal/provision"
	"github.com/nutrivida/api/internal/repository"
	"github.com/nutrivida/api/internal/social"
	"github.com/nutrivida/api/internal/social/providers/facebook"
	"github.com/nutrivida/api/internal/social/providers/google"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DBDSN)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	if cfg.DBDriver == "sqlite" {
		if err := repository.CreateSchema(context.Background(), db); err != nil {
			logger.Fatal("failed to bootstrap schema", zap.Error(err))
		}
	}

	manager := repository.NewManager(db)
	if err := manager.Validate(); err != nil {
		logger.Fatal("invalid repository wiring", zap.Error(err))
	}

	credentials := auth.NewCredentialStore(cfg.BcryptCost)
	tokens := auth.NewTokenService(db, logger)
	recorder := audit.NewZapRecorder(logger)

	workflow := provision.NewWorkflow(
		manager,
		credentials,
		tokens,
		recorder,
		logger,
		provision.WithPhoneRegion(cfg.PhoneRegion),
		provision.WithDeterministicIDs(cfg.DeterministicIDs),
	)

	bridge := social.NewBridge(
		manager,
		credentials,
		tokens,
		recorder,
		logger,
		cfg.FrontendURL,
		google.New(google.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			CallbackURL:  cfg.GoogleRedirectURI(),
		}),
		facebook.New(facebook.Config{
			ClientID:     cfg.Facebook.ClientID,
			ClientSecret: cfg.Facebook.ClientSecret,
			CallbackURL:  cfg.FacebookRedirectURI(),
		}),
	)

	server := httpapi.New(cfg, manager, workflow, bridge, tokens, recorder, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if err := server.Listen(cfg.ListenAddr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.AppDebug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
