package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/brightfields/schoolbank-backend/api/routes"
	"github.com/brightfields/schoolbank-backend/internal/accounts"
	"github.com/brightfields/schoolbank-backend/internal/ledger"
	"github.com/brightfields/schoolbank-backend/internal/loans"
	"github.com/brightfields/schoolbank-backend/internal/maintenance"
	"github.com/brightfields/schoolbank-backend/internal/overdue"
	"github.com/brightfields/schoolbank-backend/pkg/config"
	"github.com/brightfields/schoolbank-backend/pkg/db"
	"github.com/brightfields/schoolbank-backend/pkg/logger"
	"github.com/brightfields/schoolbank-backend/pkg/migrate"
	"github.com/brightfields/schoolbank-backend/pkg/pupils"
	"github.com/brightfields/schoolbank-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.Ledger, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	accountsRepo := accounts.NewRepository(dbClient.DB())
	loansRepo := loans.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	directory := pupils.NewDirectory(dbClient.DB())

	var summaryCache accounts.SummaryCache
	if cfg.FeatureFlags.SummaryCache {
		summaryCache = redisClient
	}

	accountsSvc, err := accounts.NewService(accounts.ServiceParams{
		Repo:   accountsRepo,
		Loans:  loansRepo,
		Pupils: directory,
		Tx:     dbClient,
		Cache:  summaryCache,
		Config: cfg.Ledger,
	})
	requireService(logg, "accounts", err)

	loansSvc, err := loans.NewService(loans.ServiceParams{
		Repo:     loansRepo,
		Accounts: accountsRepo,
		Ledger:   ledgerRepo,
		Tx:       dbClient,
		Cache:    summaryCache,
	})
	requireService(logg, "loans", err)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:     ledgerRepo,
		Accounts: accountsRepo,
		Loans:    loansRepo,
		Tx:       dbClient,
		Cache:    summaryCache,
	})
	requireService(logg, "ledger", err)

	collector, err := overdue.NewCollector(overdue.CollectorParams{
		Accounts: accountsRepo,
		Loans:    loansRepo,
		Ledger:   ledgerRepo,
		Tx:       dbClient,
		Cache:    summaryCache,
		Logg:     logg,
	})
	requireService(logg, "overdue", err)

	maintenanceSvc, err := maintenance.NewService(maintenance.ServiceParams{
		Repo:      maintenance.NewRepository(dbClient.DB()),
		Tx:        dbClient,
		Cache:     redisClient,
		BatchSize: cfg.Ledger.MaintenanceBatchSize,
		Logg:      logg,
	})
	requireService(logg, "maintenance", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Accounts:    accountsSvc,
			Loans:       loansSvc,
			Ledger:      ledgerSvc,
			Overdue:     collector,
			Maintenance: maintenanceSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+name+" service", err)
	os.Exit(1)
}
