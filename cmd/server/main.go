package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karnies/moomanager/internal/backup"
	"github.com/karnies/moomanager/internal/config"
	"github.com/karnies/moomanager/internal/database"
	"github.com/karnies/moomanager/internal/logger"
	"github.com/karnies/moomanager/internal/marketcal"
	"github.com/karnies/moomanager/internal/portfolio"
	"github.com/karnies/moomanager/internal/pricecache"
	"github.com/karnies/moomanager/internal/yahoo"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Quote source, price cache and services
	quotes := yahoo.NewClient(&cfg.Yahoo, log)
	cache := pricecache.NewCache(db, quotes, log)
	portfolioSvc := portfolio.NewService(log, db, cache)
	backupSvc := backup.NewService(log, db)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Scheduled post-close refresh of all active symbols, pinned to the
	// exchange timezone.
	scheduler := cron.New(cron.WithLocation(marketcal.Eastern))
	_, err = scheduler.AddFunc(cfg.Refresh.Cron, func() {
		stocks, err := portfolioSvc.ListStocks(true)
		if err != nil {
			log.Error("Scheduled refresh failed to list stocks", zap.Error(err))
			return
		}
		symbols := make([]string, 0, len(stocks))
		for _, s := range stocks {
			symbols = append(symbols, s.Symbol)
		}
		log.Info("Running scheduled price refresh", zap.Int("symbols", len(symbols)))
		cache.EnsureFresh(ctx, symbols, true)
	})
	if err != nil {
		log.Fatal("Invalid refresh cron expression", zap.String("cron", cfg.Refresh.Cron), zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Setup HTTP server
	apiHandler := NewAPIHandler(log, portfolioSvc, backupSvc, cfg.Portfolio.IncludeFee)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: apiHandler.Routes(),
	}

	go func() {
		log.Info("Starting API server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("API server failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down API server cleanly", zap.Error(err))
	}
	log.Info("Server has been shut down.")
}
