package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dairy-billing/internal/backup"
	"dairy-billing/internal/cache"
	"dairy-billing/internal/config"
	h "dairy-billing/internal/http"
	"dairy-billing/internal/handlers"
	"dairy-billing/internal/health"
	"dairy-billing/internal/logging"
	"dairy-billing/internal/middleware"
	"dairy-billing/internal/models"
	"dairy-billing/internal/netcheck"
	"dairy-billing/internal/repositories"
	"dairy-billing/internal/services"
	"dairy-billing/internal/sms"
	"dairy-billing/internal/timeutil"
	"dairy-billing/internal/whatsapp"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		logger.Fatal("data directory unavailable", zap.String("dir", cfg.Data.Dir), zap.Error(err))
	}

	// Redis is optional; every cache call is a no-op without it
	if err := cache.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		logger.Warn("cache unavailable, continuing without it", zap.Error(err))
	} else if cfg.Redis.Addr != "" {
		logger.Info("cache connected", zap.String("addr", cfg.Redis.Addr))
	}
	defer cache.Close()

	// Repositories
	customerRepo := repositories.NewCustomerRepository(cfg.CustomersDir(), logger)
	ledgerRepo := repositories.NewLedgerRepository(cfg.MonthlyDir(), logger)
	statusRepo := repositories.NewSendStatusRepository(cfg.StatusDir(), logger)
	profileRepo := repositories.NewProfileRepository(cfg.ProfilePath())

	// Services
	clock := timeutil.Now
	customerService := services.NewCustomerService(customerRepo, cfg.Data.MaxUndo, logger)
	ledgerService := services.NewLedgerService(ledgerRepo, customerRepo, cfg.Billing.DefaultRate, clock, logger)
	customerService.Subscribe(ledgerService.OnRosterChange)
	customerService.Subscribe(func(ctx context.Context, _ services.RosterEvent) {
		cache.InvalidateRosterCaches(ctx)
	})
	billingService := services.NewBillingService(ledgerRepo, logger)
	profileService := services.NewProfileService(profileRepo, logger)
	reportService := services.NewReportService(customerRepo, billingService, statusRepo, profileService, clock, logger)

	channel, providerName, err := buildChannel(cfg, logger)
	if err != nil {
		logger.Fatal("delivery channel", zap.Error(err))
	}

	sendService := services.NewSendService(ledgerService, statusRepo, profileService, channel,
		netcheck.NewTCPProbe(cfg.NetCheck.Address, cfg.NetCheck.Timeout),
		services.SendOptions{SendDelay: cfg.Delivery.SendDelay, FailureDelay: cfg.Delivery.FailureDelay},
		clock, logger)
	sendService.AfterFinalize = func(p models.Period) {
		cache.InvalidateMonth(context.Background(), p.Key())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backupService := buildBackup(ctx, cfg, clock, logger)
	if backupService != nil {
		go backupService.Schedule(ctx, cfg.Backup.Interval)
		logger.Info("scheduled backups enabled",
			zap.String("bucket", cfg.Backup.Bucket), zap.Duration("interval", cfg.Backup.Interval))
	}

	// Handlers
	router := h.NewRouter(h.Handlers{
		Customer: handlers.NewCustomerHandler(customerService, billingService),
		Ledger:   handlers.NewLedgerHandler(ledgerService, billingService),
		Report:   handlers.NewReportHandler(reportService),
		Session:  handlers.NewSessionHandler(sendService, logger),
		Settings: handlers.NewSettingsHandler(profileService, ledgerService, providerName),
		Backup:   handlers.NewBackupHandler(backupService),
		Health:   handlers.NewHealthHandler(health.NewHealthChecker(cfg.Data.Dir)),
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           middleware.NewCORS(cfg)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server running", zap.String("addr", srv.Addr), zap.String("provider", providerName))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	// In-flight sends finish and the month is finalized before exit
	if err := sendService.Shutdown(shutdownCtx); err != nil {
		logger.Error("send sessions did not finish", zap.Error(err))
	}
}

// buildChannel wires the configured WhatsApp provider with the optional SMS fallback.
func buildChannel(cfg *config.Config, logger *zap.Logger) (*whatsapp.MessagingService, string, error) {
	provider, err := whatsapp.New(whatsapp.Config{
		Provider:      cfg.Delivery.Provider,
		APIKey:        cfg.Delivery.APIKey,
		PhoneNumberID: cfg.Delivery.PhoneNumberID,
		Template:      cfg.Delivery.Template,
	})
	if err != nil {
		return nil, "", err
	}

	var fallback whatsapp.SMSSender
	if cfg.Delivery.SMSFallback {
		if cfg.Delivery.Fast2SMSAPIKey != "" {
			fallback = sms.NewFast2SMSService(cfg.Delivery.Fast2SMSAPIKey, logger)
		} else {
			logger.Warn("sms fallback enabled without FAST2SMS_API_KEY, using mock sender")
			fallback = sms.NewMockSMSService(logger)
		}
	}

	ms := whatsapp.NewMessagingService(provider, fallback, logger)
	return ms, ms.ProviderName(), nil
}

func buildBackup(ctx context.Context, cfg *config.Config, clock timeutil.Clock, logger *zap.Logger) *backup.Service {
	if !cfg.Backup.Enabled {
		return nil
	}
	client, err := backup.NewS3Client(ctx, backup.Options{
		Endpoint:  cfg.Backup.Endpoint,
		Region:    cfg.Backup.Region,
		Bucket:    cfg.Backup.Bucket,
		AccessKey: cfg.Backup.AccessKey,
		SecretKey: cfg.Backup.SecretKey,
		Prefix:    cfg.Backup.Prefix,
	})
	if err != nil {
		logger.Warn("backup disabled, object storage client failed", zap.Error(err))
		return nil
	}
	return backup.NewService(cfg.Data.Dir, cfg.Backup.Bucket, cfg.Backup.Prefix, client, clock, logger)
}
