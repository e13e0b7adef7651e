package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siteguardhq/siteguard/internal"
	"github.com/siteguardhq/siteguard/internal/agent"
	"github.com/siteguardhq/siteguard/internal/authz"
	"github.com/siteguardhq/siteguard/internal/email"
	"github.com/siteguardhq/siteguard/internal/handler"
	"github.com/siteguardhq/siteguard/internal/middleware"
	"github.com/siteguardhq/siteguard/internal/storage"
	"github.com/siteguardhq/siteguard/internal/store"
	"github.com/siteguardhq/siteguard/internal/vision"
	"github.com/siteguardhq/siteguard/internal/vision/anthropic"
	visionmock "github.com/siteguardhq/siteguard/internal/vision/mock"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	st := store.NewPostgresStore(db)

	// Photo archive
	var files storage.Storage
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		files, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		files, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Image analysis provider
	var analyzer vision.Analyzer
	switch cfg.AIProvider {
	case "anthropic":
		analyzer, err = anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
			ProviderConfig: vision.ProviderConfig{
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("analysis provider initialization failed: %w", err)
		}
	default:
		analyzer = visionmock.New(logger)
		logger.Warn("using mock image analysis provider")
	}

	// Delegated authorization provider
	var authProvider authz.Provider
	switch cfg.AuthProvider {
	case "google":
		authProvider = authz.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleRedirectURL)
	default:
		authProvider = &authz.MockProvider{}
		logger.Warn("using mock authorization provider")
	}
	authzManager := authz.NewManager(st, authProvider, logger)

	// Email delivery
	mailer := email.NewSMTPService(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, logger)

	// Conversation coordinator
	coordinator := agent.New(agent.Options{
		Analyzer:          analyzer,
		Store:             st,
		Authz:             authzManager,
		Email:             mailer,
		Files:             files,
		Logger:            logger,
		HistoryWindow:     cfg.HistoryWindow,
		DefaultRecipients: cfg.DefaultReportRecipients,
	})

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	metricsAuth := middleware.MetricsAuth(cfg.MetricsUsername, cfg.MetricsPassword)
	mux.Handle("GET /metrics", metricsAuth(promhttp.Handler()))

	// Locally stored photos are served straight from disk
	if cfg.StorageProvider == storage.ProviderLocal {
		fileServer := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", fileServer))
	}

	api := handler.NewAPI(coordinator, logger)
	api.RegisterRoutes(mux)

	root := middleware.Instrument(middleware.RequestLogging(logger)(mux))

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
