package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/fieldcipher/internal/api"
	"github.com/kenneth/fieldcipher/internal/audit"
	"github.com/kenneth/fieldcipher/internal/classification"
	"github.com/kenneth/fieldcipher/internal/config"
	"github.com/kenneth/fieldcipher/internal/crypto"
	"github.com/kenneth/fieldcipher/internal/masterkey"
	"github.com/kenneth/fieldcipher/internal/metrics"
	"github.com/kenneth/fieldcipher/internal/middleware"
	"github.com/kenneth/fieldcipher/internal/tracing"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Set log level from config
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
	}).Info("Starting fieldcipher service")

	// Initialize metrics
	m := metrics.NewMetrics()
	m.StartSystemMetricsCollector()

	// Initialize tracing
	shutdownTracing, err := tracing.Init(context.Background(), cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}

	// Initialize master key provider and encryption engine. The key value
	// itself never appears in configuration or logs.
	keys := masterkey.NewLoader(cfg.Encryption.KeyFile, cfg.IsProduction(), logger)
	engine, err := crypto.NewEngine(keys)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create encryption engine")
	}
	engine.SetMaxDepth(cfg.Encryption.MaxObjectDepth)
	engine.SetKDFObserver(func(c classification.Classification, d time.Duration) {
		m.RecordKDFDuration(string(c), d)
	})

	// Run the self-test before accepting traffic so a miswired key or
	// broken cipher fails loudly at startup.
	report := engine.SelfTest()
	m.RecordSelfTest(report.Passed)
	if !report.Passed {
		for _, res := range report.Results {
			if !res.Passed {
				logger.WithFields(logrus.Fields{
					"classification": res.Classification,
					"failure":        res.Failure,
				}).Error("Self-test tier failed")
			}
		}
		logger.Fatal("Engine self-test failed")
	}
	logger.Info("Engine self-test passed")

	// Compile field policies
	policies, err := config.NewPolicyMatcher(cfg.Policies)
	if err != nil {
		logger.WithError(err).Fatal("Failed to compile field policies")
	}

	// Watch the config file for policy changes
	reloader, err := config.NewConfigReloader(configPath, cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Config reloading disabled")
	} else {
		defer reloader.Stop()
		reloader.OnReload(func(updated *config.Config) {
			if err := policies.Reload(updated.Policies); err != nil {
				logger.WithError(err).Error("Failed to reload field policies")
				return
			}
			logger.WithField("policies", len(updated.Policies)).Info("Field policies reloaded")
		})
	}

	// Initialize audit logger if enabled
	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogger(cfg.Audit.MaxEvents, nil)
		logger.WithFields(logrus.Fields{
			"max_events": cfg.Audit.MaxEvents,
		}).Info("Audit logging enabled")
	}

	// Initialize API handler
	handler := api.NewHandler(engine, logger, m, auditLogger, policies, cfg)

	// Setup router
	router := mux.NewRouter()

	// Register metrics endpoint
	router.Handle("/metrics", m.Handler()).Methods("GET")

	// Register API routes
	handler.RegisterRoutes(router)

	// Apply middleware
	httpHandler := http.Handler(router)
	if cfg.Tracing.Enabled {
		httpHandler = middleware.TracingMiddleware(cfg.Tracing.RedactSensitive)(httpHandler)
	}

	// Add rate limiting if enabled
	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			cfg.RateLimit.Limit,
			cfg.RateLimit.Window,
			logger,
		)
		defer rateLimiter.Stop()
		httpHandler = middleware.RateLimitMiddleware(rateLimiter)(httpHandler)
		logger.WithFields(logrus.Fields{
			"limit":  cfg.RateLimit.Limit,
			"window": cfg.RateLimit.Window,
		}).Info("Rate limiting enabled")
	}

	httpHandler = middleware.SecurityHeadersMiddleware()(httpHandler)
	httpHandler = middleware.MetricsMiddleware(m)(httpHandler)
	httpHandler = middleware.LoggingMiddleware(logger)(httpHandler)
	httpHandler = middleware.RecoveryMiddleware(logger)(httpHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpHandler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		var err error
		if cfg.TLS.Enabled {
			logger.WithFields(logrus.Fields{
				"addr":      cfg.ListenAddr,
				"cert_file": cfg.TLS.CertFile,
			}).Info("Starting HTTPS server")
			err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			logger.WithField("addr", cfg.ListenAddr).Info("Starting HTTP server")
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.WithError(err).Error("Failed to shut down tracing")
	}

	logger.Info("Server exited")
}
