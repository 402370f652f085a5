package main

import (
	"context"   // Startup and shutdown deadlines
	"errors"    // Error matching
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal notification
	"syscall"   // SIGTERM

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logrus for structured logging

	"payment_broker/internal/api"     // Custom package for API handlers
	"payment_broker/internal/app"     // Service wiring
	"payment_broker/internal/config"  // Custom package for configuration
	"payment_broker/internal/logging" // Logger setup with secret redaction
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig()                                // Load configuration
	logging.Setup(cfg.LogLevel, cfg.IsProd, cfg.Secrets()...) // Setup logger

	// Connect the database, Redis and gateways
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logrus.Fatalf("failed to start: %v", err) // Fatal error if a dependency is unreachable
	}
	defer a.Close()

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := api.NewRouter(api.Deps{
		DB:        a.DB,          // Users and health
		Redis:     a.Redis,       // Cache
		Store:     a.Store,       // Reporting
		Payments:  a.Payments,    // Payment lifecycle
		Webhooks:  a.Webhooks,    // Provider callbacks
		Wallet:    a.Wallet,      // Application wallet
		OTP:       a.OTP,         // Phone verification
		JWTSecret: cfg.JWTSecret, // Token signing key
		JWTTTL:    cfg.JWTTTL,    // Token lifetime
	})

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe() // Start the server on port cfg.AppPort
	}()
	logrus.WithFields(a.Describe()).Info("Server running on " + cfg.AppPort) // Log server start

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logrus.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("error", err.Error()).Error("Server stopped unexpectedly")
		}
	}

	// Let in-flight requests finish, webhooks included
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithField("error", err.Error()).Error("Graceful shutdown failed")
	}
}
