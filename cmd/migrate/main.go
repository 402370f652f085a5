package main

import (
	"github.com/sirupsen/logrus" // Logrus for structured logging

	"payment_broker/internal/config"  // Custom import path (Config)
	"payment_broker/internal/db"      // Custom import path (Database)
	"payment_broker/internal/logging" // Logger setup with secret redaction
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig()                                // Load configuration
	logging.Setup(cfg.LogLevel, cfg.IsProd, cfg.Secrets()...) // Setup logger

	gdb, err := db.Open(cfg.DBDriver, db.DSN(cfg)) // Connect to the configured database
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("%v", err) // Fatal error if migration fails
	}
	logrus.WithField("driver", cfg.DBDriver).Info("Database migrated successfully")
}
