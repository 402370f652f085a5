package db

import (
	"fmt"                            // Error wrapping
	"payment_broker/internal/config" // Database settings
	"payment_broker/internal/domain" // Importing domain models
	"time"                           // Slow query threshold

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/driver/mysql"       // MySQL driver for GORM
	"gorm.io/driver/postgres"    // PostgreSQL driver for GORM (pgx)
	"gorm.io/driver/sqlite"      // SQLite driver for local runs and tests
	"gorm.io/gorm"               // GORM ORM library
	"gorm.io/gorm/logger"        // GORM logger levels
)

// DSN builds the Data Source Name for the configured driver
func DSN(cfg *config.Config) string {
	switch cfg.DBDriver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	case "sqlite":
		return cfg.DBName // File path
	default:
		return cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	}
}

// newLogger sends GORM warnings to w; lookup misses are expected and not logged
func newLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond, // Report slow queries
		LogLevel:                  logger.Warn,            // Errors and slow queries only
		IgnoreRecordNotFoundError: true,                   // Misses are normal control flow
		Colorful:                  false,                  // Plain text for log shippers
	})
}

// Open connects to the database with duplicate-key errors translated to gorm.ErrDuplicatedKey
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql", "":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,                               // Unique violations become gorm.ErrDuplicatedKey
		Logger:         newLogger(logrus.StandardLogger()), // Keep SQL out of info logs
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if driver == "sqlite" {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1) // SQLite allows a single writer
	}
	return gdb, nil
}

// Migrate performs automatic migration for the database schema
func Migrate(gdb *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := gdb.AutoMigrate(&domain.User{}, &domain.Transaction{}); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
