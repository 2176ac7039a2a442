// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/repository"
)

// Initialize opens the configured SQL database. Postgres connections go
// through the lib/pq driver.
func Initialize(cfg config.DatabaseConfig, log *logrus.Entry) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.New(postgres.Config{
			DriverName: "postgres",
			DSN:        cfg.DSN(),
		})
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLiteDSN())
	default:
		return nil, fmt.Errorf("database driver %q has no SQL connection", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.WithField("driver", cfg.Driver).Info("Database connection established")
	return db, nil
}

// OpenStore returns the repository store for the configured driver. The
// memory driver needs no database and loses its data on exit.
func OpenStore(cfg config.DatabaseConfig, log *logrus.Entry, migrate bool) (repository.Store, error) {
	if cfg.Driver == "memory" {
		log.Warn("Using in-memory store, data will not survive a restart")
		return repository.NewMemoryStore(), nil
	}

	db, err := Initialize(cfg, log)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := RunMigrations(db, log); err != nil {
			Close(db, log)
			return nil, err
		}
	}
	return repository.NewGormStore(db), nil
}

func RunMigrations(db *gorm.DB, log *logrus.Entry) error {
	log.Info("Running database migrations...")
	if err := repository.Migrate(db); err != nil {
		return err
	}
	log.Info("Database migrations completed successfully")
	return nil
}

func Close(db *gorm.DB, log *logrus.Entry) {
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Error("Error getting underlying sql.DB")
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Error("Error closing database connection")
		return
	}
	log.Info("Database connection closed")
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
