package db

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/arencloud/stratus/internal/config"
	"github.com/arencloud/stratus/internal/logging"
	"github.com/arencloud/stratus/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Init opens the instance registry and migrates its schema. The registry is a
// local sqlite file by default; DB_DRIVER=postgres switches to a DSN-backed
// server the same way the rest of the config layer does.
func Init(cfg *config.Config, logger logging.Logger) (*gorm.DB, error) {
	// Route GORM output through the structured logger so SQL logs are not plain text
	var gormLevel gormlogger.LogLevel
	switch strings.ToLower(logging.GetLevel()) {
	case "debug":
		gormLevel = gormlogger.Info // log SQL traces at debug level
	case "error", "fatal":
		gormLevel = gormlogger.Error
	default:
		gormLevel = gormlogger.Warn
	}
	gormLogger := newGormLogger(logger, gormLevel)

	var dialector gorm.Dialector
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if driver == "postgres" || driver == "postgresql" {
		if cfg.DBDsn == "" {
			return nil, &os.PathError{Op: "open", Path: "DATABASE_URL/DB_DSN", Err: os.ErrInvalid}
		}
		dialector = postgres.Open(cfg.DBDsn)
		logger.Info("registry connect", "driver", "postgres")
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(cfg.DBPath)
		logger.Info("registry connect", "driver", "sqlite", "path", cfg.DBPath)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}
	if err := gdb.AutoMigrate(&models.DBInstance{}); err != nil {
		return nil, err
	}
	return gdb, nil
}
