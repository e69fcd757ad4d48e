package rds

import (
	"context"
	"os"
	"path/filepath"

	"github.com/arencloud/stratus/internal/logging"
	"github.com/arencloud/stratus/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// FileBackend stands in when no container engine is reachable: each instance
// becomes an empty single-file sqlite database at a well-known location, and
// the record tracks its path instead of a running service.
type FileBackend struct {
	dir    string
	logger logging.Logger
}

func NewFileBackend(dir string, logger logging.Logger) *FileBackend {
	return &FileBackend{dir: dir, logger: logger}
}

func (b *FileBackend) Provision(ctx context.Context, inst *models.DBInstance, _ string) (string, error) {
	if !SupportedEngine(inst.Engine) {
		return "", ErrInvalidEngine
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(b.dir, inst.ID+".sqlite")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return "", err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	b.logger.Info("created local database file", "instance", inst.ID, "path", path)
	return path, nil
}

// Destroy removes the backing file best-effort; a failure to remove it is
// swallowed, the registry row still goes away.
func (b *FileBackend) Destroy(_ context.Context, inst *models.DBInstance) error {
	if inst.LocalPath == "" {
		return nil
	}
	_ = os.Remove(inst.LocalPath)
	return nil
}
