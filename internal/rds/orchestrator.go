package rds

import (
	"context"
	"errors"
	"sync"

	"github.com/arencloud/stratus/internal/logging"
	"github.com/arencloud/stratus/internal/models"

	"gorm.io/gorm"
)

// CreateParams carries the caller-supplied provisioning fields, already
// defaulted the way the emulated provider defaults them.
type CreateParams struct {
	ID             string
	Engine         string
	MasterUsername string
	MasterPassword string
	DBName         string
}

// Orchestrator drives the absent → available → deleted lifecycle of database
// instances against the persisted registry and the selected backend.
type Orchestrator struct {
	mu      sync.Mutex
	db      *gorm.DB
	ports   *PortAllocator
	backend Backend
	logger  logging.Logger
}

func NewOrchestrator(db *gorm.DB, ports *PortAllocator, backend Backend, logger logging.Logger) *Orchestrator {
	return &Orchestrator{db: db, ports: ports, backend: backend, logger: logger}
}

// Rehydrate marks ports held by persisted instances busy so a restart never
// hands out a port an available instance still owns.
func (o *Orchestrator) Rehydrate() error {
	var instances []models.DBInstance
	if err := o.db.Find(&instances).Error; err != nil {
		return err
	}
	for _, inst := range instances {
		o.ports.Mark(inst.Port)
		o.logger.Info("registered existing db instance", "id", inst.ID, "port", inst.Port)
	}
	return nil
}

// Create provisions a new instance. The mutex spans the whole
// check-exists → allocate → provision → persist sequence; with two concurrent
// calls for one id the first writer wins and the second sees ErrExists. A
// provisioning failure releases the port and persists nothing.
func (o *Orchestrator) Create(ctx context.Context, p CreateParams) (*models.DBInstance, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var existing models.DBInstance
	err := o.db.First(&existing, "id = ?", p.ID).Error
	if err == nil {
		return nil, ErrExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if !SupportedEngine(p.Engine) {
		return nil, ErrInvalidEngine
	}

	port := o.ports.Acquire()
	inst := &models.DBInstance{
		ID:             p.ID,
		Engine:         p.Engine,
		MasterUsername: p.MasterUsername,
		DBName:         p.DBName,
		Port:           port,
		Status:         models.StatusAvailable,
	}
	localPath, err := o.backend.Provision(ctx, inst, p.MasterPassword)
	if err != nil {
		o.ports.Release(port)
		return nil, err
	}
	inst.LocalPath = localPath
	if err := o.db.Create(inst).Error; err != nil {
		o.ports.Release(port)
		return nil, err
	}
	return inst, nil
}

// Describe returns one instance by id, or every instance when id is empty.
func (o *Orchestrator) Describe(id string) ([]models.DBInstance, error) {
	if id != "" {
		var inst models.DBInstance
		if err := o.db.First(&inst, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		return []models.DBInstance{inst}, nil
	}
	var instances []models.DBInstance
	if err := o.db.Find(&instances).Error; err != nil {
		return nil, err
	}
	return instances, nil
}

// Delete tears down an instance: backing resource, port, registry row. The
// returned copy reports the terminal deleted status.
func (o *Orchestrator) Delete(ctx context.Context, id string) (*models.DBInstance, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var inst models.DBInstance
	if err := o.db.First(&inst, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := o.backend.Destroy(ctx, &inst); err != nil {
		// teardown is best-effort; the record and port still go away
		o.logger.Error("backing resource removal failed", "id", id, "error", err)
	}
	if err := o.db.Delete(&models.DBInstance{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	o.ports.Release(inst.Port)
	inst.Status = models.StatusDeleted
	return &inst, nil
}
