package rds

import (
	"context"
	"errors"

	"github.com/arencloud/stratus/internal/models"
)

var (
	ErrExists        = errors.New("db instance already exists")
	ErrNotFound      = errors.New("db instance not found")
	ErrInvalidEngine = errors.New("engine not supported")
)

// engineImages maps each supported engine onto the container image that runs
// it. The key set is the closed set of supported engines for both backends.
var engineImages = map[string]string{
	"postgres": "postgres:latest",
	"mysql":    "mysql:latest",
}

// enginePorts is the port each engine listens on inside its container.
var enginePorts = map[string]int{
	"postgres": 5432,
	"mysql":    3306,
}

// SupportedEngine reports membership in the closed engine set.
func SupportedEngine(engine string) bool {
	_, ok := engineImages[engine]
	return ok
}

// Backend provisions and destroys the resource backing one instance. Selected
// once at startup: containers when an engine is reachable, local database
// files otherwise.
type Backend interface {
	// Provision brings up the backing resource for inst (whose Port is already
	// allocated) and returns the local file path when one was created.
	Provision(ctx context.Context, inst *models.DBInstance, masterPassword string) (localPath string, err error)
	// Destroy tears the backing resource down; missing resources are tolerated.
	Destroy(ctx context.Context, inst *models.DBInstance) error
}
