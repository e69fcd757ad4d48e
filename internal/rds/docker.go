package rds

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/arencloud/stratus/internal/logging"
	"github.com/arencloud/stratus/internal/models"
)

// DockerBackend runs each instance as a detached container, seeded with the
// engine's bootstrap environment and published on the allocated host port.
type DockerBackend struct {
	logger logging.Logger
}

func NewDockerBackend(logger logging.Logger) *DockerBackend {
	return &DockerBackend{logger: logger}
}

// DockerAvailable probes the local container engine once at startup.
func DockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

func containerName(id string) string { return "stratus-rds-" + id }

// seedEnv builds the engine-specific bootstrap variables for the master
// user, password, and initial database.
func seedEnv(engine, user, password, dbName string) []string {
	switch engine {
	case "postgres":
		return []string{
			"POSTGRES_USER=" + user,
			"POSTGRES_PASSWORD=" + password,
			"POSTGRES_DB=" + dbName,
		}
	case "mysql":
		return []string{
			"MYSQL_ROOT_PASSWORD=" + password,
			"MYSQL_DATABASE=" + dbName,
			"MYSQL_USER=" + user,
			"MYSQL_PASSWORD=" + password,
		}
	}
	return nil
}

func (b *DockerBackend) Provision(ctx context.Context, inst *models.DBInstance, masterPassword string) (string, error) {
	image, ok := engineImages[inst.Engine]
	if !ok {
		return "", ErrInvalidEngine
	}
	name := containerName(inst.ID)
	// a stale container holding our name blocks docker run; clear it first
	if out, err := exec.CommandContext(ctx, "docker", "rm", "-f", name).CombinedOutput(); err != nil {
		b.logger.Debug("stale container cleanup", "name", name, "output", strings.TrimSpace(string(out)))
	}
	args := []string{"run", "-d", "--name", name}
	for _, e := range seedEnv(inst.Engine, inst.MasterUsername, masterPassword, inst.DBName) {
		args = append(args, "-e", e)
	}
	args = append(args, "-p", fmt.Sprintf("%d:%d", inst.Port, enginePorts[inst.Engine]), image)
	if out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("docker run %s: %w: %s", image, err, strings.TrimSpace(string(out)))
	}
	b.logger.Info("container started", "instance", inst.ID, "image", image, "port", inst.Port)
	return "", nil
}

func (b *DockerBackend) Destroy(ctx context.Context, inst *models.DBInstance) error {
	name := containerName(inst.ID)
	_ = exec.CommandContext(ctx, "docker", "stop", name).Run()
	_ = exec.CommandContext(ctx, "docker", "rm", name).Run() // already-gone is fine
	return nil
}
