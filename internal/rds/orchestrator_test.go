package rds

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/arencloud/stratus/internal/logging"
	"github.com/arencloud/stratus/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openRegistry(t *testing.T, path string) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatal(err)
	}
	if err := gdb.AutoMigrate(&models.DBInstance{}); err != nil {
		t.Fatal(err)
	}
	return gdb
}

func newOrchestrator(t *testing.T) (*Orchestrator, string, string) {
	t.Helper()
	tmp := t.TempDir()
	regPath := filepath.Join(tmp, "registry.db")
	dataDir := filepath.Join(tmp, "rds")
	gdb := openRegistry(t, regPath)
	logger := logging.New("test")
	o := NewOrchestrator(gdb, NewPortAllocator(5433), NewFileBackend(dataDir, logger), logger)
	return o, regPath, dataDir
}

func TestCreateDescribeDeleteLifecycle(t *testing.T) {
	o, _, dataDir := newOrchestrator(t)
	ctx := context.Background()

	inst, err := o.Create(ctx, CreateParams{ID: "db1", Engine: "postgres", MasterUsername: "admin", MasterPassword: "pw", DBName: "app"})
	if err != nil {
		t.Fatal(err)
	}
	if inst.Port != 5433 || inst.Status != models.StatusAvailable {
		t.Fatalf("unexpected instance: %+v", inst)
	}
	if inst.LocalPath == "" {
		t.Fatalf("file backend should record a local path")
	}
	if _, err := os.Stat(filepath.Join(dataDir, "db1.sqlite")); err != nil {
		t.Fatalf("fallback file missing: %v", err)
	}

	got, err := o.Describe("db1")
	if err != nil || len(got) != 1 || got[0].ID != "db1" {
		t.Fatalf("describe: %v %+v", err, got)
	}
	all, err := o.Describe("")
	if err != nil || len(all) != 1 {
		t.Fatalf("describe all: %v %+v", err, all)
	}

	deleted, err := o.Delete(ctx, "db1")
	if err != nil {
		t.Fatal(err)
	}
	if deleted.Status != models.StatusDeleted {
		t.Fatalf("delete status: %+v", deleted)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "db1.sqlite")); !os.IsNotExist(err) {
		t.Fatalf("fallback file should be removed")
	}
	if _, err := o.Describe("db1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("describe after delete: want ErrNotFound, got %v", err)
	}
}

func TestCreateDuplicateIDFailsWithoutSideEffects(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	ctx := context.Background()
	first, err := o.Create(ctx, CreateParams{ID: "db1", Engine: "postgres"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Create(ctx, CreateParams{ID: "db1", Engine: "mysql"}); !errors.Is(err, ErrExists) {
		t.Fatalf("want ErrExists, got %v", err)
	}
	// the existing record is untouched and no extra port was burned
	got, _ := o.Describe("db1")
	if got[0].Engine != "postgres" || got[0].Port != first.Port {
		t.Fatalf("existing record mutated: %+v", got[0])
	}
	second, err := o.Create(ctx, CreateParams{ID: "db2", Engine: "postgres"})
	if err != nil {
		t.Fatal(err)
	}
	if second.Port != first.Port+1 {
		t.Fatalf("duplicate attempt leaked a port: got %d want %d", second.Port, first.Port+1)
	}
}

func TestCreateUnsupportedEngine(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	if _, err := o.Create(context.Background(), CreateParams{ID: "db1", Engine: "oracle"}); !errors.Is(err, ErrInvalidEngine) {
		t.Fatalf("want ErrInvalidEngine, got %v", err)
	}
	// nothing persisted, next create still gets the base port
	inst, err := o.Create(context.Background(), CreateParams{ID: "db1", Engine: "postgres"})
	if err != nil || inst.Port != 5433 {
		t.Fatalf("engine failure leaked state: %v %+v", err, inst)
	}
}

func TestDeleteReleasesPortForReuse(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	ctx := context.Background()
	a, _ := o.Create(ctx, CreateParams{ID: "a", Engine: "postgres"})
	o.Create(ctx, CreateParams{ID: "b", Engine: "postgres"})
	if _, err := o.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	c, err := o.Create(ctx, CreateParams{ID: "c", Engine: "postgres"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Port != a.Port {
		t.Fatalf("released port should be next: got %d want %d", c.Port, a.Port)
	}
}

func TestDeleteUnknownInstance(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	if _, err := o.Delete(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRehydrateRebuildsPortSet(t *testing.T) {
	tmp := t.TempDir()
	regPath := filepath.Join(tmp, "registry.db")
	dataDir := filepath.Join(tmp, "rds")
	logger := logging.New("test")
	ctx := context.Background()

	gdb := openRegistry(t, regPath)
	o := NewOrchestrator(gdb, NewPortAllocator(5433), NewFileBackend(dataDir, logger), logger)
	o.Create(ctx, CreateParams{ID: "db1", Engine: "postgres"})
	o.Create(ctx, CreateParams{ID: "db2", Engine: "postgres"})

	// simulate a restart: fresh allocator over the same registry
	gdb2 := openRegistry(t, regPath)
	o2 := NewOrchestrator(gdb2, NewPortAllocator(5433), NewFileBackend(dataDir, logger), logger)
	if err := o2.Rehydrate(); err != nil {
		t.Fatal(err)
	}
	inst, err := o2.Create(ctx, CreateParams{ID: "db3", Engine: "postgres"})
	if err != nil {
		t.Fatal(err)
	}
	if inst.Port != 5435 {
		t.Fatalf("rehydrated allocator reused a held port: got %d want 5435", inst.Port)
	}
}
