package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/arencloud/stratus/internal/api"
	"github.com/arencloud/stratus/internal/config"
	"github.com/arencloud/stratus/internal/db"
	"github.com/arencloud/stratus/internal/inference"
	"github.com/arencloud/stratus/internal/logging"
	"github.com/arencloud/stratus/internal/middleware"
	"github.com/arencloud/stratus/internal/objectstore"
	"github.com/arencloud/stratus/internal/rds"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)

	registry, err := db.Init(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init registry db", "error", err)
	}

	store, err := objectstore.New(cfg.S3RootDir)
	if err != nil {
		logger.Fatal("failed to init object store", "error", err, "root", cfg.S3RootDir)
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	var backend rds.Backend
	if rds.DockerAvailable(probeCtx) {
		backend = rds.NewDockerBackend(logger)
		logger.Info("database backend", "mode", "docker")
	} else {
		backend = rds.NewFileBackend(cfg.RDSDataDir, logger)
		logger.Info("database backend", "mode", "file", "dir", cfg.RDSDataDir)
	}
	cancel()

	orch := rds.NewOrchestrator(registry, rds.NewPortAllocator(cfg.RDSPortStart), backend, logger)
	if err := orch.Rehydrate(); err != nil {
		logger.Fatal("failed to rehydrate db instances", "error", err)
	}

	proxy := inference.NewProxy(cfg.ChatURL, cfg.GenerateURL, cfg.Model, logger)

	r := api.NewServer(cfg, logger, store, orch, proxy).Router()

	srv := &http.Server{
		Addr:              ":" + cfg.HttpPort,
		Handler:           middleware.Recoverer(r, logger),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0, // allow long-running uploads/downloads; rely on LB timeouts
		WriteTimeout:      0,
		MaxHeaderBytes:    1 << 20, // 1MB headers
	}
	logger.Info("server starting", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}
