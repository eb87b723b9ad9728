// Command rekcod-server runs the control-plane server process (§1): node
// registry, liveness monitor, container-engine proxy fabric, template
// engine and deployer, and the HTTP surface.
package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/rekcod/rekcod/infrastructure/logging"
	"github.com/rekcod/rekcod/infrastructure/middleware"
	"github.com/rekcod/rekcod/internal/config"
	"github.com/rekcod/rekcod/internal/deploy"
	"github.com/rekcod/rekcod/internal/env"
	"github.com/rekcod/rekcod/internal/httpapi"
	"github.com/rekcod/rekcod/internal/kvs"
	"github.com/rekcod/rekcod/internal/node"
	"github.com/rekcod/rekcod/internal/template"
	"github.com/rekcod/rekcod/internal/token"

	httpserver "net/http"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.NewFromEnv("rekcod-server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		logger.WithError(err).Fatal("create data dir")
	}

	store, err := kvs.Open(ctx, cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("open kvs store")
	}

	sharedToken, err := token.BootstrapServer(cfg.Server.ConfigDir, cfg.Server.ListenAddr)
	if err != nil {
		logger.WithError(err).Fatal("bootstrap token")
	}

	registry := node.New(store)
	go node.RunLiveness(ctx, registry, logger)

	envStore := env.New(store)

	appRoot := filepath.Join(cfg.Server.DataDir, "app")
	templates, err := template.NewStore(appRoot, logger)
	if err != nil {
		logger.WithError(err).Fatal("load app templates")
	}

	deployer := deploy.New(store, registry, templates, envStore, httpapi.ReadBundleFile(appRoot))

	health := middleware.NewHealthChecker("rekcod")
	health.RegisterCheck("kvs", func() error {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		return store.Ping(pingCtx)
	})

	ready := true

	srv := &httpapi.Server{
		Registry:     registry,
		Deployer:     deployer,
		Templates:    templates,
		Env:          envStore,
		Token:        sharedToken,
		Log:          logger,
		DashboardDir: os.Getenv("REKCOD_DASHBOARD_DIR"),
		BundleRoot:   appRoot,
		CORSOrigins:  cfg.Server.CORSOriginList(),
		Health:       health,
		Ready:        &ready,
	}
	router := httpapi.NewRouter(srv)

	httpSrv := &httpserver.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
	}

	gs := middleware.NewGracefulShutdown(httpSrv, cfg.Liveness.SweepInterval)
	gs.OnShutdown(cancel)
	gs.OnShutdown(func() { _ = store.Close() })
	gs.OnShutdown(templates.Close)
	gs.ListenForSignals()

	logger.WithFields(map[string]interface{}{"addr": cfg.Server.ListenAddr}).Info("server listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != httpserver.ErrServerClosed {
		logger.WithError(err).Fatal("http server failed")
	}

	gs.Wait()
}
