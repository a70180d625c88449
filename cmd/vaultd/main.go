package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashvault/hashvault/config"
	"github.com/hashvault/hashvault/internal/auth"
	"github.com/hashvault/hashvault/internal/observability"
	"github.com/hashvault/hashvault/internal/ratelimit"
	"github.com/hashvault/hashvault/internal/server"
)

const version = "1.0.0"

func main() {
	var configName string
	flag.StringVar(&configName, "config", "vaultd", "config file name (without extension)")
	flag.Parse()

	logger := observability.NewLogger("vaultd", version, os.Stdout)

	cfg, err := config.Load(configName)
	if err != nil {
		logger.Fatal(err, "Failed to load config")
	}

	if shutdown, err := observability.InitTracing(context.Background(), "vaultd"); err == nil {
		defer shutdown(context.Background())
	}

	users, err := auth.OpenBoltUserStore(filepath.Join(cfg.Server.DataDir, "users.db"))
	if err != nil {
		logger.Fatal(err, "Failed to open user store")
	}
	defer users.Close()

	blobs, err := server.NewBlobStore(filepath.Join(cfg.Server.DataDir, "blobs"))
	if err != nil {
		logger.Fatal(err, "Failed to open blob store")
	}

	metrics := observability.NewMetrics()
	srv, err := server.New(users, blobs, logger, metrics)
	if err != nil {
		logger.Fatal(err, "Failed to initialize server")
	}
	if cfg.Server.RequestRate > 0 {
		srv.SetRateLimit(ratelimit.NewLimiter(cfg.Server.RequestRate, cfg.Server.RequestBurst))
	}

	health := observability.NewHealthChecker(version)
	health.RegisterCheck("user_store", observability.UserStoreCheck(func(username string) error {
		_, _, err := users.Get(username)
		return err
	}))
	health.RegisterCheck("blob_dir", observability.BlobDirCheck(blobs.Root()))

	opsMux := http.NewServeMux()
	opsMux.Handle("/metrics", metrics.Handler())
	opsMux.HandleFunc("/healthz", health.Handler())
	go func() {
		if err := http.ListenAndServe(cfg.Server.MetricsAddress, opsMux); err != nil {
			logger.Error(err, "metrics listener stopped")
		}
	}()

	if ttl := cfg.Server.SessionTTL; ttl > 0 {
		go func() {
			ticker := time.NewTicker(ttl / 2)
			defer ticker.Stop()
			for range ticker.C {
				logger.SessionsReaped(srv.Sessions().ReapIdle(ttl), ttl)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: srv,
	}
	go func() {
		logger.Info("Listening on " + cfg.Server.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(err, "Server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}
