package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/dctgate/internal/common"
	"example.com/dctgate/internal/config"
	"example.com/dctgate/internal/server"
)

func main() {
	configPath := flag.String("config", "config/dctd.yaml", "path to configuration file (YAML or TOML)")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		common.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		common.Fatalf("storage dir: %v", err)
	}
	logCloser, err := common.SetupLogging(cfg.Logs)
	if err != nil {
		common.Fatalf("setup logging: %v", err)
	}
	defer logCloser.Close()

	timeouts, err := cfg.Timeouts()
	if err != nil {
		common.Fatalf("timeouts: %v", err)
	}
	opts, err := server.OptionsFromConfig(cfg)
	if err != nil {
		common.Fatalf("server options: %v", err)
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		common.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  timeouts[0],
		WriteTimeout: timeouts[1],
	}

	common.WithFields(map[string]interface{}{
		"addr":        listenAddr,
		"storage":     cfg.StorageDir,
		"concurrency": cfg.Concurrency,
	}).Info("dctd listening")
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-shutdown:
	case err := <-errCh:
		common.Errorf("listen: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		common.Errorf("shutdown: %v", err)
	}
	common.Logf("dctd stopped")
}

// loadConfig falls back to defaults when the default config path is absent.
func loadConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !isFlagSet("config") {
		common.Warnf("config %s not found, using defaults", path)
		return config.Default(), nil
	}
	return config.Load(path)
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
