// Command nesttask manages class routines against a hosted backend with
// an offline-first local cache.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nesttask/nesttask/internal/config"
	"github.com/nesttask/nesttask/internal/connectivity"
	"github.com/nesttask/nesttask/internal/engine"
	"github.com/nesttask/nesttask/internal/localstore"
	"github.com/nesttask/nesttask/internal/remote"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "nesttask",
	Short:   "Offline-first class routine manager",
	Version: version,
	Long: `nesttask keeps a local cache of class routines and their weekly
slots, synced against a hosted database. Reads and writes keep working
while offline; pending changes are replayed when connectivity returns.`,
	SilenceUsage: true,
}

// app bundles the wired components behind each command.
type app struct {
	cfg     *config.Config
	store   *localstore.Store
	client  *remote.Client
	monitor *connectivity.Monitor
	eng     *engine.Engine
}

// newApp wires the store, remote gateway, connectivity monitor and sync
// engine from configuration. Callers must Close().
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	store, err := localstore.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}

	logger := log.New(os.Stderr, "[nesttask] ", log.LstdFlags)

	var client *remote.Client
	var monitor *connectivity.Monitor
	gateway := engine.Gateway(engine.NoRemote{})
	if cfg.RemoteURL == "" || cfg.Offline {
		monitor = connectivity.NewManual(false)
	} else {
		client, err = remote.Open(cfg.RemoteURL, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to open remote connection: %w", err)
		}
		monitor = connectivity.New(&connectivity.Config{
			ProbeAddr:     cfg.ProbeAddr,
			ProbeInterval: cfg.ProbeInterval,
			Logger:        logger,
		})
		monitor.Start(ctx)
		gateway = client
	}

	eng, err := engine.New(engine.Config{
		Store:        store,
		Gateway:      gateway,
		Connectivity: monitor,
		CacheWindow:  cfg.CacheWindow,
		Logger:       logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		store:   store,
		client:  client,
		monitor: monitor,
		eng:     eng,
	}, nil
}

func (a *app) Close() {
	a.monitor.Stop()
	if a.client != nil {
		a.client.Close()
	}
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close cache: %v\n", err)
	}
}

// daemonLogger returns the daemon's logger, routed through a rotating
// file when log_file is configured.
func daemonLogger(cfg *config.Config) *log.Logger {
	if cfg.LogFile == "" {
		return log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
	}, "[daemon] ", log.LstdFlags)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
