package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nesttask/nesttask/internal/daemon"
	"github.com/nesttask/nesttask/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay pending offline changes and refresh the cache",
	Long: `Push queued offline mutations to the backend in dependency order
(deletes, activation, creations, updates), then pull a fresh copy of every
routine. Requires connectivity; offline this is a no-op.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if !a.monitor.Online() {
			fmt.Println("Offline: nothing synced. Pending changes stay queued.")
			return
		}

		start := time.Now()
		report, err := a.eng.Reconcile(ctx)
		if err != nil {
			fatal("%v", err)
		}

		if _, err := a.eng.Load(ctx, engine.LoadOptions{ForceRefresh: true}); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: refresh after sync failed: %v\n", err)
		}

		fmt.Printf("Sync complete in %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Pushed: %d\n", report.Succeeded)
		if report.Failed > 0 {
			fmt.Printf("   Failed: %d (left queued for retry)\n", report.Failed)
			os.Exit(1)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache and connectivity status",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		stats, err := a.eng.CacheStats(ctx)
		if err != nil {
			fatal("%v", err)
		}

		state := "offline"
		if a.monitor.Online() {
			state = "online"
		}

		fmt.Printf("Connectivity: %s\n", state)
		fmt.Printf("Cache:        %s\n", a.cfg.StorePath)
		fmt.Printf("Routines:     %d\n", stats.Routines)
		fmt.Printf("Slots:        %d\n", stats.Slots)
		fmt.Printf("Pending:      %d\n", stats.Pending)
		fmt.Printf("Last fetch:   %s\n", stats.LastFetched)
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Probe backend reachability per collection",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		d := a.eng.Diagnose(ctx)

		fmt.Printf("Online:    %v\n", d.Online)
		if !d.Online {
			fmt.Println("Skipping remote probes while offline.")
			return
		}
		fmt.Printf("Reachable: %v\n", d.RemoteReachable)
		for _, name := range []string{"routines", "courses", "teachers"} {
			ok, probed := d.Collections[name]
			switch {
			case !probed:
				fmt.Printf("  %-9s not probed\n", name)
			case ok:
				fmt.Printf("  %-9s ok\n", name)
			default:
				fmt.Printf("  %-9s FAILING\n", name)
			}
		}
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon (foreground)",
	Long: `Run the background syncer in the foreground.

The daemon will:
  1. Probe connectivity and reconcile pending work when the link returns
  2. Listen for server-pushed change events and refresh the cache
  3. Watch the cache file for writes by other nesttask processes

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if a.cfg.RemoteURL == "" {
			fatal("daemon requires remote_url to be configured")
		}

		cfg := daemon.DefaultConfig()
		cfg.ReconcileInterval = a.cfg.ReconcileInterval
		cfg.NotifyURL = a.cfg.NotifyURL
		cfg.Logger = daemonLogger(a.cfg)

		d, err := daemon.New(a.eng, a.monitor, a.cfg.StorePath, cfg)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Starting sync daemon (cache: %s)\n", a.cfg.StorePath)
		if err := d.Start(ctx); err != nil {
			fatal("daemon stopped: %v", err)
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the backend schema and local cache",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if a.client == nil {
			fmt.Println("Local cache initialized. Configure remote_url to init the backend.")
			return
		}
		if err := a.client.InitSchema(ctx); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Backend schema and local cache initialized.")
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(initCmd)
}
