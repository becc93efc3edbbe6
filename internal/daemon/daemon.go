// Package daemon provides the background process that keeps the local
// routine cache converged with the hosted backend.
//
// The daemon:
// 1. Probes connectivity and reconciles pending work when the link returns
// 2. Listens for remote change events and refreshes the cache
// 3. Watches the cache file for writes by other processes
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nesttask/nesttask/internal/connectivity"
	"github.com/nesttask/nesttask/internal/engine"
	"github.com/nesttask/nesttask/internal/notify"
)

// Config holds configuration for the daemon.
type Config struct {
	// ReconcileInterval is how often pending mutations are replayed
	// while the link is up.
	ReconcileInterval time.Duration

	// DebounceInterval is how long to wait before reacting to cache
	// file changes. This batches rapid writes together.
	DebounceInterval time.Duration

	// NotifyURL is the WebSocket endpoint publishing change events.
	// Empty disables the listener.
	NotifyURL string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReconcileInterval: time.Minute,
		DebounceInterval:  500 * time.Millisecond,
		Logger:            log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon drives reconciliation, change listening and cache watching.
type Daemon struct {
	eng     *engine.Engine
	monitor *connectivity.Monitor
	config  *Config

	notifier *notify.Notifier

	watcher     *fsnotify.Watcher
	storePath   string
	lastWrite   time.Time
	lastWriteMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Daemon instance.
//
// storePath is the cache database file to watch; other processes using
// the same cache trigger a snapshot invalidation when they write it.
// Use Start() to begin operation.
func New(eng *engine.Engine, monitor *connectivity.Monitor, storePath string, config *Config) (*Daemon, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if monitor == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		eng:       eng,
		monitor:   monitor,
		config:    config,
		watcher:   watcher,
		storePath: storePath,
		ctx:       ctx,
		cancel:    cancel,
	}

	if config.NotifyURL != "" {
		d.notifier = notify.New(&notify.Config{
			URL:      config.NotifyURL,
			OnChange: d.onRemoteChange,
			Logger:   config.Logger,
		})
	}

	return d, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Reconcile any pending work left from previous sessions
// 2. Subscribe to connectivity transitions
// 3. Listen for remote change events while online
// 4. Watch the cache file with debouncing
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if d.storePath != "" {
		if err := d.watcher.Add(filepath.Dir(d.storePath)); err != nil {
			return fmt.Errorf("failed to watch cache directory: %w", err)
		}
		d.config.Logger.Printf("Watching: %s", d.storePath)
	}

	if d.monitor.Online() {
		d.startNotifier()
		d.reconcile()
	}

	d.wg.Add(3)
	go d.watchConnectivity()
	go d.reconcileLoop()
	go d.watchCacheFile()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	d.stopNotifier()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchConnectivity reacts to online/offline transitions.
func (d *Daemon) watchConnectivity() {
	defer d.wg.Done()

	transitions, unsubscribe := d.monitor.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-d.ctx.Done():
			return

		case online, ok := <-transitions:
			if !ok {
				return
			}
			if online {
				d.config.Logger.Println("Connectivity regained")
				d.startNotifier()
				d.reconcile()
			} else {
				d.config.Logger.Println("Connectivity lost")
				d.stopNotifier()
			}
		}
	}
}

// reconcileLoop periodically replays pending mutations.
func (d *Daemon) reconcileLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if d.monitor.Online() {
				d.reconcile()
			}
		}
	}
}

// reconcile runs one reconciliation pass and logs the outcome.
func (d *Daemon) reconcile() {
	report, err := d.eng.Reconcile(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Reconcile error: %v", err)
		return
	}
	if report.Succeeded > 0 || report.Failed > 0 {
		d.config.Logger.Printf("Reconciled: %d succeeded, %d failed", report.Succeeded, report.Failed)
	}
}

// onRemoteChange handles a change event from the notification channel.
func (d *Daemon) onRemoteChange() {
	if _, err := d.eng.Load(d.ctx, engine.LoadOptions{ForceRefresh: true}); err != nil {
		d.config.Logger.Printf("Refresh after change failed: %v", err)
	}
}

func (d *Daemon) startNotifier() {
	if d.notifier != nil && !d.notifier.Running() {
		d.notifier.Start(d.ctx)
	}
}

func (d *Daemon) stopNotifier() {
	if d.notifier != nil && d.notifier.Running() {
		d.notifier.Stop()
	}
}

// watchCacheFile invalidates the in-memory snapshot when another
// process writes the cache database.
//
// The watcher cannot tell the engine's own writes from a foreign
// process's; every reconcile or refresh therefore also lands here and
// schedules one debounced invalidation, answered by a single store
// re-read on the next load.
func (d *Daemon) watchCacheFile() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !d.isStoreFile(event.Name) {
				continue
			}
			d.lastWriteMu.Lock()
			d.lastWrite = time.Now()
			d.lastWriteMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)

		case <-ticker.C:
			d.lastWriteMu.Lock()
			pending := !d.lastWrite.IsZero() && time.Since(d.lastWrite) >= d.config.DebounceInterval
			if pending {
				d.lastWrite = time.Time{}
			}
			d.lastWriteMu.Unlock()

			if pending {
				d.config.Logger.Println("Cache file changed, invalidating snapshot")
				d.eng.InvalidateSnapshot()
			}
		}
	}
}

// isStoreFile reports whether path refers to the cache database or its
// WAL sidecars.
func (d *Daemon) isStoreFile(path string) bool {
	base := filepath.Base(d.storePath)
	name := filepath.Base(path)
	return name == base || name == base+"-wal" || name == base+"-shm"
}
