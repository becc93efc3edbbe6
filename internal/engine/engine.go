package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nesttask/nesttask/internal/localstore"
	"github.com/nesttask/nesttask/internal/routine"
)

// DefaultCacheWindow is how long a successful full fetch stays fresh.
const DefaultCacheWindow = 4 * time.Minute

// Config holds engine construction parameters.
type Config struct {
	Store        *localstore.Store
	Gateway      Gateway
	Connectivity Connectivity

	// CacheWindow overrides DefaultCacheWindow when positive.
	CacheWindow time.Duration

	// Logger for engine activity (default: stderr logger).
	Logger *log.Logger

	// Now is an injectable clock for tests (default: time.Now).
	Now func() time.Time
}

// Engine is the sync core. Construct one per application session with New
// and share it; there are no package-level singletons.
type Engine struct {
	store       *localstore.Store
	gw          Gateway
	conn        Connectivity
	logger      *log.Logger
	cacheWindow time.Duration
	now         func() time.Time

	// mu guards the in-memory snapshot. The snapshot holds every cached
	// routine including tombstones; read-modify-write always goes
	// through it so the freshest copy wins over a stale store read.
	mu       sync.RWMutex
	routines map[string]*routine.Routine
	loaded   bool

	// reconciling is the single-flight guard for Reconcile.
	reconciling atomic.Bool

	diagMu   sync.Mutex
	lastDiag *Diagnostic
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway cannot be nil")
	}
	if cfg.Connectivity == nil {
		return nil, fmt.Errorf("connectivity cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if cfg.CacheWindow <= 0 {
		cfg.CacheWindow = DefaultCacheWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Engine{
		store:       cfg.Store,
		gw:          cfg.Gateway,
		conn:        cfg.Connectivity,
		logger:      cfg.Logger,
		cacheWindow: cfg.CacheWindow,
		now:         cfg.Now,
	}, nil
}

// InvalidateSnapshot drops the in-memory copy so the next operation
// re-reads the local store. The daemon calls this when another process
// writes the store file.
func (e *Engine) InvalidateSnapshot() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routines = nil
	e.loaded = false
}

// ensureSnapshot populates the in-memory map from the local store once.
// Callers must not hold mu.
func (e *Engine) ensureSnapshot(ctx context.Context) error {
	e.mu.RLock()
	loaded := e.loaded
	e.mu.RUnlock()
	if loaded {
		return nil
	}

	stored, err := e.store.Routines(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}
	e.routines = make(map[string]*routine.Routine, len(stored))
	for _, r := range stored {
		e.routines[r.ID] = r
	}
	e.loaded = true
	return nil
}

// visible returns a sorted copy of the snapshot with tombstoned routines
// and tombstoned slots filtered out. Callers own the returned clones.
func (e *Engine) visible() []*routine.Routine {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*routine.Routine, 0, len(e.routines))
	for _, r := range e.routines {
		if r.Pending == routine.StatePendingDelete {
			continue
		}
		cp := r.Clone()
		kept := cp.Slots[:0]
		for _, s := range cp.Slots {
			if s.Pending != routine.StatePendingDelete {
				kept = append(kept, s)
			}
		}
		cp.Slots = kept
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns a copy of one cached routine with tombstoned slots
// filtered out. Deleted-but-unsynced routines read as absent.
func (e *Engine) Get(ctx context.Context, id string) (*routine.Routine, error) {
	if err := e.ensureSnapshot(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	r := e.routines[id]
	e.mu.RUnlock()
	if r == nil || r.Pending == routine.StatePendingDelete {
		return nil, fmt.Errorf("routine %s: %w", id, routine.ErrNotFound)
	}

	cp := r.Clone()
	kept := cp.Slots[:0]
	for _, s := range cp.Slots {
		if s.Pending != routine.StatePendingDelete {
			kept = append(kept, s)
		}
	}
	cp.Slots = kept
	return cp, nil
}

// get returns the live snapshot entry for id, tombstones included.
func (e *Engine) get(id string) *routine.Routine {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.routines[id]
}

// putLocal writes the routine to both the snapshot and the store.
func (e *Engine) putLocal(ctx context.Context, r *routine.Routine) error {
	e.mu.Lock()
	if e.routines == nil {
		e.routines = make(map[string]*routine.Routine)
	}
	e.routines[r.ID] = r
	e.mu.Unlock()
	return e.store.PutRoutine(ctx, r)
}

// removeLocal deletes the routine from both the snapshot and the store.
func (e *Engine) removeLocal(ctx context.Context, id string) error {
	e.mu.Lock()
	delete(e.routines, id)
	e.mu.Unlock()
	return e.store.DeleteRoutine(ctx, id)
}

// rewriteID replaces a temporary id with the server-assigned one in the
// snapshot and the store, updating every owned slot's back-reference.
func (e *Engine) rewriteID(ctx context.Context, oldID string, r *routine.Routine) error {
	for _, s := range r.Slots {
		s.RoutineID = r.ID
	}
	e.mu.Lock()
	delete(e.routines, oldID)
	e.routines[r.ID] = r
	e.mu.Unlock()

	if err := e.store.DeleteRoutine(ctx, oldID); err != nil {
		return err
	}
	return e.store.PutRoutine(ctx, r)
}

// fresh reports whether the cached data may be served without refetching.
// An empty-slot cache is ambiguous between "truly empty" and "never
// loaded", so it never counts as fresh.
func (e *Engine) fresh(ctx context.Context) bool {
	last, ok, err := e.store.LastFetched(ctx)
	if err != nil || !ok {
		return false
	}
	if e.now().Sub(last) > e.cacheWindow {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.routines) == 0 {
		// A recent fetch that found nothing is still authoritative.
		return true
	}
	for _, r := range e.routines {
		if len(r.Slots) > 0 {
			return true
		}
	}
	return false
}
