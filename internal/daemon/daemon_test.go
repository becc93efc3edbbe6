package daemon

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nesttask/nesttask/internal/connectivity"
	"github.com/nesttask/nesttask/internal/engine"
	"github.com/nesttask/nesttask/internal/localstore"
	"github.com/nesttask/nesttask/internal/routine"
)

// nullGateway satisfies engine.Gateway while counting reconcile-relevant
// calls. The daemon tests only need to observe that reconciliation ran.
type nullGateway struct {
	deletes atomic.Int32
}

func (g *nullGateway) Ping(ctx context.Context) error { return nil }
func (g *nullGateway) ListRoutines(ctx context.Context) ([]*routine.Routine, error) {
	return nil, nil
}
func (g *nullGateway) GetRoutineWithSlots(ctx context.Context, id string) (*routine.Routine, error) {
	return nil, routine.ErrNotFound
}
func (g *nullGateway) CreateRoutine(ctx context.Context, in *routine.RoutineInput) (*routine.Routine, error) {
	return nil, routine.ErrTransient
}
func (g *nullGateway) UpdateRoutine(ctx context.Context, id string, u *routine.RoutineUpdate) error {
	return nil
}
func (g *nullGateway) DeleteRoutine(ctx context.Context, id string) error {
	g.deletes.Add(1)
	return nil
}
func (g *nullGateway) ActivateRoutine(ctx context.Context, id string) error   { return nil }
func (g *nullGateway) DeactivateRoutine(ctx context.Context, id string) error { return nil }
func (g *nullGateway) CreateSlot(ctx context.Context, routineID string, s *routine.Slot) (*routine.Slot, error) {
	return nil, routine.ErrTransient
}
func (g *nullGateway) UpdateSlot(ctx context.Context, routineID, slotID string, u *routine.SlotUpdate) error {
	return nil
}
func (g *nullGateway) DeleteSlot(ctx context.Context, routineID, slotID string) error { return nil }
func (g *nullGateway) ListSlots(ctx context.Context, routineID string) ([]*routine.Slot, error) {
	return nil, nil
}
func (g *nullGateway) GetSlot(ctx context.Context, routineID, slotID string) (*routine.Slot, error) {
	return nil, routine.ErrNotFound
}
func (g *nullGateway) BulkInsertSlots(ctx context.Context, routineID string, inputs []routine.SlotInput) ([]*routine.Slot, *routine.ImportReport, error) {
	return nil, &routine.ImportReport{}, nil
}
func (g *nullGateway) CoursesByIDs(ctx context.Context, ids []string) (map[string]routine.Course, error) {
	return map[string]routine.Course{}, nil
}
func (g *nullGateway) TeachersByIDs(ctx context.Context, ids []string) (map[string]routine.Teacher, error) {
	return map[string]routine.Teacher{}, nil
}

func testEngine(t *testing.T, gw engine.Gateway, conn engine.Connectivity) (*engine.Engine, *localstore.Store) {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng, err := engine.New(engine.Config{
		Store:        store,
		Gateway:      gw,
		Connectivity: conn,
		Logger:       log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("engine.New() failed: %v", err)
	}
	return eng, store
}

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.ReconcileInterval = 20 * time.Millisecond
	cfg.DebounceInterval = 10 * time.Millisecond
	cfg.Logger = log.New(io.Discard, "", 0)
	return cfg
}

func TestNew_Validation(t *testing.T) {
	monitor := connectivity.NewManual(false)
	eng, _ := testEngine(t, &nullGateway{}, monitor)

	if _, err := New(nil, monitor, "", quietConfig()); err == nil {
		t.Error("New() accepted a nil engine")
	}
	if _, err := New(eng, nil, "", quietConfig()); err == nil {
		t.Error("New() accepted a nil monitor")
	}
	if _, err := New(eng, monitor, "", nil); err != nil {
		t.Errorf("New() with nil config failed: %v", err)
	}
}

func TestDaemon_StartStop(t *testing.T) {
	monitor := connectivity.NewManual(false)
	eng, _ := testEngine(t, &nullGateway{}, monitor)

	d, err := New(eng, monitor, "", quietConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v after cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}

func TestDaemon_ReconcilesOnConnectivityRegain(t *testing.T) {
	monitor := connectivity.NewManual(false)
	gw := &nullGateway{}
	eng, store := testEngine(t, gw, monitor)

	// A tombstone left from an offline session; reconciling it calls
	// DeleteRoutine.
	if err := store.PutRoutine(context.Background(), &routine.Routine{
		ID: "r1", Name: "doomed", Pending: routine.StatePendingDelete,
	}); err != nil {
		t.Fatalf("PutRoutine() failed: %v", err)
	}

	d, err := New(eng, monitor, "", quietConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	monitor.SetOnline(true)

	deadline := time.After(2 * time.Second)
	for gw.deletes.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("pending delete was not reconciled after connectivity returned")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
