// Package engine implements the offline-first synchronization core: it
// orchestrates loading, caching, optimistic mutation and reconciliation
// between the local store and the remote gateway.
//
// All public operations are safe for concurrent use. Mutations branch on
// connectivity: online they call the gateway and mirror the result into
// the local store; offline they mutate the store directly, tagging each
// entity with a pending state that a later Reconcile pass drains.
package engine

import (
	"context"
	"fmt"

	"github.com/nesttask/nesttask/internal/routine"
)

// Gateway is the remote backend surface the engine depends on. It is
// implemented by remote.Client and by scripted fakes in tests.
type Gateway interface {
	// Ping verifies reachability of the backend.
	Ping(ctx context.Context) error

	// ListRoutines returns every routine without slots.
	ListRoutines(ctx context.Context) ([]*routine.Routine, error)

	// GetRoutineWithSlots fetches one routine with its slots in one
	// round trip.
	GetRoutineWithSlots(ctx context.Context, id string) (*routine.Routine, error)

	// CreateRoutine inserts a routine and returns the authoritative copy
	// with its server-assigned id.
	CreateRoutine(ctx context.Context, in *routine.RoutineInput) (*routine.Routine, error)

	// UpdateRoutine applies a partial edit.
	UpdateRoutine(ctx context.Context, id string, u *routine.RoutineUpdate) error

	// DeleteRoutine removes a routine and all of its slots. Absent
	// routines are treated as already deleted.
	DeleteRoutine(ctx context.Context, id string) error

	// ActivateRoutine makes the routine the single active one,
	// enforcing the invariant server-side.
	ActivateRoutine(ctx context.Context, id string) error

	// DeactivateRoutine clears the routine's active flag.
	DeactivateRoutine(ctx context.Context, id string) error

	// CreateSlot inserts a slot and returns the authoritative copy.
	CreateSlot(ctx context.Context, routineID string, s *routine.Slot) (*routine.Slot, error)

	// UpdateSlot applies a partial edit to one slot.
	UpdateSlot(ctx context.Context, routineID, slotID string, u *routine.SlotUpdate) error

	// DeleteSlot removes one slot. Absent slots are treated as already
	// deleted.
	DeleteSlot(ctx context.Context, routineID, slotID string) error

	// ListSlots returns every slot of a routine.
	ListSlots(ctx context.Context, routineID string) ([]*routine.Slot, error)

	// GetSlot reads one slot back, used to verify replayed mutations.
	GetSlot(ctx context.Context, routineID, slotID string) (*routine.Slot, error)

	// BulkInsertSlots inserts many slots with per-row overlap rejection.
	BulkInsertSlots(ctx context.Context, routineID string, inputs []routine.SlotInput) ([]*routine.Slot, *routine.ImportReport, error)

	// CoursesByIDs batch-fetches course lookups.
	CoursesByIDs(ctx context.Context, ids []string) (map[string]routine.Course, error)

	// TeachersByIDs batch-fetches teacher lookups.
	TeachersByIDs(ctx context.Context, ids []string) (map[string]routine.Teacher, error)
}

// Connectivity reports whether the remote backend is currently reachable.
// Implemented by connectivity.Monitor.
type Connectivity interface {
	Online() bool
}

// NoRemote is the Gateway for local-only sessions with no backend
// configured. Every call fails with ErrOffline, so even a spurious
// online transition cannot reach a backend that does not exist.
type NoRemote struct{}

func (NoRemote) err() error {
	return fmt.Errorf("no remote backend configured: %w", routine.ErrOffline)
}

func (n NoRemote) Ping(ctx context.Context) error { return n.err() }

func (n NoRemote) ListRoutines(ctx context.Context) ([]*routine.Routine, error) {
	return nil, n.err()
}

func (n NoRemote) GetRoutineWithSlots(ctx context.Context, id string) (*routine.Routine, error) {
	return nil, n.err()
}

func (n NoRemote) CreateRoutine(ctx context.Context, in *routine.RoutineInput) (*routine.Routine, error) {
	return nil, n.err()
}

func (n NoRemote) UpdateRoutine(ctx context.Context, id string, u *routine.RoutineUpdate) error {
	return n.err()
}

func (n NoRemote) DeleteRoutine(ctx context.Context, id string) error { return n.err() }

func (n NoRemote) ActivateRoutine(ctx context.Context, id string) error { return n.err() }

func (n NoRemote) DeactivateRoutine(ctx context.Context, id string) error { return n.err() }

func (n NoRemote) CreateSlot(ctx context.Context, routineID string, s *routine.Slot) (*routine.Slot, error) {
	return nil, n.err()
}

func (n NoRemote) UpdateSlot(ctx context.Context, routineID, slotID string, u *routine.SlotUpdate) error {
	return n.err()
}

func (n NoRemote) DeleteSlot(ctx context.Context, routineID, slotID string) error {
	return n.err()
}

func (n NoRemote) ListSlots(ctx context.Context, routineID string) ([]*routine.Slot, error) {
	return nil, n.err()
}

func (n NoRemote) GetSlot(ctx context.Context, routineID, slotID string) (*routine.Slot, error) {
	return nil, n.err()
}

func (n NoRemote) BulkInsertSlots(ctx context.Context, routineID string, inputs []routine.SlotInput) ([]*routine.Slot, *routine.ImportReport, error) {
	return nil, nil, n.err()
}

func (n NoRemote) CoursesByIDs(ctx context.Context, ids []string) (map[string]routine.Course, error) {
	return nil, n.err()
}

func (n NoRemote) TeachersByIDs(ctx context.Context, ids []string) (map[string]routine.Teacher, error) {
	return nil, n.err()
}
