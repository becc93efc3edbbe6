package engine

import (
	"context"
	"fmt"

	"github.com/nesttask/nesttask/internal/routine"
)

// Create makes a new routine. Online it is created remotely and the
// authoritative copy is mirrored locally; offline it is persisted with a
// temporary id and a pending-create marker for later reconciliation.
func (e *Engine) Create(ctx context.Context, in *routine.RoutineInput) (*routine.Routine, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := e.ensureSnapshot(ctx); err != nil {
		return nil, err
	}

	if e.conn.Online() {
		r, err := e.gw.CreateRoutine(ctx, in)
		if err != nil {
			e.recordDiagnosis(ctx, err)
			return nil, err
		}
		if err := e.putLocal(ctx, r); err != nil {
			return nil, err
		}
		return r.Clone(), nil
	}

	r := &routine.Routine{
		ID:          routine.NewTempID(),
		Name:        in.Name,
		Description: in.Description,
		Semester:    in.Semester,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   e.now().UTC(),
		Pending:     routine.StatePendingCreate,
	}
	if err := e.putLocal(ctx, r); err != nil {
		return nil, err
	}
	e.logger.Printf("Created routine offline: %s (%s)", r.ID, r.Name)
	return r.Clone(), nil
}

// Update applies a partial edit to a routine. Online the gateway is
// updated first and the same fields are mirrored into the local copy
// (read-through consistency, not a re-fetch); offline the fields are
// merged locally under a pending-update marker.
func (e *Engine) Update(ctx context.Context, id string, u *routine.RoutineUpdate) error {
	if err := e.ensureSnapshot(ctx); err != nil {
		return err
	}

	local := e.get(id)
	if local != nil && local.Pending == routine.StatePendingDelete {
		return fmt.Errorf("routine %s: %w", id, routine.ErrNotFound)
	}

	if e.conn.Online() && !routine.IsTempID(id) {
		if err := e.gw.UpdateRoutine(ctx, id, u); err != nil {
			e.recordDiagnosis(ctx, err)
			return err
		}
		if local == nil {
			return nil
		}
		cp := local.Clone()
		u.Apply(cp)
		return e.putLocal(ctx, cp)
	}

	if local == nil {
		return fmt.Errorf("routine %s: %w", id, routine.ErrNotFound)
	}

	cp := local.Clone()
	u.Apply(cp)
	switch cp.Pending {
	case routine.StatePendingCreate:
		// A never-synced creation keeps its create marker; the merged
		// fields ride along with the eventual create.
	case routine.StatePendingActivation, routine.StatePendingDeactivation:
		// The activation marker stays; the field edits replay
		// alongside it during reconciliation.
		cp.FieldsDirty = true
	default:
		cp.Pending = routine.StatePendingUpdate
	}
	return e.putLocal(ctx, cp)
}

// Delete removes a routine. Online the remote delete happens first, the
// local copy is removed, and the freshness timestamp is invalidated so
// consumers reflect the change on next load. Offline, a never-synced
// creation is removed outright (the gateway never hears about it);
// anything else becomes a tombstone drained by Reconcile.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.ensureSnapshot(ctx); err != nil {
		return err
	}

	local := e.get(id)

	if local != nil && local.Pending == routine.StatePendingCreate {
		// Never-synced data: no remote call in either mode.
		return e.removeLocal(ctx, id)
	}

	if e.conn.Online() {
		if !routine.IsTempID(id) {
			if err := e.gw.DeleteRoutine(ctx, id); err != nil {
				e.recordDiagnosis(ctx, err)
				return err
			}
		}
		if err := e.removeLocal(ctx, id); err != nil {
			return err
		}
		return e.store.ClearLastFetched(ctx)
	}

	if local == nil {
		// Absent everywhere we can see: already satisfied.
		return nil
	}

	cp := local.Clone()
	cp.Pending = routine.StatePendingDelete
	return e.putLocal(ctx, cp)
}

// Activate makes the routine the single active one. Online the gateway
// enforces the invariant and the flags are mirrored locally for every
// routine; offline the flags flip locally and only the target is tagged
// for reconciliation.
func (e *Engine) Activate(ctx context.Context, id string) error {
	return e.setActive(ctx, id, true)
}

// Deactivate clears the routine's active flag.
func (e *Engine) Deactivate(ctx context.Context, id string) error {
	return e.setActive(ctx, id, false)
}

func (e *Engine) setActive(ctx context.Context, id string, active bool) error {
	if err := e.ensureSnapshot(ctx); err != nil {
		return err
	}

	local := e.get(id)
	if local == nil || local.Pending == routine.StatePendingDelete {
		return fmt.Errorf("routine %s: %w", id, routine.ErrNotFound)
	}

	if e.conn.Online() && !routine.IsTempID(id) {
		var err error
		if active {
			err = e.gw.ActivateRoutine(ctx, id)
		} else {
			err = e.gw.DeactivateRoutine(ctx, id)
		}
		if err != nil {
			e.recordDiagnosis(ctx, err)
			return err
		}
		return e.mirrorActiveFlags(ctx, id, active)
	}

	// Offline: flip flags locally; no other routine's pending markers
	// are touched.
	e.mu.Lock()
	var dirty []*routine.Routine
	for _, r := range e.routines {
		want := r.IsActive
		if r.ID == id {
			want = active
		} else if active {
			want = false
		}
		if r.IsActive != want {
			r.IsActive = want
			dirty = append(dirty, r)
		}
	}
	target := e.routines[id]
	if target.Pending == routine.StatePendingUpdate {
		// An earlier offline field edit must survive the marker change.
		target.FieldsDirty = true
	}
	switch {
	case target.Pending == routine.StatePendingCreate:
		// The eventual create carries the flag; reconcile activates
		// right after creating.
	case active:
		target.Pending = routine.StatePendingActivation
	default:
		target.Pending = routine.StatePendingDeactivation
	}
	if !containsRoutine(dirty, target) {
		dirty = append(dirty, target)
	}
	e.mu.Unlock()

	for _, r := range dirty {
		if err := e.store.PutRoutine(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// mirrorActiveFlags applies the server-side outcome of an activation to
// every local routine.
func (e *Engine) mirrorActiveFlags(ctx context.Context, id string, active bool) error {
	e.mu.Lock()
	var dirty []*routine.Routine
	for _, r := range e.routines {
		want := r.IsActive
		if r.ID == id {
			want = active
		} else if active {
			want = false
		}
		if r.IsActive != want {
			r.IsActive = want
			dirty = append(dirty, r)
		}
	}
	e.mu.Unlock()

	for _, r := range dirty {
		if err := e.store.PutRoutine(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func containsRoutine(list []*routine.Routine, r *routine.Routine) bool {
	for _, x := range list {
		if x == r {
			return true
		}
	}
	return false
}
