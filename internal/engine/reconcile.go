package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/nesttask/nesttask/internal/routine"
)

// Reconcile drains pending offline mutations against the remote gateway.
//
// It only runs while online, and only once at a time: a second invocation
// while one is active is a no-op returning an empty report. Pending items
// replay in a fixed priority order — deletions, then activation state,
// then creations, then updates — with routine-level changes applied
// before the slots they own, so a temporary routine id is replaced by its
// server id before any owned slot referencing it is synced.
//
// Every item syncs independently: a failure counts against the report and
// leaves that item's marker intact for a future pass. When any item
// succeeded the merged result is already persisted and the freshness
// timestamp is refreshed.
func (e *Engine) Reconcile(ctx context.Context) (*routine.SyncReport, error) {
	report := &routine.SyncReport{}

	if !e.conn.Online() {
		return report, nil
	}
	if !e.reconciling.CompareAndSwap(false, true) {
		return report, nil
	}
	defer e.reconciling.Store(false)

	if err := e.ensureSnapshot(ctx); err != nil {
		return report, err
	}

	e.reconcileRoutineDeletes(ctx, report)
	e.reconcileSlotDeletes(ctx, report)
	e.reconcileActivation(ctx, report)
	e.reconcileRoutineCreates(ctx, report)
	e.reconcileSlotCreates(ctx, report)
	e.reconcileRoutineUpdates(ctx, report)
	e.reconcileSlotUpdates(ctx, report)

	if report.Succeeded > 0 {
		if err := e.store.SetLastFetched(ctx, e.now()); err != nil {
			e.logger.Printf("Failed to refresh freshness timestamp: %v", err)
		}
	}

	e.logger.Printf("Reconcile complete: succeeded=%d failed=%d",
		report.Succeeded, report.Failed)
	return report, nil
}

// pendingIDs returns sorted routine ids whose pending state matches.
func (e *Engine) pendingIDs(state routine.PendingState) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var ids []string
	for id, r := range e.routines {
		if r.Pending == state {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// allIDs returns every routine id in the snapshot, sorted.
func (e *Engine) allIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.routines))
	for id := range e.routines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) reconcileRoutineDeletes(ctx context.Context, report *routine.SyncReport) {
	for _, id := range e.pendingIDs(routine.StatePendingDelete) {
		// A tombstoned temp id never reached the server; dropping the
		// tombstone is the whole sync.
		if !routine.IsTempID(id) {
			if err := e.gw.DeleteRoutine(ctx, id); err != nil {
				e.logger.Printf("Reconcile: delete routine %s failed: %v", id, err)
				report.Failed++
				continue
			}
		}
		if err := e.removeLocal(ctx, id); err != nil {
			e.logger.Printf("Reconcile: prune routine %s failed: %v", id, err)
			report.Failed++
			continue
		}
		report.Succeeded++
	}
}

func (e *Engine) reconcileSlotDeletes(ctx context.Context, report *routine.SyncReport) {
	for _, id := range e.allIDs() {
		r := e.get(id)
		if r == nil || routine.IsTempID(id) {
			continue
		}
		for _, s := range append([]*routine.Slot(nil), r.Slots...) {
			if s.Pending != routine.StatePendingDelete {
				continue
			}
			if !routine.IsTempID(s.ID) {
				if err := e.gw.DeleteSlot(ctx, id, s.ID); err != nil {
					e.logger.Printf("Reconcile: delete slot %s failed: %v", s.ID, err)
					report.Failed++
					continue
				}
			}
			e.mu.Lock()
			r.RemoveSlot(s.ID)
			e.mu.Unlock()
			if err := e.store.PutRoutine(ctx, r); err != nil {
				report.Failed++
				continue
			}
			report.Succeeded++
		}
	}
}

func (e *Engine) reconcileActivation(ctx context.Context, report *routine.SyncReport) {
	e.reconcileActiveState(ctx, report, routine.StatePendingActivation, true)
	e.reconcileActiveState(ctx, report, routine.StatePendingDeactivation, false)
}

func (e *Engine) reconcileActiveState(ctx context.Context, report *routine.SyncReport, state routine.PendingState, active bool) {
	for _, id := range e.pendingIDs(state) {
		local := e.get(id)
		if local == nil || routine.IsTempID(id) {
			continue
		}

		// Field edits made while the activation marker was held replay
		// first, so neither offline mutation shadows the other.
		if local.FieldsDirty {
			if err := e.pushRoutineFields(ctx, id, local); err != nil {
				e.logger.Printf("Reconcile: update routine %s failed: %v", id, err)
				report.Failed++
				continue
			}
		}

		var err error
		if active {
			err = e.gw.ActivateRoutine(ctx, id)
		} else {
			err = e.gw.DeactivateRoutine(ctx, id)
		}
		if err != nil {
			e.logger.Printf("Reconcile: set active=%v for routine %s failed: %v", active, id, err)
			report.Failed++
			continue
		}

		e.clearPending(id)
		if err := e.store.PutRoutine(ctx, local); err != nil {
			report.Failed++
			continue
		}
		if err := e.mirrorActiveFlags(ctx, id, active); err != nil {
			report.Failed++
			continue
		}
		report.Succeeded++
	}
}

func (e *Engine) reconcileRoutineCreates(ctx context.Context, report *routine.SyncReport) {
	for _, id := range e.pendingIDs(routine.StatePendingCreate) {
		local := e.get(id)
		if local == nil {
			continue
		}

		created, err := e.gw.CreateRoutine(ctx, &routine.RoutineInput{
			Name:        local.Name,
			Description: local.Description,
			Semester:    local.Semester,
			CreatedBy:   local.CreatedBy,
		})
		if err != nil {
			e.logger.Printf("Reconcile: create routine %s failed: %v", id, err)
			report.Failed++
			continue
		}

		// The server id replaces the temporary id everywhere, including
		// the back-references of owned slots, before those slots sync.
		replacement := created.Clone()
		replacement.IsActive = local.IsActive
		replacement.Slots = local.Slots
		if err := e.rewriteID(ctx, id, replacement); err != nil {
			e.logger.Printf("Reconcile: id rewrite for %s failed: %v", id, err)
			report.Failed++
			continue
		}
		report.Succeeded++

		// An offline activation of a never-synced routine rides along
		// with its create.
		if replacement.IsActive {
			if err := e.gw.ActivateRoutine(ctx, replacement.ID); err != nil {
				e.logger.Printf("Reconcile: activate created routine %s failed: %v",
					replacement.ID, err)
			}
		}
	}
}

func (e *Engine) reconcileSlotCreates(ctx context.Context, report *routine.SyncReport) {
	for _, id := range e.allIDs() {
		r := e.get(id)
		if r == nil || routine.IsTempID(id) {
			continue
		}
		for _, s := range append([]*routine.Slot(nil), r.Slots...) {
			if s.Pending != routine.StatePendingCreate {
				continue
			}
			created, err := e.gw.CreateSlot(ctx, id, s)
			if err != nil {
				e.logger.Printf("Reconcile: create slot %s failed: %v", s.ID, err)
				report.Failed++
				continue
			}
			e.mu.Lock()
			r.RemoveSlot(s.ID)
			r.Slots = append(r.Slots, created)
			e.mu.Unlock()
			if err := e.store.PutRoutine(ctx, r); err != nil {
				report.Failed++
				continue
			}
			report.Succeeded++
		}
	}
}

func (e *Engine) reconcileRoutineUpdates(ctx context.Context, report *routine.SyncReport) {
	for _, id := range e.pendingIDs(routine.StatePendingUpdate) {
		local := e.get(id)
		if local == nil || routine.IsTempID(id) {
			continue
		}
		if err := e.pushRoutineFields(ctx, id, local); err != nil {
			e.logger.Printf("Reconcile: update routine %s failed: %v", id, err)
			report.Failed++
			continue
		}
		e.clearPending(id)
		if err := e.store.PutRoutine(ctx, local); err != nil {
			report.Failed++
			continue
		}
		report.Succeeded++
	}
}

func (e *Engine) reconcileSlotUpdates(ctx context.Context, report *routine.SyncReport) {
	for _, id := range e.allIDs() {
		r := e.get(id)
		if r == nil || routine.IsTempID(id) {
			continue
		}
		for _, s := range r.Slots {
			if s.Pending != routine.StatePendingUpdate {
				continue
			}
			u := &routine.SlotUpdate{
				DayOfWeek:  &s.DayOfWeek,
				StartTime:  &s.StartTime,
				EndTime:    &s.EndTime,
				RoomNumber: &s.RoomNumber,
				Section:    &s.Section,
				CourseID:   &s.CourseID,
				TeacherID:  &s.TeacherID,
			}
			if err := e.gw.UpdateSlot(ctx, id, s.ID, u); err != nil {
				e.logger.Printf("Reconcile: update slot %s failed: %v", s.ID, err)
				report.Failed++
				continue
			}
			if err := e.verifySlot(ctx, id, s); err != nil {
				e.logger.Printf("Reconcile: verification for slot %s failed: %v", s.ID, err)
				report.Failed++
				continue
			}
			e.mu.Lock()
			s.Pending = routine.StateClean
			e.mu.Unlock()
			if err := e.store.PutRoutine(ctx, r); err != nil {
				report.Failed++
				continue
			}
			report.Succeeded++
		}
	}
}

// verifySlot re-reads a replayed slot and confirms the mutation took
// effect.
func (e *Engine) verifySlot(ctx context.Context, routineID string, want *routine.Slot) error {
	got, err := e.gw.GetSlot(ctx, routineID, want.ID)
	if err != nil {
		return err
	}
	if got.DayOfWeek != want.DayOfWeek || got.StartTime != want.StartTime || got.EndTime != want.EndTime {
		return fmt.Errorf("slot %s: remote copy diverges after update: %w",
			want.ID, routine.ErrConflict)
	}
	return nil
}

// pushRoutineFields replays a routine's locally merged fields to the
// gateway.
func (e *Engine) pushRoutineFields(ctx context.Context, id string, local *routine.Routine) error {
	u := &routine.RoutineUpdate{
		Name:        &local.Name,
		Description: &local.Description,
		Semester:    &local.Semester,
	}
	return e.gw.UpdateRoutine(ctx, id, u)
}

func (e *Engine) clearPending(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.routines[id]; r != nil {
		r.Pending = routine.StateClean
		r.FieldsDirty = false
	}
}
