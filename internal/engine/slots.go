package engine

import (
	"context"
	"fmt"

	"github.com/nesttask/nesttask/internal/routine"
)

// AddSlot creates a slot under the named routine, with the same
// online/offline duality as Create. The owning routine must be known
// locally: orphaned slots are never admitted to the store.
func (e *Engine) AddSlot(ctx context.Context, routineID string, in *routine.SlotInput) (*routine.Slot, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := e.ensureSnapshot(ctx); err != nil {
		return nil, err
	}

	owner := e.get(routineID)
	if owner == nil || owner.Pending == routine.StatePendingDelete {
		return nil, fmt.Errorf("routine %s: %w", routineID, routine.ErrNotFound)
	}

	s := &routine.Slot{
		RoutineID:  routineID,
		DayOfWeek:  in.DayOfWeek,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
		RoomNumber: in.RoomNumber,
		Section:    in.Section,
		CourseID:   in.CourseID,
		TeacherID:  in.TeacherID,
		CreatedAt:  e.now().UTC(),
	}

	if e.conn.Online() && !routine.IsTempID(routineID) {
		created, err := e.gw.CreateSlot(ctx, routineID, s)
		if err != nil {
			e.recordDiagnosis(ctx, err)
			return nil, err
		}
		if err := e.enrichSlots(ctx, []*routine.Slot{created}); err != nil {
			e.logger.Printf("Lookup enrichment for slot %s failed: %v", created.ID, err)
		}
		if err := e.appendSlot(ctx, routineID, created); err != nil {
			return nil, err
		}
		cp := *created
		return &cp, nil
	}

	s.ID = routine.NewTempID()
	s.Pending = routine.StatePendingCreate
	if err := e.appendSlot(ctx, routineID, s); err != nil {
		return nil, err
	}
	e.logger.Printf("Created slot offline: %s under routine %s", s.ID, routineID)
	cp := *s
	return &cp, nil
}

// UpdateSlot applies a partial edit to one slot, mirroring the fields
// locally online and marking pending-update offline.
func (e *Engine) UpdateSlot(ctx context.Context, routineID, slotID string, u *routine.SlotUpdate) error {
	if err := e.ensureSnapshot(ctx); err != nil {
		return err
	}

	owner := e.get(routineID)
	if owner == nil || owner.Pending == routine.StatePendingDelete {
		return fmt.Errorf("routine %s: %w", routineID, routine.ErrNotFound)
	}

	online := e.conn.Online() && !routine.IsTempID(slotID) && !routine.IsTempID(routineID)
	if online {
		if err := e.gw.UpdateSlot(ctx, routineID, slotID, u); err != nil {
			e.recordDiagnosis(ctx, err)
			return err
		}
	}

	e.mu.Lock()
	live := e.routines[routineID]
	s := live.SlotByID(slotID)
	if s == nil || s.Pending == routine.StatePendingDelete {
		e.mu.Unlock()
		if online {
			// Remote accepted the edit; nothing cached to mirror into.
			return nil
		}
		return fmt.Errorf("slot %s: %w", slotID, routine.ErrNotFound)
	}
	u.Apply(s)
	if !online && s.Pending != routine.StatePendingCreate {
		s.Pending = routine.StatePendingUpdate
	}
	e.mu.Unlock()

	return e.store.PutRoutine(ctx, live)
}

// DeleteSlot removes one slot with the same offline semantics as Delete:
// a never-synced slot vanishes outright, anything else becomes a
// tombstone inside its routine.
func (e *Engine) DeleteSlot(ctx context.Context, routineID, slotID string) error {
	if err := e.ensureSnapshot(ctx); err != nil {
		return err
	}

	owner := e.get(routineID)
	if owner == nil {
		return nil
	}

	e.mu.Lock()
	live := e.routines[routineID]
	s := live.SlotByID(slotID)
	if s != nil && s.Pending == routine.StatePendingCreate {
		live.RemoveSlot(slotID)
		e.mu.Unlock()
		return e.store.PutRoutine(ctx, live)
	}
	e.mu.Unlock()

	if e.conn.Online() {
		if !routine.IsTempID(slotID) {
			if err := e.gw.DeleteSlot(ctx, routineID, slotID); err != nil {
				e.recordDiagnosis(ctx, err)
				return err
			}
		}
		e.mu.Lock()
		live.RemoveSlot(slotID)
		e.mu.Unlock()
		if err := e.store.PutRoutine(ctx, live); err != nil {
			return err
		}
		return e.store.ClearLastFetched(ctx)
	}

	e.mu.Lock()
	if s == nil {
		e.mu.Unlock()
		return nil
	}
	s.Pending = routine.StatePendingDelete
	e.mu.Unlock()
	return e.store.PutRoutine(ctx, live)
}

// appendSlot adds a slot to its owning routine in the snapshot and
// persists the routine whole.
func (e *Engine) appendSlot(ctx context.Context, routineID string, s *routine.Slot) error {
	e.mu.Lock()
	live := e.routines[routineID]
	if live == nil {
		e.mu.Unlock()
		return fmt.Errorf("routine %s: %w", routineID, routine.ErrNotFound)
	}
	live.Slots = append(live.Slots, s)
	e.mu.Unlock()
	return e.store.PutRoutine(ctx, live)
}
