// Package routine provides the domain types shared by the local store,
// the remote gateway and the sync engine: weekly class routines, the
// slots they contain, and the lookup entities slots reference.
package routine

import "time"

// Routine is a named weekly schedule container. At most one routine is
// active at a time; the sync engine's activation operation maintains that
// invariant across the whole known set.
type Routine struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Semester    string    `json:"semester,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`

	// Slots are owned exclusively by this routine; deleting the routine
	// deletes them all.
	Slots []*Slot `json:"slots,omitempty"`

	// Pending is transient reconciliation state, persisted locally but
	// never sent to the remote backend.
	Pending PendingState `json:"pending,omitempty"`

	// FieldsDirty records unsynced field edits on a routine whose
	// Pending marker is occupied by an activation change, so neither
	// offline mutation shadows the other. Cleared with Pending.
	FieldsDirty bool `json:"fields_dirty,omitempty"`
}

// Slot is one scheduled class occurrence inside a routine.
type Slot struct {
	ID         string `json:"id"`
	RoutineID  string `json:"routine_id"`
	DayOfWeek  string `json:"day_of_week"`
	StartTime  string `json:"start_time"` // HH:MM, zero-padded
	EndTime    string `json:"end_time"`   // HH:MM, zero-padded
	RoomNumber string `json:"room_number,omitempty"`
	Section    string `json:"section,omitempty"`
	CourseID   string `json:"course_id,omitempty"`
	TeacherID  string `json:"teacher_id,omitempty"`

	// Denormalized display fields, refreshed opportunistically from the
	// course/teacher lookups. Staleness is tolerated.
	CourseName  string `json:"course_name,omitempty"`
	CourseCode  string `json:"course_code,omitempty"`
	TeacherName string `json:"teacher_name,omitempty"`

	CreatedAt time.Time    `json:"created_at"`
	Pending   PendingState `json:"pending,omitempty"`
}

// Course is a read-only lookup entity owned by the remote backend.
type Course struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// Teacher is a read-only lookup entity owned by the remote backend.
type Teacher struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoutineUpdate carries a partial routine edit. Nil fields are left
// untouched.
type RoutineUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Semester    *string `json:"semester,omitempty"`
}

// SlotUpdate carries a partial slot edit. Nil fields are left untouched.
type SlotUpdate struct {
	DayOfWeek  *string `json:"day_of_week,omitempty"`
	StartTime  *string `json:"start_time,omitempty"`
	EndTime    *string `json:"end_time,omitempty"`
	RoomNumber *string `json:"room_number,omitempty"`
	Section    *string `json:"section,omitempty"`
	CourseID   *string `json:"course_id,omitempty"`
	TeacherID  *string `json:"teacher_id,omitempty"`
}

// Apply merges the update into r.
func (u *RoutineUpdate) Apply(r *Routine) {
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Semester != nil {
		r.Semester = *u.Semester
	}
}

// Apply merges the update into s.
func (u *SlotUpdate) Apply(s *Slot) {
	if u.DayOfWeek != nil {
		s.DayOfWeek = *u.DayOfWeek
	}
	if u.StartTime != nil {
		s.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		s.EndTime = *u.EndTime
	}
	if u.RoomNumber != nil {
		s.RoomNumber = *u.RoomNumber
	}
	if u.Section != nil {
		s.Section = *u.Section
	}
	if u.CourseID != nil {
		s.CourseID = *u.CourseID
	}
	if u.TeacherID != nil {
		s.TeacherID = *u.TeacherID
	}
}

// Clone returns a deep copy of the routine including its slots.
func (r *Routine) Clone() *Routine {
	cp := *r
	if r.Slots != nil {
		cp.Slots = make([]*Slot, len(r.Slots))
		for i, s := range r.Slots {
			sc := *s
			cp.Slots[i] = &sc
		}
	}
	return &cp
}

// SlotByID returns the slot with the given id, or nil.
func (r *Routine) SlotByID(id string) *Slot {
	for _, s := range r.Slots {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// RemoveSlot deletes the slot with the given id from the routine's slice.
// It reports whether a slot was removed.
func (r *Routine) RemoveSlot(id string) bool {
	for i, s := range r.Slots {
		if s.ID == id {
			r.Slots = append(r.Slots[:i], r.Slots[i+1:]...)
			return true
		}
	}
	return false
}

// SyncReport summarizes one reconciliation pass.
type SyncReport struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ImportError describes one rejected row of a bulk slot import.
type ImportError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ImportReport summarizes a bulk slot import: how many rows were inserted
// and which rows were rejected. A rejected row never aborts the batch.
type ImportReport struct {
	Success int           `json:"success"`
	Errors  []ImportError `json:"errors"`
}
