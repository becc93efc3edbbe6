package remote

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nesttask/nesttask/internal/routine"
)

// CreateSlot inserts a slot under the given routine and returns the
// authoritative copy with its server-assigned id.
//
// The optional display-name columns are written only when the backend
// schema supports them; otherwise the same payload is stored without them.
func (c *Client) CreateSlot(ctx context.Context, routineID string, s *routine.Slot) (*routine.Slot, error) {
	out := *s
	out.ID = uuid.NewString()
	out.RoutineID = routineID
	out.Pending = routine.StateClean
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}

	if err := c.insertSlot(ctx, &out); err != nil {
		return nil, err
	}
	c.logger.Printf("Created slot: %s under routine %s", out.ID, routineID)
	return &out, nil
}

func (c *Client) insertSlot(ctx context.Context, s *routine.Slot) error {
	var query string
	var args []interface{}

	if c.SupportsExtendedSlotColumns(ctx) {
		query = `
		INSERT INTO routine_slots (id, routine_id, day_of_week, start_time, end_time,
			room_number, section, course_id, teacher_id, course_name, teacher_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		args = []interface{}{s.ID, s.RoutineID, s.DayOfWeek, s.StartTime, s.EndTime,
			s.RoomNumber, s.Section, s.CourseID, s.TeacherID, s.CourseName, s.TeacherName,
			s.CreatedAt.Format(time.RFC3339)}
	} else {
		query = `
		INSERT INTO routine_slots (id, routine_id, day_of_week, start_time, end_time,
			room_number, section, course_id, teacher_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		args = []interface{}{s.ID, s.RoutineID, s.DayOfWeek, s.StartTime, s.EndTime,
			s.RoomNumber, s.Section, s.CourseID, s.TeacherID,
			s.CreatedAt.Format(time.RFC3339)}
	}

	if _, err := c.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: failed to insert slot %s: %v", routine.ErrTransient, s.ID, err)
	}
	return nil
}

// UpdateSlot applies a partial edit. Nil fields are left untouched.
// Returns routine.ErrNotFound if the slot does not exist remotely.
func (c *Client) UpdateSlot(ctx context.Context, routineID, slotID string, u *routine.SlotUpdate) error {
	var sets []string
	var args []interface{}

	if u.DayOfWeek != nil {
		sets = append(sets, "day_of_week = ?")
		args = append(args, *u.DayOfWeek)
	}
	if u.StartTime != nil {
		sets = append(sets, "start_time = ?")
		args = append(args, *u.StartTime)
	}
	if u.EndTime != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, *u.EndTime)
	}
	if u.RoomNumber != nil {
		sets = append(sets, "room_number = ?")
		args = append(args, *u.RoomNumber)
	}
	if u.Section != nil {
		sets = append(sets, "section = ?")
		args = append(args, *u.Section)
	}
	if u.CourseID != nil {
		sets = append(sets, "course_id = ?")
		args = append(args, *u.CourseID)
	}
	if u.TeacherID != nil {
		sets = append(sets, "teacher_id = ?")
		args = append(args, *u.TeacherID)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE routine_slots SET " + joinSets(sets) + " WHERE id = ? AND routine_id = ?"
	args = append(args, slotID, routineID)

	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update slot %s: %v", routine.ErrTransient, slotID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("slot %s: %w", slotID, routine.ErrNotFound)
	}
	return nil
}

// DeleteSlot removes one slot. Deleting an absent slot is treated as
// already satisfied.
func (c *Client) DeleteSlot(ctx context.Context, routineID, slotID string) error {
	_, err := c.conn.ExecContext(ctx,
		"DELETE FROM routine_slots WHERE id = ? AND routine_id = ?", slotID, routineID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete slot %s: %v", routine.ErrTransient, slotID, err)
	}
	return nil
}

// ListSlots returns every slot of a routine ordered by day and start time.
func (c *Client) ListSlots(ctx context.Context, routineID string) ([]*routine.Slot, error) {
	query := `
	SELECT id, routine_id, day_of_week, start_time, end_time,
	       room_number, section, course_id, teacher_id,
	       ` + c.displayColumns(ctx) + `, created_at
	FROM routine_slots
	WHERE routine_id = ?
	ORDER BY day_of_week ASC, start_time ASC
	`
	rows, err := c.conn.QueryContext(ctx, query, routineID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list slots of %s: %v", routine.ErrTransient, routineID, err)
	}
	defer rows.Close()

	var out []*routine.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating slots of %s: %v", routine.ErrTransient, routineID, err)
	}
	return out, nil
}

// BulkInsertSlots inserts many slots for one routine in a single call.
//
// Before each insert the new slot's [start, end) window is checked against
// every existing slot of the same routine and day; rows inserted earlier in
// the same batch count as existing. A detected overlap rejects only that
// row, with a descriptive entry in the report, never the whole batch.
func (c *Client) BulkInsertSlots(ctx context.Context, routineID string, inputs []routine.SlotInput) ([]*routine.Slot, *routine.ImportReport, error) {
	report := &routine.ImportReport{}
	var inserted []*routine.Slot

	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			report.Errors = append(report.Errors, routine.ImportError{
				Index:  i,
				Reason: err.Error(),
			})
			continue
		}

		conflict, err := c.findOverlap(ctx, routineID, in.DayOfWeek, in.StartTime, in.EndTime)
		if err != nil {
			return inserted, report, err
		}
		if conflict != "" {
			report.Errors = append(report.Errors, routine.ImportError{
				Index: i,
				Reason: fmt.Sprintf("%v: %s %s-%s overlaps existing slot %s",
					routine.ErrConflict, in.DayOfWeek, in.StartTime, in.EndTime, conflict),
			})
			continue
		}

		s := &routine.Slot{
			ID:         uuid.NewString(),
			RoutineID:  routineID,
			DayOfWeek:  in.DayOfWeek,
			StartTime:  in.StartTime,
			EndTime:    in.EndTime,
			RoomNumber: in.RoomNumber,
			Section:    in.Section,
			CourseID:   in.CourseID,
			TeacherID:  in.TeacherID,
			CreatedAt:  time.Now().UTC(),
		}
		if err := c.insertSlot(ctx, s); err != nil {
			return inserted, report, err
		}
		inserted = append(inserted, s)
		report.Success++
	}

	c.logger.Printf("Bulk import for %s: %d inserted, %d rejected",
		routineID, report.Success, len(report.Errors))
	return inserted, report, nil
}

// findOverlap returns the id of an existing slot whose half-open time
// window overlaps [start, end) on the same routine and day, or "" if none.
// Overlap means existing.start < end AND existing.end > start. Times are
// zero-padded HH:MM, so string comparison orders correctly.
func (c *Client) findOverlap(ctx context.Context, routineID, day, start, end string) (string, error) {
	var id string
	err := c.conn.QueryRowContext(ctx, `
	SELECT id FROM routine_slots
	WHERE routine_id = ? AND day_of_week = ?
	  AND start_time < ? AND end_time > ?
	LIMIT 1
	`, routineID, day, end, start).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to check slot overlap: %v", routine.ErrTransient, err)
	}
	return id, nil
}

// GetSlot reads one slot back. Used by reconciliation to verify that a
// replayed mutation actually took effect.
func (c *Client) GetSlot(ctx context.Context, routineID, slotID string) (*routine.Slot, error) {
	query := `
	SELECT id, routine_id, day_of_week, start_time, end_time,
	       room_number, section, course_id, teacher_id,
	       ` + c.displayColumns(ctx) + `, created_at
	FROM routine_slots
	WHERE id = ? AND routine_id = ?
	`
	rows, err := c.conn.QueryContext(ctx, query, slotID, routineID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get slot %s: %v", routine.ErrTransient, slotID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: error reading slot %s: %v", routine.ErrTransient, slotID, err)
		}
		return nil, fmt.Errorf("slot %s: %w", slotID, routine.ErrNotFound)
	}
	return scanSlot(rows)
}

// displayColumns selects the optional display-name columns when the
// backend schema has them, or NULL placeholders when it doesn't, so every
// scan sees the same column count.
func (c *Client) displayColumns(ctx context.Context) string {
	if c.SupportsExtendedSlotColumns(ctx) {
		return "course_name, teacher_name"
	}
	return "NULL AS course_name, NULL AS teacher_name"
}

func scanSlot(rows *sql.Rows) (*routine.Slot, error) {
	var (
		s                                    routine.Slot
		room, section, courseID, teacherID   sql.NullString
		courseName, teacherName              sql.NullString
		createdAt                            string
	)
	err := rows.Scan(&s.ID, &s.RoutineID, &s.DayOfWeek, &s.StartTime, &s.EndTime,
		&room, &section, &courseID, &teacherID,
		&courseName, &teacherName, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan slot: %v", routine.ErrTransient, err)
	}
	s.RoomNumber = room.String
	s.Section = section.String
	s.CourseID = courseID.String
	s.TeacherID = teacherID.String
	s.CourseName = courseName.String
	s.TeacherName = teacherName.String
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		s.CreatedAt = t
	}
	return &s, nil
}
