package remote

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nesttask/nesttask/internal/routine"
)

// CreateRoutine inserts a routine and returns the authoritative copy with
// its server-assigned id. Temporary ids are never honored: a fresh id is
// always assigned here.
func (c *Client) CreateRoutine(ctx context.Context, in *routine.RoutineInput) (*routine.Routine, error) {
	r := &routine.Routine{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Semester:    in.Semester,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}

	query := `
	INSERT INTO routines (id, name, description, semester, is_active, created_at, created_by)
	VALUES (?, ?, ?, ?, 0, ?, ?)
	`
	_, err := c.conn.ExecContext(ctx, query,
		r.ID, r.Name, r.Description, r.Semester,
		r.CreatedAt.Format(time.RFC3339), r.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create routine: %v", routine.ErrTransient, err)
	}

	c.logger.Printf("Created routine: %s (%s)", r.ID, r.Name)
	return r, nil
}

// UpdateRoutine applies a partial edit. Nil fields are left untouched.
// Returns routine.ErrNotFound if the routine does not exist remotely.
func (c *Client) UpdateRoutine(ctx context.Context, id string, u *routine.RoutineUpdate) error {
	var sets []string
	var args []interface{}

	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Semester != nil {
		sets = append(sets, "semester = ?")
		args = append(args, *u.Semester)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE routines SET " + joinSets(sets) + " WHERE id = ?"
	args = append(args, id)

	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update routine %s: %v", routine.ErrTransient, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("routine %s: %w", id, routine.ErrNotFound)
	}
	return nil
}

// DeleteRoutine removes a routine and, through ownership, all of its
// slots. Deleting an absent routine is treated as already satisfied.
func (c *Client) DeleteRoutine(ctx context.Context, id string) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin delete: %v", routine.ErrTransient, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM routine_slots WHERE routine_id = ?", id); err != nil {
		return fmt.Errorf("%w: failed to delete slots of %s: %v", routine.ErrTransient, id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM routines WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: failed to delete routine %s: %v", routine.ErrTransient, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit delete: %v", routine.ErrTransient, err)
	}

	c.logger.Printf("Deleted routine: %s", id)
	return nil
}

// ListRoutines returns every routine without slots, ordered by creation
// time.
func (c *Client) ListRoutines(ctx context.Context) ([]*routine.Routine, error) {
	query := `
	SELECT id, name, description, semester, is_active, created_at, created_by
	FROM routines
	ORDER BY created_at ASC
	`
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list routines: %v", routine.ErrTransient, err)
	}
	defer rows.Close()

	var out []*routine.Routine
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating routines: %v", routine.ErrTransient, err)
	}
	return out, nil
}

// GetRoutineWithSlots fetches a routine together with its slots in one
// round trip. Returns routine.ErrNotFound if the routine is absent.
func (c *Client) GetRoutineWithSlots(ctx context.Context, id string) (*routine.Routine, error) {
	displayCols := "s.course_name, s.teacher_name"
	if !c.SupportsExtendedSlotColumns(ctx) {
		displayCols = "NULL, NULL"
	}
	query := `
	SELECT r.id, r.name, r.description, r.semester, r.is_active, r.created_at, r.created_by,
	       s.id, s.routine_id, s.day_of_week, s.start_time, s.end_time,
	       s.room_number, s.section, s.course_id, s.teacher_id,
	       ` + displayCols + `, s.created_at
	FROM routines r
	LEFT JOIN routine_slots s ON s.routine_id = r.id
	WHERE r.id = ?
	ORDER BY s.day_of_week ASC, s.start_time ASC
	`
	rows, err := c.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch routine %s: %v", routine.ErrTransient, id, err)
	}
	defer rows.Close()

	var r *routine.Routine
	for rows.Next() {
		var (
			name, createdAt                       string
			description, semester, createdBy      sql.NullString
			isActive                              int
			slotID, slotRoutineID, day            sql.NullString
			start, end, room, section             sql.NullString
			courseID, teacherID                   sql.NullString
			courseName, teacherName, slotCreated  sql.NullString
			rid                                   string
		)
		err := rows.Scan(&rid, &name, &description, &semester, &isActive, &createdAt, &createdBy,
			&slotID, &slotRoutineID, &day, &start, &end,
			&room, &section, &courseID, &teacherID,
			&courseName, &teacherName, &slotCreated)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan routine row: %v", routine.ErrTransient, err)
		}

		if r == nil {
			r = &routine.Routine{
				ID:          rid,
				Name:        name,
				Description: description.String,
				Semester:    semester.String,
				IsActive:    isActive != 0,
				CreatedBy:   createdBy.String,
			}
			if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
				r.CreatedAt = t
			}
		}

		if slotID.Valid {
			s := &routine.Slot{
				ID:          slotID.String,
				RoutineID:   slotRoutineID.String,
				DayOfWeek:   day.String,
				StartTime:   start.String,
				EndTime:     end.String,
				RoomNumber:  room.String,
				Section:     section.String,
				CourseID:    courseID.String,
				TeacherID:   teacherID.String,
				CourseName:  courseName.String,
				TeacherName: teacherName.String,
			}
			if t, err := time.Parse(time.RFC3339, slotCreated.String); err == nil {
				s.CreatedAt = t
			}
			r.Slots = append(r.Slots, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating routine %s: %v", routine.ErrTransient, id, err)
	}
	if r == nil {
		return nil, fmt.Errorf("routine %s: %w", id, routine.ErrNotFound)
	}
	return r, nil
}

// ActivateRoutine makes the given routine the single active one. The
// deactivation of every other routine and the activation of the target
// happen in one transaction, enforcing the single-active invariant
// server-side.
func (c *Client) ActivateRoutine(ctx context.Context, id string) error {
	return c.setActive(ctx, id, true)
}

// DeactivateRoutine clears the active flag of the given routine.
func (c *Client) DeactivateRoutine(ctx context.Context, id string) error {
	return c.setActive(ctx, id, false)
}

func (c *Client) setActive(ctx context.Context, id string, active bool) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin activation: %v", routine.ErrTransient, err)
	}
	defer tx.Rollback()

	if active {
		if _, err := tx.ExecContext(ctx, "UPDATE routines SET is_active = 0 WHERE is_active = 1"); err != nil {
			return fmt.Errorf("%w: failed to deactivate routines: %v", routine.ErrTransient, err)
		}
	}

	flag := 0
	if active {
		flag = 1
	}
	res, err := tx.ExecContext(ctx, "UPDATE routines SET is_active = ? WHERE id = ?", flag, id)
	if err != nil {
		return fmt.Errorf("%w: failed to set active flag on %s: %v", routine.ErrTransient, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("routine %s: %w", id, routine.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit activation: %v", routine.ErrTransient, err)
	}
	return nil
}

// scanRoutine scans one routines row (no slot columns).
func scanRoutine(rows *sql.Rows) (*routine.Routine, error) {
	var (
		r                                 routine.Routine
		description, semester, createdBy  sql.NullString
		isActive                          int
		createdAt                         string
	)
	err := rows.Scan(&r.ID, &r.Name, &description, &semester, &isActive, &createdAt, &createdBy)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan routine: %v", routine.ErrTransient, err)
	}
	r.Description = description.String
	r.Semester = semester.String
	r.CreatedBy = createdBy.String
	r.IsActive = isActive != 0
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		r.CreatedAt = t
	}
	return &r, nil
}

// joinSets joins SET clauses for a partial UPDATE.
func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
