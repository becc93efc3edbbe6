package remote

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/nesttask/nesttask/internal/routine"
)

// testClient runs the client against an embedded SQLite standing in for
// the hosted backend; the SQL dialect is shared.
func testClient(t *testing.T) *Client {
	t.Helper()
	conn, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "backend.db"))
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	c := NewWithDB(conn, log.New(io.Discard, "", 0))
	if err := c.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return c
}

func mustCreateRoutine(t *testing.T, c *Client, name string) *routine.Routine {
	t.Helper()
	r, err := c.CreateRoutine(context.Background(), &routine.RoutineInput{Name: name})
	if err != nil {
		t.Fatalf("CreateRoutine(%s) failed: %v", name, err)
	}
	return r
}

func mustCreateSlot(t *testing.T, c *Client, routineID string, in routine.SlotInput) *routine.Slot {
	t.Helper()
	s, err := c.CreateSlot(context.Background(), routineID, &routine.Slot{
		DayOfWeek:  in.DayOfWeek,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
		RoomNumber: in.RoomNumber,
		Section:    in.Section,
		CourseID:   in.CourseID,
		TeacherID:  in.TeacherID,
	})
	if err != nil {
		t.Fatalf("CreateSlot() failed: %v", err)
	}
	return s
}

func TestCreateRoutine_AssignsServerID(t *testing.T) {
	c := testClient(t)

	r := mustCreateRoutine(t, c, "Fall 2026")
	if r.ID == "" || routine.IsTempID(r.ID) {
		t.Errorf("server id = %q, want a fresh non-temporary id", r.ID)
	}

	listed, err := c.ListRoutines(context.Background())
	if err != nil {
		t.Fatalf("ListRoutines() failed: %v", err)
	}
	if len(listed) != 1 || listed[0].Name != "Fall 2026" {
		t.Errorf("ListRoutines() = %v, want the created routine", listed)
	}
}

func TestUpdateRoutine_PartialAndNotFound(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	r := mustCreateRoutine(t, c, "orig")

	name := "renamed"
	if err := c.UpdateRoutine(ctx, r.ID, &routine.RoutineUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateRoutine() failed: %v", err)
	}

	got, err := c.GetRoutineWithSlots(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRoutineWithSlots() failed: %v", err)
	}
	if got.Name != "renamed" {
		t.Errorf("Name = %q, want renamed", got.Name)
	}

	if err := c.UpdateRoutine(ctx, "missing", &routine.RoutineUpdate{Name: &name}); !errors.Is(err, routine.ErrNotFound) {
		t.Errorf("UpdateRoutine(missing) = %v, want ErrNotFound", err)
	}
}

func TestDeleteRoutine_CascadesAndTolerateAbsent(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	r := mustCreateRoutine(t, c, "doomed")
	mustCreateSlot(t, c, r.ID, routine.SlotInput{DayOfWeek: "Sunday", StartTime: "09:00", EndTime: "10:30"})

	if err := c.DeleteRoutine(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRoutine() failed: %v", err)
	}
	if _, err := c.GetRoutineWithSlots(ctx, r.ID); !errors.Is(err, routine.ErrNotFound) {
		t.Errorf("routine survived delete: %v", err)
	}
	if slots, _ := c.ListSlots(ctx, r.ID); len(slots) != 0 {
		t.Errorf("%d slots survived their routine's delete", len(slots))
	}

	if err := c.DeleteRoutine(ctx, "missing"); err != nil {
		t.Errorf("DeleteRoutine(missing) = %v, want nil", err)
	}
}

func TestActivateRoutine_SingleActive(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	a := mustCreateRoutine(t, c, "a")
	b := mustCreateRoutine(t, c, "b")

	if err := c.ActivateRoutine(ctx, a.ID); err != nil {
		t.Fatalf("ActivateRoutine(a) failed: %v", err)
	}
	if err := c.ActivateRoutine(ctx, b.ID); err != nil {
		t.Fatalf("ActivateRoutine(b) failed: %v", err)
	}

	listed, err := c.ListRoutines(ctx)
	if err != nil {
		t.Fatalf("ListRoutines() failed: %v", err)
	}
	active := 0
	for _, r := range listed {
		if r.IsActive {
			active++
			if r.ID != b.ID {
				t.Errorf("active routine = %s, want %s", r.ID, b.ID)
			}
		}
	}
	if active != 1 {
		t.Errorf("%d active routines, want exactly 1", active)
	}

	if err := c.ActivateRoutine(ctx, "missing"); !errors.Is(err, routine.ErrNotFound) {
		t.Errorf("ActivateRoutine(missing) = %v, want ErrNotFound", err)
	}
}

func TestSlots_CRUD(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	r := mustCreateRoutine(t, c, "owner")

	s := mustCreateSlot(t, c, r.ID, routine.SlotInput{
		DayOfWeek: "Monday", StartTime: "09:00", EndTime: "10:30", Section: "A",
	})

	start := "11:00"
	if err := c.UpdateSlot(ctx, r.ID, s.ID, &routine.SlotUpdate{StartTime: &start}); err != nil {
		t.Fatalf("UpdateSlot() failed: %v", err)
	}

	got, err := c.GetSlot(ctx, r.ID, s.ID)
	if err != nil {
		t.Fatalf("GetSlot() failed: %v", err)
	}
	if got.StartTime != "11:00" || got.Section != "A" {
		t.Errorf("slot after update = %+v", got)
	}

	if err := c.DeleteSlot(ctx, r.ID, s.ID); err != nil {
		t.Fatalf("DeleteSlot() failed: %v", err)
	}
	if _, err := c.GetSlot(ctx, r.ID, s.ID); !errors.Is(err, routine.ErrNotFound) {
		t.Errorf("slot survived delete: %v", err)
	}
	if err := c.DeleteSlot(ctx, r.ID, s.ID); err != nil {
		t.Errorf("repeated DeleteSlot() = %v, want nil", err)
	}
}

func TestGetRoutineWithSlots_Join(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	r := mustCreateRoutine(t, c, "joined")
	mustCreateSlot(t, c, r.ID, routine.SlotInput{DayOfWeek: "Monday", StartTime: "11:00", EndTime: "12:30"})
	mustCreateSlot(t, c, r.ID, routine.SlotInput{DayOfWeek: "Monday", StartTime: "09:00", EndTime: "10:30"})

	got, err := c.GetRoutineWithSlots(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRoutineWithSlots() failed: %v", err)
	}
	if len(got.Slots) != 2 {
		t.Fatalf("got %d slots, want 2", len(got.Slots))
	}
	if got.Slots[0].StartTime != "09:00" {
		t.Errorf("slots not ordered by start time: %v, %v",
			got.Slots[0].StartTime, got.Slots[1].StartTime)
	}
}

func TestBulkInsertSlots_RejectsOverlap(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	r := mustCreateRoutine(t, c, "bulk")

	// First fills 09:00-10:30 Sunday; second overlaps it; third is the
	// same window on another day and must pass.
	inserted, report, err := c.BulkInsertSlots(ctx, r.ID, []routine.SlotInput{
		{DayOfWeek: "Sunday", StartTime: "09:00", EndTime: "10:30"},
		{DayOfWeek: "Sunday", StartTime: "10:00", EndTime: "11:30"},
		{DayOfWeek: "Monday", StartTime: "09:00", EndTime: "10:30"},
	})
	if err != nil {
		t.Fatalf("BulkInsertSlots() failed: %v", err)
	}
	if report.Success != 2 || len(inserted) != 2 {
		t.Errorf("Success = %d (%d inserted), want 2", report.Success, len(inserted))
	}
	if len(report.Errors) != 1 || report.Errors[0].Index != 1 {
		t.Fatalf("Errors = %+v, want exactly entry 1 rejected", report.Errors)
	}
}

func TestBulkInsertSlots_AdjacentWindowsAllowed(t *testing.T) {
	c := testClient(t)
	r := mustCreateRoutine(t, c, "adjacent")

	// Half-open windows: back-to-back classes sharing a boundary minute
	// do not overlap.
	_, report, err := c.BulkInsertSlots(context.Background(), r.ID, []routine.SlotInput{
		{DayOfWeek: "Sunday", StartTime: "09:00", EndTime: "10:30"},
		{DayOfWeek: "Sunday", StartTime: "10:30", EndTime: "12:00"},
	})
	if err != nil {
		t.Fatalf("BulkInsertSlots() failed: %v", err)
	}
	if report.Success != 2 || len(report.Errors) != 0 {
		t.Errorf("report = %+v, want both adjacent slots accepted", report)
	}
}

func TestBulkInsertSlots_RejectsInvalidRow(t *testing.T) {
	c := testClient(t)
	r := mustCreateRoutine(t, c, "validated")

	_, report, err := c.BulkInsertSlots(context.Background(), r.ID, []routine.SlotInput{
		{DayOfWeek: "Noday", StartTime: "09:00", EndTime: "10:30"},
		{DayOfWeek: "Sunday", StartTime: "09:00", EndTime: "10:30"},
	})
	if err != nil {
		t.Fatalf("BulkInsertSlots() failed: %v", err)
	}
	if report.Success != 1 || len(report.Errors) != 1 || report.Errors[0].Index != 0 {
		t.Errorf("report = %+v, want row 0 rejected by validation", report)
	}
}

func TestLookups_ByIDs(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	if _, err := c.conn.ExecContext(ctx,
		"INSERT INTO courses (id, name, code) VALUES ('c1', 'Algorithms', 'CSE-2101')"); err != nil {
		t.Fatalf("seed course failed: %v", err)
	}
	if _, err := c.conn.ExecContext(ctx,
		"INSERT INTO teachers (id, name) VALUES ('t1', 'Dr. Rahman')"); err != nil {
		t.Fatalf("seed teacher failed: %v", err)
	}

	courses, err := c.CoursesByIDs(ctx, []string{"c1", "missing"})
	if err != nil {
		t.Fatalf("CoursesByIDs() failed: %v", err)
	}
	if len(courses) != 1 || courses["c1"].Code != "CSE-2101" {
		t.Errorf("courses = %v", courses)
	}

	teachers, err := c.TeachersByIDs(ctx, []string{"t1"})
	if err != nil {
		t.Fatalf("TeachersByIDs() failed: %v", err)
	}
	if teachers["t1"].Name != "Dr. Rahman" {
		t.Errorf("teachers = %v", teachers)
	}

	if empty, err := c.CoursesByIDs(ctx, nil); err != nil || len(empty) != 0 {
		t.Errorf("CoursesByIDs(nil) = %v, %v, want empty map", empty, err)
	}
}

func TestSupportsExtendedSlotColumns(t *testing.T) {
	c := testClient(t)
	if !c.SupportsExtendedSlotColumns(context.Background()) {
		t.Error("full schema should support the extended slot columns")
	}
}

func TestSlots_LegacySchemaWithoutDisplayColumns(t *testing.T) {
	conn, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "legacy.db"))
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// A backend predating the denormalized display-name columns.
	legacy := `
	CREATE TABLE routines (
		id TEXT PRIMARY KEY, name TEXT NOT NULL, description TEXT, semester TEXT,
		is_active INTEGER NOT NULL DEFAULT 0, created_at TEXT NOT NULL, created_by TEXT
	);
	CREATE TABLE routine_slots (
		id TEXT PRIMARY KEY, routine_id TEXT NOT NULL, day_of_week TEXT NOT NULL,
		start_time TEXT NOT NULL, end_time TEXT NOT NULL, room_number TEXT,
		section TEXT, course_id TEXT, teacher_id TEXT, created_at TEXT NOT NULL
	);
	`
	if _, err := conn.Exec(legacy); err != nil {
		t.Fatalf("legacy schema failed: %v", err)
	}

	c := NewWithDB(conn, log.New(io.Discard, "", 0))
	ctx := context.Background()
	if c.SupportsExtendedSlotColumns(ctx) {
		t.Fatal("legacy schema reported as extended")
	}

	r := mustCreateRoutine(t, c, "legacy")
	s := mustCreateSlot(t, c, r.ID, routine.SlotInput{
		DayOfWeek: "Sunday", StartTime: "09:00", EndTime: "10:30",
	})

	got, err := c.GetSlot(ctx, r.ID, s.ID)
	if err != nil {
		t.Fatalf("GetSlot() on legacy schema failed: %v", err)
	}
	if got.CourseName != "" || got.TeacherName != "" {
		t.Errorf("legacy schema produced display names: %+v", got)
	}
}
