package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nesttask/nesttask/internal/routine"
)

// testStore opens a store on a temp path and closes it with the test.
func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx, CollectionRoutines)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestPut_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := &routine.Routine{ID: "r1", Name: "Fall 25", Semester: "Fall 2025"}
	if err := s.PutRoutine(ctx, r); err != nil {
		t.Fatalf("PutRoutine() failed: %v", err)
	}

	got, err := s.RoutineByID(ctx, "r1")
	if err != nil {
		t.Fatalf("RoutineByID() failed: %v", err)
	}
	if got.Name != "Fall 25" || got.Semester != "Fall 2025" {
		t.Errorf("got %q/%q, want Fall 25/Fall 2025", got.Name, got.Semester)
	}
}

func TestPut_Overwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.PutRoutine(ctx, &routine.Routine{ID: "r1", Name: "v1"}); err != nil {
		t.Fatalf("PutRoutine() failed: %v", err)
	}
	if err := s.PutRoutine(ctx, &routine.Routine{ID: "r1", Name: "v2"}); err != nil {
		t.Fatalf("PutRoutine() failed: %v", err)
	}

	got, err := s.RoutineByID(ctx, "r1")
	if err != nil {
		t.Fatalf("RoutineByID() failed: %v", err)
	}
	if got.Name != "v2" {
		t.Errorf("Name = %q, want v2", got.Name)
	}
	if n, _ := s.Count(ctx, CollectionRoutines); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.RoutineByID(context.Background(), "missing")
	if !errors.Is(err, routine.ErrNotFound) {
		t.Errorf("RoutineByID() error = %v, want ErrNotFound", err)
	}
}

func TestReplaceRoutines_DropsStale(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveRoutines(ctx, []*routine.Routine{
		{ID: "old-1", Name: "old"},
		{ID: "keep-1", Name: "keep"},
	}); err != nil {
		t.Fatalf("SaveRoutines() failed: %v", err)
	}

	if err := s.ReplaceRoutines(ctx, []*routine.Routine{
		{ID: "keep-1", Name: "kept"},
		{ID: "new-1", Name: "new"},
	}); err != nil {
		t.Fatalf("ReplaceRoutines() failed: %v", err)
	}

	if _, err := s.RoutineByID(ctx, "old-1"); !errors.Is(err, routine.ErrNotFound) {
		t.Errorf("stale routine survived replace: err = %v", err)
	}
	got, err := s.RoutineByID(ctx, "keep-1")
	if err != nil {
		t.Fatalf("RoutineByID() failed: %v", err)
	}
	if got.Name != "kept" {
		t.Errorf("Name = %q, want kept", got.Name)
	}
	if n, _ := s.Count(ctx, CollectionRoutines); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestRoutines_PreservesSlotsAndPending(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := &routine.Routine{
		ID:      "r1",
		Name:    "with slots",
		Pending: routine.StatePendingUpdate,
		Slots: []*routine.Slot{
			{ID: "s1", RoutineID: "r1", DayOfWeek: "Sunday", StartTime: "09:00", EndTime: "10:30", Pending: routine.StatePendingCreate},
		},
	}
	if err := s.PutRoutine(ctx, r); err != nil {
		t.Fatalf("PutRoutine() failed: %v", err)
	}

	all, err := s.Routines(ctx)
	if err != nil {
		t.Fatalf("Routines() failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Routines() returned %d, want 1", len(all))
	}
	got := all[0]
	if got.Pending != routine.StatePendingUpdate {
		t.Errorf("routine Pending = %v, want pending-update", got.Pending)
	}
	if len(got.Slots) != 1 || got.Slots[0].Pending != routine.StatePendingCreate {
		t.Errorf("slot pending marker lost across the store round trip")
	}
}

func TestDelete_Absent(t *testing.T) {
	s := testStore(t)

	if err := s.DeleteRoutine(context.Background(), "missing"); err != nil {
		t.Errorf("DeleteRoutine() on absent id failed: %v", err)
	}
}

func TestLastFetched_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, ok, err := s.LastFetched(ctx); err != nil || ok {
		t.Fatalf("LastFetched() on fresh store = ok=%v err=%v, want unset", ok, err)
	}

	stamp := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if err := s.SetLastFetched(ctx, stamp); err != nil {
		t.Fatalf("SetLastFetched() failed: %v", err)
	}

	got, ok, err := s.LastFetched(ctx)
	if err != nil || !ok {
		t.Fatalf("LastFetched() = ok=%v err=%v, want set", ok, err)
	}
	if !got.Equal(stamp) {
		t.Errorf("LastFetched() = %v, want %v", got, stamp)
	}

	if err := s.ClearLastFetched(ctx); err != nil {
		t.Fatalf("ClearLastFetched() failed: %v", err)
	}
	if _, ok, _ := s.LastFetched(ctx); ok {
		t.Error("LastFetched() still set after clear")
	}
}

func TestCourses_SaveAndRead(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveCourses(ctx, map[string]routine.Course{
		"c1": {ID: "c1", Name: "Algorithms", Code: "CSE-2101"},
	}); err != nil {
		t.Fatalf("SaveCourses() failed: %v", err)
	}

	if n, err := s.Count(ctx, CollectionCourses); err != nil || n != 1 {
		t.Errorf("Count(courses) = %d err=%v, want 1", n, err)
	}
}

func TestReopen_KeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.PutRoutine(ctx, &routine.Routine{ID: "r1", Name: "survives"}); err != nil {
		t.Fatalf("PutRoutine() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.RoutineByID(ctx, "r1")
	if err != nil {
		t.Fatalf("RoutineByID() after reopen failed: %v", err)
	}
	if got.Name != "survives" {
		t.Errorf("Name = %q, want survives", got.Name)
	}
}
