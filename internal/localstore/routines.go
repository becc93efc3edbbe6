package localstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nesttask/nesttask/internal/routine"
)

// Typed accessors over the generic entity tables. The sync engine always
// reads and writes whole routines (slots embedded), so the JSON value of a
// routine row is the complete aggregate.

// Routines returns every cached routine, tombstones included.
func (s *Store) Routines(ctx context.Context) ([]*routine.Routine, error) {
	raw, err := s.GetAll(ctx, CollectionRoutines)
	if err != nil {
		return nil, err
	}
	out := make([]*routine.Routine, 0, len(raw))
	for _, data := range raw {
		var r routine.Routine
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("corrupt cached routine: %w", err)
		}
		out = append(out, &r)
	}
	return out, nil
}

// RoutineByID returns one cached routine.
// Returns routine.ErrNotFound if it is absent.
func (s *Store) RoutineByID(ctx context.Context, id string) (*routine.Routine, error) {
	data, err := s.GetByID(ctx, CollectionRoutines, id)
	if err != nil {
		return nil, err
	}
	var r routine.Routine
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("corrupt cached routine %s: %w", id, err)
	}
	return &r, nil
}

// PutRoutine writes one routine whole.
func (s *Store) PutRoutine(ctx context.Context, r *routine.Routine) error {
	return s.Put(ctx, CollectionRoutines, r.ID, r)
}

// SaveRoutines upserts the given routines without touching others.
func (s *Store) SaveRoutines(ctx context.Context, routines []*routine.Routine) error {
	items := make(map[string]any, len(routines))
	for _, r := range routines {
		items[r.ID] = r
	}
	return s.SaveAll(ctx, CollectionRoutines, items)
}

// ReplaceRoutines makes the cached collection exactly mirror the input.
func (s *Store) ReplaceRoutines(ctx context.Context, routines []*routine.Routine) error {
	items := make(map[string]any, len(routines))
	for _, r := range routines {
		items[r.ID] = r
	}
	return s.ReplaceAll(ctx, CollectionRoutines, items)
}

// DeleteRoutine removes one routine. Its embedded slots go with it, so no
// orphaned slots can persist in the store.
func (s *Store) DeleteRoutine(ctx context.Context, id string) error {
	return s.Delete(ctx, CollectionRoutines, id)
}

// SaveCourses caches lookup courses for offline slot enrichment.
func (s *Store) SaveCourses(ctx context.Context, courses map[string]routine.Course) error {
	items := make(map[string]any, len(courses))
	for id, c := range courses {
		items[id] = c
	}
	return s.SaveAll(ctx, CollectionCourses, items)
}

// SaveTeachers caches lookup teachers for offline slot enrichment.
func (s *Store) SaveTeachers(ctx context.Context, teachers map[string]routine.Teacher) error {
	items := make(map[string]any, len(teachers))
	for id, t := range teachers {
		items[id] = t
	}
	return s.SaveAll(ctx, CollectionTeachers, items)
}
