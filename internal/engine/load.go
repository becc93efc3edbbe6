package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nesttask/nesttask/internal/routine"
	"golang.org/x/sync/errgroup"
)

// slotFetchParallelism bounds the stage-three fan-out over the remaining
// routines.
const slotFetchParallelism = 4

// LoadOptions controls a Load call.
type LoadOptions struct {
	// ForceRefresh bypasses the freshness window.
	ForceRefresh bool

	// Privileged marks administrative contexts, which always bypass the
	// cache.
	Privileged bool
}

// Load returns the current known set of routines with slots populated.
//
// Offline, it serves the local store directly. Online, it serves cached
// data while the freshness window holds, and otherwise performs a
// progressive fetch: routine metadata first, then the active routine's
// slots, then the remaining routines' slots in parallel. Every stage is
// persisted as it lands, so an interruption leaves the store no worse
// than before the load began.
//
// A fetch failure falls back to cached data when any exists; Load returns
// an error only when there is no fallback.
func (e *Engine) Load(ctx context.Context, opts LoadOptions) ([]*routine.Routine, error) {
	if err := e.ensureSnapshot(ctx); err != nil {
		return nil, err
	}

	if !e.conn.Online() {
		return e.visible(), nil
	}

	if !opts.ForceRefresh && !opts.Privileged && e.fresh(ctx) {
		return e.visible(), nil
	}

	if err := e.refresh(ctx); err != nil {
		e.recordDiagnosis(ctx, err)
		cached := e.visible()
		if len(cached) > 0 {
			e.logger.Printf("Refresh failed, serving %d cached routines: %v", len(cached), err)
			return cached, nil
		}
		return nil, fmt.Errorf("load failed with no cached fallback: %w", err)
	}

	return e.visible(), nil
}

// refresh performs the progressive online fetch and persists each stage.
func (e *Engine) refresh(ctx context.Context) error {
	// Stage one: routine metadata. Committed first so the caller sees
	// the full routine list even if slot fetches fail below.
	fetched, err := e.gw.ListRoutines(ctx)
	if err != nil {
		return err
	}

	merged := e.mergeRemoteRoutines(fetched)
	if err := e.store.ReplaceRoutines(ctx, merged); err != nil {
		return err
	}

	// Stage two: the active routine's slots, published as soon as they
	// are available since most consumers need that routine first.
	var active *routine.Routine
	var rest []*routine.Routine
	for _, r := range merged {
		if active == nil && r.IsActive && r.Pending != routine.StatePendingDelete {
			active = r
		} else {
			rest = append(rest, r)
		}
	}

	if active != nil {
		if err := e.fetchSlots(ctx, active); err != nil {
			e.logger.Printf("Slot fetch for active routine %s failed: %v", active.ID, err)
		}
	}

	// Stage three: everything else, in parallel. Stage ordering (not
	// timestamps) keeps the publishes monotonic: this stage is awaited
	// after stage two completes.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(slotFetchParallelism)
	for _, r := range rest {
		if r.Pending == routine.StatePendingDelete || routine.IsTempID(r.ID) {
			continue
		}
		g.Go(func() error {
			if err := e.fetchSlots(gctx, r); err != nil {
				e.logger.Printf("Slot fetch for routine %s failed: %v", r.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return e.store.SetLastFetched(ctx, e.now())
}

// mergeRemoteRoutines folds a fetched routine list into the snapshot.
//
// Remote is authoritative for clean entities; local pending entities are
// preserved so offline edits survive a refresh. Clean local entities the
// remote no longer knows are dropped, slots and all.
func (e *Engine) mergeRemoteRoutines(fetched []*routine.Routine) []*routine.Routine {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*routine.Routine, len(fetched))
	for _, remote := range fetched {
		local := e.routines[remote.ID]
		switch {
		case local == nil:
			next[remote.ID] = remote
		case local.Pending == routine.StateClean:
			// Take remote metadata, keep already-cached slot data so a
			// metadata-only stage never loses slots.
			cp := *remote
			cp.Slots = local.Slots
			next[remote.ID] = &cp
		default:
			// Pending local copy wins wholesale; reconcile will replay it.
			next[remote.ID] = local
		}
	}
	for id, local := range e.routines {
		if _, ok := next[id]; !ok && local.Pending.IsPending() {
			next[id] = local
		}
	}

	e.routines = next
	e.loaded = true

	out := make([]*routine.Routine, 0, len(next))
	for _, r := range next {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// fetchSlots force-fetches and enriches one routine's slots, then merges
// them under local pending slots and persists the result.
func (e *Engine) fetchSlots(ctx context.Context, r *routine.Routine) error {
	if routine.IsTempID(r.ID) {
		// Never-synced routines have nothing remote to fetch.
		return nil
	}
	slots, err := e.gw.ListSlots(ctx, r.ID)
	if err != nil {
		return err
	}
	if err := e.enrichSlots(ctx, slots); err != nil {
		e.logger.Printf("Lookup enrichment for routine %s failed: %v", r.ID, err)
	}

	e.mu.Lock()
	local := e.routines[r.ID]
	if local == nil {
		e.mu.Unlock()
		return nil
	}
	local.Slots = mergeSlots(local.Slots, slots)
	cp := local
	e.mu.Unlock()

	return e.store.PutRoutine(ctx, cp)
}

// mergeSlots keeps local pending slots and takes remote copies for the
// rest. A pending local copy of a remote slot shadows the server's
// version until reconciled.
func mergeSlots(local, remote []*routine.Slot) []*routine.Slot {
	pending := make(map[string]bool)
	out := make([]*routine.Slot, 0, len(remote))
	for _, s := range local {
		if s.Pending.IsPending() {
			out = append(out, s)
			pending[s.ID] = true
		}
	}
	for _, s := range remote {
		if !pending[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// enrichSlots fills denormalized course/teacher display names from the
// lookup collections and refreshes the offline lookup caches.
func (e *Engine) enrichSlots(ctx context.Context, slots []*routine.Slot) error {
	courseIDs := make(map[string]bool)
	teacherIDs := make(map[string]bool)
	for _, s := range slots {
		if s.CourseID != "" {
			courseIDs[s.CourseID] = true
		}
		if s.TeacherID != "" {
			teacherIDs[s.TeacherID] = true
		}
	}
	if len(courseIDs) == 0 && len(teacherIDs) == 0 {
		return nil
	}

	courses, err := e.gw.CoursesByIDs(ctx, keys(courseIDs))
	if err != nil {
		return err
	}
	teachers, err := e.gw.TeachersByIDs(ctx, keys(teacherIDs))
	if err != nil {
		return err
	}

	for _, s := range slots {
		if c, ok := courses[s.CourseID]; ok {
			s.CourseName = c.Name
			s.CourseCode = c.Code
		}
		if t, ok := teachers[s.TeacherID]; ok {
			s.TeacherName = t.Name
		}
	}

	if len(courses) > 0 {
		if err := e.store.SaveCourses(ctx, courses); err != nil {
			return err
		}
	}
	if len(teachers) > 0 {
		if err := e.store.SaveTeachers(ctx, teachers); err != nil {
			return err
		}
	}
	return nil
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GetFresh fetches one routine with its slots straight from the gateway
// in a single round trip, persists the merged copy and returns it.
// Offline it degrades to the cached copy.
func (e *Engine) GetFresh(ctx context.Context, id string) (*routine.Routine, error) {
	if err := e.ensureSnapshot(ctx); err != nil {
		return nil, err
	}
	if !e.conn.Online() || routine.IsTempID(id) {
		return e.Get(ctx, id)
	}

	fetched, err := e.gw.GetRoutineWithSlots(ctx, id)
	if err != nil {
		if !routine.IsRejected(err) && !errors.Is(err, routine.ErrNotFound) {
			e.recordDiagnosis(ctx, err)
		}
		return nil, err
	}
	if err := e.enrichSlots(ctx, fetched.Slots); err != nil {
		e.logger.Printf("Lookup enrichment for routine %s failed: %v", id, err)
	}

	e.mu.Lock()
	local := e.routines[id]
	if local != nil {
		if local.Pending.IsPending() {
			// A pending local copy stays authoritative until reconciled.
			e.mu.Unlock()
			return e.Get(ctx, id)
		}
		// Pending local slots shadow their remote copies.
		fetched.Slots = mergeSlots(local.Slots, fetched.Slots)
	}
	if e.routines == nil {
		e.routines = make(map[string]*routine.Routine)
	}
	e.routines[id] = fetched
	e.mu.Unlock()

	if err := e.store.PutRoutine(ctx, fetched); err != nil {
		return nil, err
	}
	return fetched.Clone(), nil
}

// RefreshSlotsFor force-fetches slots for one routine and overwrites its
// cached copy. Used both as a targeted repair when a routine's slots are
// found missing and after bulk imports.
func (e *Engine) RefreshSlotsFor(ctx context.Context, routineID string) error {
	if err := e.ensureSnapshot(ctx); err != nil {
		return err
	}
	if !e.conn.Online() {
		return fmt.Errorf("cannot refresh slots for %s: %w", routineID, routine.ErrOffline)
	}
	r := e.get(routineID)
	if r == nil {
		return fmt.Errorf("routine %s: %w", routineID, routine.ErrNotFound)
	}
	return e.fetchSlots(ctx, r)
}
