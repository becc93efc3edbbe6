package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nesttask/nesttask/internal/routine"
	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ExportedRoutine is the portable file shape produced by ExportRoutine
// and consumed by ImportRoutine. Ids and pending markers are deliberately
// absent: an import always creates fresh entities.
type ExportedRoutine struct {
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Semester    string              `json:"semester,omitempty" yaml:"semester,omitempty"`
	Slots       []routine.SlotInput `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// ExportRoutine serializes one routine with its slots to the given
// format. Tombstoned slots are excluded.
func (e *Engine) ExportRoutine(ctx context.Context, id, format string) ([]byte, error) {
	if err := e.ensureSnapshot(ctx); err != nil {
		return nil, err
	}

	r := e.get(id)
	if r == nil || r.Pending == routine.StatePendingDelete {
		return nil, fmt.Errorf("routine %s: %w", id, routine.ErrNotFound)
	}

	out := ExportedRoutine{
		Name:        r.Name,
		Description: r.Description,
		Semester:    r.Semester,
	}
	for _, s := range r.Slots {
		if s.Pending == routine.StatePendingDelete {
			continue
		}
		out.Slots = append(out.Slots, routine.SlotInput{
			DayOfWeek:  s.DayOfWeek,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			RoomNumber: s.RoomNumber,
			Section:    s.Section,
			CourseID:   s.CourseID,
			TeacherID:  s.TeacherID,
		})
	}

	switch strings.ToLower(format) {
	case FormatJSON, "":
		return json.MarshalIndent(out, "", "  ")
	case FormatYAML:
		return yaml.Marshal(out)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", routine.ErrValidation, format)
	}
}

// ImportRoutine creates a routine (and its slots) from data previously
// produced by ExportRoutine. It works offline: the created entities carry
// pending markers like any other offline mutation.
func (e *Engine) ImportRoutine(ctx context.Context, data []byte, format string) (*routine.Routine, error) {
	var in ExportedRoutine
	var err error
	switch strings.ToLower(format) {
	case FormatJSON, "":
		err = json.Unmarshal(data, &in)
	case FormatYAML:
		err = yaml.Unmarshal(data, &in)
	default:
		return nil, fmt.Errorf("%w: unknown import format %q", routine.ErrValidation, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: malformed routine file: %v", routine.ErrValidation, err)
	}

	r, err := e.Create(ctx, &routine.RoutineInput{
		Name:        in.Name,
		Description: in.Description,
		Semester:    in.Semester,
	})
	if err != nil {
		return nil, err
	}

	for i := range in.Slots {
		if _, err := e.AddSlot(ctx, r.ID, &in.Slots[i]); err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
	}

	return e.get(r.ID).Clone(), nil
}

// ListSemesters returns the distinct semester labels of every known
// routine, sorted.
func (e *Engine) ListSemesters(ctx context.Context) ([]string, error) {
	routines, err := e.Load(ctx, LoadOptions{})
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	for _, r := range routines {
		if r.Semester != "" {
			set[r.Semester] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// ListRoutinesBySemester returns the known routines carrying the given
// semester label.
func (e *Engine) ListRoutinesBySemester(ctx context.Context, semester string) ([]*routine.Routine, error) {
	routines, err := e.Load(ctx, LoadOptions{})
	if err != nil {
		return nil, err
	}

	var out []*routine.Routine
	for _, r := range routines {
		if r.Semester == semester {
			out = append(out, r)
		}
	}
	return out, nil
}

// BulkImportSlots inserts many slots for one routine in a single gateway
// call with per-row overlap rejection, then repairs the local copy from
// the remote result. Bulk import requires connectivity.
func (e *Engine) BulkImportSlots(ctx context.Context, routineID string, inputs []routine.SlotInput) (*routine.ImportReport, error) {
	if err := e.ensureSnapshot(ctx); err != nil {
		return nil, err
	}
	if !e.conn.Online() {
		return nil, fmt.Errorf("bulk import: %w", routine.ErrUnsupportedOffline)
	}

	owner := e.get(routineID)
	if owner == nil || owner.Pending == routine.StatePendingDelete || routine.IsTempID(routineID) {
		return nil, fmt.Errorf("routine %s: %w", routineID, routine.ErrNotFound)
	}

	_, report, err := e.gw.BulkInsertSlots(ctx, routineID, inputs)
	if err != nil {
		e.recordDiagnosis(ctx, err)
		return report, err
	}

	if err := e.RefreshSlotsFor(ctx, routineID); err != nil {
		e.logger.Printf("Post-import slot refresh for %s failed: %v", routineID, err)
	}
	return report, nil
}

// Stats summarizes the local cache for the status command.
type Stats struct {
	Routines    int
	Slots       int
	Pending     int
	LastFetched string
}

// CacheStats reports entity and pending counts plus the freshness
// timestamp age.
func (e *Engine) CacheStats(ctx context.Context) (*Stats, error) {
	if err := e.ensureSnapshot(ctx); err != nil {
		return nil, err
	}

	st := &Stats{LastFetched: "never"}
	e.mu.RLock()
	for _, r := range e.routines {
		st.Routines++
		if r.Pending.IsPending() {
			st.Pending++
		}
		for _, s := range r.Slots {
			st.Slots++
			if s.Pending.IsPending() {
				st.Pending++
			}
		}
	}
	e.mu.RUnlock()

	if last, ok, err := e.store.LastFetched(ctx); err == nil && ok {
		st.LastFetched = last.Format("2006-01-02 15:04:05")
	}
	return st, nil
}
