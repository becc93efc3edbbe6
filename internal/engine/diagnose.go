package engine

import (
	"context"
	"time"

	"github.com/nesttask/nesttask/internal/routine"
)

// Diagnostic is the result of the reachability self-test that runs after
// a fetch failure. It is surfaced for telemetry separately from the
// user-visible error.
type Diagnostic struct {
	At              time.Time
	Online          bool
	RemoteReachable bool
	Collections     map[string]bool
	Cause           string
}

// Diagnose probes connectivity and per-collection reachability.
func (e *Engine) Diagnose(ctx context.Context) *Diagnostic {
	d := &Diagnostic{
		At:          e.now(),
		Online:      e.conn.Online(),
		Collections: make(map[string]bool),
	}
	if !d.Online {
		return d
	}

	d.RemoteReachable = e.gw.Ping(ctx) == nil
	if !d.RemoteReachable {
		return d
	}

	_, err := e.gw.ListRoutines(ctx)
	d.Collections["routines"] = err == nil

	_, err = e.gw.CoursesByIDs(ctx, []string{"connectivity-probe"})
	d.Collections["courses"] = err == nil

	_, err = e.gw.TeachersByIDs(ctx, []string{"connectivity-probe"})
	d.Collections["teachers"] = err == nil

	return d
}

// recordDiagnosis runs the self-test after a remote failure and retains
// the result for LastDiagnostic. Transient errors only; rejected input is
// not a reachability problem.
func (e *Engine) recordDiagnosis(ctx context.Context, cause error) {
	if routine.IsRejected(cause) {
		return
	}

	d := e.Diagnose(ctx)
	if cause != nil {
		d.Cause = cause.Error()
	}

	e.diagMu.Lock()
	e.lastDiag = d
	e.diagMu.Unlock()
}

// LastDiagnostic returns the most recent self-test result, or nil if no
// remote failure has occurred.
func (e *Engine) LastDiagnostic() *Diagnostic {
	e.diagMu.Lock()
	defer e.diagMu.Unlock()
	return e.lastDiag
}
