package app

import (
	"fmt"
	"time"

	"barefoot_sync/internal/domain"
)

const noDataMessage = "No properties returned by the Barefoot API. The account may have no properties, " +
	"or GetAllProperty may need different parameters."

// Reporter accumulates the outcome of one sync run. It performs no I/O; the
// orchestrator freezes it into a SyncResult exactly once.
type Reporter struct {
	runID     string
	state     domain.RunState
	startedAt time.Time
	now       func() time.Time

	fetched   int
	created   int
	updated   int
	unchanged int
	errors    []string
}

func NewReporter(runID string, now func() time.Time) *Reporter {
	if now == nil {
		now = time.Now
	}
	return &Reporter{runID: runID, state: domain.StateNotStarted, startedAt: now(), now: now}
}

func (r *Reporter) State() domain.RunState { return r.state }

func (r *Reporter) Transition(s domain.RunState) { r.state = s }

func (r *Reporter) Fetched(n int) { r.fetched = n }
func (r *Reporter) Created()      { r.created++ }
func (r *Reporter) Updated()      { r.updated++ }
func (r *Reporter) Unchanged()    { r.unchanged++ }

func (r *Reporter) AddError(msg string) { r.errors = append(r.errors, msg) }

// Succeeded counts records created, updated or confirmed unchanged.
func (r *Reporter) Succeeded() int { return r.created + r.updated + r.unchanged }

// Freeze closes a run that reached the end of reconciliation. Success means
// the run completed; per-record failures are carried in Errors.
func (r *Reporter) Freeze() domain.SyncResult {
	r.state = domain.StateCompleted
	res := r.base()
	res.Success = true
	switch {
	case r.fetched == 0:
		res.Message = noDataMessage
	default:
		res.Message = fmt.Sprintf("Successfully synced %d properties", res.Count)
		if n := len(res.Errors); n > 0 {
			res.Message += fmt.Sprintf(" (%d errors occurred)", n)
		}
	}
	return res
}

// Cancel closes a run stopped by its caller between records.
func (r *Reporter) Cancel() domain.SyncResult {
	r.state = domain.StateCancelled
	res := r.base()
	res.Message = fmt.Sprintf("Sync cancelled after %d of %d properties", res.Count, r.fetched)
	return res
}

// Fail closes a run in a terminal error state. Nothing counts as synced.
func (r *Reporter) Fail(state domain.RunState, msg string) domain.SyncResult {
	r.state = state
	res := r.base()
	res.Count, res.Created, res.Updated, res.Unchanged = 0, 0, 0, 0
	res.Message = msg
	return res
}

func (r *Reporter) base() domain.SyncResult {
	errs := make([]string, len(r.errors))
	copy(errs, r.errors)
	return domain.SyncResult{
		RunID:      r.runID,
		State:      r.state,
		Count:      r.Succeeded(),
		Created:    r.created,
		Updated:    r.updated,
		Unchanged:  r.unchanged,
		Errors:     errs,
		StartedAt:  r.startedAt,
		FinishedAt: r.now(),
	}
}
