// Package reconcile merges cumulative status snapshots into an ordered,
// identity-keyed view model of sub-tasks.
package reconcile

import (
	"errors"
	"log/slog"

	"character-card-wizard/internal/models"
	"character-card-wizard/internal/telemetry"
)

// ErrUnknownTask is returned when an operation names a step id that was never reconciled.
var ErrUnknownTask = errors.New("unknown task")

// SaveState tracks a correction submission for one entry.
type SaveState int

const (
	SaveIdle SaveState = iota
	SaveBusy
	SaveDone
)

// Entry is the view model for one sub-task.
type Entry struct {
	StepID string
	Title  string
	Type   string
	// Status is the displayed status; it changes only when a snapshot reports a different one.
	Status models.TaskStatus
	// Summary is the latest result_summary the remote reported.
	Summary string
	// Editable is the review/edit affordance, injected once on success.
	Editable bool
	EditOpen bool
	EditText string
	Save     SaveState
}

// Result describes what one Apply call changed.
type Result struct {
	Created []string
	Updated []string
	Skipped int
}

// Changed reports whether the call altered anything visible.
func (r Result) Changed() bool {
	return len(r.Created) > 0 || len(r.Updated) > 0
}

// Reconciler owns the step_id → entry mapping and the append-only display order.
type Reconciler struct {
	entries map[string]*Entry
	order   []string
	logger  *slog.Logger
}

// New returns an empty reconciler.
func New(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		entries: make(map[string]*Entry),
		logger:  logger,
	}
}

// Apply merges the full sub-task list from one snapshot. Entries are only
// ever appended; a step id absent from a later snapshot stays in place.
func (r *Reconciler) Apply(tasks []models.SubTask) Result {
	var res Result
	for _, task := range tasks {
		if task.StepID == "" {
			res.Skipped++
			r.logger.Warn("skipping sub-task without step_id", "title", task.Title, "status", task.Status)
			continue
		}

		entry, ok := r.entries[task.StepID]
		if !ok {
			entry = &Entry{
				StepID:  task.StepID,
				Title:   task.Title,
				Type:    task.Type,
				Status:  task.Status,
				Summary: task.ResultSummary,
			}
			r.entries[task.StepID] = entry
			r.order = append(r.order, task.StepID)
			// A task first seen as successful only gets the affordance once it has a summary.
			if task.Status == models.StatusSuccess && task.ResultSummary != "" {
				entry.injectReview()
			}
			res.Created = append(res.Created, task.StepID)
			telemetry.TasksCreated.Inc()
			continue
		}

		entry.Summary = task.ResultSummary
		if entry.Status == task.Status {
			continue
		}
		if task.Status.Rank() < entry.Status.Rank() {
			r.logger.Warn("sub-task status regressed", "step_id", task.StepID, "from", entry.Status, "to", task.Status)
		}
		entry.Status = task.Status
		if task.Status == models.StatusSuccess {
			entry.injectReview()
		}
		res.Updated = append(res.Updated, task.StepID)
		telemetry.TasksUpdated.Inc()
	}
	return res
}

// injectReview adds the edit affordance once and pre-fills the edit text
// only while it is still empty.
func (e *Entry) injectReview() {
	e.Editable = true
	if e.EditText == "" {
		e.EditText = e.Summary
	}
}

// Entries returns copies of all entries in display order.
func (r *Reconciler) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	return out
}

// Entry returns a copy of a single entry.
func (r *Reconciler) Entry(stepID string) (Entry, bool) {
	e, ok := r.entries[stepID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of materialized entries.
func (r *Reconciler) Len() int { return len(r.order) }

// SetEditText replaces the user's working copy of a result.
func (r *Reconciler) SetEditText(stepID, text string) error {
	e, ok := r.entries[stepID]
	if !ok {
		return ErrUnknownTask
	}
	e.EditText = text
	return nil
}

// ToggleEdit opens or closes the edit area. Entries without the affordance stay closed.
func (r *Reconciler) ToggleEdit(stepID string) (bool, error) {
	e, ok := r.entries[stepID]
	if !ok {
		return false, ErrUnknownTask
	}
	if !e.Editable {
		return false, nil
	}
	e.EditOpen = !e.EditOpen
	return e.EditOpen, nil
}

// SetSaveState records the correction state of an entry.
func (r *Reconciler) SetSaveState(stepID string, s SaveState) error {
	e, ok := r.entries[stepID]
	if !ok {
		return ErrUnknownTask
	}
	e.Save = s
	return nil
}

// Reset drops every entry.
func (r *Reconciler) Reset() {
	r.entries = make(map[string]*Entry)
	r.order = nil
}
