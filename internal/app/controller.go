// Package app holds the controller that owns all wizard state. Every mutation
// happens under one mutex; views are rendered from immutable View projections.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"character-card-wizard/internal/collector"
	"character-card-wizard/internal/export"
	"character-card-wizard/internal/models"
	"character-card-wizard/internal/phase"
	"character-card-wizard/internal/poller"
	"character-card-wizard/internal/reconcile"
	"character-card-wizard/internal/session"
	"character-card-wizard/internal/telemetry"
	"character-card-wizard/internal/wizard"
)

// Remote is the processing service as seen by the controller.
type Remote interface {
	poller.Fetcher
	Submit(ctx context.Context, sub models.Submission) (string, error)
	GenerateCard(ctx context.Context, processID string) error
	UpdateTaskResult(ctx context.Context, processID, stepID, summary string) error
}

// Exporter stores final artifacts.
type Exporter interface {
	Export(ctx context.Context, res models.FinalResult, kind export.Kind) ([]string, error)
}

// EventKind classifies controller notifications.
type EventKind int

const (
	// EventChanged means View() has new content.
	EventChanged EventKind = iota
	// EventAlert carries a user-visible error.
	EventAlert
	// EventNotice carries a user-visible confirmation.
	EventNotice
)

// Event is delivered to the notifier after the controller lock is released.
type Event struct {
	Kind    EventKind
	Message string
}

// Options tune the controller.
type Options struct {
	Poll           poller.Options
	SavedFlash     time.Duration
	MaxUploadBytes int64
}

// View is a snapshot of everything the terminal renders.
type View struct {
	Step  wizard.Step
	Total int
	Nav   wizard.Nav
	Form  collector.Form

	ProcessID          string
	Busy               bool
	Entries            []reconcile.Entry
	ProcessingComplete bool
	AnalysisStalled    bool

	Generation    phase.Outcome
	FailureReason string
	HasArtifact   bool
	HasImage      bool
}

// Controller sequences submission, polling, correction and export.
type Controller struct {
	remote   Remote
	exporter Exporter
	opts     Options
	logger   *slog.Logger
	// base bounds every poll loop; cancelling it stops polling for good.
	base context.Context

	mu         sync.Mutex
	wizard     *wizard.Machine
	session    *session.Session
	analysis   phase.AnalysisTracker
	generation phase.Generation
	form       collector.Form
	busy       bool

	notifyMu sync.Mutex
	notify   func(Event)
}

// New builds a controller positioned on the first step with an empty form.
func New(base context.Context, remote Remote, exporter Exporter, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SavedFlash <= 0 {
		opts.SavedFlash = 1500 * time.Millisecond
	}
	p := poller.New(remote, opts.Poll, logger)
	return &Controller{
		remote:   remote,
		exporter: exporter,
		opts:     opts,
		logger:   logger,
		base:     base,
		wizard:   wizard.New(),
		session:  session.New(p, logger),
		form:     collector.NewForm(),
	}
}

// SetNotifier installs the event sink. Events are never delivered while the controller lock is held.
func (c *Controller) SetNotifier(fn func(Event)) {
	c.notifyMu.Lock()
	c.notify = fn
	c.notifyMu.Unlock()
}

func (c *Controller) emit(ev Event) {
	c.notifyMu.Lock()
	fn := c.notify
	c.notifyMu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (c *Controller) changed() { c.emit(Event{Kind: EventChanged}) }

func (c *Controller) alert(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Warn("alert", "message", msg)
	c.emit(Event{Kind: EventAlert, Message: msg})
}

// View returns the current projection.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	complete := c.analysis.State() == phase.Completed
	v := View{
		Step:               c.wizard.Step(),
		Total:              c.wizard.Total(),
		Nav:                c.wizard.Nav(complete),
		Form:               c.form.Clone(),
		ProcessID:          c.session.ProcessID(),
		Busy:               c.busy,
		Entries:            c.session.Reconciler().Entries(),
		ProcessingComplete: complete,
		AnalysisStalled:    c.analysis.State() == phase.Stalled,
		Generation:         c.generation.State(),
		FailureReason:      c.generation.Reason(),
	}
	if res := c.generation.Result(); res != nil {
		v.HasArtifact = true
		v.HasImage = res.Image != ""
	}
	return v
}

// Form returns a copy of the form.
func (c *Controller) Form() collector.Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form.Clone()
}

// SetForm replaces the form, e.g. with a loaded draft.
func (c *Controller) SetForm(f collector.Form) {
	c.mu.Lock()
	c.form = f.Clone()
	c.mu.Unlock()
	c.changed()
}

// UpdateForm applies fn to the form under the controller lock.
func (c *Controller) UpdateForm(fn func(f *collector.Form)) {
	c.mu.Lock()
	fn(&c.form)
	c.mu.Unlock()
	c.changed()
}

// Next handles a forward request. Blocked moves are silent no-ops.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil
	}
	switch c.wizard.Plan(1, collector.ValidateDetails(c.form) == nil) {
	case wizard.ActionBlocked:
		c.mu.Unlock()
		c.logger.Debug("forward blocked: details incomplete")
		return nil
	case wizard.ActionSubmit:
		return c.submitLocked(ctx)
	case wizard.ActionGenerate:
		return c.generateLocked(ctx)
	default:
		t := c.wizard.Move(1)
		c.mu.Unlock()
		if t.Changed() {
			c.changed()
		}
		return nil
	}
}

// Back handles a backward request; it is ignored where the back affordance is hidden.
func (c *Controller) Back() {
	c.mu.Lock()
	if !c.wizard.Nav(false).ShowBack || c.busy {
		c.mu.Unlock()
		return
	}
	t := c.wizard.Move(-1)
	c.mu.Unlock()
	if t.Changed() {
		c.changed()
	}
}

// submitLocked runs the 2→3 transition. It is entered with c.mu held and releases it.
func (c *Controller) submitLocked(ctx context.Context) error {
	if err := collector.ValidateReferences(c.form, c.opts.MaxUploadBytes); err != nil {
		c.mu.Unlock()
		c.alert("Cannot submit: %v", err)
		return err
	}
	sub := collector.Build(c.form)

	c.wizard.Move(1)
	c.session.Reset()
	c.analysis.Reset()
	c.generation.Reset()
	c.busy = true
	epoch := c.session.Epoch()
	c.mu.Unlock()
	c.changed()

	id, err := c.remote.Submit(ctx, sub)

	c.mu.Lock()
	c.busy = false
	if !c.session.Current(epoch) {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.wizard.Move(-1)
		c.mu.Unlock()
		c.changed()
		c.alert("Submission failed: %v", err)
		return fmt.Errorf("submit job: %w", err)
	}
	c.session.Begin(id)
	c.startPollingLocked(epoch)
	c.mu.Unlock()
	c.logger.Info("job submitted", "process_id", id, "references", len(sub.Data.Reference), "files", len(sub.Files))
	c.changed()
	return nil
}

// generateLocked runs the 3→4 transition. It is entered with c.mu held and releases it.
func (c *Controller) generateLocked(ctx context.Context) error {
	id := c.session.ProcessID()
	if id == "" || c.analysis.State() != phase.Completed {
		c.mu.Unlock()
		return nil
	}

	c.wizard.Move(1)
	c.generation.Reset()
	c.busy = true
	epoch := c.session.Epoch()
	c.mu.Unlock()
	c.changed()

	err := c.remote.GenerateCard(ctx, id)

	c.mu.Lock()
	c.busy = false
	if !c.session.Current(epoch) {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.wizard.Move(-1)
		c.mu.Unlock()
		c.changed()
		c.alert("Generation request failed: %v", err)
		return fmt.Errorf("trigger generation: %w", err)
	}
	c.startPollingLocked(epoch)
	c.mu.Unlock()
	c.logger.Info("generation requested", "process_id", id)
	c.changed()
	return nil
}

func (c *Controller) startPollingLocked(epoch uint64) {
	c.session.Poll(c.base,
		func(snap models.StatusSnapshot) bool { return c.onSnapshot(epoch, snap) },
		func() { c.onStall(epoch) },
	)
}

// onSnapshot applies one poll result. The returned bool stops the loop.
func (c *Controller) onSnapshot(epoch uint64, snap models.StatusSnapshot) bool {
	c.mu.Lock()
	if !c.session.Current(epoch) {
		c.mu.Unlock()
		return true
	}
	ph, ok := phase.ForStep(c.wizard.Step())
	if !ok {
		c.mu.Unlock()
		return false
	}

	var (
		stop    bool
		changed bool
		alert   string
	)
	switch ph {
	case phase.PhaseAnalysis:
		res := c.session.Reconciler().Apply(snap.SubTasks)
		changed = res.Changed()
		v := c.analysis.Observe(snap)
		stop = v.Outcome.Terminal()
		if v.Changed {
			changed = true
			telemetry.PhaseOutcomes.WithLabelValues(ph.String(), v.Outcome.String()).Inc()
			c.logger.Info("analysis complete", "process_id", c.session.ProcessID(), "tasks", c.session.Reconciler().Len())
		}
	case phase.PhaseGeneration:
		v := c.generation.Observe(snap)
		stop = v.Outcome.Terminal()
		if v.Changed {
			changed = true
			telemetry.PhaseOutcomes.WithLabelValues(ph.String(), v.Outcome.String()).Inc()
			c.logger.Info("generation finished", "process_id", c.session.ProcessID(), "outcome", v.Outcome.String(), "reason", v.Reason)
			if v.Outcome == phase.Failed {
				alert = "Card generation failed: " + v.Reason
			}
		}
	}
	c.mu.Unlock()

	if changed {
		c.changed()
	}
	if alert != "" {
		c.alert("%s", alert)
	}
	return stop
}

func (c *Controller) onStall(epoch uint64) {
	c.mu.Lock()
	if !c.session.Current(epoch) {
		c.mu.Unlock()
		return
	}
	ph, ok := phase.ForStep(c.wizard.Step())
	if !ok {
		c.mu.Unlock()
		return
	}
	var v phase.Verdict
	if ph == phase.PhaseAnalysis {
		v = c.analysis.Stall()
	} else {
		v = c.generation.Stall()
	}
	c.mu.Unlock()

	if !v.Changed {
		return
	}
	telemetry.PhaseOutcomes.WithLabelValues(ph.String(), v.Outcome.String()).Inc()
	c.changed()
	c.alert("The %s phase stopped reporting progress within %s", ph, c.opts.Poll.MaxDuration)
}

// SetEditText stores the user's draft correction for one entry.
func (c *Controller) SetEditText(stepID, text string) error {
	c.mu.Lock()
	err := c.session.Reconciler().SetEditText(stepID, text)
	c.mu.Unlock()
	if err == nil {
		c.changed()
	}
	return err
}

// ToggleEdit opens or closes the edit area of a reviewed entry.
func (c *Controller) ToggleEdit(stepID string) (bool, error) {
	c.mu.Lock()
	open, err := c.session.Reconciler().ToggleEdit(stepID)
	c.mu.Unlock()
	if err == nil {
		c.changed()
	}
	return open, err
}

// SaveTaskResult submits the entry's edit text as a correction. Saves while a
// previous one is in flight or still flashing are ignored.
func (c *Controller) SaveTaskResult(ctx context.Context, stepID string) error {
	c.mu.Lock()
	rec := c.session.Reconciler()
	e, ok := rec.Entry(stepID)
	if !ok {
		c.mu.Unlock()
		return reconcile.ErrUnknownTask
	}
	id := c.session.ProcessID()
	if !e.Editable || e.Save != reconcile.SaveIdle || id == "" {
		c.mu.Unlock()
		return nil
	}
	epoch := c.session.Epoch()
	_ = rec.SetSaveState(stepID, reconcile.SaveBusy)
	c.mu.Unlock()
	c.changed()

	err := c.remote.UpdateTaskResult(ctx, id, stepID, e.EditText)

	c.mu.Lock()
	if !c.session.Current(epoch) {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		_ = rec.SetSaveState(stepID, reconcile.SaveIdle)
		c.mu.Unlock()
		telemetry.Corrections.WithLabelValues("failed").Inc()
		c.changed()
		c.alert("Saving the correction failed: %v", err)
		return fmt.Errorf("update task result: %w", err)
	}
	_ = rec.SetSaveState(stepID, reconcile.SaveDone)
	c.mu.Unlock()
	telemetry.Corrections.WithLabelValues("ok").Inc()
	c.logger.Info("correction saved", "process_id", id, "step_id", stepID)
	c.changed()

	time.AfterFunc(c.opts.SavedFlash, func() {
		c.mu.Lock()
		reset := false
		if c.session.Current(epoch) {
			if cur, ok := rec.Entry(stepID); ok && cur.Save == reconcile.SaveDone {
				_ = rec.SetSaveState(stepID, reconcile.SaveIdle)
				reset = true
			}
		}
		c.mu.Unlock()
		if reset {
			c.changed()
		}
	})
	return nil
}

// Export writes the artifact of the given kind from the in-memory result.
func (c *Controller) Export(ctx context.Context, kind export.Kind) ([]string, error) {
	c.mu.Lock()
	res := c.generation.Result()
	var copied models.FinalResult
	if res != nil {
		copied = *res
	}
	c.mu.Unlock()

	if res == nil {
		c.alert("The card is not ready yet")
		return nil, export.ErrNoArtifact
	}
	locations, err := c.exporter.Export(ctx, copied, kind)
	if err != nil {
		if errors.Is(err, export.ErrNoImage) {
			c.alert("No image data in the generated card")
		} else {
			c.alert("Export failed: %v", err)
		}
		return locations, err
	}
	c.emit(Event{Kind: EventNotice, Message: fmt.Sprintf("Saved %v", locations)})
	return locations, nil
}

// Abandon drops the active job and returns to the reference step with the form intact.
func (c *Controller) Abandon() {
	c.mu.Lock()
	step := c.wizard.Step()
	if step < wizard.StepAnalysis {
		c.mu.Unlock()
		return
	}
	id := c.session.ProcessID()
	c.session.Reset()
	c.analysis.Reset()
	c.generation.Reset()
	c.busy = false
	c.wizard.Move(int(wizard.StepReferences) - int(step))
	c.mu.Unlock()
	c.logger.Info("job abandoned", "process_id", id)
	c.changed()
}

// Close stops any live poll loop.
func (c *Controller) Close() {
	c.session.StopPolling()
}

// Polling reports whether a poll loop is live.
func (c *Controller) Polling() bool {
	return c.session.Polling()
}
