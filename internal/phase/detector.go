// Package phase interprets status snapshots for the analysis and generation
// phases of a job.
package phase

import (
	"fmt"

	"character-card-wizard/internal/export"
	"character-card-wizard/internal/models"
	"character-card-wizard/internal/wizard"
)

// Phase is one of the two job stages.
type Phase int

const (
	PhaseAnalysis Phase = iota + 1
	PhaseGeneration
)

func (p Phase) String() string {
	switch p {
	case PhaseAnalysis:
		return "analysis"
	case PhaseGeneration:
		return "generation"
	default:
		return "none"
	}
}

// ForStep maps the active wizard step to the phase whose rules apply to an
// incoming snapshot. Steps without a phase ignore snapshots.
func ForStep(step wizard.Step) (Phase, bool) {
	switch step {
	case wizard.StepAnalysis:
		return PhaseAnalysis, true
	case wizard.StepExport:
		return PhaseGeneration, true
	default:
		return 0, false
	}
}

// Outcome is the state of a phase.
type Outcome int

const (
	Polling Outcome = iota
	Completed
	Succeeded
	Failed
	Stalled
)

func (o Outcome) String() string {
	switch o {
	case Polling:
		return "polling"
	case Completed:
		return "completed"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Stalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome ends the poll loop.
func (o Outcome) Terminal() bool { return o != Polling }

// UnknownFailure is shown when generation fails without a reason.
const UnknownFailure = "unknown error"

// Verdict is the result of feeding one snapshot into a tracker. Changed is
// true only on the call that moved the tracker into a new state, so callers
// run terminal side effects exactly once.
type Verdict struct {
	Outcome Outcome
	Changed bool
	Reason  string
	Result  *models.FinalResult
}

// AnalysisTracker completes when the remote reports is_finished, regardless of
// individual sub-task outcomes.
type AnalysisTracker struct {
	state Outcome
}

// Observe feeds one snapshot.
func (a *AnalysisTracker) Observe(snap models.StatusSnapshot) Verdict {
	if a.state.Terminal() {
		return Verdict{Outcome: a.state}
	}
	if snap.IsFinished {
		a.state = Completed
		return Verdict{Outcome: Completed, Changed: true}
	}
	return Verdict{Outcome: Polling}
}

// Stall moves a still-polling tracker into the stalled state.
func (a *AnalysisTracker) Stall() Verdict {
	if a.state.Terminal() {
		return Verdict{Outcome: a.state}
	}
	a.state = Stalled
	return Verdict{Outcome: Stalled, Changed: true}
}

// State returns the current outcome.
func (a *AnalysisTracker) State() Outcome { return a.state }

// Reset returns the tracker to polling.
func (a *AnalysisTracker) Reset() { a.state = Polling }

// Generation is the polling → succeeded | failed | stalled machine of the
// card generation phase.
type Generation struct {
	state  Outcome
	reason string
	result *models.FinalResult
}

// Observe applies the generation precedence to one snapshot:
//  1. a present final_json wins, even if other flags disagree;
//  2. otherwise is_finished means failure, with the reason taken from a failed
//     card_generation task or UnknownFailure;
//  3. otherwise keep polling.
func (g *Generation) Observe(snap models.StatusSnapshot) Verdict {
	if g.state.Terminal() {
		return g.verdict(false)
	}
	switch {
	case snap.HasFinal():
		res, err := export.ParseFinalResult(*snap.FinalJSON)
		if err != nil {
			g.state = Failed
			g.reason = fmt.Sprintf("malformed artifact: %v", err)
			return g.verdict(true)
		}
		g.state = Succeeded
		g.result = &res
		return g.verdict(true)
	case snap.IsFinished:
		g.state = Failed
		g.reason = failureReason(snap.SubTasks)
		return g.verdict(true)
	default:
		return Verdict{Outcome: Polling}
	}
}

// Stall moves a still-polling generation into the stalled state.
func (g *Generation) Stall() Verdict {
	if g.state.Terminal() {
		return g.verdict(false)
	}
	g.state = Stalled
	g.reason = "generation did not finish in time"
	return g.verdict(true)
}

// State returns the current outcome.
func (g *Generation) State() Outcome { return g.state }

// Reason returns the failure or stall message, if any.
func (g *Generation) Reason() string { return g.reason }

// Result returns the decoded artifact after success.
func (g *Generation) Result() *models.FinalResult { return g.result }

// Reset returns the machine to polling and forgets any result.
func (g *Generation) Reset() {
	g.state = Polling
	g.reason = ""
	g.result = nil
}

func (g *Generation) verdict(changed bool) Verdict {
	return Verdict{Outcome: g.state, Changed: changed, Reason: g.reason, Result: g.result}
}

func failureReason(tasks []models.SubTask) string {
	for _, t := range tasks {
		if t.Type == models.TaskTypeCardGeneration && t.Status == models.StatusFailed {
			if t.ResultSummary != "" {
				return t.ResultSummary
			}
			return UnknownFailure
		}
	}
	return UnknownFailure
}
