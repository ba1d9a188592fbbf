// Package wizard implements the linear step machine that gates the card wizard.
package wizard

// Step is a 1-based wizard position.
type Step int

const (
	StepDetails Step = iota + 1
	StepReferences
	StepAnalysis
	StepExport
)

// TotalSteps is the number of wizard views.
const TotalSteps = 4

func (s Step) String() string {
	switch s {
	case StepDetails:
		return "details"
	case StepReferences:
		return "references"
	case StepAnalysis:
		return "analysis"
	case StepExport:
		return "export"
	default:
		return "unknown"
	}
}

// Action classifies what a navigation request means at the current step.
type Action int

const (
	// ActionMove is a plain view change.
	ActionMove Action = iota
	// ActionBlocked leaves the user in place; a guard failed.
	ActionBlocked
	// ActionSubmit starts job submission before the analysis view.
	ActionSubmit
	// ActionGenerate triggers card generation before the export view.
	ActionGenerate
)

// Transition records the single view swap performed by a move.
type Transition struct {
	From Step
	To   Step
}

// Changed reports whether the move swapped views.
func (t Transition) Changed() bool { return t.From != t.To }

// Machine tracks the active step. It performs no I/O; the controller runs the
// side effects that Plan asks for.
type Machine struct {
	step  Step
	total int
}

// New returns a machine positioned on the first step.
func New() *Machine {
	return &Machine{step: StepDetails, total: TotalSteps}
}

// Step returns the active step.
func (m *Machine) Step() Step { return m.step }

// Total returns the number of steps.
func (m *Machine) Total() int { return m.total }

// Plan decides how a request to move by n should be handled. detailsValid is
// the outcome of the required-field check and only matters on step 1.
func (m *Machine) Plan(n int, detailsValid bool) Action {
	if n != 1 {
		return ActionMove
	}
	switch m.step {
	case StepDetails:
		if !detailsValid {
			return ActionBlocked
		}
	case StepReferences:
		return ActionSubmit
	case StepAnalysis:
		return ActionGenerate
	}
	return ActionMove
}

// Move shifts the active step by n, clamping into [1, total].
func (m *Machine) Move(n int) Transition {
	from := m.step
	next := int(m.step) + n
	if next > m.total {
		next = m.total
	}
	if next < 1 {
		next = 1
	}
	m.step = Step(next)
	return Transition{From: from, To: m.step}
}
