package wizard

// Forward button labels.
const (
	LabelNext   = "Next"
	LabelExport = "Export"
)

// Nav is the navigation affordance state for one step.
type Nav struct {
	ShowBack     bool
	ShowForward  bool
	ForwardLabel string
}

// NavFor computes affordances as a pure function of the step. Forward on the
// analysis step stays hidden until analysis has completed.
func NavFor(step Step, total int, analysisComplete bool) Nav {
	nav := Nav{ForwardLabel: LabelNext}
	switch step {
	case StepDetails, StepAnalysis, StepExport:
		nav.ShowBack = false
	default:
		nav.ShowBack = true
	}

	switch {
	case int(step) >= total:
		nav.ShowForward = false
	case step == StepAnalysis:
		nav.ShowForward = analysisComplete
	default:
		nav.ShowForward = true
	}
	if int(step) == total-1 {
		nav.ForwardLabel = LabelExport
	}
	return nav
}

// Nav returns the affordances for the machine's active step.
func (m *Machine) Nav(analysisComplete bool) Nav {
	return NavFor(m.step, m.total, analysisComplete)
}
