package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"character-card-wizard/internal/app"
	"character-card-wizard/internal/models"
	"character-card-wizard/internal/phase"
	"character-card-wizard/internal/reconcile"
	"character-card-wizard/internal/wizard"
)

var stepTitles = map[wizard.Step]string{
	wizard.StepDetails:    "Details",
	wizard.StepReferences: "References",
	wizard.StepAnalysis:   "Analysis",
	wizard.StepExport:     "Export",
}

var typeLabels = map[models.ResourceType]string{
	models.ResourceURL:    "Link",
	models.ResourceFile:   "Document",
	models.ResourceImage:  "Image",
	models.ResourceSearch: "Search",
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("Character Card Wizard"))
	b.WriteString("\n")
	b.WriteString(m.renderSteps())
	b.WriteString("\n\n")

	switch m.view.Step {
	case wizard.StepDetails:
		b.WriteString(m.renderDetails())
	case wizard.StepReferences:
		b.WriteString(m.renderReferences())
	case wizard.StepAnalysis:
		b.WriteString(m.renderAnalysis())
	default:
		b.WriteString(m.renderExport())
	}

	b.WriteString("\n\n")
	b.WriteString(m.styles.hint.Render(strings.Join(navHints(m.view, m.refEditing, m.editingID != ""), "  •  ")))
	switch {
	case m.alert != "":
		b.WriteString("\n" + m.styles.alert.Render("! "+m.alert))
	case m.notice != "":
		b.WriteString("\n" + m.styles.notice.Render(m.notice))
	}
	return b.String() + "\n"
}

func (m *Model) renderSteps() string {
	parts := make([]string, 0, m.view.Total)
	for i := 1; i <= m.view.Total; i++ {
		s := wizard.Step(i)
		label := fmt.Sprintf("%d %s", i, stepTitles[s])
		if s == m.view.Step {
			parts = append(parts, m.styles.stepActive.Render(label))
		} else {
			parts = append(parts, m.styles.stepIdle.Render(label))
		}
	}
	return strings.Join(parts, m.styles.stepIdle.Render(" › "))
}

// navHints lists the key hints for the current step. Forward and back come
// only from the view's nav state.
func navHints(v app.View, refEditing, taskEditing bool) []string {
	var hints []string
	switch {
	case refEditing:
		hints = append(hints, "enter confirm", "esc cancel")
	case taskEditing:
		hints = append(hints, "ctrl+s save", "esc close")
	default:
		switch v.Step {
		case wizard.StepDetails:
			hints = append(hints, "tab next field")
		case wizard.StepReferences:
			hints = append(hints, "a add", "d delete", "t type", "r reliability", "enter edit")
		case wizard.StepAnalysis:
			hints = append(hints, "e review", "s save", "c copy")
		case wizard.StepExport:
			if v.HasArtifact {
				hints = append(hints, "j export JSON", "p export PNG")
			}
		}
	}
	if v.Nav.ShowBack {
		hints = append(hints, "ctrl+p back")
	}
	if v.Nav.ShowForward {
		hints = append(hints, "ctrl+n "+strings.ToLower(v.Nav.ForwardLabel))
	}
	if v.Step >= wizard.StepAnalysis {
		hints = append(hints, "ctrl+x abandon")
	}
	return append(hints, "ctrl+c quit")
}

func (m *Model) renderDetails() string {
	var b strings.Builder
	for i, label := range fieldLabels {
		style := m.styles.label
		if i == m.focus {
			style = m.styles.labelFocused
		}
		b.WriteString(style.Render(label))
		b.WriteString("\n")
		b.WriteString(m.fields[i].View())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderReferences() string {
	refs := m.view.Form.References
	if len(refs) == 0 {
		return m.styles.hint.Render("No references yet. Press a to add one.")
	}
	rows := make([]string, 0, len(refs))
	for i, ref := range refs {
		head := fmt.Sprintf("#%d  %s  ·  reliability: %s", i+1, typeLabels[ref.Type], ref.Reliability)
		var detail string
		switch {
		case i == m.refCursor && m.refEditing:
			detail = m.refInput.View()
		case ref.Type == models.ResourceSearch:
			detail = m.styles.hint.Render("searches the web for the character details")
		case ref.Type == models.ResourceURL:
			detail = valueOr(ref.URL, "(no URL)")
		default:
			detail = valueOr(ref.FilePath, "(no file selected)")
		}
		style := m.styles.card
		if i == m.refCursor {
			style = m.styles.cardSelected
		}
		rows = append(rows, style.Render(head+"\n"+detail))
	}
	return strings.Join(rows, "\n")
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (m *Model) renderAnalysis() string {
	var b strings.Builder
	switch {
	case m.view.ProcessingComplete:
		b.WriteString(m.styles.ok.Render("✓ Processing complete. Review the results, then continue."))
	case m.view.AnalysisStalled:
		b.WriteString(m.styles.warn.Render("The job stopped reporting progress. Press ctrl+x to start over."))
	case m.view.Busy:
		b.WriteString(m.spinner.View() + " Submitting…")
	default:
		b.WriteString(m.spinner.View() + " Analyzing references…")
	}
	b.WriteString("\n")

	for i, e := range m.view.Entries {
		b.WriteString("\n")
		b.WriteString(m.renderEntry(e, i == m.taskCursor))
	}
	return b.String()
}

func (m *Model) renderEntry(e reconcile.Entry, selected bool) string {
	var b strings.Builder
	glyph := statusGlyph(e.Status, m.spinner.View())
	b.WriteString(fmt.Sprintf("%s %s  %s", m.glyphStyle(e.Status).Render(glyph), e.Title, m.styles.hint.Render(statusText(e.Status))))
	if e.Summary != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.summary.Render(e.Summary))
	}
	if e.Editable {
		b.WriteString("\n")
		b.WriteString(m.styles.hint.Render(saveLabel(e.Save)))
	}
	if e.EditOpen && e.StepID == m.editingID {
		b.WriteString("\n")
		b.WriteString(m.editor.View())
	}
	style := m.styles.card
	if selected {
		style = m.styles.cardSelected
	}
	return style.Render(b.String())
}

func (m *Model) glyphStyle(s models.TaskStatus) lipgloss.Style {
	switch s {
	case models.StatusSuccess:
		return m.styles.ok
	case models.StatusFailed:
		return m.styles.fail
	case models.StatusProcessing:
		return m.styles.warn
	default:
		return m.styles.pending
	}
}

func statusGlyph(s models.TaskStatus, spin string) string {
	switch s {
	case models.StatusSuccess:
		return "✓"
	case models.StatusFailed:
		return "✗"
	case models.StatusProcessing:
		return spin
	default:
		return "○"
	}
}

func statusText(s models.TaskStatus) string {
	switch s {
	case models.StatusProcessing:
		return "analyzing…"
	case models.StatusSuccess:
		return "done"
	case models.StatusFailed:
		return "failed"
	default:
		return "waiting"
	}
}

func saveLabel(s reconcile.SaveState) string {
	switch s {
	case reconcile.SaveBusy:
		return "saving…"
	case reconcile.SaveDone:
		return "saved ✓"
	default:
		return "e edit · s save"
	}
}

func (m *Model) renderExport() string {
	v := m.view
	switch {
	case v.Busy || v.Generation == phase.Polling:
		return m.spinner.View() + " Generating the character card…"
	case v.Generation == phase.Succeeded:
		body := "Character card ready.\n\nj  export card JSON"
		if v.HasImage {
			body += "\np  export card PNG"
		} else {
			body += "\n" + m.styles.hint.Render("no card image was returned")
		}
		return m.styles.successCard.Render(body)
	case v.Generation == phase.Failed:
		return m.styles.failureCard.Render("Card generation failed\n\n" + v.FailureReason)
	case v.Generation == phase.Stalled:
		return m.styles.stall.Render("Card generation stalled\n\n" + v.FailureReason + "\nPress ctrl+x to start over.")
	default:
		return ""
	}
}
