// Package ui renders the wizard in the terminal. It owns no wizard state: every
// frame is drawn from the controller's View, refreshed whenever the controller
// reports a change.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"character-card-wizard/internal/app"
	"character-card-wizard/internal/collector"
	"character-card-wizard/internal/export"
	"character-card-wizard/internal/models"
	"character-card-wizard/internal/reconcile"
	"character-card-wizard/internal/wizard"
)

// Controller is the part of app.Controller the view drives.
type Controller interface {
	View() app.View
	Next(ctx context.Context) error
	Back()
	Abandon()
	UpdateForm(fn func(f *collector.Form))
	SetEditText(stepID, text string) error
	ToggleEdit(stepID string) (bool, error)
	SaveTaskResult(ctx context.Context, stepID string) error
	Export(ctx context.Context, kind export.Kind) ([]string, error)
}

// EventMsg carries a controller event into the program.
type EventMsg app.Event

type opDoneMsg struct {
	op  string
	err error
}

// Bridge returns a notifier that forwards controller events to p. Each send
// runs in its own goroutine so the controller never waits on the UI loop.
func Bridge(p *tea.Program) func(app.Event) {
	return func(ev app.Event) {
		go p.Send(EventMsg(ev))
	}
}

const (
	fieldName = iota
	fieldAliases
	fieldWork
	fieldWorkAliases
	fieldRequirement
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Character name *",
	"Character aliases (comma separated)",
	"Source work",
	"Source work aliases (comma separated)",
	"Requirements",
}

// Options configure the model.
type Options struct {
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Model is the bubbletea model.
type Model struct {
	ctrl      Controller
	ctx       context.Context
	logger    *slog.Logger
	maxUpload int64
	styles    styles
	view      app.View
	width     int

	alert  string
	notice string

	fields []textinput.Model
	focus  int

	refCursor  int
	refInput   textinput.Model
	refEditing bool

	taskCursor int
	editor     textarea.Model
	editingID  string

	spinner spinner.Model
}

// New builds the model and seeds the inputs from the controller's form.
func New(ctx context.Context, ctrl Controller, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Model{
		ctrl:      ctrl,
		ctx:       ctx,
		logger:    logger,
		maxUpload: opts.MaxUploadBytes,
		styles:    newStyles(),
	}

	m.fields = make([]textinput.Model, fieldCount)
	for i := range m.fields {
		ti := textinput.New()
		ti.Prompt = "> "
		ti.CharLimit = 256
		m.fields[i] = ti
	}
	m.fields[fieldRequirement].CharLimit = 2048

	m.refInput = textinput.New()
	m.refInput.Prompt = "› "
	m.refInput.CharLimit = 1024

	m.editor = textarea.New()
	m.editor.Prompt = ""
	m.editor.ShowLineNumbers = false
	m.editor.CharLimit = 8192
	m.editor.SetHeight(6)
	m.editor.SetWidth(72)
	m.editor.Blur()

	m.spinner = spinner.New(spinner.WithSpinner(spinner.Dot))
	m.spinner.Style = m.styles.warn

	m.view = ctrl.View()
	m.loadFields(m.view.Form)
	m.fields[fieldName].Focus()
	return m
}

func (m *Model) loadFields(f collector.Form) {
	m.fields[fieldName].SetValue(f.CharacterName)
	m.fields[fieldAliases].SetValue(f.CharacterAliases)
	m.fields[fieldWork].SetValue(f.SourceWorkName)
	m.fields[fieldWorkAliases].SetValue(f.SourceWorkAliases)
	m.fields[fieldRequirement].SetValue(f.UserRequirement)
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width > 28 {
			m.editor.SetWidth(msg.Width - 8)
		}
		return m, nil
	case EventMsg:
		switch msg.Kind {
		case app.EventAlert:
			m.alert, m.notice = msg.Message, ""
		case app.EventNotice:
			m.alert, m.notice = "", msg.Message
		}
		m.refresh()
		return m, nil
	case opDoneMsg:
		if msg.err != nil {
			m.logger.Debug("operation failed", "op", msg.op, "err", msg.err)
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, m.updateFocused(msg)
}

// refresh re-reads the controller view and keeps cursors in range.
func (m *Model) refresh() {
	prev := m.view.Step
	m.view = m.ctrl.View()
	if prev != m.view.Step {
		m.refEditing = false
		m.refInput.Blur()
		m.editingID = ""
		m.editor.Blur()
	}
	m.refCursor = clamp(m.refCursor, len(m.view.Form.References))
	m.taskCursor = clamp(m.taskCursor, len(m.view.Entries))
}

func clamp(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

func (m *Model) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch {
	case m.view.Step == wizard.StepDetails:
		m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)
	case m.refEditing:
		m.refInput, cmd = m.refInput.Update(msg)
	case m.editingID != "":
		m.editor, cmd = m.editor.Update(msg)
	}
	return cmd
}

func (m *Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+n":
		if !m.view.Nav.ShowForward {
			return m, nil
		}
		m.alert, m.notice = "", ""
		return m, m.run("next", m.ctrl.Next)
	case "ctrl+p":
		if m.view.Nav.ShowBack {
			m.ctrl.Back()
			m.refresh()
		}
		return m, nil
	case "ctrl+x":
		if m.view.Step >= wizard.StepAnalysis {
			m.ctrl.Abandon()
			m.alert, m.notice = "", "Job abandoned"
			m.refresh()
		}
		return m, nil
	}

	switch m.view.Step {
	case wizard.StepDetails:
		return m, m.keyDetails(msg)
	case wizard.StepReferences:
		return m, m.keyReferences(msg)
	case wizard.StepAnalysis:
		return m, m.keyAnalysis(msg)
	default:
		return m, m.keyExport(msg)
	}
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.fields[m.focus].Blur()
	m.focus = (i + fieldCount) % fieldCount
	return m.fields[m.focus].Focus()
}

func (m *Model) keyDetails(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab", "down", "enter":
		return m.setFocus(m.focus + 1)
	case "shift+tab", "up":
		return m.setFocus(m.focus - 1)
	}
	var cmd tea.Cmd
	m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)

	name, aliases := m.fields[fieldName].Value(), m.fields[fieldAliases].Value()
	work, workAliases := m.fields[fieldWork].Value(), m.fields[fieldWorkAliases].Value()
	req := m.fields[fieldRequirement].Value()
	m.ctrl.UpdateForm(func(f *collector.Form) {
		f.CharacterName = name
		f.CharacterAliases = aliases
		f.SourceWorkName = work
		f.SourceWorkAliases = workAliases
		f.UserRequirement = req
	})
	m.refresh()
	return cmd
}

func (m *Model) keyReferences(msg tea.KeyMsg) tea.Cmd {
	refs := m.view.Form.References
	if m.refEditing {
		switch msg.String() {
		case "enter":
			m.commitReference(strings.TrimSpace(m.refInput.Value()))
			m.refEditing = false
			m.refInput.Blur()
			return nil
		case "esc":
			m.refEditing = false
			m.refInput.Blur()
			return nil
		}
		var cmd tea.Cmd
		m.refInput, cmd = m.refInput.Update(msg)
		return cmd
	}

	idx := m.refCursor
	switch msg.String() {
	case "up", "k":
		m.refCursor = clamp(idx-1, len(refs))
	case "down", "j":
		m.refCursor = clamp(idx+1, len(refs))
	case "a":
		m.ctrl.UpdateForm(func(f *collector.Form) {
			f.References = append(f.References, collector.NewReference())
		})
		m.refresh()
		m.refCursor = len(m.view.Form.References) - 1
	case "d", "delete":
		if len(refs) == 0 {
			return nil
		}
		m.ctrl.UpdateForm(func(f *collector.Form) {
			if idx < len(f.References) {
				f.References = append(f.References[:idx], f.References[idx+1:]...)
			}
		})
		m.refresh()
	case "t":
		m.ctrl.UpdateForm(func(f *collector.Form) {
			if idx < len(f.References) {
				ref := &f.References[idx]
				ref.Type = nextType(ref.Type)
				ref.URL, ref.FilePath = "", ""
			}
		})
		m.refresh()
	case "r":
		m.ctrl.UpdateForm(func(f *collector.Form) {
			if idx < len(f.References) {
				f.References[idx].Reliability = nextReliability(f.References[idx].Reliability)
			}
		})
		m.refresh()
	case "enter", "e":
		if idx >= len(refs) || refs[idx].Type == models.ResourceSearch {
			return nil
		}
		if refs[idx].Type == models.ResourceURL {
			m.refInput.SetValue(refs[idx].URL)
		} else {
			m.refInput.SetValue(refs[idx].FilePath)
		}
		m.refEditing = true
		return m.refInput.Focus()
	}
	return nil
}

// commitReference stores the typed URL or file path on the selected row.
// File paths are checked against the allow-list before they are accepted.
func (m *Model) commitReference(value string) {
	idx := m.refCursor
	if idx >= len(m.view.Form.References) {
		return
	}
	ref := m.view.Form.References[idx]
	if ref.Type.CarriesFile() && value != "" {
		value = expandHome(value)
		info, err := os.Stat(value)
		if err != nil {
			m.alert = fmt.Sprintf("Cannot read %s: %v", value, err)
			return
		}
		if err := collector.CheckFile(ref.Type, value, info.Size(), m.maxUpload); err != nil {
			m.alert = err.Error()
			return
		}
	}
	m.alert = ""
	m.ctrl.UpdateForm(func(f *collector.Form) {
		if idx >= len(f.References) {
			return
		}
		if f.References[idx].Type == models.ResourceURL {
			f.References[idx].URL = value
		} else {
			f.References[idx].FilePath = value
		}
	})
	m.refresh()
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func nextType(t models.ResourceType) models.ResourceType {
	for i, rt := range models.ResourceTypes {
		if rt == t {
			return models.ResourceTypes[(i+1)%len(models.ResourceTypes)]
		}
	}
	return models.ResourceURL
}

func nextReliability(r models.Reliability) models.Reliability {
	if r >= models.ReliabilityCertain || r < models.ReliabilityLow {
		return models.ReliabilityLow
	}
	return r + 1
}

func (m *Model) keyAnalysis(msg tea.KeyMsg) tea.Cmd {
	if m.editingID != "" {
		id := m.editingID
		switch msg.String() {
		case "esc":
			_ = m.ctrl.SetEditText(id, m.editor.Value())
			_, _ = m.ctrl.ToggleEdit(id)
			m.editingID = ""
			m.editor.Blur()
			m.refresh()
			return nil
		case "ctrl+s":
			_ = m.ctrl.SetEditText(id, m.editor.Value())
			m.refresh()
			return m.run("save", func(ctx context.Context) error { return m.ctrl.SaveTaskResult(ctx, id) })
		}
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		return cmd
	}

	entries := m.view.Entries
	if len(entries) == 0 {
		return nil
	}
	cur := entries[clamp(m.taskCursor, len(entries))]
	switch msg.String() {
	case "up", "k":
		m.taskCursor = clamp(m.taskCursor-1, len(entries))
	case "down", "j":
		m.taskCursor = clamp(m.taskCursor+1, len(entries))
	case "enter", "e":
		if !cur.Editable {
			return nil
		}
		open, err := m.ctrl.ToggleEdit(cur.StepID)
		if err != nil {
			return nil
		}
		m.refresh()
		if open {
			m.editingID = cur.StepID
			m.editor.SetValue(cur.EditText)
			return m.editor.Focus()
		}
	case "s":
		if cur.Editable {
			id := cur.StepID
			return m.run("save", func(ctx context.Context) error { return m.ctrl.SaveTaskResult(ctx, id) })
		}
	case "c":
		text := copyText(cur)
		if text == "" {
			return nil
		}
		if err := clipboardWrite(text); err != nil {
			m.logger.Warn("clipboard write failed", "err", err)
			m.alert, m.notice = "Clipboard unavailable", ""
			return nil
		}
		m.alert, m.notice = "", "Summary copied"
	}
	return nil
}

// clipboardWrite is swapped out in tests.
var clipboardWrite = clipboard.WriteAll

// copyText prefers the user's corrected text over the remote summary.
func copyText(e reconcile.Entry) string {
	if e.Editable && e.EditText != "" {
		return e.EditText
	}
	return e.Summary
}

func (m *Model) keyExport(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "j":
		return m.run("export_json", func(ctx context.Context) error {
			_, err := m.ctrl.Export(ctx, export.KindJSON)
			return err
		})
	case "p":
		return m.run("export_png", func(ctx context.Context) error {
			_, err := m.ctrl.Export(ctx, export.KindImage)
			return err
		})
	}
	return nil
}
