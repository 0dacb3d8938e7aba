// Package tui is the interactive rule console built on bubbletea.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/pfw/internal/brand"
	"grimm.is/pfw/internal/client"
	"grimm.is/pfw/internal/clock"
	"grimm.is/pfw/internal/console"
	"grimm.is/pfw/internal/logging"
	"grimm.is/pfw/internal/rules"
)

// View represents the currently active screen
type View int

const (
	ViewRules View = iota
	ViewEvents
	ViewEditor // draft form, over the rules view
)

const (
	maxEvents      = 100
	reconnectDelay = 3 * time.Second
)

// Watcher streams rule change events. *client.HTTPClient implements it.
type Watcher interface {
	Watch(ctx context.Context, fn func(client.RuleEvent)) error
}

// Options configures the console model.
type Options struct {
	State     *console.State // required
	Watcher   Watcher        // nil disables live updates
	ServerURL string
	Timeout   time.Duration
	Logger    *logging.Logger
	Clock     clock.Clock // marks rules outside their time window; nil uses the real clock
}

// Model is the main application state
type Model struct {
	ctx     context.Context
	state   *console.State
	watcher Watcher
	eventCh chan client.RuleEvent
	timeout time.Duration
	server  string
	logger  *logging.Logger
	clock   clock.Clock

	ActiveView View
	Width      int
	Height     int

	table     table.Model
	filter    textinput.Model
	filtering bool
	help      help.Model
	keys      keyMap

	form          *huh.Form
	fields        *ruleForm
	pendingSubmit bool
	pendingDelete int

	busy  bool // an operation owns a clone of state
	stale bool // an event arrived while busy
	live  bool

	events    []client.RuleEvent
	status    string
	statusErr bool
}

// NewModel creates the console. The initial fetch starts in Init.
func NewModel(ctx context.Context, opts Options) Model {
	if opts.Timeout <= 0 {
		opts.Timeout = client.DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 4},
			{Title: "Action", Width: 8},
			{Title: "Source", Width: 18},
			{Title: "Port", Width: 11},
			{Title: "Proto", Width: 7},
			{Title: "Size", Width: 12},
			{Title: "Window", Width: 17},
			{Title: "ID", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorDim).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(ColorDark).
		Background(ColorAccent).
		Bold(false)
	t.SetStyles(s)

	f := textinput.New()
	f.Prompt = "/ "
	f.Placeholder = "filter rules"
	f.CharLimit = 64

	m := Model{
		ctx:           ctx,
		state:         opts.State,
		watcher:       opts.Watcher,
		timeout:       opts.Timeout,
		server:        opts.ServerURL,
		logger:        opts.Logger,
		clock:         clock.OrReal(opts.Clock),
		ActiveView:    ViewRules,
		table:         t,
		filter:        f,
		help:          help.New(),
		keys:          defaultKeyMap(),
		pendingDelete: -1,
		busy:          true,
		status:        "loading rules…",
	}
	if m.watcher != nil {
		m.eventCh = make(chan client.RuleEvent, 16)
		m.live = true
	}
	return m
}

// Init fetches the rules and opens the event stream.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchCmd()}
	if m.watcher != nil {
		cmds = append(cmds, m.watchCmd(), m.waitEvent())
	}
	return tea.Batch(cmds...)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.table.SetHeight(max(3, msg.Height-12))
		m.help.Width = msg.Width
		if m.form != nil {
			m.form = m.form.WithWidth(msg.Width - 8)
		}
		return m, nil

	case opResultMsg:
		return m.applyResult(msg)

	case ruleEventMsg:
		m.events = append(m.events, client.RuleEvent(msg))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
		cmds := []tea.Cmd{m.waitEvent()}
		if m.busy {
			m.stale = true
		} else {
			m.busy = true
			cmds = append(cmds, m.fetchCmd())
		}
		return m, tea.Batch(cmds...)

	case watchEndedMsg:
		m.live = false
		if m.ctx.Err() != nil {
			return m, nil
		}
		if msg.err != nil {
			m.logger.Warn("event stream ended", "error", msg.err)
		}
		return m, reconnectAfter(reconnectDelay)

	case reconnectMsg:
		if m.watcher == nil || m.ctx.Err() != nil {
			return m, nil
		}
		m.live = true
		return m, m.watchCmd()

	case tea.KeyMsg:
		return m.updateKey(msg)
	}

	if m.ActiveView == ViewEditor && m.form != nil {
		return m.updateForm(msg)
	}
	if m.filtering {
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.ActiveView == ViewEditor {
		if msg.Type == tea.KeyEsc {
			m.closeEditor()
			m.state.CancelEdit()
			m.setStatus("edit cancelled")
			return m, nil
		}
		return m.updateForm(msg)
	}
	if m.filtering {
		return m.updateFilter(msg)
	}
	if m.pendingDelete >= 0 {
		return m.updateConfirm(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Rules):
		m.ActiveView = ViewRules
		return m, nil
	case key.Matches(msg, m.keys.Events):
		m.ActiveView = ViewEvents
		return m, nil
	case key.Matches(msg, m.keys.Next):
		if m.ActiveView == ViewRules {
			m.ActiveView = ViewEvents
		} else {
			m.ActiveView = ViewRules
		}
		return m, nil
	}

	if m.ActiveView == ViewRules {
		return m.updateRules(msg)
	}
	return m, nil
}

func (m Model) updateRules(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Refresh):
		if m.busy {
			m.setStatus("busy, try again in a moment")
			return m, nil
		}
		m.busy = true
		m.setStatus("refreshing…")
		return m, m.fetchCmd()

	case key.Matches(msg, m.keys.Add):
		if m.busy {
			m.setStatus("busy, try again in a moment")
			return m, nil
		}
		m.state.CancelEdit()
		return m.openEditor()

	case key.Matches(msg, m.keys.Edit):
		if m.busy {
			m.setStatus("busy, try again in a moment")
			return m, nil
		}
		idx, ok := m.selectedIndex()
		if !ok {
			m.setStatus("no rule selected")
			return m, nil
		}
		if err := m.state.EditRule(idx); err != nil {
			m.setError(err)
			return m, nil
		}
		return m.openEditor()

	case key.Matches(msg, m.keys.Delete):
		idx, ok := m.selectedIndex()
		if !ok {
			m.setStatus("no rule selected")
			return m, nil
		}
		m.pendingDelete = idx
		m.setStatus(fmt.Sprintf("delete rule #%d (%s)? y/n", idx, m.state.Rules()[idx]))
		return m, nil

	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		return m, m.filter.Focus()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	idx := m.pendingDelete
	m.pendingDelete = -1
	if !key.Matches(msg, m.keys.Confirm) {
		m.setStatus("delete cancelled")
		return m, nil
	}
	if m.busy {
		m.setStatus("busy, try again in a moment")
		return m, nil
	}
	m.busy = true
	m.setStatus(fmt.Sprintf("deleting rule #%d…", idx))
	return m, m.deleteCmd(idx)
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filtering = false
		m.filter.SetValue("")
		m.filter.Blur()
		m.refreshRows()
		return m, nil
	case tea.KeyEnter:
		m.filtering = false
		m.filter.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.refreshRows()
	return m, cmd
}

func (m Model) openEditor() (Model, tea.Cmd) {
	m.fields = formFromDraft(m.state.Draft())
	m.form = AutoForm(m.fields)
	if m.Width > 0 {
		m.form = m.form.WithWidth(m.Width - 8)
	}
	m.ActiveView = ViewEditor
	return m, m.form.Init()
}

func (m *Model) closeEditor() {
	m.form = nil
	m.ActiveView = ViewRules
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := m.form.Update(msg)
	if f, ok := model.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.closeEditor()
		return m.submitForm()
	case huh.StateAborted:
		m.closeEditor()
		m.state.CancelEdit()
		m.setStatus("edit cancelled")
		return m, nil
	}
	return m, cmd
}

// submitForm copies the form into the draft and sends it. While another
// operation owns the state the submit waits for it.
func (m Model) submitForm() (Model, tea.Cmd) {
	if m.busy {
		m.pendingSubmit = true
		m.setStatus("waiting for refresh…")
		return m, nil
	}
	if err := m.applyForm(); err != nil {
		m.setError(err)
		return m.openEditor()
	}
	m.busy = true
	m.setStatus("saving…")
	return m, m.submitCmd()
}

func (m Model) applyForm() error {
	for _, fv := range m.fields.values() {
		if err := m.state.SetField(fv.field, fv.text); err != nil {
			return err
		}
	}
	return nil
}

func (m Model) applyResult(msg opResultMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.state = msg.state

	if msg.err != nil {
		m.logger.Warn("operation failed", "op", msg.op.String(), "error", msg.err)
		m.setError(fmt.Errorf("%s: %w", msg.op, msg.err))
	} else {
		switch msg.op {
		case opSubmit, opDelete:
			m.setStatus(msg.mutation.Message)
		case opFetch:
			if !m.statusErr {
				m.setStatus(fmt.Sprintf("updated %s", m.state.FetchedAt().Format("15:04:05")))
			}
		}
	}
	m.refreshRows()

	editing, _ := m.state.Editing()
	if msg.op == opSubmit && msg.err != nil && (editing || !m.state.Draft().IsEmpty()) {
		// The mutation itself failed: the draft is intact, show it again.
		return m.openEditor()
	}

	switch {
	case m.pendingSubmit:
		m.pendingSubmit = false
		return m.submitForm()
	case m.stale:
		m.stale = false
		m.busy = true
		return m, m.fetchCmd()
	}
	return m, nil
}

func (m *Model) refreshRows() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	now := m.clock.Now()
	var rows []table.Row
	for i, r := range m.state.Rules() {
		if q != "" && !strings.Contains(strings.ToLower(r.String()+" "+r.ID), q) {
			continue
		}
		rows = append(rows, ruleRow(i, r, now))
	}
	m.table.SetRows(rows)
	if n := len(rows); n > 0 && m.table.Cursor() >= n {
		m.table.SetCursor(n - 1)
	}
}

func ruleRow(i int, r rules.Rule, now time.Time) table.Row {
	window := ""
	if r.StartTime != "" || r.EndTime != "" {
		window = orDash(r.StartTime) + "-" + orDash(r.EndTime)
		if !r.ActiveAt(now) {
			window += " off"
		}
	}
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return table.Row{
		strconv.Itoa(i),
		orDash(r.Action),
		orDash(r.SrcIP),
		orDash(r.Port),
		orDash(r.Protocol),
		fmt.Sprintf("%d-%d", r.SizeMin, r.SizeMax),
		window,
		id,
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// selectedIndex maps the highlighted row back to its position in the
// fetched list; the first column holds it even when filtered.
func (m Model) selectedIndex() (int, bool) {
	row := m.table.SelectedRow()
	if row == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(row[0])
	if err != nil {
		return 0, false
	}
	return idx, true
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(err error) {
	if client.IsConflict(err) {
		err = fmt.Errorf("%w (press r to reload)", err)
	}
	m.status = err.Error()
	m.statusErr = true
}

// View renders the application
func (m Model) View() string {
	doc := m.viewTopBar() + "\n"
	switch m.ActiveView {
	case ViewRules:
		doc += m.viewRules()
	case ViewEvents:
		doc += m.viewEvents()
	case ViewEditor:
		doc += m.viewEditor()
	}
	return StyleApp.Render(doc)
}

func (m Model) viewTopBar() string {
	menus := []struct {
		view  View
		label string
		key   string
	}{
		{ViewRules, "Rules", "1"},
		{ViewEvents, "Events", "2"},
	}

	items := []string{StyleTitle.Render(strings.ToUpper(brand.LowerName) + " ")}
	for _, menu := range menus {
		k := StyleMenuKey.Render("[" + menu.key + "]")
		active := m.ActiveView == menu.view || (menu.view == ViewRules && m.ActiveView == ViewEditor)
		if active {
			items = append(items, StyleMenuItemActive.Render(k+" "+menu.label))
		} else {
			items = append(items, StyleMenuItem.Render(k+" "+menu.label))
		}
	}

	conn := StyleStatusWarn.Render("○ reconnecting")
	switch {
	case m.watcher == nil:
		conn = StyleSubtitle.Render("polling")
	case m.live:
		conn = StyleStatusGood.Render("● live")
	}
	items = append(items, StyleMenuItem.Render(m.server), conn)

	return StyleTopBar.Render(lipgloss.JoinHorizontal(lipgloss.Top, items...))
}

func (m Model) viewStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return StyleStatusBad.Render(m.status)
	}
	return StyleSubtitle.Render(m.status)
}

func (m Model) viewRules() string {
	parts := []string{StyleHeader.Render(fmt.Sprintf("RULES (%d)", len(m.state.Rules())))}
	if m.filtering || m.filter.Value() != "" {
		parts = append(parts, m.filter.View())
	}
	if len(m.state.Rules()) == 0 && !m.busy {
		parts = append(parts, StyleCard.Render("No rules yet. Press a to add one."))
	} else {
		parts = append(parts, StyleCard.Render(m.table.View()))
	}
	parts = append(parts, m.viewStatus(), m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) viewEditor() string {
	title := "NEW RULE"
	if editing, idx := m.state.Editing(); editing {
		title = fmt.Sprintf("EDIT RULE #%d", idx)
		if ref := m.state.EditRef(); ref.ID != "" {
			title += " " + StyleSubtitle.Render(ref.ID)
		}
	}
	form := ""
	if m.form != nil {
		form = m.form.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		StyleHeader.Render(title),
		StyleActiveCard.Render(form),
		m.viewStatus(),
		StyleSubtitle.Render("Esc to cancel, Enter on the last field to save"),
	)
}

func (m Model) viewEvents() string {
	header := StyleHeader.Render("RULE EVENTS")
	if len(m.events) == 0 {
		note := "No events yet"
		if m.watcher == nil {
			note = "Live updates are disabled"
		}
		return lipgloss.JoinVertical(lipgloss.Left, header, StyleSubtitle.Render(note))
	}

	lines := make([]string, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		verb := strings.TrimPrefix(string(e.Type), "rule.")
		lines = append(lines, fmt.Sprintf("%s  %-8s #%-3d %s  %s",
			StyleEventTime.Render(e.Timestamp.Local().Format("15:04:05")),
			verb,
			e.Data.Index,
			actionStyle(e.Data.Rule.Action).Render(e.Data.Rule.String()),
			StyleSubtitle.Render(e.Source),
		))
	}
	if m.Height > 8 && len(lines) > m.Height-8 {
		lines = lines[:m.Height-8]
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, StyleCard.Render(strings.Join(lines, "\n")))
}

// Run starts the console full screen and blocks until the user quits or
// ctx ends.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
