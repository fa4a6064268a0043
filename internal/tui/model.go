// Package tui is the terminal front-end of the pharmtrack daemon.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pharmtrack/internal/medicine"
	"pharmtrack/internal/reminder"
)

// API is the part of the daemon client the TUI drives.
type API interface {
	List(ctx context.Context) ([]*medicine.Entry, error)
	Active(ctx context.Context) (*reminder.ActiveView, error)
	Stats(ctx context.Context) (*reminder.Stats, error)
	Add(ctx context.Context, in reminder.AddInput) (*medicine.Entry, error)
	Remove(ctx context.Context, id string) error
	Trigger(ctx context.Context, id string) error
	Taken(ctx context.Context) (*reminder.Outcome, error)
	Missed(ctx context.Context) (*reminder.Outcome, error)
	Snooze(ctx context.Context, minutes int) (*reminder.Outcome, error)
	Dismiss(ctx context.Context) (*reminder.Outcome, error)
	Voice(ctx context.Context, transcript string) (*reminder.Outcome, error)
}

const (
	tabReminder = iota + 1
	tabSchedule
)

const requestTimeout = 5 * time.Second

var formLabels = []string{"Name:", "Dosage:", "Frequency:", "Time (HH:MM):", "Critical (y/n):"}

type snapshotMsg struct {
	entries []*medicine.Entry
	active  *reminder.ActiveView
	stats   *reminder.Stats
	err     error
}

type tickMsg time.Time

type statusMsg struct {
	message string
	color   string
}

type Model struct {
	api     API
	refresh time.Duration

	activeTab int
	table     table.Model
	rows      []*medicine.Entry
	active    *medicine.Entry
	pending   int
	stats     reminder.Stats

	adding    bool
	inputs    []textinput.Model
	formField int

	listening bool
	voice     textinput.Model

	statusMsg    string
	statusColor  string
	statusExpiry time.Time
	width        int
	height       int
}

func New(api API, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = 5 * time.Second
	}
	m := Model{
		api:         api,
		refresh:     refresh,
		activeTab:   tabReminder,
		statusColor: "86",
	}
	m.table = table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 6},
			{Title: "When", Width: 10},
			{Title: "Medicine", Width: 20},
			{Title: "Dosage", Width: 10},
			{Title: "Frequency", Width: 14},
			{Title: "Taken", Width: 6},
			{Title: "Missed", Width: 6},
			{Title: "Flags", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	m.table.SetStyles(tableStyles())

	m.voice = textinput.New()
	m.voice.Placeholder = `say "taken"`
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// load fetches the list, the active reminder and the stats in one go.
func (m Model) load() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var msg snapshotMsg
		if msg.entries, msg.err = api.List(ctx); msg.err != nil {
			return msg
		}
		if msg.active, msg.err = api.Active(ctx); msg.err != nil {
			return msg
		}
		msg.stats, msg.err = api.Stats(ctx)
		return msg
	}
}

// run performs one API action and reports its result in the status line.
func (m Model) run(fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		text, err := fn(ctx)
		if err != nil {
			return statusMsg{message: err.Error(), color: "196"}
		}
		return statusMsg{message: text, color: "82"}
	}
}

func outcomeText(out *reminder.Outcome) string {
	text := fmt.Sprintf("%s: %s", out.Entry.Name, out.State)
	if out.Escalated {
		text += " - CRITICAL: important medicine missed, consider emergency action."
	}
	return text
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.statusMsg = msg.message
		m.statusColor = msg.color
		m.statusExpiry = time.Now().Add(3 * time.Second)
		return m, m.load()

	case snapshotMsg:
		if msg.err != nil {
			m.statusMsg = "daemon unreachable: " + msg.err.Error()
			m.statusColor = "196"
			m.statusExpiry = time.Now().Add(m.refresh)
			return m, nil
		}
		m.setSnapshot(msg)
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.load(), m.tick())

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.adjustLayout()
		return m, nil

	case tea.KeyMsg:
		if m.adding {
			return m.handleFormKeys(msg)
		}
		if m.listening {
			return m.handleVoiceKeys(msg)
		}
		return m.handleKeys(msg)
	}
	return m, nil
}

func (m *Model) setSnapshot(msg snapshotMsg) {
	rows := append([]*medicine.Entry(nil), msg.entries...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time < rows[j].Time })
	m.rows = rows
	m.table.SetRows(m.tableRows())

	m.active, m.pending = nil, 0
	if msg.active != nil {
		m.active = msg.active.Active
		m.pending = msg.active.Pending
	}
	if msg.stats != nil {
		m.stats = *msg.stats
	}
}

func (m *Model) adjustLayout() {
	if m.height == 0 {
		return
	}
	h := m.height - 10
	if h < 5 {
		h = 5
	}
	m.table.SetHeight(h)
}

func (m Model) tableRows() []table.Row {
	rows := make([]table.Row, 0, len(m.rows))
	for _, e := range m.rows {
		var flags []string
		if e.Critical {
			flags = append(flags, "critical")
		}
		if e.SnoozedUntil != nil {
			flags = append(flags, "snoozed")
		}
		rows = append(rows, table.Row{
			e.Time,
			string(medicine.BucketOf(e.Time)),
			e.Name,
			e.Dosage,
			e.Frequency,
			strconv.Itoa(e.TakenCount),
			strconv.Itoa(e.MissedCount),
			strings.Join(flags, ","),
		})
	}
	return rows
}

func (m Model) selected() (*medicine.Entry, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rows) {
		return nil, false
	}
	return m.rows[i], true
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	api := m.api
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "1":
		m.activeTab = tabReminder
	case "2":
		m.activeTab = tabSchedule
	case "tab":
		if m.activeTab == tabReminder {
			m.activeTab = tabSchedule
		} else {
			m.activeTab = tabReminder
		}
	case "up", "k", "down", "j":
		if m.activeTab == tabSchedule {
			m.table, _ = m.table.Update(msg)
		}

	// Active reminder actions
	case "t":
		return m, m.run(func(ctx context.Context) (string, error) {
			out, err := api.Taken(ctx)
			if err != nil {
				return "", err
			}
			return outcomeText(out), nil
		})
	case "m":
		return m, m.run(func(ctx context.Context) (string, error) {
			out, err := api.Missed(ctx)
			if err != nil {
				return "", err
			}
			return outcomeText(out), nil
		})
	case "s":
		return m, m.run(func(ctx context.Context) (string, error) {
			out, err := api.Snooze(ctx, 5)
			if err != nil {
				return "", err
			}
			return outcomeText(out) + " for 5 minutes", nil
		})
	case "x":
		return m, m.run(func(ctx context.Context) (string, error) {
			out, err := api.Dismiss(ctx)
			if err != nil {
				return "", err
			}
			return outcomeText(out), nil
		})
	case "v":
		m.listening = true
		m.voice.SetValue("")
		m.voice.Focus()

	// Schedule actions
	case "a", "n":
		m.startAdding()
	case "r":
		if e, ok := m.selected(); ok && m.activeTab == tabSchedule {
			id, name := e.ID, e.Name
			return m, m.run(func(ctx context.Context) (string, error) {
				return "ringing " + name, api.Trigger(ctx, id)
			})
		}
	case "d", "delete":
		if e, ok := m.selected(); ok && m.activeTab == tabSchedule {
			id, name := e.ID, e.Name
			return m, m.run(func(ctx context.Context) (string, error) {
				return "removed " + name, api.Remove(ctx, id)
			})
		}
	}
	return m, nil
}

func (m *Model) startAdding() {
	m.adding = true
	m.formField = 0
	m.inputs = make([]textinput.Model, len(formLabels))
	for i := range m.inputs {
		m.inputs[i] = textinput.New()
		m.inputs[i].CharLimit = 64
	}
	m.inputs[3].Placeholder = "08:00"
	m.inputs[4].Placeholder = "n"
	m.inputs[0].Focus()
}

func (m Model) handleFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.adding = false
		return m, nil
	case "tab", "down":
		m.focusField((m.formField + 1) % len(m.inputs))
		return m, nil
	case "shift+tab", "up":
		m.focusField((m.formField - 1 + len(m.inputs)) % len(m.inputs))
		return m, nil
	case "enter":
		if m.formField < len(m.inputs)-1 {
			m.focusField(m.formField + 1)
			return m, nil
		}
		in := m.formInput()
		m.adding = false
		api := m.api
		return m, m.run(func(ctx context.Context) (string, error) {
			e, err := api.Add(ctx, in)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("added %s at %s", e.Name, e.Time), nil
		})
	}

	var cmd tea.Cmd
	m.inputs[m.formField], cmd = m.inputs[m.formField].Update(msg)
	return m, cmd
}

func (m *Model) focusField(i int) {
	m.inputs[m.formField].Blur()
	m.formField = i
	m.inputs[i].Focus()
}

func (m Model) formInput() reminder.AddInput {
	critical := strings.ToLower(strings.TrimSpace(m.inputs[4].Value()))
	return reminder.AddInput{
		Name:      m.inputs[0].Value(),
		Dosage:    m.inputs[1].Value(),
		Frequency: m.inputs[2].Value(),
		Time:      m.inputs[3].Value(),
		Critical:  critical == "y" || critical == "yes",
	}
}

func (m Model) handleVoiceKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.listening = false
		m.voice.Blur()
		return m, nil
	case "enter":
		m.listening = false
		m.voice.Blur()
		transcript := m.voice.Value()
		api := m.api
		return m, m.run(func(ctx context.Context) (string, error) {
			out, err := api.Voice(ctx, transcript)
			if err != nil {
				return "", err
			}
			return outcomeText(out), nil
		})
	}
	var cmd tea.Cmd
	m.voice, cmd = m.voice.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.adding {
		return m.formView()
	}

	header := headerStyle.Render("PharmTrack - medicine reminders")

	tabs := []string{}
	for i, name := range []string{"[1] Reminder", "[2] Schedule"} {
		if i+1 == m.activeTab {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, tabStyle.Render(name))
		}
	}
	tabRow := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	var content string
	if m.activeTab == tabReminder {
		content = m.reminderView()
	} else {
		content = m.table.View()
	}

	var commands []string
	if m.activeTab == tabReminder {
		commands = append(commands,
			keyStyle.Render("t")+": "+actionStyle.Render("taken"),
			keyStyle.Render("m")+": "+actionStyle.Render("missed"),
			keyStyle.Render("s")+": "+actionStyle.Render("snooze 5m"),
			keyStyle.Render("x")+": "+actionStyle.Render("dismiss"),
			keyStyle.Render("v")+": "+actionStyle.Render("voice"),
		)
	} else {
		commands = append(commands,
			keyStyle.Render("↑↓")+": "+actionStyle.Render("navigate"),
			keyStyle.Render("r")+": "+actionStyle.Render("ring now"),
			keyStyle.Render("d")+": "+actionStyle.Render("delete"),
		)
	}
	commands = append(commands,
		keyStyle.Render("a")+": "+actionStyle.Render("add"),
		keyStyle.Render("q")+": "+actionStyle.Render("quit"),
	)
	commandRow := strings.Join(commands, bulletStyle.Render(" • "))

	if m.listening {
		commandRow += "\n> voice: " + m.voice.View()
	}
	if m.statusMsg != "" && time.Now().Before(m.statusExpiry) {
		statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.statusColor))
		commandRow += "\n> " + statusStyle.Render(m.statusMsg)
	}

	return lipgloss.JoinVertical(lipgloss.Top,
		header,
		"",
		tabRow,
		content,
		"",
		commandRow,
	)
}

func (m Model) reminderView() string {
	var b strings.Builder
	if m.active == nil {
		b.WriteString(takenStyle.Render("No active reminder."))
	} else {
		e := m.active
		title := pendingStyle.Render("Medicine Reminder")
		if e.Critical {
			title += " " + criticalStyle.Render("CRITICAL")
		}
		box := fmt.Sprintf("%s\n\nTime to take %s (%s) - %s\nScheduled at %s", title, e.Name, e.Dosage, e.Frequency, e.Time)
		if m.pending > 1 {
			box += fmt.Sprintf("\n%d more waiting", m.pending-1)
		}
		b.WriteString(reminderBoxStyle.Render(box))
	}

	fmt.Fprintf(&b, "\n\nStats:\n")
	fmt.Fprintf(&b, "  • Medicines: %d\n", m.stats.Total)
	fmt.Fprintf(&b, "  • Doses taken: %s\n", takenStyle.Render(strconv.Itoa(m.stats.Taken)))
	fmt.Fprintf(&b, "  • Doses missed: %s\n", criticalStyle.Render(strconv.Itoa(m.stats.Missed)))
	return b.String()
}

func (m Model) formView() string {
	fields := make([]string, 0, len(m.inputs))
	for i, in := range m.inputs {
		label := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Render(formLabels[i])
		fields = append(fields, label+" "+in.View())
	}
	help := keyStyle.Render("tab")+": "+actionStyle.Render("next field") +
		bulletStyle.Render(" • ") + keyStyle.Render("enter")+": "+actionStyle.Render("save on last field") +
		bulletStyle.Render(" • ") + keyStyle.Render("esc")+": "+actionStyle.Render("cancel")

	return lipgloss.JoinVertical(lipgloss.Top,
		headerStyle.Render("Add medicine"),
		"",
		lipgloss.JoinVertical(lipgloss.Top, fields...),
		"",
		help,
	)
}
