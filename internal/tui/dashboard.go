// Package tui provides the terminal dashboard for a skein run.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/skein-dev/skein/internal/swarm"
	"github.com/skein-dev/skein/pkg/models"
)

// EventMsg wraps a swarm event for the dashboard.
type EventMsg struct {
	Event swarm.Event
}

// RunDoneMsg signals that the run terminated.
type RunDoneMsg struct {
	Summary *models.RunSummary
	Err     error
}

// LogEntry is one line in the dashboard's event log.
type LogEntry struct {
	Timestamp time.Time
	Message   string
}

// taskRow is the dashboard's view of one task.
type taskRow struct {
	id       string
	title    string
	status   models.TaskStatus
	duration time.Duration
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ECDC4"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#45B7D1"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#96E6A1"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	blockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC857"))
)

// Dashboard is the bubbletea model for a live run.
type Dashboard struct {
	planName string
	runID    string

	rows  []taskRow
	index map[string]int

	workersRunning int
	logs           []LogEntry
	spin           spinner.Model

	width    int
	height   int
	quitting bool
	done     bool
	summary  *models.RunSummary
	runErr   error
}

// NewDashboard creates a dashboard for the given plan's tasks, in hint
// order. refresh controls the spinner cadence; zero keeps the default.
func NewDashboard(planName, runID string, tasks []*models.Task, refresh time.Duration) *Dashboard {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	if refresh > 0 {
		sp.Spinner.FPS = refresh
	}
	sp.Style = runningStyle

	d := &Dashboard{
		planName: planName,
		runID:    runID,
		index:    make(map[string]int, len(tasks)),
		spin:     sp,
		width:    80,
	}
	for i, task := range tasks {
		d.rows = append(d.rows, taskRow{id: task.ID, title: task.Title, status: models.TaskStatusPending})
		d.index[task.ID] = i
	}
	return d
}

// NewProgram wraps the dashboard in a bubbletea program.
func NewProgram(planName, runID string, tasks []*models.Task, refresh time.Duration) (*tea.Program, *Dashboard) {
	d := NewDashboard(planName, runID, tasks, refresh)
	return tea.NewProgram(d, tea.WithAltScreen()), d
}

// ForwardEvents pumps coordinator events into the program until the
// event channel closes. Run it in its own goroutine.
func ForwardEvents(p *tea.Program, events <-chan swarm.Event) {
	for ev := range events {
		p.Send(EventMsg{Event: ev})
	}
}

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	return d.spin.Tick
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			d.quitting = true
			return d, tea.Quit
		}

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spin, cmd = d.spin.Update(msg)
		return d, cmd

	case EventMsg:
		d.applyEvent(msg.Event)

	case RunDoneMsg:
		d.done = true
		d.summary = msg.Summary
		d.runErr = msg.Err
		return d, tea.Quit
	}

	return d, nil
}

func (d *Dashboard) applyEvent(ev swarm.Event) {
	d.workersRunning = ev.WorkersRunning

	if i, ok := d.index[ev.TaskID]; ok {
		row := &d.rows[i]
		switch ev.Type {
		case swarm.EventTaskStarted:
			row.status = models.TaskStatusDispatched
		case swarm.EventTaskCompleted:
			row.status = models.TaskStatusDone
			row.duration = ev.Duration
		case swarm.EventTaskFailed:
			row.status = models.TaskStatusFailed
			row.duration = ev.Duration
		case swarm.EventTaskBlocked:
			row.status = models.TaskStatusBlocked
		}
	}

	if line := eventLine(ev); line != "" {
		d.logs = append(d.logs, LogEntry{Timestamp: ev.Timestamp, Message: line})
		if len(d.logs) > 50 {
			d.logs = d.logs[len(d.logs)-50:]
		}
	}
}

func eventLine(ev swarm.Event) string {
	switch ev.Type {
	case swarm.EventTaskStarted:
		return fmt.Sprintf("started %s", ev.TaskID)
	case swarm.EventTaskCompleted:
		return fmt.Sprintf("completed %s (%s)", ev.TaskID, ev.Duration.Round(time.Millisecond))
	case swarm.EventTaskFailed:
		return fmt.Sprintf("FAILED %s: %v", ev.TaskID, ev.Err)
	case swarm.EventTaskBlocked:
		return fmt.Sprintf("blocked %s: %s", ev.TaskID, ev.Message)
	case swarm.EventDeadlock:
		return "DEADLOCK: " + ev.Message
	case swarm.EventRunDone:
		return "run done: " + ev.Message
	}
	return ""
}

// Counts tallies the dashboard's task rows per status.
func (d *Dashboard) Counts() (pending, running, done, failed, blocked int) {
	for _, row := range d.rows {
		switch row.status {
		case models.TaskStatusDispatched:
			running++
		case models.TaskStatusDone:
			done++
		case models.TaskStatusFailed:
			failed++
		case models.TaskStatusBlocked:
			blocked++
		default:
			pending++
		}
	}
	return
}

// View implements tea.Model.
func (d *Dashboard) View() string {
	if d.quitting {
		return ""
	}

	var b strings.Builder

	header := titleStyle.Render("skein") + dimStyle.Render(fmt.Sprintf("  plan=%s run=%s", d.planName, d.runID))
	b.WriteString(header + "\n")

	pending, running, done, failed, blocked := d.Counts()
	b.WriteString(dimStyle.Render(fmt.Sprintf(
		"workers: %d   pending: %d  running: %d  done: %d  failed: %d  blocked: %d",
		d.workersRunning, pending, running, done, failed, blocked)) + "\n\n")

	for _, row := range d.rows {
		b.WriteString(d.renderRow(row) + "\n")
	}

	if len(d.logs) > 0 {
		b.WriteString("\n" + dimStyle.Render("── events ──") + "\n")
		tail := d.logs
		if len(tail) > 8 {
			tail = tail[len(tail)-8:]
		}
		for _, entry := range tail {
			b.WriteString(dimStyle.Render(entry.Timestamp.Format("15:04:05")) + " " + entry.Message + "\n")
		}
	}

	b.WriteString("\n" + dimStyle.Render("q to quit"))
	return b.String()
}

func (d *Dashboard) renderRow(row taskRow) string {
	var marker, label string
	switch row.status {
	case models.TaskStatusDispatched:
		marker = d.spin.View()
		label = runningStyle.Render("running")
	case models.TaskStatusDone:
		marker = doneStyle.Render("✓")
		label = doneStyle.Render(fmt.Sprintf("done %s", row.duration.Round(time.Millisecond)))
	case models.TaskStatusFailed:
		marker = failedStyle.Render("✗")
		label = failedStyle.Render("failed")
	case models.TaskStatusBlocked:
		marker = blockedStyle.Render("⊘")
		label = blockedStyle.Render("blocked")
	default:
		marker = pendingStyle.Render("·")
		label = pendingStyle.Render("pending")
	}

	title := row.title
	if title == "" {
		title = row.id
	}
	return fmt.Sprintf(" %s %-20s %s", marker, row.id, label) + dimStyle.Render("  "+title)
}
