// Package tui provides a Bubble Tea terminal user interface for music-parser.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/handiism/music-parser/internal/config"
	"github.com/handiism/music-parser/internal/download"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)
)

// maxFinished is how many closed lines stay on screen.
const maxFinished = 10

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateExpanding
	StateDownloading
	StateComplete
	StateError
)

// LogEntry is the latest text of one progress line.
type LogEntry struct {
	Message string
	Level   download.ProgressLevel
}

// Model is the Bubble Tea model for the TUI.
//
// Each progress line is shown once and edited in place, the way a chat
// front-end edits its messages. Closed lines move to a short history.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings
	manager   *download.Manager
	events    chan download.ProgressEvent

	lineOrder []string
	lines     map[string]LogEntry
	finished  []LogEntry
	delivered []string
	result    *download.BatchResult
	err       error

	ctx    context.Context
	cancel context.CancelFunc

	finishedUnits int32
	totalUnits    int32

	// Options
	cacheOnly bool
	bundle    bool
	verbose   bool

	width  int
	height int
}

// NewModel creates a new TUI model around a manager whose sink is Sink().
func NewModel(settings *config.Settings, manager *download.Manager, events chan download.ProgressEvent) Model {
	ti := textinput.New()
	ti.Placeholder = "https://open.spotify.com/album/... or a song name"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		manager:   manager,
		events:    events,
		lines:     make(map[string]LogEntry),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Sink returns a progress sink feeding events into the model's channel.
// Delivery is immediate: attachments are already in the cache directory.
func Sink(events chan<- download.ProgressEvent) download.ProgressSink {
	return download.ProgressFunc(func(ctx context.Context, ev download.ProgressEvent) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

// Message types
type (
	// ProgressMsg carries one progress event.
	ProgressMsg struct {
		Event download.ProgressEvent
	}

	// BatchDoneMsg is sent when a batch finishes.
	BatchDoneMsg struct {
		Result *download.BatchResult
		Err    error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

func waitForEvent(events <-chan download.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		return ProgressMsg{Event: <-events}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = min(max(msg.Width-20, 20), 80)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateDownloading || m.state == StateExpanding {
				m.cancel()
			}

		case "enter":
			if m.state == StateInput && strings.TrimSpace(m.textInput.Value()) != "" {
				m.state = StateExpanding
				m.resetLines()
				refs := splitReferences(m.textInput.Value())
				return m, tea.Batch(m.runBatch(refs, nil), m.spinner.Tick, m.tickProgress())
			}

		case "ctrl+b":
			if m.state == StateInput {
				m.bundle = !m.bundle
			}

		case "ctrl+o":
			if m.state == StateInput {
				m.cacheOnly = !m.cacheOnly
			}

		case "ctrl+v":
			if m.state == StateInput {
				m.verbose = !m.verbose
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "t":
			if m.state == StateComplete && m.result != nil && len(m.result.Incomplete) > 0 {
				m.state = StateDownloading
				m.resetLines()
				return m, tea.Batch(m.runBatch(nil, m.result), m.spinner.Tick, m.tickProgress())
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				m.state = StateInput
				m.resetLines()
				m.delivered = nil
				m.result = nil
				m.err = nil
				m.ctx, m.cancel = context.WithCancel(context.Background())
				m.textInput.SetValue("")
				m.textInput.Focus()
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case ProgressMsg:
		m.apply(msg.Event)
		cmds = append(cmds, waitForEvent(m.events))

	case BatchDoneMsg:
		m.result = msg.Result
		switch {
		case m.ctx.Err() != nil:
			m.state = StateError
			m.err = fmt.Errorf("cancelled by user")
		case msg.Err != nil && msg.Result == nil:
			m.state = StateError
			m.err = msg.Err
		default:
			m.state = StateComplete
			m.err = msg.Err
		}

	case TickMsg:
		if m.manager != nil && (m.state == StateDownloading || m.state == StateExpanding) {
			m.finishedUnits, m.totalUnits = m.manager.Progress()
			var percent float64
			if m.totalUnits > 0 {
				percent = float64(m.finishedUnits) / float64(m.totalUnits)
			}
			cmds = append(cmds, m.progress.SetPercent(percent), m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// apply folds one event into the on-screen lines.
func (m *Model) apply(ev download.ProgressEvent) {
	if m.state == StateExpanding && strings.HasPrefix(ev.Line, "unit-") {
		m.state = StateDownloading
	}
	if ev.Attachment != "" {
		m.delivered = append(m.delivered, ev.Attachment)
		return
	}
	if ev.Level == download.LevelVerbose && !m.verbose && !ev.Close {
		return
	}

	if ev.Close {
		if entry, ok := m.lines[ev.Line]; ok && ev.Message == "" {
			ev.Message, ev.Level = entry.Message, entry.Level
		}
		m.dropLine(ev.Line)
		if ev.Message != "" {
			m.finished = append(m.finished, LogEntry{Message: ev.Message, Level: ev.Level})
			if len(m.finished) > maxFinished {
				m.finished = m.finished[len(m.finished)-maxFinished:]
			}
		}
		return
	}

	if _, ok := m.lines[ev.Line]; !ok {
		m.lineOrder = append(m.lineOrder, ev.Line)
	}
	m.lines[ev.Line] = LogEntry{Message: ev.Message, Level: ev.Level}
}

func (m *Model) dropLine(line string) {
	if _, ok := m.lines[line]; !ok {
		return
	}
	delete(m.lines, line)
	for i, l := range m.lineOrder {
		if l == line {
			m.lineOrder = append(m.lineOrder[:i], m.lineOrder[i+1:]...)
			break
		}
	}
}

func (m *Model) resetLines() {
	m.lineOrder = nil
	m.lines = make(map[string]LogEntry)
	m.finished = nil
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// runBatch expands refs, or retries previous when set, in the background.
func (m Model) runBatch(refs []string, previous *download.BatchResult) tea.Cmd {
	ctx, manager := m.ctx, m.manager
	opts := download.BatchOptions{Deliver: !m.cacheOnly, Bundle: m.bundle, Title: "music-parser"}

	return func() tea.Msg {
		if manager == nil {
			return BatchDoneMsg{Err: errors.New("no manager")}
		}
		if previous != nil {
			result, err := manager.Retry(ctx, previous, opts)
			return BatchDoneMsg{Result: result, Err: err}
		}

		units, err := manager.Expand(ctx, refs)
		if err != nil {
			return BatchDoneMsg{Err: err}
		}
		result, err := manager.RunBatch(ctx, units, opts)
		return BatchDoneMsg{Result: result, Err: err}
	}
}

// splitReferences accepts one reference per line; a single line holding
// several links is split on whitespace.
func splitReferences(input string) []string {
	var refs []string
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		allLinks := true
		for _, f := range fields {
			if !strings.HasPrefix(f, "http://") && !strings.HasPrefix(f, "https://") {
				allLinks = false
				break
			}
		}
		if allLinks {
			refs = append(refs, fields...)
		} else {
			refs = append(refs, line)
		}
	}
	return refs
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("🎶 Music Parser"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Spotify, YouTube or plain search"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateExpanding:
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(subtitleStyle.Render("Reading references..."))
		b.WriteString("\n\n")
		b.WriteString(m.renderLines())
	case StateDownloading:
		b.WriteString(m.viewDownloading())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Enter a link or a search:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s Cache only, no delivery (ctrl+o)\n", check(m.cacheOnly))
	fmt.Fprintf(&b, "  %s Bundle as zip with playlist (ctrl+b)\n", check(m.bundle))
	fmt.Fprintf(&b, "  %s Verbose output (ctrl+v)\n", check(m.verbose))
	b.WriteString("\n")
	if m.settings != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("Cache: %s", m.settings.DownloadPath)))
		b.WriteString("\n")
	}

	return b.String()
}

func check(on bool) string {
	if on {
		return "[×]"
	}
	return "[ ]"
}

func (m Model) viewDownloading() string {
	var b strings.Builder

	var percent float64
	if m.totalUnits > 0 {
		percent = float64(m.finishedUnits) / float64(m.totalUnits)
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf("Songs: %d/%d", m.finishedUnits, m.totalUnits)))
	b.WriteString("\n\n")

	b.WriteString(m.renderLines())
	return b.String()
}

func (m Model) viewComplete() string {
	var b strings.Builder

	summary := "Nothing to do"
	incomplete := 0
	if m.result != nil {
		summary = m.result.Summary
		incomplete = len(m.result.Incomplete)
	}

	body := fmt.Sprintf("✨ %s\n\nDelivered: %d\nFailed: %d", summary, len(m.delivered), incomplete)
	for _, path := range m.delivered {
		body += "\n  ♪ " + filepath.Base(path)
	}
	b.WriteString(boxStyle.Render(body))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(warningStyle.Render("! " + m.err.Error()))
		b.WriteString("\n")
	}
	if m.result != nil {
		for _, u := range m.result.Incomplete {
			b.WriteString(errorStyle.Render("✗ " + u.DisplayName()))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("❌ Error occurred:"))
	b.WriteString("\n\n")
	if errors.Is(m.err, download.ErrNoValidInput) {
		b.WriteString("  Invalid input")
	} else if m.err != nil {
		fmt.Fprintf(&b, "  %s", m.err.Error())
	}

	return b.String()
}

func (m Model) renderLines() string {
	var b strings.Builder

	for _, entry := range m.finished {
		b.WriteString(render(entry))
	}
	for _, line := range m.lineOrder {
		b.WriteString(render(m.lines[line]))
	}
	return b.String()
}

func render(entry LogEntry) string {
	var style lipgloss.Style
	prefix := "•"
	switch entry.Level {
	case download.LevelError:
		style = errorStyle
		prefix = "✗"
	case download.LevelWarning:
		style = warningStyle
		prefix = "!"
	case download.LevelSuccess:
		style = successStyle
		prefix = "✓"
	case download.LevelInfo:
		style = infoStyle
		prefix = "›"
	default:
		style = dimStyle
	}
	return style.Render(prefix+" "+entry.Message) + "\n"
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		return "enter: start • ctrl+o: cache only • ctrl+b: bundle • ctrl+v: verbose • esc: quit"
	case StateExpanding, StateDownloading:
		return "esc: cancel"
	case StateComplete:
		if m.result != nil && len(m.result.Incomplete) > 0 {
			return "t: retry failed • r: new download • q: quit"
		}
		return "r: new download • q: quit"
	case StateError:
		return "r: new download • q: quit"
	}
	return ""
}

// Run starts the TUI application.
func Run(settings *config.Settings, manager *download.Manager, events chan download.ProgressEvent) error {
	p := tea.NewProgram(NewModel(settings, manager, events), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
