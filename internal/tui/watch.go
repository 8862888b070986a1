package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/bussim/internal/sim"
)

const (
	barWidth     = 40
	historyLen   = 120
	minSpeed     = 1
	maxSpeed     = 100
	refreshStep  = 20
	minRefresh   = 20
	maxRefresh   = 1000
	requestLimit = 2 * time.Second

	// maxPollWait bounds one poll so a lowered refresh rate is seen promptly.
	maxPollWait = time.Second
)

// Source is the command surface as seen by the watcher.
type Source interface {
	State(ctx context.Context) (sim.Snapshot, error)
	ToggleBus(ctx context.Context, id uuid.UUID) error
	UpdateSimulationSpeed(ctx context.Context, speed uint32) error
	UpdateRefreshRate(ctx context.Context, refreshRate uint64) error
}

// stateMsg carries a fetched snapshot. Only polled fetches keep the poll
// loop going; replies to mutations just refresh the view.
type stateMsg struct {
	snap   sim.Snapshot
	err    error
	polled bool
}

type pollMsg time.Time

type Model struct {
	src     Source
	snap    sim.Snapshot
	ids     []uuid.UUID
	cursor  int
	history map[uuid.UUID][]float64
	err     error
	loaded  bool
	width   int
}

func NewModel(src Source) Model {
	return Model{
		src:     src,
		history: make(map[uuid.UUID][]float64),
		width:   80,
	}
}

func (m Model) Init() tea.Cmd { return m.fetch() }

func (m Model) fetch() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestLimit)
		defer cancel()
		snap, err := src.State(ctx)
		return stateMsg{snap: snap, err: err, polled: true}
	}
}

// poll waits one refresh_rate period before the next fetch.
func (m Model) poll() tea.Cmd {
	return tea.Tick(pollInterval(m.snap.RefreshRate), func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func pollInterval(rate uint64) time.Duration {
	d := sim.RefreshInterval(rate, time.Duration(sim.DefaultRefreshRate)*time.Millisecond)
	return min(d, maxPollWait)
}

// send runs a mutation and refreshes right after it.
func (m Model) send(fn func(ctx context.Context) error) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestLimit)
		defer cancel()
		if err := fn(ctx); err != nil {
			return stateMsg{err: err}
		}
		snap, err := src.State(ctx)
		return stateMsg{snap: snap, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case pollMsg:
		return m, m.fetch()
	case stateMsg:
		m.err = msg.err
		if msg.err == nil {
			m.apply(msg.snap)
		}
		if msg.polled {
			return m, m.poll()
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) apply(snap sim.Snapshot) {
	m.snap = snap
	m.loaded = true
	m.ids = make([]uuid.UUID, 0, len(snap.Buses))
	for id, b := range snap.Buses {
		m.ids = append(m.ids, id)
		h := append(m.history[id], float64(b.Percent)/10)
		if len(h) > historyLen {
			h = h[len(h)-historyLen:]
		}
		m.history[id] = h
	}
	sort.Slice(m.ids, func(i, j int) bool { return m.ids[i].String() < m.ids[j].String() })
	if m.cursor >= len(m.ids) {
		m.cursor = max(len(m.ids)-1, 0)
	}
}

func (m Model) selected() (uuid.UUID, bool) {
	if m.cursor < len(m.ids) {
		return m.ids[m.cursor], true
	}
	return uuid.Nil, false
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.ids)-1 {
			m.cursor++
		}
	case " ", "enter":
		if id, ok := m.selected(); ok {
			return m, m.send(func(ctx context.Context) error { return m.src.ToggleBus(ctx, id) })
		}
	case "+", "=":
		speed := clamp(uint64(m.snap.Speed)+1, minSpeed, maxSpeed)
		return m, m.send(func(ctx context.Context) error { return m.src.UpdateSimulationSpeed(ctx, uint32(speed)) })
	case "-", "_":
		speed := uint64(minSpeed)
		if m.snap.Speed > minSpeed {
			speed = clamp(uint64(m.snap.Speed)-1, minSpeed, maxSpeed)
		}
		return m, m.send(func(ctx context.Context) error { return m.src.UpdateSimulationSpeed(ctx, uint32(speed)) })
	case "]":
		rate := clamp(m.snap.RefreshRate+refreshStep, minRefresh, maxRefresh)
		return m, m.send(func(ctx context.Context) error { return m.src.UpdateRefreshRate(ctx, rate) })
	case "[":
		rate := uint64(minRefresh)
		if m.snap.RefreshRate > minRefresh+refreshStep {
			rate = clamp(m.snap.RefreshRate-refreshStep, minRefresh, maxRefresh)
		}
		return m, m.send(func(ctx context.Context) error { return m.src.UpdateRefreshRate(ctx, rate) })
	}
	return m, nil
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("BUS SIMULATION") + "\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n\n")
	}
	if !m.loaded {
		s.WriteString(helpStyle.Render("Loading...") + "\n")
		return s.String()
	}

	s.WriteString(labelStyle.Render("Speed") + valueStyle.Render(fmt.Sprintf("%d", m.snap.Speed)) + "\n")
	s.WriteString(labelStyle.Render("Refresh rate") + valueStyle.Render(fmt.Sprintf("%dms", m.snap.RefreshRate)) + "\n")
	s.WriteString(labelStyle.Render("Balance") + valueStyle.Render(fmt.Sprintf("%d", m.snap.Balance)) + "\n\n")

	if len(m.ids) == 0 {
		s.WriteString(helpStyle.Render("  (no buses)") + "\n")
	}
	for i, id := range m.ids {
		b := m.snap.Buses[id]
		state := "on "
		if !b.IsActive {
			state = "off"
		}
		line := fmt.Sprintf("%s %s %5.1f%% %s", shortID(id), chargeBar(b.Percent, barWidth, b.IsActive), float64(b.Percent)/10, state)
		if i == m.cursor {
			s.WriteString(selectedStyle.Render("> ") + line + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}

	if id, ok := m.selected(); ok && len(m.history[id]) > 1 {
		w := min(m.width-12, historyLen)
		if w < 10 {
			w = 10
		}
		chart := asciigraph.Plot(m.history[id],
			asciigraph.Height(8),
			asciigraph.Width(w),
			asciigraph.LowerBound(0),
			asciigraph.UpperBound(100),
			asciigraph.Caption(id.String()),
		)
		s.WriteString("\n" + chart + "\n")
	}

	s.WriteString(helpStyle.Render("\n↑↓ select  space toggle  +/- speed  [/] refresh  q quit"))
	return lipgloss.JoinVertical(lipgloss.Left, panelStyle.Render(s.String()))
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

// Watch runs the watcher until the user quits.
func Watch(src Source) error {
	m := NewModel(src)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
