// Package statusui renders a live operator dashboard over the push
// channel the publisher package serves: a thin read-only websocket
// client, not a second copy of the fleet.
package statusui

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/sidn/pathtraced/internal/logging"
)

var log = logging.Named("path_traceroute")

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("240"))

	changedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	staleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	rowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	statusStyle = lipgloss.NewStyle().Background(lipgloss.Color("235")).Padding(0, 1)
)

// destRow is one line of the dashboard table, derived from the most
// recent frame seen for a destination.
type destRow struct {
	destination string
	hopCount    int
	dports      []string
	change      bool
	lastSeen    time.Time
}

// frameMsg carries one decoded push frame into the bubbletea loop.
type frameMsg struct {
	destination string
	hopCount    int
	dports      []string
	change      bool
	removed     bool
}

// clearMsg is sent when the server pushes its "clear_cache" sentinel.
type clearMsg struct{}

// connErrMsg reports a fatal feed error; the model keeps the last known
// table on screen rather than blanking it.
type connErrMsg struct{ err error }

// Model is the Bubbletea model for the status dashboard.
type Model struct {
	addr    string
	rows    map[string]*destRow
	order   []string
	spinner spinner.Model
	err     error
	frames  <-chan tea.Msg
	width   int
}

// New builds a dashboard model that will dial addr (a websocket URL,
// e.g. "ws://localhost:8765") once started.
func New(addr string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return &Model{
		addr:    addr,
		rows:    make(map[string]*destRow),
		spinner: s,
	}
}

// Run drives the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, addr string) error {
	m := New(addr)
	p := tea.NewProgram(m)

	ch := make(chan tea.Msg, 64)
	m.frames = ch
	go feed(ctx, addr, ch)

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	return err
}

// feed dials the websocket server, reconnecting with backoff, and
// decodes each frame into a tea.Msg pushed onto ch.
func feed(ctx context.Context, addr string, ch chan<- tea.Msg) {
	backoff := 500 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
		if err != nil {
			ch <- connErrMsg{err: err}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 10*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 500 * time.Millisecond
		readLoop(ctx, conn, ch)
		conn.Close()
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, ch chan<- tea.Msg) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			ch <- connErrMsg{err: err}
			return
		}
		if string(raw) == "clear_cache" {
			ch <- clearMsg{}
			continue
		}

		var payload struct {
			Destination string   `json:"destination"`
			Change      bool     `json:"change"`
			Trace       []any    `json:"trace"`
			DPorts      []string `json:"dports"`
			New         bool     `json:"new"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			log.Warn().Err(err).Msg("status feed: malformed frame")
			continue
		}
		ch <- frameMsg{
			destination: payload.Destination,
			hopCount:    len(payload.Trace),
			dports:      payload.DPorts,
			change:      payload.Change,
			removed:     !payload.New,
		}
	}
}

func waitForFrame(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForFrame(m.frames))
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case clearMsg:
		m.rows = make(map[string]*destRow)
		m.order = nil
		return m, waitForFrame(m.frames)

	case frameMsg:
		m.apply(msg)
		return m, waitForFrame(m.frames)

	case connErrMsg:
		m.err = msg.err
		return m, waitForFrame(m.frames)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) apply(f frameMsg) {
	if f.removed {
		delete(m.rows, f.destination)
		filtered := m.order[:0]
		for _, d := range m.order {
			if d != f.destination {
				filtered = append(filtered, d)
			}
		}
		m.order = filtered
		return
	}

	row, ok := m.rows[f.destination]
	if !ok {
		row = &destRow{destination: f.destination}
		m.rows[f.destination] = row
		m.order = append(m.order, f.destination)
	}
	row.hopCount = f.hopCount
	row.dports = f.dports
	row.change = f.change
	row.lastSeen = time.Now()
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("pathtraced status (%s)", m.addr)))
	b.WriteString("\n\n")

	header := fmt.Sprintf("%-40s %-6s %-8s %-20s", "Destination", "Hops", "Changed", "Dports")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 76))
	b.WriteString("\n")

	sorted := append([]string(nil), m.order...)
	sort.Strings(sorted)
	for _, dest := range sorted {
		row := m.rows[dest]
		b.WriteString(m.formatRow(row))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 76))
	b.WriteString("\n")

	status := fmt.Sprintf("Destinations: %d", len(m.order))
	if m.err != nil {
		status += " │ " + staleStyle.Render("reconnecting: "+m.err.Error())
	}
	b.WriteString(statusStyle.Render(status))
	b.WriteString("\n")
	b.WriteString(m.spinner.View())
	b.WriteString(" Press 'q' to quit")

	return b.String()
}

func (m *Model) formatRow(row *destRow) string {
	changeMark := " "
	style := rowStyle
	if row.change {
		changeMark = "*"
		style = changedStyle
	}
	dports := strings.Join(row.dports, ",")
	return style.Render(fmt.Sprintf("%-40s %-6d %-8s %-20s", row.destination, row.hopCount, changeMark, dports))
}
