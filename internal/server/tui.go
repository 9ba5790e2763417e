// ABOUTME: Server TUI for displaying live streams and observers
// ABOUTME: Real-time server status display using bubbletea
package server

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ServerTUI manages the server TUI
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{} // Signal to stop the server
	done     chan struct{}
	stopOnce sync.Once
}

// ServerStatus holds server state for TUI
type ServerStatus struct {
	Name      string
	Port      int
	Format    string
	Sessions  []SessionInfo
	Observers int
	Finished  int
}

// Producers returns the sessions currently recording
func (st ServerStatus) Producers() []SessionInfo {
	var out []SessionInfo
	for _, info := range st.Sessions {
		if info.Mode == "producer" && info.File != "" {
			out = append(out, info)
		}
	}
	return out
}

// tuiModel is the bubbletea model for server TUI
type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{} // Channel to signal server stop
}

type tickMsg time.Time
type statusMsg ServerStatus

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			// Signal the server to stop
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Width(18)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	meterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	hintStyle    = lipgloss.NewStyle().Faint(true)
)

func field(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Micstream Server"))
	b.WriteString("\n\n")

	b.WriteString(field("Server", m.status.Name))
	b.WriteString(field("Port", fmt.Sprintf("%d", m.status.Port)))
	b.WriteString(field("Uptime", time.Since(m.startTime).Round(time.Second).String()))
	b.WriteString(field("Format", m.status.Format))
	b.WriteString(field("Observers", fmt.Sprintf("%d", m.status.Observers)))
	b.WriteString(field("Streams finished", fmt.Sprintf("%d", m.status.Finished)))
	b.WriteString("\n")

	producers := m.status.Producers()
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Live Streams (%d)", len(producers))))
	b.WriteString("\n\n")

	if len(producers) == 0 {
		b.WriteString(valueStyle.Render("  No producers connected"))
		b.WriteString("\n")
	}
	for _, p := range producers {
		elapsed := time.Since(p.CreatedAt).Round(time.Second)
		b.WriteString(fmt.Sprintf("  • %s ", filepath.Base(p.File)))
		b.WriteString(meterStyle.Render(levelBar(p.Level, 20)))
		b.WriteString(valueStyle.Render(fmt.Sprintf(" %s, %s, %s", formatBytes(p.Bytes), elapsed, p.Remote)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Press 'q' or Ctrl+C to quit"))
	return b.String()
}

// levelBar renders a peak level in [0,1] as a fixed width meter
func levelBar(level float64, width int) string {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(" ", width-filled) + "]"
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// NewServerTUI creates a new server TUI
func NewServerTUI(serverName string, port int) *ServerTUI {
	t := &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	m := tuiModel{
		status: ServerStatus{
			Name: serverName,
			Port: port,
		},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}
	t.program = tea.NewProgram(m, tea.WithAltScreen())
	return t
}

// Start runs the TUI until it quits
func (t *ServerTUI) Start() error {
	go func() {
		for {
			select {
			case status := <-t.updates:
				t.program.Send(statusMsg(status))
			case <-t.done:
				return
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *ServerTUI) Update(status ServerStatus) {
	select {
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI. Updates sent afterwards are dropped.
func (t *ServerTUI) Stop() {
	t.stopOnce.Do(func() {
		t.program.Quit()
		close(t.done)
	})
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
