// ABOUTME: Bubbletea model for the stream monitor TUI
// ABOUTME: Defines monitor state and update logic
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	// Stream
	device    string
	direction string
	format    string
	source    string
	state     string

	// Clock
	sampleRate   int
	bufferFrames int
	padding      int
	position     uint64

	// Session volume
	volume int
	muted  bool

	// Stats
	underruns int64
	overflows int64

	showDebug bool

	volumeCtrl *VolumeControl

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderStreamInfo()
	s += m.renderControls()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders device and stream state
func (m Model) renderHeader() string {
	status := "Stopped"
	if m.state != "" {
		status = m.state
	}
	device := m.device
	if device == "" {
		device = "(none)"
	}

	return fmt.Sprintf(`┌─ Resonate Engine ────────────────────────────────────┐
│ Device: %-45s │
│ State:  %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(device+" "+m.direction, 45), truncate(status, 45))
}

// renderStreamInfo renders format and clock position
func (m Model) renderStreamInfo() string {
	if m.format == "" {
		return "│ No stream                                            │\n"
	}

	s := ""
	if m.source != "" {
		s += fmt.Sprintf("│ Source: %-45s │\n", truncate(m.source, 45))
	}
	s += fmt.Sprintf("│ Format: %-45s │\n", truncate(m.format, 45))
	s += fmt.Sprintf("│ Clock:  %-45s │\n", formatPosition(m.position, m.sampleRate))
	return s
}

// renderControls renders volume and buffer fill
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " muted"
	}

	fill := 0
	if m.bufferFrames > 0 {
		fill = m.padding * 100 / m.bufferFrames
	}

	return fmt.Sprintf("│                                                      │\n"+
		"│ Volume: [%s] %3d%%%-6s%-17s │\n"+
		"│ Buffer: [%s] %5d/%-5d frames%-9s │\n",
		renderBar(m.volume, 100, 10), m.volume, muteIcon, "",
		renderBar(fill, 100, 10), m.padding, m.bufferFrames, "")
}

// renderStats renders pump statistics
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Stats:  Underruns: %-8d Overflows: %-13d │
│                                                      │
`, m.underruns, m.overflows)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ ↑/↓ +/-:Volume  m:Mute  d:Debug  q:Quit              │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders raw clock values
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Position: %-40d │
│   Rate:     %-40d │
`, m.position, m.sampleRate)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.sendQuit()
		return m, tea.Quit
	case "up", "+", "=":
		if m.volume < 100 {
			m.volume = min(m.volume+5, 100)
			m.sendVolume()
		}
	case "down", "-":
		if m.volume > 0 {
			m.volume = max(m.volume-5, 0)
			m.sendVolume()
		}
	case "m":
		m.muted = !m.muted
		m.sendVolume()
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) sendVolume() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

func (m Model) sendQuit() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Quit <- QuitMsg{}:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Device != "" {
		m.device = msg.Device
		m.direction = msg.Direction
	}
	if msg.Format != "" {
		m.format = msg.Format
		m.sampleRate = msg.SampleRate
		m.bufferFrames = msg.BufferFrames
	}
	if msg.Source != "" {
		m.source = msg.Source
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Clock != nil {
		m.padding = msg.Clock.Padding
		m.position = msg.Clock.Position
	}
	if msg.Volume != nil {
		m.volume = *msg.Volume
	}
	if msg.Muted != nil {
		m.muted = *msg.Muted
	}
	if msg.Underruns != 0 || msg.Overflows != 0 {
		m.underruns = msg.Underruns
		m.overflows = msg.Overflows
	}
}

// ClockStatus is a padding and position sample of the stream
type ClockStatus struct {
	Padding  int
	Position uint64
}

// StatusMsg updates TUI state
type StatusMsg struct {
	Device       string
	Direction    string
	Format       string
	Source       string
	State        string
	SampleRate   int
	BufferFrames int
	Clock        *ClockStatus
	Volume       *int
	Muted        *bool
	Underruns    int64
	Overflows    int64
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func formatPosition(frames uint64, rate int) string {
	if rate <= 0 {
		return fmt.Sprintf("%d frames", frames)
	}
	d := time.Duration(frames) * time.Second / time.Duration(rate)
	return fmt.Sprintf("%s (%d frames)", d.Truncate(time.Millisecond), frames)
}
