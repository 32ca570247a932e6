package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ogctl/ogctl/internal/connection"
	"github.com/ogctl/ogctl/internal/discovery"
)

// ScanFunc browses the local network for controllers.
type ScanFunc func(ctx context.Context) ([]*discovery.Device, error)

// Messages for async operations
type scanStartMsg struct{}
type scanCompleteMsg struct {
	devices []*discovery.Device
	err     error
}
type scanTickMsg time.Time

// discoveryKeyMap defines key bindings for the discovery screen
type discoveryKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Manual key.Binding
	Back   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k discoveryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Manual, k.Back}
}

// FullHelp returns keybindings for the expanded help view
func (k discoveryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Manual, k.Back},
	}
}

// manualModeKeyMap defines key bindings for manual entry mode
type manualModeKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (m manualModeKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{m.Confirm, m.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (m manualModeKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{m.Confirm, m.Cancel}}
}

// foundItem wraps a discovered controller for use with bubbles/list
type foundItem struct {
	device *discovery.Device
}

func (f foundItem) FilterValue() string {
	return f.device.ChipID + " " + f.device.IP + " " + f.device.Hostname
}

// Title returns the device name for list display
func (f foundItem) Title() string {
	return f.device.DefaultName()
}

// Description returns device details for list display
func (f foundItem) Description() string {
	return fmt.Sprintf("%s • %s", f.device.Input(), f.device.Hostname)
}

// Choice is what the discovery screen hands back: a connection input and the
// name to register it under.
type Choice struct {
	Input string
	Name  string
}

// DiscoveryModel represents the device discovery screen state
type DiscoveryModel struct {
	scan    ScanFunc
	timeout time.Duration
	cancel  context.CancelFunc

	Scanning   bool
	DeviceList list.Model
	Err        error
	Chosen     *Choice
	Cancelled  bool

	// Manual entry state
	ManualMode bool
	Input      textinput.Model
	InputErr   string

	Width         int
	Height        int
	Spinner       spinner.Model
	ProgressBar   progress.Model
	ScanStartTime time.Time
	Help          help.Model
	Keys          discoveryKeyMap
	ManualKeys    manualModeKeyMap
}

// NewDiscoveryModel creates a new discovery screen model
func NewDiscoveryModel(scan ScanFunc, timeout time.Duration) DiscoveryModel {
	if timeout <= 0 {
		timeout = discovery.DefaultScanTimeout
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	in := textinput.New()
	in.Placeholder = "192.168.1.40 or OTC token"
	in.CharLimit = 64
	in.Width = 40

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	l := list.New(nil, list.NewDefaultDelegate(), DefaultWidth-4, DefaultHeight-10)
	l.Title = "Discovered Controllers"
	l.Styles.Title = TitleStyle
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	return DiscoveryModel{
		scan:        scan,
		timeout:     timeout,
		DeviceList:  l,
		Input:       in,
		Spinner:     s,
		ProgressBar: bar,
		Help:        help.New(),
		Keys: discoveryKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up", "k"),
				key.WithHelp("↑/k", "move up"),
			),
			Down: key.NewBinding(
				key.WithKeys("down", "j"),
				key.WithHelp("↓/j", "move down"),
			),
			Enter: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "add"),
			),
			Rescan: key.NewBinding(
				key.WithKeys("r"),
				key.WithHelp("r", "rescan"),
			),
			Manual: key.NewBinding(
				key.WithKeys("m"),
				key.WithHelp("m", "enter address"),
			),
			Back: key.NewBinding(
				key.WithKeys("esc", "b"),
				key.WithHelp("esc", "back"),
			),
		},
		ManualKeys: manualModeKeyMap{
			Confirm: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "confirm"),
			),
			Cancel: key.NewBinding(
				key.WithKeys("esc"),
				key.WithHelp("esc", "cancel"),
			),
		},
	}
}

// Init starts scanning immediately
func (m *DiscoveryModel) Init() tea.Cmd {
	return m.startScan()
}

func (m *DiscoveryModel) startScan() tea.Cmd {
	m.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout+2*time.Second)
	m.cancel = cancel
	m.DeviceList.SetItems(nil)
	m.Err = nil

	scan := m.scan
	return tea.Batch(
		func() tea.Msg { return scanStartMsg{} },
		func() tea.Msg {
			devices, err := scan(ctx)
			return scanCompleteMsg{devices: devices, err: err}
		},
		m.Spinner.Tick,
		scanTick(),
	)
}

func scanTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return scanTickMsg(t) })
}

// Stop cancels a running scan.
func (m *DiscoveryModel) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Update handles messages and updates the model
func (m DiscoveryModel) Update(msg tea.Msg) (DiscoveryModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.ManualMode {
			return m.updateManualMode(msg)
		}
		return m.updateNormalMode(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		m.DeviceList.SetSize(msg.Width-4, msg.Height-10)
		return m, nil

	case scanStartMsg:
		m.Scanning = true
		m.ScanStartTime = time.Now()
		return m, nil

	case scanTickMsg:
		if !m.Scanning {
			return m, nil
		}
		return m, scanTick()

	case scanCompleteMsg:
		m.Scanning = false
		m.Err = msg.err
		items := make([]list.Item, len(msg.devices))
		for i, dev := range msg.devices {
			items[i] = foundItem{device: dev}
		}
		m.DeviceList.SetItems(items)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	if !m.ManualMode && !m.Scanning {
		var cmd tea.Cmd
		m.DeviceList, cmd = m.DeviceList.Update(msg)
		return m, cmd
	}
	return m, nil
}

// updateNormalMode handles keyboard input in normal device list mode
func (m DiscoveryModel) updateNormalMode(msg tea.KeyMsg) (DiscoveryModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Back):
		m.Stop()
		m.Cancelled = true
		return m, nil

	case key.Matches(msg, m.Keys.Manual):
		m.ManualMode = true
		m.InputErr = ""
		m.Input.SetValue("")
		return m, m.Input.Focus()

	case m.Scanning:
		return m, nil

	case key.Matches(msg, m.Keys.Enter):
		if item, ok := m.DeviceList.SelectedItem().(foundItem); ok {
			m.Chosen = &Choice{Input: item.device.Input(), Name: item.device.DefaultName()}
		}
		return m, nil

	case key.Matches(msg, m.Keys.Rescan):
		return m, m.startScan()
	}

	var cmd tea.Cmd
	m.DeviceList, cmd = m.DeviceList.Update(msg)
	return m, cmd
}

// updateManualMode handles keyboard input in manual entry mode
func (m DiscoveryModel) updateManualMode(msg tea.KeyMsg) (DiscoveryModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.ManualKeys.Cancel):
		m.ManualMode = false
		m.Input.Blur()
		return m, nil

	case key.Matches(msg, m.ManualKeys.Confirm):
		value := strings.TrimSpace(m.Input.Value())
		if connection.Interpret(value) == connection.None {
			m.InputErr = "Enter an IPv4 address or an OpenThings Cloud token"
			return m, nil
		}
		m.Stop()
		m.ManualMode = false
		m.Input.Blur()
		m.Chosen = &Choice{Input: value}
		return m, nil
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

// View renders the discovery screen
func (m DiscoveryModel) View() string {
	width := m.Width
	if width == 0 {
		width = DefaultWidth
	}

	var content, helpText string
	switch {
	case m.ManualMode:
		content = m.renderManualEntry()
		helpText = m.Help.View(m.ManualKeys)
	case m.Scanning:
		content = m.renderScanning(width)
		helpText = m.Help.View(m.Keys)
	default:
		content = m.renderResults()
		helpText = m.Help.View(m.Keys)
	}
	return RenderApplicationContainer("", content, helpText, m.Width, m.Height)
}

func (m DiscoveryModel) renderScanning(width int) string {
	elapsed := time.Since(m.ScanStartTime)
	ratio := min(1, elapsed.Seconds()/m.timeout.Seconds())

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(fmt.Sprintf("%s SEARCHING FOR CONTROLLERS", m.Spinner.View())),
		SubtitleStyle.Render("Browsing the local network for OpenGarage controllers..."),
		"",
		m.ProgressBar.ViewAs(ratio),
		"",
		SubtitleStyle.Render(fmt.Sprintf("Elapsed: %ds", int(elapsed.Seconds()))),
		"",
	)
	return lipgloss.Place(width-4, 0, lipgloss.Center, lipgloss.Top, content)
}

func (m DiscoveryModel) renderResults() string {
	var b strings.Builder
	b.WriteString("\n")

	switch {
	case m.Err != nil:
		b.WriteString(RenderError(fmt.Sprintf("Scan failed: %v", m.Err)))
		b.WriteString("\n\n")
		b.WriteString(RenderHints(noDevicesHints))
	case len(m.DeviceList.Items()) == 0:
		b.WriteString("  ")
		b.WriteString(WarningStyle.Render("⚠ No controllers found on your network"))
		b.WriteString("\n\n")
		b.WriteString(RenderHints(noDevicesHints))
	default:
		b.WriteString(m.DeviceList.View())
	}
	return b.String()
}

var noDevicesHints = []string{
	"Ensure the controller is powered on and joined to your WiFi",
	"mDNS does not cross subnets or VPNs; press m to enter the address",
	"Press r to scan again",
}

func (m DiscoveryModel) renderManualEntry() string {
	var b strings.Builder
	b.WriteString(RenderTitle("Add a controller"))
	b.WriteString("\n")
	b.WriteString(RenderSubtitle("  Enter the controller's IP address or its OpenThings Cloud token"))
	b.WriteString("\n\n  Address: ")
	b.WriteString(m.Input.View())
	b.WriteString("\n")
	if m.InputErr != "" {
		b.WriteString("\n  ")
		b.WriteString(WarningStyle.Render(m.InputErr))
		b.WriteString("\n")
	}
	return b.String()
}
