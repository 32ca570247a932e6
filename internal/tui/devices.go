package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ogctl/ogctl/internal/registry"
	"github.com/ogctl/ogctl/internal/ui"
)

// devicesKeyMap defines key bindings for the device picker
type devicesKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Scan   key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k devicesKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Scan, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k devicesKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select},
		{k.Scan, k.Quit},
	}
}

// deviceItem wraps a registered device for use with bubbles/list
type deviceItem struct {
	index   int
	device  registry.Device
	current bool
}

func (d deviceItem) FilterValue() string {
	return d.device.DisplayName() + " " + d.device.ConnectionInput
}

// Title returns the device name for list display
func (d deviceItem) Title() string {
	marker := "  "
	if d.current {
		marker = ui.CurrentMarker + " "
	}
	return fmt.Sprintf("%s%d. %s", marker, d.index, d.device.DisplayName())
}

// Description returns the connection details for list display
func (d deviceItem) Description() string {
	method := d.device.ConnectionMethod.String()
	input := d.device.ConnectionInput
	if input == "" {
		input = "(no address)"
	}
	return fmt.Sprintf("   %s • %s", method, input)
}

// DevicesModel lists the registered devices and picks the current one.
type DevicesModel struct {
	List     list.Model
	Current  int
	Selected bool
	ScanReq  bool
	Notice   string // why the last selection could not be opened

	Width  int
	Height int
	Help   help.Model
	Keys   devicesKeyMap
}

// NewDevicesModel creates the picker over the registry contents.
func NewDevicesModel(current int, devices []registry.Device) DevicesModel {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(HighlightColor).BorderForeground(HighlightColor)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.BorderForeground(HighlightColor)

	l := list.New(nil, delegate, DefaultWidth-4, DefaultHeight-8)
	l.Title = "Devices"
	l.Styles.Title = TitleStyle
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	m := DevicesModel{
		List: l,
		Help: help.New(),
		Keys: devicesKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up", "k"),
				key.WithHelp("↑/k", "move up"),
			),
			Down: key.NewBinding(
				key.WithKeys("down", "j"),
				key.WithHelp("↓/j", "move down"),
			),
			Select: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "open"),
			),
			Scan: key.NewBinding(
				key.WithKeys("s"),
				key.WithHelp("s", "scan network"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc"),
				key.WithHelp("q", "quit"),
			),
		},
	}
	m.SetDevices(current, devices)
	return m
}

// SetDevices replaces the list contents and moves the cursor to the current
// device.
func (m *DevicesModel) SetDevices(current int, devices []registry.Device) {
	items := make([]list.Item, len(devices))
	for i, d := range devices {
		items[i] = deviceItem{index: i, device: d, current: i == current}
	}
	m.Current = current
	m.List.SetItems(items)
	if current >= 0 && current < len(items) {
		m.List.Select(current)
	}
}

// SelectedIndex returns the registry index under the cursor, or -1.
func (m DevicesModel) SelectedIndex() int {
	if item, ok := m.List.SelectedItem().(deviceItem); ok {
		return item.index
	}
	return -1
}

// Update handles messages and updates the model
func (m DevicesModel) Update(msg tea.Msg) (DevicesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		m.List.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Scan):
			m.ScanReq = true
			return m, nil
		case key.Matches(msg, m.Keys.Select):
			if m.SelectedIndex() >= 0 {
				m.Selected = true
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

// View renders the device picker
func (m DevicesModel) View() string {
	var content string
	if len(m.List.Items()) == 0 {
		var b strings.Builder
		b.WriteString(RenderTitle("No devices"))
		b.WriteString("\n")
		b.WriteString(RenderSubtitle("  Press s to scan the network, or add one with: ogctl device add <ip-address|OTC-token>"))
		b.WriteString("\n")
		content = b.String()
	} else {
		content = m.List.View()
	}
	if m.Notice != "" {
		content += "\n  " + WarningStyle.Render("⚠ "+m.Notice) + "\n" +
			StatusLineStyle.Render("Fix it with: ogctl device set --device-index <n> --input <ip-address|OTC-token>")
	}
	return RenderApplicationContainer("", content, m.Help.View(m.Keys), m.Width, m.Height)
}
