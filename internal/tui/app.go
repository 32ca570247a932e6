package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/connection"
	"github.com/ogctl/ogctl/internal/logging"
	"github.com/ogctl/ogctl/internal/registry"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenDevices   Screen = "devices"
	ScreenDiscovery Screen = "discovery"
	ScreenDashboard Screen = "dashboard"
)

// Registry is the part of the device registry the app needs.
type Registry interface {
	ListDevices() (int, []registry.Device)
	SetCurrentIndex(index int) bool
	AddDevice(devices ...registry.Device) bool
	Endpoint(index ...int) (connection.Endpoint, error)
}

// ControllerFactory builds an API client for a resolved endpoint.
type ControllerFactory func(ep connection.Endpoint) Controller

// Config wires the app to its collaborators.
type Config struct {
	Registry      Registry
	NewController ControllerFactory
	Scan          ScanFunc
	Interval      time.Duration // dashboard poll interval
	ScanTimeout   time.Duration
}

// AppModel is the top-level coordinator model that manages screen transitions
type AppModel struct {
	cfg Config

	CurrentScreen Screen
	Devices       DevicesModel
	Discovery     DiscoveryModel
	Dashboard     DashboardModel

	// LastError is shown on the device list when a device cannot be opened.
	LastError error

	startup tea.Cmd

	Width  int
	Height int
}

// NewAppModel creates the app. It opens on the dashboard of the current
// device, or on the device list when the current device cannot be reached
// without settings changes.
func NewAppModel(cfg Config) AppModel {
	m := AppModel{cfg: cfg}
	current, devices := cfg.Registry.ListDevices()
	m.Devices = NewDevicesModel(current, devices)

	if len(devices) == 0 {
		m.CurrentScreen = ScreenDevices
		return m
	}
	if m.openDashboard(current) {
		m.startup = m.Dashboard.Init()
	} else {
		m.CurrentScreen = ScreenDevices
	}
	return m
}

// Init returns the first screen's startup command. The dashboard is prepared
// in NewAppModel so its state lives in the returned model; its poller starts
// when the command runs.
func (m AppModel) Init() tea.Cmd {
	return m.startup
}

// openDashboard resolves the device at index and prepares its dashboard.
func (m *AppModel) openDashboard(index int) bool {
	ep, err := m.cfg.Registry.Endpoint(index)
	if err != nil {
		logging.Warn("Cannot open device", zap.Int("index", index), zap.Error(err))
		m.LastError = err
		m.Devices.Notice = err.Error()
		return false
	}

	name := ""
	if _, devices := m.cfg.Registry.ListDevices(); index < len(devices) {
		name = devices[index].DisplayName()
	}

	m.LastError = nil
	m.Devices.Notice = ""
	m.Dashboard = NewDashboardModel(name, m.cfg.NewController(ep), m.cfg.Interval)
	m.Dashboard.Width, m.Dashboard.Height = m.Width, m.Height
	m.Dashboard.Help.Width = m.Width
	m.CurrentScreen = ScreenDashboard
	return true
}

// Update handles all messages and routes them to the appropriate screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Devices, _ = m.Devices.Update(msg)
		m.Discovery, _ = m.Discovery.Update(msg)
		m.Dashboard, _ = m.Dashboard.Update(msg)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.Dashboard.Stop()
			m.Discovery.Stop()
			return m, tea.Quit
		}
	}

	return m.updateCurrentScreen(msg)
}

func (m AppModel) updateCurrentScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.CurrentScreen {
	case ScreenDevices:
		m.Devices, cmd = m.Devices.Update(msg)
		if m.Devices.ScanReq {
			m.Devices.ScanReq = false
			return m.transitionTo(ScreenDiscovery)
		}
		if m.Devices.Selected {
			m.Devices.Selected = false
			index := m.Devices.SelectedIndex()
			m.cfg.Registry.SetCurrentIndex(index)
			m.refreshDevices()
			if m.openDashboard(index) {
				return m, m.Dashboard.Init()
			}
		}

	case ScreenDiscovery:
		m.Discovery, cmd = m.Discovery.Update(msg)
		if m.Discovery.Cancelled {
			return m.transitionTo(ScreenDevices)
		}
		if choice := m.Discovery.Chosen; choice != nil {
			m.Discovery.Chosen = nil
			return m.addAndOpen(*choice)
		}

	case ScreenDashboard:
		m.Dashboard, cmd = m.Dashboard.Update(msg)
		if m.Dashboard.IsBackRequested() {
			return m.transitionTo(ScreenDevices)
		}
	}

	return m, cmd
}

// addAndOpen registers a chosen controller, makes it current and opens its
// dashboard.
func (m AppModel) addAndOpen(choice Choice) (tea.Model, tea.Cmd) {
	d := registry.Device{ConnectionInput: choice.Input, Name: choice.Name}
	if !m.cfg.Registry.AddDevice(d) {
		return m.transitionTo(ScreenDevices)
	}

	_, devices := m.cfg.Registry.ListDevices()
	index := len(devices) - 1
	m.cfg.Registry.SetCurrentIndex(index)
	m.refreshDevices()
	logging.Info("Device added from dashboard", zap.String("input", choice.Input), zap.Int("index", index))

	if m.openDashboard(index) {
		return m, m.Dashboard.Init()
	}
	m.CurrentScreen = ScreenDevices
	return m, nil
}

func (m *AppModel) refreshDevices() {
	current, devices := m.cfg.Registry.ListDevices()
	m.Devices.SetDevices(current, devices)
}

// transitionTo transitions to a new screen
func (m AppModel) transitionTo(screen Screen) (tea.Model, tea.Cmd) {
	m.Dashboard.Stop()
	m.Discovery.Stop()
	m.CurrentScreen = screen

	switch screen {
	case ScreenDevices:
		m.refreshDevices()
		return m, nil

	case ScreenDiscovery:
		m.Discovery = NewDiscoveryModel(m.cfg.Scan, m.cfg.ScanTimeout)
		m.Discovery.Width, m.Discovery.Height = m.Width, m.Height
		m.Discovery.Help.Width = m.Width
		return m, m.Discovery.Init()
	}
	return m, nil
}

// View renders the current screen
func (m AppModel) View() string {
	switch m.CurrentScreen {
	case ScreenDiscovery:
		return m.Discovery.View()
	case ScreenDashboard:
		return m.Dashboard.View()
	default:
		return m.Devices.View()
	}
}

// Run starts the full-screen app and blocks until the user quits.
func Run(cfg Config) error {
	p := tea.NewProgram(NewAppModel(cfg), tea.WithAltScreen())
	final, err := p.Run()
	if m, ok := final.(AppModel); ok {
		m.Dashboard.Stop()
		m.Discovery.Stop()
	}
	return err
}
