package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/logging"
	"github.com/ogctl/ogctl/internal/poller"
	"github.com/ogctl/ogctl/internal/ui"
)

// defaultThreshold is the firmware's factory door threshold in cm, used
// until the options have been read.
const defaultThreshold = 50

// Controller is the part of the API client the dashboard drives.
type Controller interface {
	GetVars(ctx context.Context) (*controller.Vars, error)
	GetOptions(ctx context.Context) (*controller.Options, error)
	Send(ctx context.Context, cmd controller.Command) (controller.Outcome, error)
	Toggle(ctx context.Context) (controller.Command, controller.Outcome, error)
}

// Messages for async operations
type pollMsg struct {
	gen    int
	update poller.Update
}

type pollStoppedMsg struct {
	gen int
	err error
}

type optionsMsg struct {
	opts *controller.Options
	err  error
}

type commandDoneMsg struct {
	cmd     controller.Command
	outcome controller.Outcome
	err     error
}

// dashboardKeyMap defines key bindings for the dashboard
type dashboardKeyMap struct {
	Toggle  key.Binding
	Click   key.Binding
	Refresh key.Binding
	Back    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Click, k.Refresh, k.Back, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Click, k.Refresh},
		{k.Back, k.Help, k.Quit},
	}
}

func newDashboardKeys() dashboardKeyMap {
	return dashboardKeyMap{
		Toggle: key.NewBinding(
			key.WithKeys("t", " "),
			key.WithHelp("t", "open/close"),
		),
		Click: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "click"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Back: key.NewBinding(
			key.WithKeys("b", "esc"),
			key.WithHelp("b", "devices"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
	}
}

// DashboardModel is the home screen: live door status for one device,
// refreshed on a fixed interval, with door controls.
type DashboardModel struct {
	DeviceName string
	ctl        Controller
	interval   time.Duration

	// Poll state. gen invalidates messages from a superseded poller.
	gen     int
	cancel  context.CancelFunc
	updates chan tea.Msg
	Polling bool

	Vars       *controller.Vars
	Options    *controller.Options
	LastUpdate time.Time
	Err        error // set when polling stopped on an error

	// Command state
	Busy    bool
	Pending controller.Command
	Status  string
	CmdErr  error

	backRequested bool

	Width   int
	Height  int
	Spinner spinner.Model
	Gauge   progress.Model
	Help    help.Model
	Keys    dashboardKeyMap
}

// NewDashboardModel creates the dashboard for one device.
func NewDashboardModel(name string, ctl Controller, interval time.Duration) DashboardModel {
	if interval <= 0 {
		interval = poller.DefaultInterval
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	g := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	g.Width = 40

	return DashboardModel{
		DeviceName: name,
		ctl:        ctl,
		interval:   interval,
		Spinner:    s,
		Gauge:      g,
		Help:       help.New(),
		Keys:       newDashboardKeys(),
	}
}

// Init starts polling and fetches the options once for the distance gauge.
func (m *DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.startPolling(), m.fetchOptions(), m.Spinner.Tick)
}

// startPolling cancels any running poller and prepares a fresh one. The
// poller goroutine starts when the returned command runs, so a model that is
// never run does not poll. It stops on the first failed read so the error
// stays on screen until the user retries.
func (m *DashboardModel) startPolling() tea.Cmd {
	m.Stop()
	m.gen++
	m.Err = nil
	m.Polling = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	gen := m.gen
	ch := make(chan tea.Msg, 1)
	m.updates = ch
	p := poller.New(m.ctl.GetVars, m.interval, poller.WithStopOnError())

	run := func() {
		defer close(ch)
		err := p.Run(ctx, func(u poller.Update) {
			select {
			case ch <- pollMsg{gen: gen, update: u}:
			case <-ctx.Done():
			}
		})
		if ctx.Err() == nil {
			select {
			case ch <- pollStoppedMsg{gen: gen, err: err}:
			case <-ctx.Done():
			}
		}
	}

	return func() tea.Msg {
		if ctx.Err() != nil {
			return nil
		}
		go run()
		return waitForPoll(ch)()
	}
}

func waitForPoll(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// Stop cancels polling. The dashboard polls only while it is on screen.
func (m *DashboardModel) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.Polling = false
}

func (m DashboardModel) fetchOptions() tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		opts, err := ctl.GetOptions(context.Background())
		return optionsMsg{opts: opts, err: err}
	}
}

func (m DashboardModel) sendCommand(cmd controller.Command) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ctx := context.Background()
		if cmd == "" {
			sent, outcome, err := ctl.Toggle(ctx)
			return commandDoneMsg{cmd: sent, outcome: outcome, err: err}
		}
		outcome, err := ctl.Send(ctx, cmd)
		return commandDoneMsg{cmd: cmd, outcome: outcome, err: err}
	}
}

// Update handles messages and updates the model
func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		m.Gauge.Width = min(MaxContentWidth, max(20, msg.Width-30))
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)

	case pollMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		if msg.update.Err == nil && msg.update.Vars != nil {
			m.Vars = msg.update.Vars
			m.LastUpdate = msg.update.StartedAt.Add(msg.update.Elapsed)
		}
		return m, waitForPoll(m.updates)

	case pollStoppedMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.Polling = false
		m.cancel = nil
		m.Err = msg.err
		if msg.err != nil {
			logging.Warn("Dashboard polling stopped", zap.String("device", m.DeviceName), zap.Error(msg.err))
		}
		return m, nil

	case optionsMsg:
		if msg.err == nil {
			m.Options = msg.opts
		}
		return m, nil

	case commandDoneMsg:
		m.Busy = false
		m.Pending = ""
		m.CmdErr = msg.err
		if msg.err != nil {
			m.Status = ""
			return m, nil
		}
		m.Status = fmt.Sprintf("%s: %s", commandLabel(msg.cmd), msg.outcome.Message)
		return m, m.startPolling()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m DashboardModel) updateKeys(msg tea.KeyMsg) (DashboardModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Quit):
		m.Stop()
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Back):
		m.Stop()
		m.backRequested = true
		return m, nil

	case key.Matches(msg, m.Keys.Help):
		m.Help.ShowAll = !m.Help.ShowAll
		return m, nil

	case key.Matches(msg, m.Keys.Refresh):
		m.CmdErr = nil
		return m, m.startPolling()

	case key.Matches(msg, m.Keys.Toggle):
		if m.Busy {
			return m, nil
		}
		m.Busy, m.Pending, m.Status, m.CmdErr = true, "", "", nil
		return m, m.sendCommand("")

	case key.Matches(msg, m.Keys.Click):
		if m.Busy {
			return m, nil
		}
		m.Busy, m.Pending, m.Status, m.CmdErr = true, controller.CommandClick, "", nil
		return m, m.sendCommand(controller.CommandClick)
	}
	return m, nil
}

// IsBackRequested reports whether the user asked for the device list.
func (m DashboardModel) IsBackRequested() bool {
	return m.backRequested
}

func commandLabel(cmd controller.Command) string {
	switch cmd {
	case controller.CommandOpen:
		return "Open"
	case controller.CommandClose:
		return "Close"
	case controller.CommandClick:
		return "Click"
	case "":
		return "Toggle"
	}
	return string(cmd)
}

// DistanceRatio returns the sensor distance as a fraction of twice the door
// threshold, so the threshold sits at the gauge midpoint.
func (m DashboardModel) DistanceRatio() float64 {
	if m.Vars == nil {
		return 0
	}
	span := 2 * defaultThreshold
	if m.Options != nil && m.Options.DistanceThresh > 0 {
		span = 2 * m.Options.DistanceThresh
	}
	r := float64(m.Vars.Distance) / float64(span)
	return min(1, max(0, r))
}

// View renders the dashboard
func (m DashboardModel) View() string {
	return RenderApplicationContainer(m.DeviceName, m.renderContent(), m.Help.View(m.Keys), m.Width, m.Height)
}

func (m DashboardModel) renderContent() string {
	var b strings.Builder

	if m.Vars == nil && m.Err == nil {
		b.WriteString("\n")
		b.WriteString(SpinnerStyle.Render(fmt.Sprintf("  %s Reading controller status...", m.Spinner.View())))
		b.WriteString("\n")
		return b.String()
	}

	if m.Vars != nil {
		b.WriteString(m.renderStatusPanel())
		b.WriteString("\n")
	}

	switch {
	case m.Busy:
		label := commandLabel(m.Pending)
		b.WriteString(StatusLineStyle.Render(fmt.Sprintf("%s Sending %s...", m.Spinner.View(), strings.ToLower(label))))
		b.WriteString("\n")
	case m.CmdErr != nil:
		b.WriteString(m.renderError("Command failed", m.CmdErr))
	case m.Status != "":
		b.WriteString(StatusLineStyle.Render(ui.SuccessMarker + " " + m.Status))
		b.WriteString("\n")
	}

	if m.Err != nil {
		b.WriteString(m.renderError("Status refresh stopped", m.Err))
		b.WriteString(StatusLineStyle.Render("Press r to resume."))
		b.WriteString("\n")
	} else if !m.LastUpdate.IsZero() {
		b.WriteString(StatusLineStyle.Render(fmt.Sprintf("Updated %s, every %s", m.LastUpdate.Format("15:04:05"), m.interval)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m DashboardModel) renderStatusPanel() string {
	v := m.Vars
	rows := []string{
		RenderDoor(v.IsOpen()),
		"",
		RenderField("Vehicle", v.VehicleState()),
		RenderField("Distance", fmt.Sprintf("%d cm", v.Distance)),
		"  " + m.Gauge.ViewAs(m.DistanceRatio()),
		RenderField("Signal", fmt.Sprintf("%d dBm", v.RSSI)),
		RenderField("Firmware", controller.FirmwareString(v.Firmware)),
	}
	if v.Name != "" {
		rows = append([]string{RenderField("Name", v.Name), ""}, rows...)
	}
	return PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m DashboardModel) renderError(title string, err error) string {
	var b strings.Builder
	b.WriteString(RenderError(title + ": " + controller.GetShortErrorMessage(err)))
	b.WriteString("\n")
	b.WriteString(RenderHints(hintLines(err)))
	if action := ui.SettingsAction(err); action != "" {
		b.WriteString(StatusLineStyle.Render("Settings: " + action))
		b.WriteString("\n")
	}
	return b.String()
}

func hintLines(err error) []string {
	var tips []string
	for _, line := range strings.Split(controller.GetTroubleshootingHint(err), "\n") {
		line = strings.TrimSpace(line)
		if tip, ok := strings.CutPrefix(line, "•"); ok {
			tips = append(tips, strings.TrimSpace(tip))
		}
	}
	return tips
}
