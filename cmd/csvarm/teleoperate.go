package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/csvarm/pkg/motion"
	"github.com/gwillem/csvarm/pkg/robot"
	"github.com/gwillem/csvarm/pkg/teleop"
	"github.com/gwillem/csvarm/pkg/trajectory"
)

type TeleoperateCommand struct {
	Hz          int    `long:"hz" description:"Control loop frequency (default: replay.hz from the config)"`
	Mirror      bool   `long:"mirror" description:"Mirror mode: invert shoulder_pan and wrist_roll positions"`
	Replay      string `long:"replay" value-name:"RECORDING" description:"Replay a recording (name or .csv path) before following the leader"`
	LogFile     string `long:"log-file" default:"csvarm.log" description:"Log file, the terminal belongs to the TUI"`
	MetricsAddr string `long:"metrics-addr" value-name:"ADDR" description:"Serve Prometheus metrics on ADDR, e.g. :9100"`
}

func (c *TeleoperateCommand) Execute(args []string) error {
	w, err := openWorkspace(c.LogFile)
	if err != nil {
		return err
	}
	defer w.Close()

	return runTeleop(w, teleopRun{
		title:       "csvarm teleoperate",
		hz:          c.Hz,
		mirror:      c.Mirror,
		replay:      c.Replay,
		metricsAddr: c.MetricsAddr,
	})
}

// teleopRun describes one leader to follower session.
type teleopRun struct {
	title       string
	hz          int
	mirror      bool
	replay      string
	metricsAddr string
	duration    time.Duration

	record     trajectory.Store // nil disables recording
	recordName string
}

func runTeleop(w *workspace, run teleopRun) error {
	hz := lo.Ternary(run.hz > 0, run.hz, w.cfg.Replay.Hz)

	leader, err := w.openArm("leader", w.cfg.Leader)
	if err != nil {
		return err
	}
	defer leader.Close()

	follower, err := w.openArm("follower", w.cfg.Follower)
	if err != nil {
		return err
	}
	defer follower.Close()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if run.duration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), run.duration)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	// The leader is moved by hand.
	if err := leader.Disable(ctx); err != nil {
		w.logger.Warnw("leader torque off failed", "error", err)
	}

	live := motion.NewRegister(robot.JointVector{})
	if err := teleop.Seed(ctx, follower, live); err != nil {
		w.logger.Warnw("live fallback starts at zero", "error", err)
	}
	mux, err := w.multiplexer(live)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := teleop.NewMetrics(reg)
	serveMetrics(ctx, run.metricsAddr, reg, w.logger)

	cfg := teleop.Config{
		Hz:      hz,
		Mirror:  run.mirror || w.cfg.Replay.Mirror,
		Logger:  w.logger.Named("teleop"),
		Metrics: metrics,
	}
	if run.record != nil {
		rec, err := trajectory.NewRecorder(run.record)
		if err != nil {
			return err
		}
		cfg.Recorder = rec
		cfg.StateReader = follower
	}

	ctrl := teleop.NewController(mux, follower, cfg)
	closed := false
	closeCtrl := func() {
		if closed {
			return
		}
		closed = true
		if err := ctrl.Close(); err != nil {
			w.logger.Warnw("close controller", "error", err)
		}
	}
	defer closeCtrl()

	if run.replay != "" {
		if _, err := ctrl.BeginReplay(w.store(run.replay)); err != nil {
			return fmt.Errorf("replay %s: %w", run.replay, err)
		}
	}

	poller := teleop.NewPoller(leader, live, teleop.PollerConfig{Hz: hz, Logger: w.logger.Named("leader")})
	go poller.Run(ctx)

	done := make(chan error, 1)
	go func() { done <- ctrl.Start(ctx) }()

	p := tea.NewProgram(initialTeleopModel(ctx, ctrl, run.title), tea.WithAltScreen())
	_, tuiErr := p.Run()

	cancel()
	if err := <-done; err != nil && !teleop.IsCanceled(err) && !errors.Is(err, context.DeadlineExceeded) {
		w.logger.Errorw("control loop failed", "error", err)
	}
	closeCtrl()

	fmt.Printf("Control loop: %s\n", ctrl.Timing())
	if cfg.Recorder != nil {
		fmt.Printf("Recorded %d frames to %s\n", cfg.Recorder.Frames(), run.recordName)
	}
	return tuiErr
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Motor colors - distinct colors for each motor
var motorColors = map[robot.MotorName]string{
	robot.ShoulderPan:  "196", // red
	robot.ShoulderLift: "208", // orange
	robot.ElbowFlex:    "226", // yellow
	robot.WristFlex:    "46",  // green
	robot.WristRoll:    "51",  // cyan
	robot.Gripper:      "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	replayStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	liveStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
)

type teleopModel struct {
	ctx      context.Context
	ctrl     *teleop.Controller
	title    string
	chart    *streamlinechart.Model
	width    int      // terminal width
	height   int      // terminal height
	logs     []string // last N log messages
	quitting bool

	source    motion.State
	remaining int
	last      robot.JointVector
	hasLast   bool
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type stateMsg teleop.State
type logMsg string
type doneMsg struct{}

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func waitForDone(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		<-ctx.Done()
		return doneMsg{}
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m *teleopModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialTeleopModel(ctx context.Context, ctrl *teleop.Controller, title string) teleopModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)

	for _, name := range robot.AllMotors() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColors[name]))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return teleopModel{
		ctx:   ctx,
		ctrl:  ctrl,
		title: title,
		chart: &chart,
	}
}

func (m teleopModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
		waitForDone(m.ctx),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case doneMsg:
		m.quitting = true
		return m, tea.Quit

	case stateMsg:
		state := teleop.State(msg)
		m.source = state.Source
		m.remaining = state.Remaining
		// Only update chart if there's movement (freeze when idle)
		if state.Error == nil && (!m.hasLast || state.Joints != m.last) {
			for name, pos := range state.Joints.Positions() {
				m.chart.PushDataSet(string(name), pos)
			}
			m.chart.DrawAll()
			m.last = state.Joints
			m.hasLast = true
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString(fmt.Sprintf(" - %d Hz  ", m.ctrl.Hz()))
	sb.WriteString(m.sourceBadge())
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m teleopModel) sourceBadge() string {
	if m.source == motion.Replaying {
		left := time.Duration(m.remaining) * time.Second / time.Duration(m.ctrl.Hz())
		return replayStyle.Render(fmt.Sprintf("REPLAY %d rows (%s) left", m.remaining, left.Round(100*time.Millisecond)))
	}
	return liveStyle.Render("LIVE")
}

func renderLegend() string {
	var items []string
	for _, name := range robot.AllMotors() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+string(name))
	}
	return strings.Join(items, "  ")
}
