package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/csvarm/pkg/robot"
)

// goodRange is the raw step span a joint should cover during calibration.
const goodRange = 500

type SetupCommand struct {
	ScanTimeout time.Duration `long:"scan-timeout" default:"2s" description:"Servo scan timeout per serial port"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("csvarm setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	// Replay and log settings survive a re-run of setup.
	cfg, err := robot.LoadConfigOrDefault(opts.Config)
	if err != nil {
		return fmt.Errorf("load %s: %w", opts.Config, err)
	}

	leader, follower, err := identifyArms(c.ScanTimeout)
	if err != nil {
		return err
	}
	cfg.Leader.Port = leader
	cfg.Follower.Port = follower

	roles := []struct {
		name string
		arm  *robot.ArmConfig
	}{
		{"leader", &cfg.Leader},
		{"follower", &cfg.Follower},
	}
	for _, role := range roles {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Calibrating " + role.name + " arm ━━━"))
		fmt.Println()

		cal, err := calibrateArm(role.arm.Port, c.ScanTimeout)
		if err != nil {
			return fmt.Errorf("calibrate %s: %w", role.name, err)
		}
		role.arm.Calibration = cal

		// Save after each arm so a failed follower keeps the leader.
		if err := cfg.SaveTo(opts.Config); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Printf("%s arm calibrated.\n", role.name)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Record an episode with:  " + headerStyle.Render("csvarm record"))
	fmt.Println("Replay recordings with: " + headerStyle.Render("csvarm replay"))
	return nil
}

type foundArm struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

// identifyArms scans the serial ports and asks which arm is which.
func identifyArms(timeout time.Duration) (leader, follower string, err error) {
	fmt.Println("Scanning for robot arms...")
	fmt.Println()

	arms, err := findArms(timeout)
	if err != nil {
		return "", "", err
	}
	if len(arms) == 0 {
		return "", "", errors.New("no SO-101 arms found, make sure they are connected and powered on")
	}
	fmt.Printf("Found %d arm(s). Let's identify them...\n\n", len(arms))

	for i, arm := range arms {
		if leader != "" && follower != "" {
			// both known; release the remaining buses
			arm.bus.Close()
			continue
		}
		role, err := identifyArmWithWiggle(arm, leader == "", follower == "")
		if err != nil {
			for _, rest := range arms[i+1:] {
				rest.bus.Close()
			}
			return "", "", err
		}
		switch role {
		case "leader":
			leader = arm.port
		case "follower":
			follower = arm.port
		}
	}

	fmt.Println()
	var missing []string
	if leader == "" {
		missing = append(missing, "leader")
	}
	if follower == "" {
		missing = append(missing, "follower")
	}
	if len(missing) > 0 {
		return "", "", fmt.Errorf("%s arm not identified, both are required", strings.Join(missing, " and "))
	}

	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Arms identified:"))
	fmt.Printf("  Leader:   %s\n", leader)
	fmt.Printf("  Follower: %s\n", follower)
	return leader, follower, nil
}

func findArms(timeout time.Duration) ([]foundArm, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	var arms []foundArm
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		bus, servos, err := openArmBus(port, timeout)
		if err != nil {
			continue
		}
		fmt.Printf("  Found SO-101 arm on %s\n", port)
		arms = append(arms, foundArm{port: port, servos: servos, bus: bus})
	}
	return arms, nil
}

// openArmBus opens port and checks that it carries servos 1-6.
func openArmBus(port string, timeout time.Duration) (*feetech.Bus, []feetech.FoundServo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, nil, err
	}

	servos, err := bus.Scan(ctx, 1, robot.NumJoints)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	if !isSOArm(servos) {
		bus.Close()
		return nil, nil, fmt.Errorf("%s: not an SO-101 arm (expected 6 servos with IDs 1-6)", port)
	}
	return bus, servos, nil
}

func isSOArm(servos []feetech.FoundServo) bool {
	if len(servos) != robot.NumJoints {
		return false
	}
	seen := make(map[int]bool, len(servos))
	for _, s := range servos {
		seen[s.ID] = true
	}
	for id := 1; id <= robot.NumJoints; id++ {
		if !seen[id] {
			return false
		}
	}
	return true
}

// identifyArmWithWiggle moves the shoulder pan of arm a little and asks the
// user which role it plays. It returns "" for a skipped arm.
func identifyArmWithWiggle(arm foundArm, needLeader, needFollower bool) (string, error) {
	defer arm.bus.Close()
	ctx := context.Background()

	var servo *feetech.Servo
	for _, s := range arm.servos {
		if s.ID == 1 {
			servo = feetech.NewServo(arm.bus, s.ID, s.Model)
			break
		}
	}
	if servo == nil {
		return "", nil
	}

	home, err := servo.Position(ctx)
	if err != nil {
		fmt.Printf("  Error reading position: %v\n", err)
		return "", nil
	}
	if err := servo.Enable(ctx); err != nil {
		fmt.Printf("  Error enabling servo: %v\n", err)
		return "", nil
	}

	fmt.Printf("\n  Wiggling arm on %s...\n", arm.port)
	const (
		amount = 30
		moveMs = 500
	)
	for _, target := range []int{home + amount, home - amount, home} {
		servo.SetPositionWithTime(ctx, target, moveMs)
		time.Sleep((moveMs + 100) * time.Millisecond)
	}
	servo.Disable(ctx)

	var options []huh.Option[string]
	if needLeader {
		options = append(options, huh.NewOption("Leader (the one you move by hand)", "leader"))
	}
	if needFollower {
		options = append(options, huh.NewOption("Follower (the one that follows)", "follower"))
	}
	options = append(options, huh.NewOption("Skip this arm", "skip"))

	var role string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Which arm is on %s?", arm.port)).
				Description("The arm that just wiggled").
				Options(options...).
				Value(&role),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	if role == "skip" {
		return "", nil
	}
	return role, nil
}

// calibrateArm records the range of motion of the arm on port while the user
// moves every joint to both ends.
func calibrateArm(port string, timeout time.Duration) (robot.Calibration, error) {
	fmt.Printf("Calibrating arm on %s\n\n", port)

	bus, _, err := openArmBus(port, timeout)
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	ids := make([]int, robot.NumJoints)
	for i := range ids {
		ids[i] = i + 1
	}
	group := feetech.NewServoGroupByIDs(bus, ids...)

	// Torque off so the user can move the arm freely
	ctx := context.Background()
	if err := group.DisableAll(ctx); err != nil {
		return nil, fmt.Errorf("torque off: %w", err)
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println("Explore the full range of motion for all joints.")
	fmt.Println()

	model := calibrationModel{group: group}
	if err := model.sample(ctx); err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	model.min, model.max = model.cur, model.cur

	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	cm := final.(calibrationModel)
	if cm.aborted {
		return nil, errors.New("calibration aborted")
	}

	cal := make(robot.Calibration, robot.NumJoints)
	for i, name := range robot.AllMotors() {
		cal[name] = robot.MotorCalibration{
			ID:       i + 1,
			RangeMin: cm.min[i],
			RangeMax: cm.max[i],
		}
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("%w (move every joint through its range)", err)
	}
	return cal, nil
}

// calibrationModel tracks current, minimum and maximum raw positions per
// joint, indexed like robot.AllMotors.
type calibrationModel struct {
	group    *feetech.ServoGroup
	cur      [robot.NumJoints]int
	min      [robot.NumJoints]int
	max      [robot.NumJoints]int
	quitting bool
	aborted  bool
}

type sampleMsg time.Time

func nextSample() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return sampleMsg(t)
	})
}

// sample reads all positions in one sync read.
func (m *calibrationModel) sample(ctx context.Context) error {
	positions, err := m.group.Positions(ctx)
	if err != nil {
		return err
	}
	for id, pos := range positions {
		i := id - 1
		if i < 0 || i >= robot.NumJoints {
			continue
		}
		m.cur[i] = pos
		m.min[i] = min(m.min[i], pos)
		m.max[i] = max(m.max[i], pos)
	}
	return nil
}

func (m calibrationModel) Init() tea.Cmd {
	return nextSample()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+c":
			m.quitting = true
			m.aborted = true
			return m, tea.Quit
		}

	case sampleMsg:
		// a missed read just skips a sample
		_ = m.sample(context.Background())
		return m, nextSample()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	rows := make([][]string, 0, robot.NumJoints)
	var ranges [robot.NumJoints]int
	for i, name := range robot.AllMotors() {
		ranges[i] = m.max[i] - m.min[i]
		rows = append(rows, []string{
			string(name),
			strconv.Itoa(m.cur[i]),
			strconv.Itoa(m.min[i]),
			strconv.Itoa(m.max[i]),
			strconv.Itoa(ranges[i]),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableMotorStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > goodRange {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	return t.Render() + "\n\n" + dimStyle.Render("Press Enter when done")
}
