package robot

import (
	"context"
	"fmt"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// Arm represents a robot arm with multiple servos.
type Arm struct {
	port        string
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

// NewArm opens the serial bus on port and groups the calibrated servos.
func NewArm(port string, cal Calibration) (*Arm, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("arm on %s: %w", port, err)
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	group := feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...)

	return &Arm{
		port:        port,
		bus:         bus,
		group:       group,
		calibration: cal,
	}, nil
}

// Port returns the serial port the arm is attached to.
func (a *Arm) Port() string {
	return a.port
}

// Close closes the arm's bus connection.
func (a *Arm) Close() error {
	return a.bus.Close()
}

// Enable enables torque on all servos.
func (a *Arm) Enable(ctx context.Context) error {
	return a.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (a *Arm) Disable(ctx context.Context) error {
	return a.group.DisableAll(ctx)
}

// ReadJoints reads all motors in one sync read and returns normalized
// positions in the range [-100, 100].
func (a *Arm) ReadJoints(ctx context.Context) (JointVector, error) {
	rawPositions, err := a.group.Positions(ctx)
	if err != nil {
		return JointVector{}, fmt.Errorf("read positions: %w", err)
	}

	positions := make(map[MotorName]float64, len(rawPositions))
	for id, raw := range rawPositions {
		name, cal, ok := a.calibration.ByID(id)
		if !ok {
			continue
		}
		positions[name] = cal.Normalize(raw)
	}
	if len(positions) != NumJoints {
		return JointVector{}, fmt.Errorf("read positions: got %d of %d motors", len(positions), NumJoints)
	}

	return JointVectorFromPositions(positions), nil
}

// WriteJoints writes normalized target positions to all motors in one sync write.
func (a *Arm) WriteJoints(ctx context.Context, joints JointVector) error {
	rawPositions := make(feetech.PositionMap, NumJoints)
	for i, name := range AllMotors() {
		cal, ok := a.calibration[name]
		if !ok {
			continue
		}
		rawPositions[cal.ID] = cal.Denormalize(joints[i])
	}

	if err := a.group.SetPositions(ctx, rawPositions); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}

	return nil
}

// SendAction drives the arm part of an action. A bare arm has no base, so
// the base velocity is ignored.
func (a *Arm) SendAction(ctx context.Context, action Action) error {
	return a.WriteJoints(ctx, action.Arm)
}
