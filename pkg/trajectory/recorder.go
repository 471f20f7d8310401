package trajectory

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/gwillem/csvarm/pkg/robot"
)

// FrameWidth is the number of fields in a recorded Frame row.
const FrameWidth = 1 + 2*robot.NumJoints

// StateOffset is the index of the first state column in a Frame row.
const StateOffset = 1 + robot.NumJoints

// Frame is one recorded timestep: when it happened, what was commanded and
// what the arm reported back.
type Frame struct {
	Timestamp float64 // seconds since the start of the recording
	Action    robot.JointVector
	State     robot.JointVector
}

// Row lays the frame out as [timestamp, action x6, state x6].
func (f Frame) Row() Row {
	row := make(Row, 0, FrameWidth)
	row = append(row, f.Timestamp)
	row = append(row, f.Action[:]...)
	row = append(row, f.State[:]...)
	return row
}

// FrameColumns returns the header names of a Frame row.
func FrameColumns() []string {
	prefixed := func(prefix string) []string {
		return lo.Map(robot.AllMotors(), func(m robot.MotorName, _ int) string {
			return prefix + "." + string(m)
		})
	}
	columns := []string{"timestamp"}
	columns = append(columns, prefixed("action")...)
	return append(columns, prefixed("observation.state")...)
}

// Recorder appends Frames to a Store.
type Recorder struct {
	store  Store
	frames int
}

// NewRecorder opens store for write, discarding what it held.
func NewRecorder(store Store) (*Recorder, error) {
	if err := store.OpenForWrite(); err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	return &Recorder{store: store}, nil
}

// Record appends one frame.
func (r *Recorder) Record(f Frame) error {
	if err := r.store.Append(f.Row()); err != nil {
		return fmt.Errorf("record frame %d: %w", r.frames, err)
	}
	r.frames++
	return nil
}

// Frames returns the number of frames recorded so far.
func (r *Recorder) Frames() int {
	return r.frames
}

// Close closes the underlying store.
func (r *Recorder) Close() error {
	return r.store.Close()
}
