// Package robot provides the SO-101 arm model: motor names, joint vectors,
// calibration, the feetech servo bus and the on-disk configuration.
package robot

import "fmt"

// MotorName identifies a motor in the arm.
type MotorName string

// Motor names for the SO-101 arm.
const (
	ShoulderPan  MotorName = "shoulder_pan"
	ShoulderLift MotorName = "shoulder_lift"
	ElbowFlex    MotorName = "elbow_flex"
	WristFlex    MotorName = "wrist_flex"
	WristRoll    MotorName = "wrist_roll"
	Gripper      MotorName = "gripper"
)

// NumJoints is the number of axes driven by a JointVector.
const NumJoints = 6

// AllMotors returns all motor names in order (matching servo IDs 1-6).
func AllMotors() []MotorName {
	return []MotorName{
		ShoulderPan,
		ShoulderLift,
		ElbowFlex,
		WristFlex,
		WristRoll,
		Gripper,
	}
}

// JointVector holds one position per motor, in AllMotors order.
// It is a value type: copies never share storage.
type JointVector [NumJoints]float64

// JointVectorFromSlice copies exactly NumJoints values into a JointVector.
func JointVectorFromSlice(values []float64) (JointVector, error) {
	var v JointVector
	if len(values) != NumJoints {
		return v, fmt.Errorf("joint vector needs %d values, got %d", NumJoints, len(values))
	}
	copy(v[:], values)
	return v, nil
}

// JointVectorFromPositions orders a named position map into a JointVector.
// Missing motors are left at zero.
func JointVectorFromPositions(positions map[MotorName]float64) JointVector {
	var v JointVector
	for i, name := range AllMotors() {
		v[i] = positions[name]
	}
	return v
}

// Positions returns the vector as a named position map.
func (v JointVector) Positions() map[MotorName]float64 {
	positions := make(map[MotorName]float64, NumJoints)
	for i, name := range AllMotors() {
		positions[name] = v[i]
	}
	return positions
}

// Mirrored inverts shoulder_pan and wrist_roll, for arms mounted facing each other.
func (v JointVector) Mirrored() JointVector {
	v[0] = -v[0]
	v[4] = -v[4]
	return v
}

// BaseVelocity is the platform-motion part of an action for a mobile base.
type BaseVelocity struct {
	X     float64 // m/s forward
	Y     float64 // m/s left
	Theta float64 // deg/s counter-clockwise
}

// Action is one control-loop command: arm joints plus base motion.
type Action struct {
	Arm  JointVector
	Base BaseVelocity
}

// Map flattens the action into the keyed form used by mobile-manipulator clients.
func (a Action) Map() map[string]float64 {
	m := make(map[string]float64, NumJoints+3)
	for i, name := range AllMotors() {
		m[fmt.Sprintf("arm_%s.pos", name)] = a.Arm[i]
	}
	m["x.vel"] = a.Base.X
	m["y.vel"] = a.Base.Y
	m["theta.vel"] = a.Base.Theta
	return m
}
