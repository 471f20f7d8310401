package robot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJointVectorFromSlice(t *testing.T) {
	v, err := JointVectorFromSlice([]float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, JointVector{1, 2, 3, 4, 5, 6}, v)

	_, err = JointVectorFromSlice([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestJointVector_PositionsRoundTrip(t *testing.T) {
	v := JointVector{-10, 20.5, 30, -40, 50, 60}
	positions := v.Positions()

	assert.Len(t, positions, NumJoints)
	assert.Equal(t, 20.5, positions[ShoulderLift])
	assert.Equal(t, 60.0, positions[Gripper])
	assert.Equal(t, v, JointVectorFromPositions(positions))
}

func TestJointVector_Mirrored(t *testing.T) {
	v := JointVector{1, 2, 3, 4, 5, 6}
	assert.Equal(t, JointVector{-1, 2, 3, 4, -5, 6}, v.Mirrored())
	// value receiver leaves the original alone
	assert.Equal(t, JointVector{1, 2, 3, 4, 5, 6}, v)
}

func TestAction_Map(t *testing.T) {
	a := Action{
		Arm:  JointVector{1, 2, 3, 4, 5, 6},
		Base: BaseVelocity{X: 0.1, Theta: 30},
	}
	m := a.Map()

	assert.Len(t, m, 9)
	assert.Equal(t, 1.0, m["arm_shoulder_pan.pos"])
	assert.Equal(t, 6.0, m["arm_gripper.pos"])
	assert.Equal(t, 0.1, m["x.vel"])
	assert.Equal(t, 0.0, m["y.vel"])
	assert.Equal(t, 30.0, m["theta.vel"])
}
