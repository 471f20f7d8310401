package teleop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/csvarm/pkg/motion"
	"github.com/gwillem/csvarm/pkg/robot"
)

func TestPoller_Poll(t *testing.T) {
	arm := &fakeArm{joints: robot.JointVector{1, 2, 3, 4, 5, 6}}
	reg := motion.NewRegister(robot.JointVector{})
	p := NewPoller(arm, reg, PollerConfig{})

	require.NoError(t, p.Poll(context.Background()))
	assert.Equal(t, arm.joints, reg.Snapshot())

	// a failed read keeps the last good vector
	arm.readErr = errors.New("no status packet")
	arm.joints = robot.JointVector{}
	assert.Error(t, p.Poll(context.Background()))
	assert.Equal(t, robot.JointVector{1, 2, 3, 4, 5, 6}, reg.Snapshot())
}

func TestPoller_Run(t *testing.T) {
	clk := clock.NewMock()
	arm := &fakeArm{joints: robot.JointVector{7, 7, 7, 7, 7, 7}}
	reg := motion.NewRegister(robot.JointVector{})
	p := NewPoller(arm, reg, PollerConfig{Hz: 100, Clock: clk})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		clk.Add(10 * time.Millisecond)
		return reg.Snapshot() == arm.joints
	}, 2*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSeed(t *testing.T) {
	reg := motion.NewRegister(robot.JointVector{})
	require.NoError(t, Seed(context.Background(), &fakeArm{joints: robot.JointVector{3, 3, 3, 3, 3, 3}}, reg))
	assert.Equal(t, robot.JointVector{3, 3, 3, 3, 3, 3}, reg.Snapshot())

	err := Seed(context.Background(), &fakeArm{readErr: errors.New("unplugged")}, reg)
	assert.ErrorContains(t, err, "unplugged")
}
