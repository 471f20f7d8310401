// Package csvarm replays recorded joint trajectories on SO-101 robot arms.
//
// A recording is a CSV file (or SQLite table) of joint rows. The follower arm
// plays the rows back one per control tick and then keeps following a live
// leader arm, so a demonstration can be shown and then taken over by hand.
//
// # Installation
//
//	go install github.com/gwillem/csvarm/cmd/csvarm@latest
//
// # Usage
//
// First, run setup to detect and calibrate your robot arms:
//
//	csvarm setup
//
// Record an episode by moving the leader, then play it back:
//
//	csvarm record --duration 30s
//	csvarm replay
//
// Replay one recording and continue with live teleoperation:
//
//	csvarm teleoperate --replay episode_0
//
// Settings live in csvarm.json and can be overridden with CSVARM_* variables,
// e.g. CSVARM_REPLAY_DIR or CSVARM_REPLAY_BACKEND=sqlite.
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/csvarm: CLI with setup, teleoperate, record, replay and inspect commands
//   - pkg/trajectory: Recording stores (memory, CSV file, SQLite) and the frame recorder
//   - pkg/motion: Replay-then-live multiplexer and the live joint register
//   - pkg/robot: Arm control, joint vectors, calibration, and configuration
//   - pkg/teleop: Fixed-rate control loop, leader poller and loop metrics
//   - pkg/logging: zap logger construction
package csvarm
