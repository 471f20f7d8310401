// Package teleop runs the fixed-rate control loop that drives a follower arm
// from a motion.Multiplexer: recorded trajectories first, the live leader
// reading after.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/csvarm/pkg/logging"
	"github.com/gwillem/csvarm/pkg/motion"
	"github.com/gwillem/csvarm/pkg/robot"
	"github.com/gwillem/csvarm/pkg/trajectory"
)

// Actuator turns an action into motion.
type Actuator interface {
	SendAction(ctx context.Context, action robot.Action) error
}

// JointReader reads the current joint positions of an arm.
type JointReader interface {
	ReadJoints(ctx context.Context) (robot.JointVector, error)
}

// BaseSource supplies the platform-motion part of each action. It is for
// mobile platforms; a bare arm has no base, so without one the base
// velocities stay zero.
type BaseSource interface {
	BaseVelocity() robot.BaseVelocity
}

// Torquer is implemented by actuators whose torque the loop switches on at
// start and off at shutdown.
type Torquer interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// State represents the current state of the control loop.
type State struct {
	Joints    robot.JointVector
	Source    motion.State
	Remaining int
	Timestamp time.Time
	Error     error
}

// Controller manages the control loop.
type Controller struct {
	mux      *motion.Multiplexer
	actuator Actuator
	hz       int
	mirror   bool
	base     BaseSource
	clock    clock.Clock
	logger   *zap.SugaredLogger
	metrics  *Metrics

	recorder    *trajectory.Recorder
	stateReader JointReader
	recordStart time.Time

	mu      sync.RWMutex
	running bool
	timer   *tickTimer
	stateCh chan State
	logCh   chan string
}

// Config holds configuration for the controller.
type Config struct {
	Hz      int
	Mirror  bool // Invert positions for shoulder_pan (servo 1) and wrist_roll (servo 5)
	Base    BaseSource
	Clock   clock.Clock
	Logger  *zap.SugaredLogger
	Metrics *Metrics

	// Recorder, when set, receives one frame per tick. StateReader supplies
	// the frame's state columns; without it the commanded joints are used.
	Recorder    *trajectory.Recorder
	StateReader JointReader
}

// NewController creates a controller. The multiplexer and actuator stay
// owned by the caller, except that Close closes the multiplexer.
func NewController(mux *motion.Multiplexer, actuator Actuator, cfg Config) *Controller {
	if cfg.Hz <= 0 {
		cfg.Hz = robot.DefaultHz
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	c := &Controller{
		mux:         mux,
		actuator:    actuator,
		hz:          cfg.Hz,
		mirror:      cfg.Mirror,
		base:        cfg.Base,
		clock:       cfg.Clock,
		logger:      logging.OrNop(cfg.Logger),
		metrics:     cfg.Metrics,
		recorder:    cfg.Recorder,
		stateReader: cfg.StateReader,
		stateCh:     make(chan State, 1),
		logCh:       make(chan string, 10),
	}
	c.timer = newTickTimer(c.period())
	return c
}

// Close stops the loop's use of the recording and recorder.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	err := c.mux.Close()
	if c.recorder != nil {
		err = multierr.Append(err, c.recorder.Close())
	}
	if err != nil {
		return fmt.Errorf("close controller: %w", err)
	}
	return nil
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

// Timing summarizes recent tick durations.
func (c *Controller) Timing() Timing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timer.report()
}

func (c *Controller) period() time.Duration {
	return time.Second / time.Duration(c.hz)
}

func (c *Controller) log(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.logger.Info(text)
	msg := fmt.Sprintf("[%s] %s", c.clock.Now().Format("15:04:05"), text)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// BeginReplay starts replaying store on the next tick. Call it before Start
// or RunEpisode, not while the loop runs.
func (c *Controller) BeginReplay(store trajectory.Store) (int, error) {
	n, err := c.mux.BeginSession(store)
	if err != nil {
		c.metrics.observeError("begin")
		return 0, err
	}
	if n == 0 {
		c.log("Recording is empty, following the leader")
	} else {
		c.log("Replaying %d rows (%.1fs)", n, float64(n)/float64(c.hz))
	}
	return n, nil
}

func (c *Controller) claim() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("already running")
	}
	c.running = true
	return nil
}

func (c *Controller) release() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// Start runs the control loop until ctx is done. A failed replay session is
// closed and the loop carries on with the live source.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.claim(); err != nil {
		return err
	}
	defer c.release()

	c.enableTorque(ctx)
	c.log("Control loop started at %d Hz", c.hz)

	ticker := c.clock.Ticker(c.period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			if err := c.step(ctx); err != nil {
				c.log("Replay aborted: %v", err)
				if err := c.mux.Close(); err != nil {
					c.log("Closing recording: %v", err)
				}
			}
		}
	}
}

// RunEpisode replays store for exactly as many ticks as it has rows and
// returns the row count. Errors from the recording end the episode.
func (c *Controller) RunEpisode(ctx context.Context, store trajectory.Store) (int, error) {
	if err := c.claim(); err != nil {
		return 0, err
	}
	defer c.release()

	n, err := c.BeginReplay(store)
	if err != nil || n == 0 {
		return 0, err
	}

	ticker := c.clock.Ticker(c.period())
	defer ticker.Stop()

	for c.mux.State() == motion.Replaying {
		select {
		case <-ctx.Done():
			return n - c.mux.Remaining(), multierr.Append(ctx.Err(), c.mux.Close())
		case <-ticker.C:
			if err := c.step(ctx); err != nil {
				return n - c.mux.Remaining(), multierr.Append(err, c.mux.Close())
			}
		}
	}
	return n, nil
}

// step runs one tick. It returns only errors that end a replay session;
// actuator and recorder failures are logged and the loop goes on.
func (c *Controller) step(ctx context.Context) error {
	start := c.clock.Now()
	replayed := c.mux.State() == motion.Replaying

	joints, err := c.mux.ReadNext()
	if err != nil {
		c.metrics.observeError("read")
		c.sendState(State{Error: err, Source: c.mux.State(), Remaining: c.mux.Remaining(), Timestamp: start})
		return err
	}

	commanded := joints
	if c.mirror {
		commanded = joints.Mirrored()
	}
	action := robot.Action{Arm: commanded}
	if c.base != nil {
		action.Base = c.base.BaseVelocity()
	}

	if err := c.actuator.SendAction(ctx, action); err != nil {
		c.metrics.observeError("write")
		c.log("Write error: %v", err)
	}

	if c.recorder != nil {
		c.record(ctx, start, commanded)
	}

	elapsed := c.clock.Since(start)
	c.mu.Lock()
	overrun := c.timer.add(elapsed)
	c.mu.Unlock()
	if overrun {
		c.logger.Debugw("tick overran", "elapsed", elapsed, "period", c.period())
	}
	c.metrics.observeTick(elapsed, overrun, c.mux.State(), replayed)

	c.sendState(State{
		Joints:    joints,
		Source:    c.mux.State(),
		Remaining: c.mux.Remaining(),
		Timestamp: start,
	})
	return nil
}

func (c *Controller) record(ctx context.Context, now time.Time, commanded robot.JointVector) {
	if c.recorder.Frames() == 0 {
		c.recordStart = now
	}
	observed := commanded
	if c.stateReader != nil {
		var err error
		if observed, err = c.stateReader.ReadJoints(ctx); err != nil {
			c.metrics.observeError("observe")
			c.log("Read error: %v", err)
			observed = commanded
		}
	}
	err := c.recorder.Record(trajectory.Frame{
		Timestamp: now.Sub(c.recordStart).Seconds(),
		Action:    commanded,
		State:     observed,
	})
	if err != nil {
		c.metrics.observeError("record")
		c.log("Record error: %v", err)
	}
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) enableTorque(ctx context.Context) {
	t, ok := c.actuator.(Torquer)
	if !ok {
		return
	}
	if err := t.Enable(ctx); err != nil {
		c.log("Warning: failed to enable follower: %v", err)
	} else {
		c.log("Follower arm: torque enabled")
	}
}

func (c *Controller) shutdown() {
	if t, ok := c.actuator.(Torquer); ok {
		// ctx is already done; give the bus its own short deadline
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := t.Disable(ctx); err != nil {
			c.log("Warning: failed to disable follower: %v", err)
		} else {
			c.log("Follower arm: torque disabled")
		}
	}
	c.log("Control loop stopped (%s)", c.Timing())
}

// IsCanceled reports whether err only says the loop was asked to stop.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
