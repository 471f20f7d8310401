// Package motion feeds a control loop one joint vector per tick, first from a
// recorded trajectory and then, once the recording is used up, from a live
// reading.
//
// A Multiplexer is in one of two states. After BeginSession it is Replaying
// with a count of unread rows; each ReadNext consumes one row. When the count
// reaches zero the recording is closed, exactly once, and the multiplexer is
// Live: ReadNext returns the latest snapshot of its LiveSource until the next
// BeginSession.
//
// A Multiplexer is driven from a single goroutine. Only its LiveSource is
// shared with other goroutines.
package motion

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/csvarm/pkg/robot"
	"github.com/gwillem/csvarm/pkg/trajectory"
)

// State is the source the next ReadNext draws from.
type State int

const (
	Live State = iota
	Replaying
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case Replaying:
		return "replaying"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithFieldPolicy sets the row selection rule. The default is DefaultFieldPolicy.
func WithFieldPolicy(p FieldPolicy) Option {
	return func(m *Multiplexer) { m.policy = p }
}

// WithLogger sets the logger for session transitions.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(m *Multiplexer) { m.logger = logger }
}

// Multiplexer switches between a recorded trajectory and a live source.
type Multiplexer struct {
	live   LiveSource
	policy FieldPolicy
	logger *zap.SugaredLogger

	state     State
	store     trajectory.Store
	total     int
	remaining int
	session   string
	err       error
}

// New returns a Live multiplexer over live.
func New(live LiveSource, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		live:   live,
		policy: DefaultFieldPolicy(),
		logger: zap.NewNop().Sugar(),
		state:  Live,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BeginSession starts replaying store from its first row and returns the row
// count. A session already in progress is closed first. An empty recording
// leaves the multiplexer Live. On error the multiplexer is Live with no
// recording attached.
func (m *Multiplexer) BeginSession(store trajectory.Store) (int, error) {
	if err := m.Close(); err != nil {
		return 0, fmt.Errorf("close previous session: %w", err)
	}
	m.session = uuid.NewString()

	n, err := store.OpenForRead()
	if err != nil {
		return 0, fmt.Errorf("begin session: %w", multierr.Append(err, store.Close()))
	}
	if n == 0 {
		m.logger.Infow("empty recording, staying live", "session", m.session)
		if err := store.Close(); err != nil {
			return 0, fmt.Errorf("begin session: %w", err)
		}
		return 0, nil
	}

	m.store = store
	m.state = Replaying
	m.total = n
	m.remaining = n
	m.logger.Infow("replay started", "session", m.session, "rows", n)
	return n, nil
}

// ReadNext returns the next recorded joint vector while rows remain, and the
// live snapshot afterwards. It never blocks on the live source.
//
// A row that cannot be turned into a joint vector ends the session: the error
// wraps trajectory.ErrMalformedRow, Remaining is left unchanged, and every
// later call returns the same error until BeginSession or Close.
func (m *Multiplexer) ReadNext() (robot.JointVector, error) {
	if m.err != nil {
		return robot.JointVector{}, m.err
	}
	if m.state != Replaying {
		return m.live.Snapshot(), nil
	}

	joints, err := m.nextRecorded()
	if err != nil {
		m.err = fmt.Errorf("session %s, row %d: %w", m.session, m.total-m.remaining+1, err)
		m.logger.Errorw("replay aborted", "session", m.session, "remaining", m.remaining, "error", err)
		return robot.JointVector{}, m.err
	}

	m.remaining--
	if m.remaining == 0 {
		m.goLive("replay finished")
	}
	return joints, nil
}

func (m *Multiplexer) nextRecorded() (robot.JointVector, error) {
	row, err := m.store.NextRow()
	if errors.Is(err, trajectory.ErrEndOfData) {
		// the recording shrank after it was counted
		return robot.JointVector{}, fmt.Errorf("recording ended early: %w", err)
	}
	if err != nil {
		return robot.JointVector{}, err
	}
	return m.policy.Select(row)
}

// goLive closes the recording and switches to the live source. A failing
// close is logged: the row that completed the recording was already read.
func (m *Multiplexer) goLive(reason string) {
	if err := m.store.Close(); err != nil {
		m.logger.Warnw("closing recording", "session", m.session, "error", err)
	}
	m.logger.Infow(reason, "session", m.session)
	m.store = nil
	m.state = Live
	m.remaining = 0
}

// State reports where the next ReadNext reads from.
func (m *Multiplexer) State() State {
	return m.state
}

// Remaining returns the number of recorded rows not yet read.
func (m *Multiplexer) Remaining() int {
	return m.remaining
}

// SessionID identifies the current or last session in logs.
func (m *Multiplexer) SessionID() string {
	return m.session
}

// Err returns the error that ended the current session, if any.
func (m *Multiplexer) Err() error {
	return m.err
}

// Close releases any recording still attached and goes Live. It is safe to
// call at any time and more than once.
func (m *Multiplexer) Close() error {
	m.err = nil
	if m.store == nil {
		m.state = Live
		return nil
	}
	err := m.store.Close()
	if m.remaining > 0 {
		m.logger.Infow("replay stopped early", "session", m.session, "remaining", m.remaining)
	}
	m.store = nil
	m.state = Live
	m.remaining = 0
	return err
}
