package motion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gwillem/csvarm/pkg/robot"
	"github.com/gwillem/csvarm/pkg/trajectory"
)

// closeCounter wraps a store and counts Close calls made while it was open.
type closeCounter struct {
	trajectory.Store
	open   bool
	closes int
}

func (c *closeCounter) OpenForRead() (int, error) {
	n, err := c.Store.OpenForRead()
	c.open = err == nil
	return n, err
}

func (c *closeCounter) Close() error {
	if c.open {
		c.closes++
		c.open = false
	}
	return c.Store.Close()
}

func recording(t *testing.T, rows ...trajectory.Row) *closeCounter {
	t.Helper()
	s := trajectory.NewMemoryStore()
	require.NoError(t, s.OpenForWrite())
	for _, r := range rows {
		require.NoError(t, s.Append(r))
	}
	require.NoError(t, s.Close())
	return &closeCounter{Store: s}
}

var liveJoints = robot.JointVector{-1, -2, -3, -4, -5, -6}

func TestMultiplexer_ReplayThenLive(t *testing.T) {
	store := recording(t,
		trajectory.Row{1, 2, 3, 4, 5, 6},
		trajectory.Row{7, 8, 9, 10, 11, 12},
		trajectory.Row{13, 14, 15, 16, 17, 18},
	)
	m := New(NewRegister(liveJoints))

	n, err := m.BeginSession(store)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, Replaying, m.State())
	assert.NotEmpty(t, m.SessionID())

	want := []robot.JointVector{
		{1, 2, 3, 4, 5, 6},
		{7, 8, 9, 10, 11, 12},
		{13, 14, 15, 16, 17, 18},
	}
	for i, w := range want {
		got, err := m.ReadNext()
		require.NoError(t, err)
		assert.Equal(t, w, got, "tick %d", i)
		assert.Equal(t, 2-i, m.Remaining())
		if i < 2 {
			assert.Zero(t, store.closes, "closed before the last row")
		}
	}

	assert.Equal(t, 1, store.closes)
	assert.Equal(t, Live, m.State())

	got, err := m.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, liveJoints, got)

	require.NoError(t, m.Close())
	assert.Equal(t, 1, store.closes, "closed again after the transition")
}

func TestMultiplexer_LiveFollowsRegister(t *testing.T) {
	reg := NewRegister(liveJoints)
	m := New(reg)

	got, err := m.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, liveJoints, got)

	reg.Store(robot.JointVector{9, 9, 9, 9, 9, 9})
	got, err = m.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, robot.JointVector{9, 9, 9, 9, 9, 9}, got)
}

func TestMultiplexer_EmptyRecordingStaysLive(t *testing.T) {
	store := recording(t)
	m := New(NewRegister(liveJoints))

	n, err := m.BeginSession(store)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, Live, m.State())
	assert.Equal(t, 1, store.closes)

	got, err := m.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, liveJoints, got)
}

func TestMultiplexer_NotFound(t *testing.T) {
	m := New(NewRegister(liveJoints))

	_, err := m.BeginSession(trajectory.NewMemoryStore())
	assert.ErrorIs(t, err, trajectory.ErrNotFound)
	assert.Equal(t, Live, m.State())

	got, err := m.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, liveJoints, got)
}

func TestMultiplexer_FailedOpenKeepsCloseError(t *testing.T) {
	openErr := errors.New("permission denied")
	closeErr := errors.New("bad file descriptor")
	store := &rawRows{openErr: openErr, closeErr: closeErr}
	m := New(NewRegister(liveJoints))

	_, err := m.BeginSession(store)
	assert.ErrorIs(t, err, openErr)
	assert.ErrorIs(t, err, closeErr)
	assert.True(t, store.closed)
	assert.Equal(t, Live, m.State())
}

func TestMultiplexer_OffsetRows(t *testing.T) {
	frame := trajectory.Frame{
		Timestamp: 0.5,
		Action:    robot.JointVector{1, 1, 1, 1, 1, 1},
		State:     robot.JointVector{10, 20, 30, 40, 50, 60},
	}
	store := recording(t, frame.Row(), trajectory.Row{1, 2, 3, 4, 5, 6})
	m := New(NewRegister(liveJoints))

	_, err := m.BeginSession(store)
	require.NoError(t, err)

	got, err := m.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, frame.State, got)

	got, err = m.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, robot.JointVector{1, 2, 3, 4, 5, 6}, got)
}

func TestMultiplexer_MalformedRowEndsSession(t *testing.T) {
	store := &rawRows{rows: [][]string{{"1", "2", "3", "4", "5", "6"}, {"a", "b", "c", "d", "e", "f"}, {"1", "2", "3", "4", "5", "6"}}}

	core, logs := observer.New(zapcore.InfoLevel)
	m := New(NewRegister(liveJoints), WithLogger(zap.New(core).Sugar()))

	_, err := m.BeginSession(store)
	require.NoError(t, err)

	_, err = m.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Remaining())

	_, err = m.ReadNext()
	assert.ErrorIs(t, err, trajectory.ErrMalformedRow)
	assert.Equal(t, 2, m.Remaining(), "remaining changed by a malformed row")
	assert.Equal(t, Replaying, m.State())
	assert.Equal(t, 1, logs.FilterMessage("replay aborted").Len())

	// the session stays failed
	_, err2 := m.ReadNext()
	assert.Equal(t, err, err2)
	assert.ErrorIs(t, m.Err(), trajectory.ErrMalformedRow)

	require.NoError(t, m.Close())
	assert.True(t, store.closed)
	assert.NoError(t, m.Err())
	got, err := m.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, liveJoints, got)
}

func TestMultiplexer_NonFiniteRowEndsSession(t *testing.T) {
	for _, bad := range []string{"NaN", "Inf", "-Inf"} {
		t.Run(bad, func(t *testing.T) {
			store := &rawRows{rows: [][]string{{bad, "2", "3", "4", "5", "6"}}}
			m := New(NewRegister(liveJoints))

			n, err := m.BeginSession(store)
			require.NoError(t, err)
			require.Equal(t, 1, n)

			got, err := m.ReadNext()
			assert.ErrorIs(t, err, trajectory.ErrMalformedRow)
			assert.Equal(t, robot.JointVector{}, got)
			assert.Equal(t, 1, m.Remaining())
			assert.Equal(t, Replaying, m.State())
		})
	}
}

func TestMultiplexer_ShortRowIsMalformed(t *testing.T) {
	store := recording(t, trajectory.Row{1, 2, 3})
	m := New(NewRegister(liveJoints))

	_, err := m.BeginSession(store)
	require.NoError(t, err)

	_, err = m.ReadNext()
	assert.ErrorIs(t, err, trajectory.ErrMalformedRow)
	assert.Equal(t, 1, m.Remaining())
}

func TestMultiplexer_RecordingEndsEarly(t *testing.T) {
	store := &rawRows{rows: [][]string{{"1", "2", "3", "4", "5", "6"}}, count: 2}
	m := New(NewRegister(liveJoints))

	_, err := m.BeginSession(store)
	require.NoError(t, err)
	_, err = m.ReadNext()
	require.NoError(t, err)

	_, err = m.ReadNext()
	assert.ErrorIs(t, err, trajectory.ErrEndOfData)
}

func TestMultiplexer_RestartClosesPrevious(t *testing.T) {
	first := recording(t, trajectory.Row{1, 2, 3, 4, 5, 6}, trajectory.Row{1, 2, 3, 4, 5, 6})
	second := recording(t, trajectory.Row{6, 5, 4, 3, 2, 1})
	m := New(NewRegister(liveJoints))

	_, err := m.BeginSession(first)
	require.NoError(t, err)
	_, err = m.ReadNext()
	require.NoError(t, err)
	firstSession := m.SessionID()

	n, err := m.BeginSession(second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, first.closes)
	assert.NotEqual(t, firstSession, m.SessionID())

	got, err := m.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, robot.JointVector{6, 5, 4, 3, 2, 1}, got)
	assert.Equal(t, 1, second.closes)
}

func TestMultiplexer_CloseIsIdempotent(t *testing.T) {
	m := New(NewRegister(liveJoints))
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())

	store := recording(t, trajectory.Row{1, 2, 3, 4, 5, 6}, trajectory.Row{1, 2, 3, 4, 5, 6})
	_, err := m.BeginSession(store)
	require.NoError(t, err)

	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
	assert.Equal(t, 1, store.closes)
	assert.Equal(t, Live, m.State())
	assert.Zero(t, m.Remaining())
}

func TestMultiplexer_ReplayCountProperty(t *testing.T) {
	for _, n := range []int{1, 2, 7, 100} {
		rows := make([]trajectory.Row, n)
		for i := range rows {
			v := float64(i)
			rows[i] = trajectory.Row{v, v, v, v, v, v}
		}
		store := recording(t, rows...)
		m := New(NewRegister(liveJoints))

		count, err := m.BeginSession(store)
		require.NoError(t, err)
		require.Equal(t, n, count)

		for i := 0; i < n; i++ {
			got, err := m.ReadNext()
			require.NoError(t, err)
			require.Equal(t, float64(i), got[0])
		}
		got, err := m.ReadNext()
		require.NoError(t, err)
		assert.Equal(t, liveJoints, got, "n=%d", n)
		assert.Equal(t, 1, store.closes, "n=%d", n)
	}
}

// rawRows is a store over literal text fields. count overrides the row count
// reported by OpenForRead when non-zero.
type rawRows struct {
	rows     [][]string
	count    int
	next     int
	closed   bool
	openErr  error
	closeErr error
}

func (r *rawRows) OpenForWrite() error { return errors.New("read only") }

func (r *rawRows) Append(trajectory.Row) error { return errors.New("read only") }

func (r *rawRows) Close() error {
	r.closed = true
	return r.closeErr
}

func (r *rawRows) OpenForRead() (int, error) {
	if r.openErr != nil {
		return 0, r.openErr
	}
	r.next = 0
	if r.count > 0 {
		return r.count, nil
	}
	return len(r.rows), nil
}

func (r *rawRows) NextRow() (trajectory.Row, error) {
	if r.next >= len(r.rows) {
		return nil, trajectory.ErrEndOfData
	}
	r.next++
	return trajectory.ParseRow(r.rows[r.next-1])
}
