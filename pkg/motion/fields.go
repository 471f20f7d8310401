package motion

import (
	"fmt"

	"github.com/gwillem/csvarm/pkg/robot"
	"github.com/gwillem/csvarm/pkg/trajectory"
)

// FieldMode selects how a recorded row becomes a joint vector.
type FieldMode string

const (
	// FieldsAuto slices at the offset when a row has more than six fields and
	// takes it verbatim otherwise.
	FieldsAuto FieldMode = "auto"
	// FieldsDirect requires exactly six fields.
	FieldsDirect FieldMode = "direct"
	// FieldsOffset always slices six fields starting at the offset.
	FieldsOffset FieldMode = "offset"
)

// ParseFieldMode parses auto, direct or offset.
func ParseFieldMode(s string) (FieldMode, error) {
	switch m := FieldMode(s); m {
	case FieldsAuto, FieldsDirect, FieldsOffset:
		return m, nil
	}
	return "", fmt.Errorf("unknown field mode %q", s)
}

// FieldPolicy is the row to joint vector selection rule.
type FieldPolicy struct {
	Mode   FieldMode
	Offset int // index of the first joint field in a long row
}

// DefaultFieldPolicy reads the state columns of a recorded frame, or a bare
// six-field row as is.
func DefaultFieldPolicy() FieldPolicy {
	return FieldPolicy{Mode: FieldsAuto, Offset: trajectory.StateOffset}
}

// Select extracts the joint vector from row. Rows too short for the rule
// yield an error wrapping trajectory.ErrMalformedRow.
func (p FieldPolicy) Select(row trajectory.Row) (robot.JointVector, error) {
	direct := p.Mode == FieldsDirect || (p.Mode == FieldsAuto && len(row) <= robot.NumJoints)
	if direct {
		if len(row) != robot.NumJoints {
			return robot.JointVector{}, fmt.Errorf("%w: want %d fields, got %d",
				trajectory.ErrMalformedRow, robot.NumJoints, len(row))
		}
		return robot.JointVectorFromSlice(row)
	}

	end := p.Offset + robot.NumJoints
	if p.Offset < 0 || len(row) < end {
		return robot.JointVector{}, fmt.Errorf("%w: want fields %d..%d, got %d fields",
			trajectory.ErrMalformedRow, p.Offset, end-1, len(row))
	}
	return robot.JointVectorFromSlice(row[p.Offset:end])
}
